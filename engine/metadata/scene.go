package metadata

import (
	"time"

	"github.com/spaghettifunk/anima-scan/engine/math"
)

// SceneNode is the renderable form of one fragment.
type SceneNode struct {
	ID        string
	Transform math.Mat4
	Geometry  *Geometry
}

// WorldPositions returns the node's positions with its transform applied.
func (n *SceneNode) WorldPositions() []math.Vec3 {
	out := make([]math.Vec3, len(n.Geometry.Positions))
	for i, p := range n.Geometry.Positions {
		out[i] = p.Transform(n.Transform)
	}
	return out
}

/**
 * @brief The renderable collection of nodes. A Scene is rebuilt from scratch on
 * every aggregation cycle and never mutated once published.
 */
type Scene struct {
	Nodes []*SceneNode
	/** @brief Tracker generation the scene was built from. */
	Generation uint64
	BuiltAt    time.Time
}

func NewEmptyScene() *Scene {
	return &Scene{Nodes: []*SceneNode{}}
}

func (s *Scene) Node(id string) (*SceneNode, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return nil, false
}

func (s *Scene) VertexCount() int {
	total := 0
	for _, n := range s.Nodes {
		total += n.Geometry.VertexCount()
	}
	return total
}

func (s *Scene) TriangleCount() int {
	total := 0
	for _, n := range s.Nodes {
		total += n.Geometry.TriangleCount()
	}
	return total
}
