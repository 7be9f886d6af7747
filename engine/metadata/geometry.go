package metadata

import (
	"github.com/spaghettifunk/anima-scan/engine/math"
)

// Triangle holds three indices into Geometry.Positions.
type Triangle [3]uint32

/**
 * @brief Canonical decoded mesh geometry. Normals is either nil or parallel to
 * Positions; every triangle index is < len(Positions).
 */
type Geometry struct {
	Positions []math.Vec3
	Normals   []math.Vec3
	Triangles []Triangle
}

func (g *Geometry) VertexCount() int {
	return len(g.Positions)
}

func (g *Geometry) TriangleCount() int {
	return len(g.Triangles)
}

func (g *Geometry) HasNormals() bool {
	return g.Normals != nil
}

func (g *Geometry) Extents() math.Extents3D {
	return math.GeometryExtents(g.Positions)
}

// TriangleIndices exposes the triangles in the shape the math helpers take.
func (g *Geometry) TriangleIndices() [][3]uint32 {
	out := make([][3]uint32, len(g.Triangles))
	for i, t := range g.Triangles {
		out[i] = t
	}
	return out
}

// TrackedFragment is one entry of a tracker snapshot.
type TrackedFragment struct {
	ID        string
	Transform math.Mat4
	Geometry  *Geometry
}
