package testbed

import (
	"fmt"
	m "math"
	"sync"
	"time"

	"github.com/spaghettifunk/anima-scan/engine/core"
	"github.com/spaghettifunk/anima-scan/engine/math"
	"github.com/spaghettifunk/anima-scan/engine/metadata"
	"github.com/spaghettifunk/anima-scan/engine/platform"
	"github.com/spaghettifunk/anima-scan/engine/systems"
)

// SyntheticSession pretends to be a depth sensor walking around a small room.
// Every step it either discovers a new surface patch or refines a known one;
// a patch that gets merged into its neighbour is removed.
type SyntheticSession struct {
	interval  time.Duration
	converter *systems.GeometryConverter

	mu       sync.Mutex
	delegate metadata.FragmentListener
	stop     chan struct{}
	done     chan struct{}
	patches  []*patch
	step     int
}

type patch struct {
	id        string
	transform math.Mat4
	w, h      int
}

func NewSyntheticSession(interval time.Duration) *SyntheticSession {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &SyntheticSession{
		interval:  interval,
		converter: systems.NewGeometryConverter(),
	}
}

func (s *SyntheticSession) SetDelegate(listener metadata.FragmentListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegate = listener
}

func (s *SyntheticSession) Run(config platform.SessionConfiguration, options platform.RunOptions) error {
	if !config.SceneReconstruction {
		return fmt.Errorf("synthetic session only produces meshes, scene reconstruction must be on")
	}
	s.Pause()

	s.mu.Lock()
	defer s.mu.Unlock()
	if options&platform.RunOptionRemoveExistingAnchors != 0 {
		s.patches = nil
	}
	if options&platform.RunOptionResetTracking != 0 {
		s.step = 0
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
	core.LogDebug("synthetic sensor running every %s", s.interval)
	return nil
}

func (s *SyntheticSession) Pause() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (s *SyntheticSession) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.advance()
		}
	}
}

// advance runs one scripted step and notifies the delegate outside the lock.
func (s *SyntheticSession) advance() {
	s.mu.Lock()
	delegate := s.delegate
	step := s.step
	s.step++

	var notify func()
	switch {
	case step%7 == 6 && len(s.patches) > 2:
		// merge the oldest patch away
		gone := s.patches[0]
		s.patches = s.patches[1:]
		notify = func() { delegate.FragmentRemoved(gone.id) }
	case step%3 == 2 && len(s.patches) > 0:
		p := s.patches[step%len(s.patches)]
		p.w++
		if p.w%2 == 0 {
			p.h++
		}
		if fragment := s.fragment(p); fragment != nil {
			notify = func() { delegate.FragmentUpdated(fragment) }
		}
	default:
		p := s.discover(step)
		s.patches = append(s.patches, p)
		if fragment := s.fragment(p); fragment != nil {
			notify = func() { delegate.FragmentAdded(fragment) }
		}
	}
	s.mu.Unlock()

	if delegate != nil && notify != nil {
		notify()
	}
}

// discover places floor patches on a ring and stands every fourth one up as a wall.
func (s *SyntheticSession) discover(step int) *patch {
	angle := float32(step) * 0.45
	radius := float32(1.5 + 0.1*float32(step%5))
	position := math.NewVec3(radius*float32(m.Cos(float64(angle))), 0, radius*float32(m.Sin(float64(angle))))
	// points are row vectors, rotations come before the translation
	transform := math.NewMat4EulerY(angle).Mul(math.NewMat4Translation(position))
	if step%4 == 3 {
		// wall: lift the XZ grid into the XY plane
		transform = math.NewMat4EulerX(math.K_HALF_PI).Mul(transform)
	}
	return &patch{
		id:        fmt.Sprintf("anchor-%04d", step),
		transform: transform,
		w:         2,
		h:         2,
	}
}

func (s *SyntheticSession) fragment(p *patch) *metadata.MeshFragment {
	vertices, normals, faces, err := s.converter.Encode(patchGeometry(p.w, p.h, 0.25), 2)
	if err != nil {
		core.LogError("synthetic sensor failed to encode %s: %s", p.id, err)
		return nil
	}
	return &metadata.MeshFragment{
		ID:        p.id,
		Transform: p.transform,
		Vertices:  vertices,
		Normals:   normals,
		Faces:     faces,
	}
}

// patchGeometry is a w x h grid of quads in the XZ plane with up normals.
func patchGeometry(w, h int, cell float32) *metadata.Geometry {
	g := &metadata.Geometry{}
	for z := 0; z <= h; z++ {
		for x := 0; x <= w; x++ {
			g.Positions = append(g.Positions, math.NewVec3(float32(x)*cell, 0, float32(z)*cell))
		}
	}
	row := uint32(w + 1)
	for z := 0; z < h; z++ {
		for x := 0; x < w; x++ {
			i := uint32(z)*row + uint32(x)
			g.Triangles = append(g.Triangles,
				metadata.Triangle{i, i + row + 1, i + 1},
				metadata.Triangle{i, i + row, i + row + 1})
		}
	}
	g.Normals = math.GeometryGenerateNormals(g.Positions, g.TriangleIndices())
	return g
}
