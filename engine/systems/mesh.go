package systems

import (
	"sync"

	"github.com/spaghettifunk/anima-scan/engine/core"
	"github.com/spaghettifunk/anima-scan/engine/math"
	"github.com/spaghettifunk/anima-scan/engine/metadata"
)

type trackedEntry struct {
	transform math.Mat4
	geometry  *metadata.Geometry
}

// MeshAnchorTracker keeps the latest transform and geometry of every fragment the
// sensor currently reports. It implements metadata.FragmentListener.
type MeshAnchorTracker struct {
	converter *GeometryConverter

	mu         sync.RWMutex
	entries    map[string]*trackedEntry
	order      []string
	generation uint64
}

func NewMeshAnchorTracker(converter *GeometryConverter) *MeshAnchorTracker {
	if converter == nil {
		converter = NewGeometryConverter()
	}
	return &MeshAnchorTracker{
		converter: converter,
		entries:   make(map[string]*trackedEntry),
	}
}

// OnFragmentAdded decodes the buffers and upserts the fragment. Adding a known id
// replaces its entry.
func (mt *MeshAnchorTracker) OnFragmentAdded(id string, transform math.Mat4, vertices metadata.BufferDescriptor, normals *metadata.BufferDescriptor, faces metadata.IndexBufferDescriptor) error {
	return mt.upsert(id, transform, vertices, normals, faces)
}

// OnFragmentUpdated has the same upsert semantics as OnFragmentAdded; an unknown
// id is inserted.
func (mt *MeshAnchorTracker) OnFragmentUpdated(id string, transform math.Mat4, vertices metadata.BufferDescriptor, normals *metadata.BufferDescriptor, faces metadata.IndexBufferDescriptor) error {
	return mt.upsert(id, transform, vertices, normals, faces)
}

// OnFragmentRemoved forgets the fragment. Unknown ids are ignored.
func (mt *MeshAnchorTracker) OnFragmentRemoved(id string) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if _, ok := mt.entries[id]; !ok {
		return
	}
	delete(mt.entries, id)
	for i, existing := range mt.order {
		if existing == id {
			mt.order = append(mt.order[:i], mt.order[i+1:]...)
			break
		}
	}
	mt.generation++
}

func (mt *MeshAnchorTracker) upsert(id string, transform math.Mat4, vertices metadata.BufferDescriptor, normals *metadata.BufferDescriptor, faces metadata.IndexBufferDescriptor) error {
	// decode outside the lock, the snapshot path must not wait on it
	geometry, err := mt.converter.Convert(vertices, normals, faces)
	if err != nil {
		return err
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()

	if entry, ok := mt.entries[id]; ok {
		entry.transform = transform
		entry.geometry = geometry
	} else {
		mt.entries[id] = &trackedEntry{transform: transform, geometry: geometry}
		mt.order = append(mt.order, id)
	}
	mt.generation++
	return nil
}

func (mt *MeshAnchorTracker) FragmentAdded(fragment *metadata.MeshFragment) {
	if err := mt.OnFragmentAdded(fragment.ID, fragment.Transform, fragment.Vertices, fragment.Normals, fragment.Faces); err != nil {
		core.LogWarn("skipping added fragment '%s': %s", fragment.ID, err)
	}
}

func (mt *MeshAnchorTracker) FragmentUpdated(fragment *metadata.MeshFragment) {
	if err := mt.OnFragmentUpdated(fragment.ID, fragment.Transform, fragment.Vertices, fragment.Normals, fragment.Faces); err != nil {
		core.LogWarn("skipping updated fragment '%s': %s", fragment.ID, err)
	}
}

func (mt *MeshAnchorTracker) FragmentRemoved(id string) {
	mt.OnFragmentRemoved(id)
}

// Snapshot copies the current mapping in insertion order. Geometries are shared,
// they are never mutated after decoding.
func (mt *MeshAnchorTracker) Snapshot() []metadata.TrackedFragment {
	snapshot, _ := mt.SnapshotWithGeneration()
	return snapshot
}

// SnapshotWithGeneration returns the snapshot and the generation it reflects,
// read under the same lock.
func (mt *MeshAnchorTracker) SnapshotWithGeneration() ([]metadata.TrackedFragment, uint64) {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	out := make([]metadata.TrackedFragment, 0, len(mt.order))
	for _, id := range mt.order {
		entry := mt.entries[id]
		out = append(out, metadata.TrackedFragment{
			ID:        id,
			Transform: entry.transform,
			Geometry:  entry.geometry,
		})
	}
	return out, mt.generation
}

// Generation increments on every successful mutation.
func (mt *MeshAnchorTracker) Generation() uint64 {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return mt.generation
}

func (mt *MeshAnchorTracker) Len() int {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return len(mt.entries)
}

// Reset drops every tracked fragment.
func (mt *MeshAnchorTracker) Reset() {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	mt.entries = make(map[string]*trackedEntry)
	mt.order = nil
	mt.generation++
}
