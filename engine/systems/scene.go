package systems

import (
	"sync"

	"github.com/spaghettifunk/anima-scan/engine/core"
	"github.com/spaghettifunk/anima-scan/engine/metadata"
)

/**
 * @brief Builds the renderable Scene out of the tracker's current fragments.
 * Every cycle is a full rebuild: the previous scene is dropped and one node is
 * created per tracked fragment, in snapshot order.
 */
type SceneAggregator struct {
	tracker *MeshAnchorTracker
	clock   *core.Clock
	metrics *core.Metrics

	// one cycle at a time, the clock is not shareable
	cycle sync.Mutex

	mu    sync.RWMutex
	scene *metadata.Scene
}

func NewSceneAggregator(tracker *MeshAnchorTracker) *SceneAggregator {
	return NewSceneAggregatorWithClock(tracker, core.NewClock())
}

func NewSceneAggregatorWithClock(tracker *MeshAnchorTracker, clock *core.Clock) *SceneAggregator {
	return &SceneAggregator{
		tracker: tracker,
		clock:   clock,
		metrics: core.NewMetrics(),
		scene:   metadata.NewEmptyScene(),
	}
}

/**
 * @brief Runs one aggregation cycle and publishes the result.
 * @returns The freshly built scene.
 */
func (sa *SceneAggregator) Aggregate() *metadata.Scene {
	sa.cycle.Lock()
	defer sa.cycle.Unlock()

	sa.clock.Start()

	fragments, generation := sa.tracker.SnapshotWithGeneration()
	scene := &metadata.Scene{
		Nodes:      make([]*metadata.SceneNode, 0, len(fragments)),
		Generation: generation,
	}
	for _, f := range fragments {
		scene.Nodes = append(scene.Nodes, &metadata.SceneNode{
			ID:        f.ID,
			Transform: f.Transform,
			Geometry:  f.Geometry,
		})
	}

	sa.clock.Update()
	elapsed := sa.clock.Elapsed()
	sa.clock.Stop()

	now := sa.clock.Now()
	scene.BuiltAt = now
	sa.metrics.Update(elapsed, now)

	sa.mu.Lock()
	sa.scene = scene
	sa.mu.Unlock()

	core.LogDebug("aggregated %d nodes (generation %d) in %s", len(scene.Nodes), generation, elapsed)
	return scene
}

// Scene returns the latest published scene. Never nil.
func (sa *SceneAggregator) Scene() *metadata.Scene {
	sa.mu.RLock()
	defer sa.mu.RUnlock()
	return sa.scene
}

// NeedsRebuild reports whether the tracker moved past the published scene.
func (sa *SceneAggregator) NeedsRebuild() bool {
	return sa.tracker.Generation() != sa.Scene().Generation
}

func (sa *SceneAggregator) Reset() {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	sa.scene = metadata.NewEmptyScene()
	sa.scene.Generation = sa.tracker.Generation()
}

func (sa *SceneAggregator) Metrics() *core.Metrics {
	return sa.metrics
}
