package testbed

import (
	"context"
	"fmt"
	"time"

	"github.com/spaghettifunk/anima-scan/engine"
	"github.com/spaghettifunk/anima-scan/engine/core"
	"github.com/spaghettifunk/anima-scan/engine/metadata"
)

type ScanGame struct {
	*engine.Game
}

type gameState struct {
	lastScene   *metadata.Scene
	lastLogged  time.Time
	savedPaths  []string
	statusLines []string
}

func NewScanGame(config *engine.ApplicationConfig) *ScanGame {
	g := &ScanGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State:             &gameState{},
		},
	}

	g.FnInitialize = g.Initialize
	g.FnOnSceneUpdated = g.OnSceneUpdated
	g.FnOnRecordingSaved = g.OnRecordingSaved
	g.FnOnStatus = g.OnStatus
	g.FnShutdown = g.Shutdown

	return g
}

func (g *ScanGame) Initialize() error {
	if g.SystemManager == nil {
		return fmt.Errorf("the engine is not yet initialized with all the system managers")
	}
	core.LogDebug("ScanGame Initialize fn....")
	return nil
}

// OnSceneUpdated stands in for the renderer: it keeps the latest scene and
// prints its size about once a second.
func (g *ScanGame) OnSceneUpdated(scene *metadata.Scene) error {
	state := g.State.(*gameState)
	state.lastScene = scene

	if time.Since(state.lastLogged) >= time.Second {
		state.lastLogged = time.Now()
		core.LogInfo("scene: %d nodes, %d vertices, %d triangles", len(scene.Nodes), scene.VertexCount(), scene.TriangleCount())
	}
	return nil
}

func (g *ScanGame) OnRecordingSaved(path string) error {
	state := g.State.(*gameState)
	state.savedPaths = append(state.savedPaths, path)
	core.LogInfo("recording saved to %s", path)
	return nil
}

func (g *ScanGame) OnStatus(message string) {
	state := g.State.(*gameState)
	state.statusLines = append(state.statusLines, message)
	core.LogInfo("status: %s", message)
}

func (g *ScanGame) Shutdown() error {
	state := g.State.(*gameState)
	core.LogInfo("testbed done, %d recordings saved this run", len(state.savedPaths))
	return nil
}

/**
 * @brief Scripted capture: records for the given duration, saves, then prints
 * the catalog. Blocks until finished or ctx is done.
 */
func RunCapture(ctx context.Context, e *engine.Engine, duration time.Duration) error {
	if err := e.StartRecording(); err != nil {
		return err
	}

	select {
	case <-time.After(duration):
	case <-ctx.Done():
		e.SystemManager().RecordingController.CancelRecording()
		return ctx.Err()
	}

	path, err := e.StopAndSaveRecording()
	if err != nil {
		return err
	}

	catalog := e.Catalog()
	deadline := time.Now().Add(5 * time.Second)
	for !hasRecording(catalog.Recordings(), path) {
		if time.Now().After(deadline) {
			return fmt.Errorf("recording %s did not show up in the catalog", path)
		}
		select {
		case <-time.After(20 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for i, r := range catalog.Recordings() {
		core.LogInfo("%2d. %s  %s  %s", i+1, r.Name, r.Timestamp.Format(time.RFC3339), r.Path)
	}
	return nil
}

func hasRecording(recordings []metadata.Recording, path string) bool {
	for _, r := range recordings {
		if r.Path == path {
			return true
		}
	}
	return false
}
