package engine

import (
	"github.com/spaghettifunk/anima-scan/engine/metadata"
	"github.com/spaghettifunk/anima-scan/engine/systems"
)

// Game is the application driving the engine. Every hook is optional and runs
// on the owning goroutine.
type Game struct {
	ApplicationConfig  *ApplicationConfig
	SystemManager      *systems.SystemManager
	State              interface{}
	FnInitialize       Initialize
	FnOnSceneUpdated   OnSceneUpdated
	FnOnRecordingSaved OnRecordingSaved
	FnOnStatus         OnStatus
	FnShutdown         Shutdown
}

type Initialize func() error

// OnSceneUpdated receives each newly aggregated scene while recording. The scene must not be mutated.
type OnSceneUpdated func(scene *metadata.Scene) error
type OnRecordingSaved func(path string) error

// OnStatus receives user-facing status lines such as "Scan saved".
type OnStatus func(message string)
type Shutdown func() error
