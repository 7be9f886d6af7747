package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/anima-scan/engine/assets"
	"github.com/spaghettifunk/anima-scan/engine/core"
	"github.com/spaghettifunk/anima-scan/engine/metadata"
	"github.com/spaghettifunk/anima-scan/engine/platform"
	"github.com/spaghettifunk/anima-scan/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

const mailboxSize = 256

// Engine owns the capture pipeline. Sensor callbacks arrive on the session's
// goroutine and are handed to the owning goroutine, the one calling Run, in
// delivery order.
type Engine struct {
	currentStage  atomic.Uint32
	gameInstance  *Game
	config        *ApplicationConfig
	platform      *platform.Platform
	dispatcher    *core.Dispatcher
	events        *core.EventSystem
	systemManager *systems.SystemManager
	watcher       *assets.RecordingWatcher
	gate          metadata.FragmentListener
	frameInterval time.Duration

	reloadPending atomic.Bool
	quit          chan struct{}
	quitOnce      sync.Once
	shutdownOnce  sync.Once
}

func New(g *Game, session platform.Session, permissions platform.PermissionGate) (*Engine, error) {
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = DefaultApplicationConfig()
	}
	cfg := g.ApplicationConfig
	if err := cfg.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	core.SetLogLevel(core.ParseLogLevel(cfg.LogLevel))

	p, err := platform.New(session, permissions)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	dispatcher := core.NewDispatcher(mailboxSize)
	events := core.NewEventSystem()

	sm, err := systems.NewSystemManager(systems.SystemManagerConfig{
		RecordingsDir: cfg.RecordingsDir,
		Workers:       cfg.Workers,
		JobQueueSize:  cfg.JobQueueSize,
		PreviewSize:   cfg.PreviewSize(),
	}, p, dispatcher, events)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	g.SystemManager = sm

	return &Engine{
		gameInstance:  g,
		config:        cfg,
		platform:      p,
		dispatcher:    dispatcher,
		events:        events,
		systemManager: sm,
		gate:          sm.RecordingController.Listener(),
		frameInterval: time.Second / time.Duration(cfg.FrameRate),
		quit:          make(chan struct{}),
	}, nil
}

func (e *Engine) Stage() Stage {
	return Stage(e.currentStage.Load())
}

func (e *Engine) setStage(s Stage) {
	e.currentStage.Store(uint32(s))
}

func (e *Engine) Initialize() error {
	e.setStage(EngineStageInitializing)

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_RECORDING_STARTED, e, e.onRecording)
	e.events.Register(core.EVENT_CODE_RECORDING_SAVED, e, e.onRecording)
	e.events.Register(core.EVENT_CODE_RECORDING_SAVE_FAILED, e, e.onRecording)
	e.events.Register(core.EVENT_CODE_PERMISSION_DENIED, e, e.onRecording)
	e.events.Register(core.EVENT_CODE_RECORDINGS_CHANGED, e, e.onEvent)

	if err := e.platform.Startup(e); err != nil {
		return err
	}

	if e.config.WatchRecordings {
		watcher, err := assets.NewRecordingWatcher(e.config.RecordingsDir, func(path string) {
			ctx := core.EventContext{}
			ctx.Data.Path = path
			e.events.Fire(core.EVENT_CODE_RECORDINGS_CHANGED, e, ctx)
		})
		if err != nil {
			return err
		}
		if err := watcher.Initialize(); err != nil {
			watcher.Close()
			return err
		}
		e.watcher = watcher
	}

	e.systemManager.RecordingCatalog.LoadRecordings()

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}

	e.setStage(EngineStageInitialized)
	core.LogInfo("%s initialized, recordings in %s", e.config.Name, e.config.RecordingsDir)
	return nil
}

/**
 * @brief Runs the owning loop: drains the mailbox and aggregates the scene once
 * per frame while recording. Returns when ctx is done, on APPLICATION_QUIT or
 * after Shutdown.
 */
func (e *Engine) Run(ctx context.Context) error {
	e.setStage(EngineStageRunning)

	ticker := time.NewTicker(e.frameInterval)
	defer ticker.Stop()

	for {
		select {
		case fn := <-e.dispatcher.Mailbox():
			fn()
		case <-ticker.C:
			e.frame()
		case <-ctx.Done():
			return nil
		case <-e.quit:
			return nil
		case <-e.dispatcher.Done():
			return nil
		}
	}
}

func (e *Engine) frame() {
	if e.reloadPending.Swap(false) {
		e.systemManager.RecordingCatalog.LoadRecordings()
	}

	controller := e.systemManager.RecordingController
	aggregator := e.systemManager.SceneAggregator
	if !controller.IsRecording() || !aggregator.NeedsRebuild() {
		return
	}

	scene := aggregator.Aggregate()
	if e.gameInstance.FnOnSceneUpdated != nil {
		if err := e.gameInstance.FnOnSceneUpdated(scene); err != nil {
			core.LogError("scene update hook failed: %s", err)
		}
	}
	if metrics := aggregator.Metrics(); metrics.Cycles()%uint64(core.AVG_COUNT) == 0 {
		core.LogDebug("aggregation: %.3f ms avg, %.1f cycles/s, %d vertices", metrics.AverageCycleMS(), metrics.CyclesPerSecond(), scene.VertexCount())
	}
}

func (e *Engine) Shutdown() error {
	var err error
	e.shutdownOnce.Do(func() {
		e.setStage(EngineStageShuttingDown)
		e.quitOnce.Do(func() { close(e.quit) })

		if e.watcher != nil {
			if cerr := e.watcher.Close(); cerr != nil {
				core.LogWarn("closing recording watcher: %s", cerr)
			}
		}
		// pending job results are applied directly once the mailbox is closed
		e.dispatcher.Stop()
		if err = e.systemManager.Shutdown(); err != nil {
			return
		}
		if err = e.platform.Shutdown(); err != nil {
			return
		}
		if err = e.events.Shutdown(); err != nil {
			return
		}
		if e.gameInstance.FnShutdown != nil {
			err = e.gameInstance.FnShutdown()
		}
	})
	return err
}

// Quit asks Run to return.
func (e *Engine) Quit() {
	e.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, e, core.EventContext{})
}

func (e *Engine) StartRecording() error {
	return e.systemManager.RecordingController.StartRecording()
}

// StopAndSaveRecording blocks until the scene is saved. Call it off the owning
// goroutine: the status hooks it triggers are posted to the owner mailbox.
func (e *Engine) StopAndSaveRecording() (string, error) {
	return e.systemManager.RecordingController.StopAndSaveRecording()
}

func (e *Engine) IsRecording() bool {
	return e.systemManager.RecordingController.IsRecording()
}

func (e *Engine) SystemManager() *systems.SystemManager {
	return e.systemManager
}

func (e *Engine) Catalog() *systems.RecordingCatalog {
	return e.systemManager.RecordingCatalog
}

// Scene is the last aggregated scene.
func (e *Engine) Scene() *metadata.Scene {
	return e.systemManager.SceneAggregator.Scene()
}

func (e *Engine) Dispatcher() *core.Dispatcher {
	return e.dispatcher
}

func (e *Engine) Events() *core.EventSystem {
	return e.events
}

// FragmentAdded is called by the sensor session on its own goroutine.
func (e *Engine) FragmentAdded(fragment *metadata.MeshFragment) {
	e.deliver(func() { e.gate.FragmentAdded(fragment) })
}

func (e *Engine) FragmentUpdated(fragment *metadata.MeshFragment) {
	e.deliver(func() { e.gate.FragmentUpdated(fragment) })
}

func (e *Engine) FragmentRemoved(id string) {
	e.deliver(func() { e.gate.FragmentRemoved(id) })
}

// deliver gives up when the session is paused while waiting for mailbox room.
// The gate would drop the event anyway.
func (e *Engine) deliver(fn func()) {
	if !e.dispatcher.PostUnless(fn, e.platform.Halted()) {
		core.LogDebug("sensor paused, dropping fragment event")
	}
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listenerInst interface{}, data core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.quitOnce.Do(func() { close(e.quit) })
		return true
	case core.EVENT_CODE_RECORDINGS_CHANGED:
		core.LogDebug("recordings changed on disk: %s", data.Data.Path)
		e.reloadPending.Store(true)
		return true
	}
	return false
}

// onRecording runs on whichever goroutine fired the event, so the game hooks are
// handed to the owning goroutine.
func (e *Engine) onRecording(code core.SystemEventCode, sender interface{}, listenerInst interface{}, data core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_RECORDING_SAVED:
		e.systemManager.RecordingCatalog.LoadRecordings()
		path := data.Data.Path
		e.post(func() {
			if e.gameInstance.FnOnRecordingSaved != nil {
				if err := e.gameInstance.FnOnRecordingSaved(path); err != nil {
					core.LogError("recording saved hook failed: %s", err)
				}
			}
		})
	case core.EVENT_CODE_RECORDING_SAVE_FAILED, core.EVENT_CODE_PERMISSION_DENIED:
		core.LogWarn("%s: %v", data.Data.Message, data.Data.Err)
	}

	if message := data.Data.Message; message != "" && e.gameInstance.FnOnStatus != nil {
		e.post(func() { e.gameInstance.FnOnStatus(message) })
	}
	return false
}

// post drops fn once the owning loop is gone.
func (e *Engine) post(fn func()) {
	if !e.dispatcher.Post(fn) {
		core.LogDebug("owning loop stopped, dropping callback")
	}
}
