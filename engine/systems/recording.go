package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-scan/engine/core"
	"github.com/spaghettifunk/anima-scan/engine/metadata"
	"github.com/spaghettifunk/anima-scan/engine/platform"
)

type RecordingState uint8

const (
	RecordingStateIdle RecordingState = iota
	RecordingStateRecording
)

func (s RecordingState) String() string {
	switch s {
	case RecordingStateRecording:
		return "recording"
	default:
		return "idle"
	}
}

// RecordingController drives the capture session. Fragment events reach the
// tracker only through Listener(), and only while a recording is running.
type RecordingController struct {
	platform   *platform.Platform
	tracker    *MeshAnchorTracker
	aggregator *SceneAggregator
	serializer *SceneSerializer
	preview    *PreviewRenderer
	events     *core.EventSystem

	// serializes start, stop and cancel; never taken by the gate
	transition sync.Mutex
	// guards state and every forwarded fragment event
	mu        sync.Mutex
	state     RecordingState
	sessionID string
}

// NewRecordingController wires the controller. preview and events may be nil.
func NewRecordingController(p *platform.Platform, tracker *MeshAnchorTracker, aggregator *SceneAggregator, serializer *SceneSerializer, preview *PreviewRenderer, events *core.EventSystem) *RecordingController {
	return &RecordingController{
		platform:   p,
		tracker:    tracker,
		aggregator: aggregator,
		serializer: serializer,
		preview:    preview,
		events:     events,
	}
}

func (rc *RecordingController) State() RecordingState {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.state
}

func (rc *RecordingController) IsRecording() bool {
	return rc.State() == RecordingStateRecording
}

/**
 * @brief Starts a fresh capture. The tracker and the scene are cleared and the
 * sensor session is restarted with tracking reset and old anchors removed.
 * @returns nil when already recording, core.ErrPermissionDenied when the gate
 * refuses, or the session start error. Only a nil return from Idle moves to Recording.
 */
func (rc *RecordingController) StartRecording() error {
	rc.transition.Lock()
	defer rc.transition.Unlock()

	rc.mu.Lock()
	if rc.state == RecordingStateRecording {
		rc.mu.Unlock()
		return nil
	}

	if !rc.platform.Authorize() {
		rc.mu.Unlock()
		core.LogWarn("sensor access denied, recording not started")
		ctx := core.EventContext{}
		ctx.Data.Err = core.ErrPermissionDenied
		ctx.Data.Message = "Sensor access is required to record a scan"
		rc.fire(core.EVENT_CODE_PERMISSION_DENIED, ctx)
		return core.ErrPermissionDenied
	}

	rc.tracker.Reset()
	rc.aggregator.Reset()

	options := platform.RunOptionResetTracking | platform.RunOptionRemoveExistingAnchors
	if err := rc.platform.RunSession(platform.DefaultCaptureConfiguration(), options); err != nil {
		rc.mu.Unlock()
		return fmt.Errorf("start sensor session: %w", err)
	}
	rc.state = RecordingStateRecording
	rc.sessionID = core.NewSessionID()
	sessionID := rc.sessionID
	rc.mu.Unlock()

	core.LogInfo("recording started (session %s)", sessionID)
	ctx := core.EventContext{}
	ctx.Data.Message = "Recording"
	rc.fire(core.EVENT_CODE_RECORDING_STARTED, ctx)
	return nil
}

/**
 * @brief Stops the capture and persists the current scene. The controller is
 * Idle when this returns, whatever the save outcome.
 * @returns The path of the new recording, ("", nil) when not recording, or the *core.IOError.
 */
func (rc *RecordingController) StopAndSaveRecording() (string, error) {
	rc.transition.Lock()
	defer rc.transition.Unlock()

	rc.mu.Lock()
	if rc.state != RecordingStateRecording {
		rc.mu.Unlock()
		return "", nil
	}
	rc.state = RecordingStateIdle
	sessionID := rc.sessionID
	rc.sessionID = ""
	rc.mu.Unlock()

	// the gate is closed already, the sensor may still be flushing a callback
	rc.platform.PauseSession()

	core.LogInfo("recording stopped (session %s)", sessionID)
	rc.fire(core.EVENT_CODE_RECORDING_STOPPED, core.EventContext{})

	scene := rc.aggregator.Aggregate()
	path, err := rc.serializer.Save(scene)
	if err != nil {
		core.LogError("failed to save recording: %s", err)
		ctx := core.EventContext{}
		ctx.Data.Err = err
		ctx.Data.Message = "Saving the scan failed"
		rc.fire(core.EVENT_CODE_RECORDING_SAVE_FAILED, ctx)
		return "", err
	}

	if rc.preview != nil {
		if err := rc.preview.Render(scene, rc.serializer.PreviewPath(path)); err != nil {
			core.LogWarn("failed to render preview for %s: %s", path, err)
		}
	}

	ctx := core.EventContext{}
	ctx.Data.Path = path
	ctx.Data.Message = "Scan saved"
	rc.fire(core.EVENT_CODE_RECORDING_SAVED, ctx)
	return path, nil
}

// CancelRecording stops the capture without persisting anything.
func (rc *RecordingController) CancelRecording() {
	rc.transition.Lock()
	defer rc.transition.Unlock()

	rc.mu.Lock()
	if rc.state != RecordingStateRecording {
		rc.mu.Unlock()
		return
	}
	rc.state = RecordingStateIdle
	rc.sessionID = ""
	rc.mu.Unlock()

	rc.platform.PauseSession()

	core.LogWarn("recording cancelled, nothing was saved")
	rc.fire(core.EVENT_CODE_RECORDING_STOPPED, core.EventContext{})
}

func (rc *RecordingController) fire(code core.SystemEventCode, ctx core.EventContext) {
	if rc.events == nil {
		return
	}
	rc.events.Fire(code, rc, ctx)
}

// Listener returns the gate the sensor events must go through.
func (rc *RecordingController) Listener() metadata.FragmentListener {
	return &recordingGate{controller: rc}
}

type recordingGate struct {
	controller *RecordingController
}

func (g *recordingGate) forward(fn func(t *MeshAnchorTracker)) {
	rc := g.controller
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.state != RecordingStateRecording {
		return
	}
	fn(rc.tracker)
}

func (g *recordingGate) FragmentAdded(fragment *metadata.MeshFragment) {
	g.forward(func(t *MeshAnchorTracker) { t.FragmentAdded(fragment) })
}

func (g *recordingGate) FragmentUpdated(fragment *metadata.MeshFragment) {
	g.forward(func(t *MeshAnchorTracker) { t.FragmentUpdated(fragment) })
}

func (g *recordingGate) FragmentRemoved(id string) {
	g.forward(func(t *MeshAnchorTracker) { t.FragmentRemoved(id) })
}
