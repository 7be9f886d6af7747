package platform

import (
	"sync"

	"github.com/spaghettifunk/anima-scan/engine/core"
	"github.com/spaghettifunk/anima-scan/engine/metadata"
)

type PlaneDetection uint8

const (
	PlaneDetectionHorizontal PlaneDetection = 1 << iota
	PlaneDetectionVertical
)

// SessionConfiguration is what the sensor session is asked to run with.
type SessionConfiguration struct {
	// SceneReconstruction asks the sensor to report mesh fragments.
	SceneReconstruction bool
	PlaneDetection      PlaneDetection
}

// DefaultCaptureConfiguration enables mesh reconstruction and both plane orientations.
func DefaultCaptureConfiguration() SessionConfiguration {
	return SessionConfiguration{
		SceneReconstruction: true,
		PlaneDetection:      PlaneDetectionHorizontal | PlaneDetectionVertical,
	}
}

type RunOptions uint8

const (
	RunOptionResetTracking RunOptions = 1 << iota
	RunOptionRemoveExistingAnchors
)

// Session is the depth sensor driver. Fragment callbacks are delivered to the
// delegate serially on a goroutine owned by the session.
type Session interface {
	Run(config SessionConfiguration, options RunOptions) error
	Pause()
	SetDelegate(listener metadata.FragmentListener)
}

type PermissionStatus uint8

const (
	PermissionNotDetermined PermissionStatus = iota
	PermissionGranted
	PermissionDenied
)

// PermissionGate asks the user for camera/sensor access.
type PermissionGate interface {
	RequestAccess() PermissionStatus
}

// StaticPermissionGate answers every request with the same status.
type StaticPermissionGate struct {
	Status PermissionStatus
}

func (g StaticPermissionGate) RequestAccess() PermissionStatus {
	return g.Status
}

type Platform struct {
	Session     Session
	Permissions PermissionGate

	mu            sync.Mutex
	cachedStatus  PermissionStatus
	sessionPaused bool
	// closed while the session is paused
	delivering chan struct{}
}

func New(session Session, permissions PermissionGate) (*Platform, error) {
	if session == nil {
		return nil, core.ErrSessionUnavailable
	}
	if permissions == nil {
		permissions = StaticPermissionGate{Status: PermissionGranted}
	}
	return &Platform{
		Session:     session,
		Permissions: permissions,
		delivering:  make(chan struct{}),
	}, nil
}

// Startup hooks the sensor session up to the delegate that receives fragment events.
func (p *Platform) Startup(delegate metadata.FragmentListener) error {
	p.Session.SetDelegate(delegate)
	core.LogDebug("platform started, sensor delegate attached")
	return nil
}

// Authorize asks the gate once and remembers a granted answer. A denial is asked
// again next time, the user may have changed it in the meantime.
func (p *Platform) Authorize() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cachedStatus == PermissionGranted {
		return true
	}
	p.cachedStatus = p.Permissions.RequestAccess()
	return p.cachedStatus == PermissionGranted
}

func (p *Platform) RunSession(config SessionConfiguration, options RunOptions) error {
	p.mu.Lock()
	if p.sessionPaused {
		p.delivering = make(chan struct{})
	}
	p.sessionPaused = false
	p.mu.Unlock()
	return p.Session.Run(config, options)
}

/**
 * @brief Stops fragment delivery and pauses the sensor. Delivery is halted first,
 * so a sensor callback blocked on a full owner mailbox (see Halted) returns and the
 * session can wind down even when the owner is the caller.
 */
func (p *Platform) PauseSession() {
	p.halt()
	p.Session.Pause()
}

// Halted is closed once the current session is paused. Delegates hand it to
// core.Dispatcher.PostUnless.
func (p *Platform) Halted() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delivering
}

// halt reports whether the session was still running.
func (p *Platform) halt() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sessionPaused {
		return false
	}
	p.sessionPaused = true
	close(p.delivering)
	return true
}

func (p *Platform) Shutdown() error {
	if p.halt() {
		p.Session.Pause()
	}
	p.Session.SetDelegate(nil)
	return nil
}
