package assets

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/anima-scan/engine/core"
)

// OnRecordingsChanged is invoked on the watcher goroutine with the path that changed.
type OnRecordingsChanged func(path string)

// RecordingWatcher reports changes to the recordings directory that did not go
// through the catalog, such as files copied in or removed by hand.
type RecordingWatcher struct {
	dir      string
	onChange OnRecordingsChanged

	mutex    sync.Mutex
	fsnotify *fsnotify.Watcher
	isClosed bool
	done     chan struct{}
	stopped  chan struct{}
}

func NewRecordingWatcher(dir string, onChange OnRecordingsChanged) (*RecordingWatcher, error) {
	if onChange == nil {
		return nil, errors.New("recording watcher needs a change callback")
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &RecordingWatcher{
		dir:      dir,
		onChange: onChange,
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Initialize creates the directory when missing and starts watching it (non-recursively).
func (rw *RecordingWatcher) Initialize() error {
	rw.mutex.Lock()
	defer rw.mutex.Unlock()

	if rw.isClosed {
		return errors.New("recording watcher already closed")
	}
	if err := os.MkdirAll(rw.dir, 0o755); err != nil {
		return core.NewIOError("mkdir", rw.dir, err)
	}
	if err := rw.fsnotify.Add(rw.dir); err != nil {
		return core.NewIOError("watch", rw.dir, err)
	}

	go rw.start()
	core.LogDebug("watching %s for recording changes", rw.dir)
	return nil
}

func (rw *RecordingWatcher) start() {
	defer close(rw.stopped)
	for {
		select {
		case e, ok := <-rw.fsnotify.Events:
			if !ok {
				return
			}
			if isRecordingEvent(e) {
				rw.onChange(e.Name)
			}

		case err, ok := <-rw.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("recording watcher: %s", err)

		case <-rw.done:
			return
		}
	}
}

// Temp files written during a save are hidden, only the final rename counts.
func isRecordingEvent(e fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(e.Name), ".") {
		return false
	}
	return e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}

// Close stops the watcher. Safe to call more than once.
func (rw *RecordingWatcher) Close() error {
	rw.mutex.Lock()
	if rw.isClosed {
		rw.mutex.Unlock()
		return nil
	}
	rw.isClosed = true
	close(rw.done)
	rw.mutex.Unlock()

	err := rw.fsnotify.Close()
	return err
}

// Wait blocks until the watcher goroutine has exited. Only meaningful after Initialize.
func (rw *RecordingWatcher) Wait() {
	<-rw.stopped
}
