package systems

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spaghettifunk/anima-scan/engine/core"
	"github.com/spaghettifunk/anima-scan/engine/metadata"
)

/**
 * @brief The list of persisted recordings. The recordings directory is the
 * source of truth, the list is a cache of it. Scans and deletes run on the job
 * system and their results are applied on the owning dispatcher, so the list
 * has a single writer.
 */
type RecordingCatalog struct {
	serializer *SceneSerializer
	jobs       *JobSystem
	dispatcher *core.Dispatcher

	mu           sync.RWMutex
	recordings   []metadata.Recording
	isLoading    bool
	errorMessage string

	// seq orders loads and applied deletes. Only the newest load may replace
	// the list, and it never re-adds an entry deleted after its scan began.
	seq          uint64
	latestLoad   uint64
	pendingLoads int
	deletedAt    map[string]uint64
}

func NewRecordingCatalog(serializer *SceneSerializer, jobs *JobSystem, dispatcher *core.Dispatcher) *RecordingCatalog {
	return &RecordingCatalog{
		serializer: serializer,
		jobs:       jobs,
		dispatcher: dispatcher,
		recordings: []metadata.Recording{},
		deletedAt:  map[string]uint64{},
	}
}

func (rc *RecordingCatalog) Recordings() []metadata.Recording {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make([]metadata.Recording, len(rc.recordings))
	copy(out, rc.recordings)
	return out
}

func (rc *RecordingCatalog) IsLoading() bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.isLoading
}

// ErrorMessage is the user-facing text of the last failed operation, empty if none.
func (rc *RecordingCatalog) ErrorMessage() string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.errorMessage
}

func (rc *RecordingCatalog) Find(id string) (metadata.Recording, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	for _, r := range rc.recordings {
		if r.ID == id {
			return r, true
		}
	}
	return metadata.Recording{}, false
}

/**
 * @brief Rescans the recordings directory in the background.
 * isLoading is set before this returns. The returned channel receives the
 * outcome once the new list (or the error) has been applied, then closes.
 */
func (rc *RecordingCatalog) LoadRecordings() <-chan error {
	done := make(chan error, 1)
	token := rc.beginLoad()

	err := rc.jobs.Submit(metadata.JobTask{
		Name:        "scan recordings",
		InputParams: rc.serializer.Directory(),
		OnStart: func(params interface{}) (interface{}, error) {
			return rc.scan(params.(string))
		},
		OnComplete: func(result interface{}) {
			recordings := result.([]metadata.Recording)
			rc.apply(done, nil, func() { rc.endLoad(token, recordings, nil) })
		},
		OnFailure: func(err error) {
			rc.apply(done, err, func() { rc.endLoad(token, nil, err) })
		},
	})
	if err != nil {
		rc.finish(done, err, func() { rc.endLoad(token, nil, err) })
	}
	return done
}

func (rc *RecordingCatalog) beginLoad() uint64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.seq++
	rc.latestLoad = rc.seq
	rc.pendingLoads++
	rc.isLoading = true
	return rc.seq
}

// endLoad applies a scan outcome. Must hold rc.mu.
func (rc *RecordingCatalog) endLoad(token uint64, recordings []metadata.Recording, err error) {
	rc.pendingLoads--
	rc.isLoading = rc.pendingLoads > 0
	if token != rc.latestLoad {
		core.LogDebug("dropping superseded recordings scan %d", token)
		return
	}
	if err != nil {
		rc.errorMessage = "Unable to load recordings: " + err.Error()
		return
	}

	fresh := make([]metadata.Recording, 0, len(recordings))
	for _, r := range recordings {
		if at, ok := rc.deletedAt[r.ID]; ok && at > token {
			continue
		}
		fresh = append(fresh, r)
	}
	rc.recordings = fresh
	rc.errorMessage = ""
	clear(rc.deletedAt)
}

// apply runs mutate on the owning context and reports err on done afterwards.
func (rc *RecordingCatalog) apply(done chan<- error, err error, mutate func()) {
	posted := rc.dispatcher.Post(func() {
		rc.finish(done, err, mutate)
	})
	if !posted {
		// nobody drains the mailbox anymore
		rc.finish(done, errors.Join(err, core.ErrDispatcherStopped), mutate)
	}
}

func (rc *RecordingCatalog) finish(done chan<- error, err error, mutate func()) {
	rc.mu.Lock()
	mutate()
	rc.mu.Unlock()
	done <- err
	close(done)
}

func (rc *RecordingCatalog) scan(dir string) ([]metadata.Recording, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []metadata.Recording{}, nil
	}
	if err != nil {
		return nil, core.NewIOError("list", dir, err)
	}

	recordings := make([]metadata.Recording, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, core.NewIOError("stat", filepath.Join(dir, name), err)
		}
		if !info.Mode().IsRegular() {
			continue
		}

		path := filepath.Join(dir, name)
		r := metadata.Recording{
			ID:        core.RecordingIDFromName(name),
			Name:      strings.TrimSuffix(name, filepath.Ext(name)),
			Timestamp: info.ModTime(),
			Path:      path,
		}
		if preview := rc.serializer.PreviewPath(path); fileExists(preview) {
			r.PreviewPath = preview
		}
		recordings = append(recordings, r)
	}
	core.LogDebug("found %d recordings in %s", len(recordings), dir)
	return recordings, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

/**
 * @brief Deletes the recording file and its preview, then drops the entry.
 * A file that is already gone counts as deleted. On failure the entry is kept.
 * @returns A channel with core.ErrRecordingNotFound, the *core.IOError or nil.
 */
func (rc *RecordingCatalog) DeleteRecording(id string) <-chan error {
	done := make(chan error, 1)

	recording, ok := rc.Find(id)
	if !ok {
		done <- core.ErrRecordingNotFound
		close(done)
		return done
	}

	err := rc.jobs.Submit(metadata.JobTask{
		Name:        "delete recording",
		InputParams: recording,
		OnStart: func(params interface{}) (interface{}, error) {
			r := params.(metadata.Recording)
			return r.ID, rc.remove(r)
		},
		OnComplete: func(result interface{}) {
			removed := result.(string)
			rc.apply(done, nil, func() {
				rc.seq++
				rc.deletedAt[removed] = rc.seq
				for i, r := range rc.recordings {
					if r.ID == removed {
						rc.recordings = append(rc.recordings[:i:i], rc.recordings[i+1:]...)
						break
					}
				}
				rc.errorMessage = ""
			})
		},
		OnFailure: func(err error) {
			rc.apply(done, err, func() {
				rc.errorMessage = "Unable to delete recording: " + err.Error()
			})
		},
	})
	if err != nil {
		done <- err
		close(done)
	}
	return done
}

// DeleteRecordingAt deletes the recording at the given position of the current list.
func (rc *RecordingCatalog) DeleteRecordingAt(index int) <-chan error {
	rc.mu.RLock()
	if index < 0 || index >= len(rc.recordings) {
		rc.mu.RUnlock()
		done := make(chan error, 1)
		done <- core.ErrRecordingNotFound
		close(done)
		return done
	}
	id := rc.recordings[index].ID
	rc.mu.RUnlock()

	return rc.DeleteRecording(id)
}

func (rc *RecordingCatalog) remove(r metadata.Recording) error {
	if err := os.Remove(r.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return core.NewIOError("delete", r.Path, err)
	}
	preview := r.PreviewPath
	if preview == "" {
		preview = rc.serializer.PreviewPath(r.Path)
	}
	if err := os.Remove(preview); err != nil && !errors.Is(err, fs.ErrNotExist) {
		core.LogWarn("failed to delete preview %s: %s", preview, err)
	}
	core.LogInfo("deleted recording %s", r.Name)
	return nil
}

// ExportRecording returns the recording file's bytes for sharing.
func (rc *RecordingCatalog) ExportRecording(r metadata.Recording) ([]byte, error) {
	return rc.serializer.Load(r.Path)
}

// OpenRecording decodes the recording for a detail view.
func (rc *RecordingCatalog) OpenRecording(r metadata.Recording) (*metadata.Scene, error) {
	return rc.serializer.Open(r.Path)
}
