package systems

import (
	"sync"
	"testing"

	"github.com/spaghettifunk/anima-scan/engine/core"
	"github.com/spaghettifunk/anima-scan/engine/math"
	"github.com/spaghettifunk/anima-scan/engine/metadata"
	"github.com/spaghettifunk/anima-scan/engine/platform"
	"github.com/stretchr/testify/require"
)

// gridGeometry builds a flat w x h grid of quads in the XZ plane: (w+1)*(h+1)
// positions and 2*w*h triangles, with up-facing normals.
func gridGeometry(w, h int, withNormals bool) *metadata.Geometry {
	g := &metadata.Geometry{}
	for z := 0; z <= h; z++ {
		for x := 0; x <= w; x++ {
			g.Positions = append(g.Positions, math.NewVec3(float32(x)*0.1, 0, float32(z)*0.1))
			if withNormals {
				g.Normals = append(g.Normals, math.NewVec3Up())
			}
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
	return g
}

// quadGeometry has 4 positions and 2 triangles.
func quadGeometry() *metadata.Geometry {
	return gridGeometry(1, 1, true)
}

// stripGeometry has 6 positions and 4 triangles.
func stripGeometry() *metadata.Geometry {
	return gridGeometry(2, 1, true)
}

func fragmentFor(t *testing.T, id string, transform math.Mat4, g *metadata.Geometry) *metadata.MeshFragment {
	t.Helper()
	vertices, normals, faces, err := NewGeometryConverter().Encode(g, 4)
	require.NoError(t, err)
	return &metadata.MeshFragment{
		ID:        id,
		Transform: transform,
		Vertices:  vertices,
		Normals:   normals,
		Faces:     faces,
	}
}

// fakeSession records what the controller asks of the sensor.
type fakeSession struct {
	mu       sync.Mutex
	runs     int
	config   platform.SessionConfiguration
	options  platform.RunOptions
	paused   int
	runErr   error
	delegate metadata.FragmentListener
}

func (s *fakeSession) Run(config platform.SessionConfiguration, options platform.RunOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runErr != nil {
		return s.runErr
	}
	s.runs++
	s.config = config
	s.options = options
	return nil
}

func (s *fakeSession) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused++
}

func (s *fakeSession) SetDelegate(listener metadata.FragmentListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegate = listener
}

func (s *fakeSession) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// captureRig is a controller wired to a fake session and a temp recordings dir.
type captureRig struct {
	session    *fakeSession
	tracker    *MeshAnchorTracker
	aggregator *SceneAggregator
	serializer *SceneSerializer
	events     *core.EventSystem
	controller *RecordingController
	fired      []core.SystemEventCode
}

func newCaptureRig(t *testing.T, status platform.PermissionStatus) *captureRig {
	t.Helper()
	rig := &captureRig{session: &fakeSession{}}
	p, err := platform.New(rig.session, platform.StaticPermissionGate{Status: status})
	require.NoError(t, err)

	rig.tracker = NewMeshAnchorTracker(nil)
	rig.aggregator = NewSceneAggregator(rig.tracker)
	rig.serializer = NewSceneSerializer(t.TempDir(), nil)
	rig.events = newEventRecorder(&rig.fired)
	rig.controller = NewRecordingController(p, rig.tracker, rig.aggregator, rig.serializer, NewPreviewRenderer(16), rig.events)
	return rig
}

// newEventRecorder returns an event system that appends every lifecycle code to fired.
func newEventRecorder(fired *[]core.SystemEventCode) *core.EventSystem {
	es := core.NewEventSystem()
	var mu sync.Mutex
	for _, code := range []core.SystemEventCode{
		core.EVENT_CODE_RECORDING_STARTED,
		core.EVENT_CODE_RECORDING_STOPPED,
		core.EVENT_CODE_RECORDING_SAVED,
		core.EVENT_CODE_RECORDING_SAVE_FAILED,
		core.EVENT_CODE_PERMISSION_DENIED,
	} {
		es.Register(code, fired, func(code core.SystemEventCode, _ interface{}, _ interface{}, _ core.EventContext) bool {
			mu.Lock()
			defer mu.Unlock()
			*fired = append(*fired, code)
			return false
		})
	}
	return es
}
