package systems

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spaghettifunk/anima-scan/engine/core"
	"github.com/spaghettifunk/anima-scan/engine/math"
	"github.com/spaghettifunk/anima-scan/engine/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

var captureTime = time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.UTC)

func fixedNow() time.Time { return captureTime }

func sampleScene() *metadata.Scene {
	return &metadata.Scene{
		Nodes: []*metadata.SceneNode{
			{ID: "floor", Transform: math.NewMat4Identity(), Geometry: gridGeometry(3, 2, true)},
			{ID: "wall", Transform: math.NewMat4Translation(math.NewVec3(0, 1, -2)).Mul(math.NewMat4EulerY(0.5)), Geometry: gridGeometry(2, 2, false)},
		},
		Generation: 7,
		BuiltAt:    captureTime,
	}
}

func TestEncodeDecodeScene_RoundTrip(t *testing.T) {
	in := sampleScene()
	out, err := DecodeScene(EncodeScene(in))
	require.NoError(t, err)

	assert.True(t, out.BuiltAt.Equal(in.BuiltAt))
	if diff := cmp.Diff(in.Nodes, out.Nodes); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeDecodeScene_Empty(t *testing.T) {
	out, err := DecodeScene(EncodeScene(metadata.NewEmptyScene()))
	require.NoError(t, err)
	assert.Empty(t, out.Nodes)
	assert.True(t, out.BuiltAt.IsZero())
}

func TestDecodeScene_Rejects(t *testing.T) {
	valid := EncodeScene(sampleScene())

	badIndex := []byte(sceneMagic)
	node := protowire.AppendTag(nil, nodeFieldID, protowire.BytesType)
	node = protowire.AppendString(node, "x")
	node = protowire.AppendTag(node, nodeFieldPositions, protowire.BytesType)
	node = protowire.AppendBytes(node, packVec3s([]math.Vec3{{}, {}, {}}))
	node = protowire.AppendTag(node, nodeFieldTriangles, protowire.BytesType)
	node = protowire.AppendBytes(node, []byte{0, 1, 9})
	badIndex = protowire.AppendTag(badIndex, sceneFieldNode, protowire.BytesType)
	badIndex = protowire.AppendBytes(badIndex, node)

	badVersion := []byte(sceneMagic)
	badVersion = protowire.AppendTag(badVersion, sceneFieldVersion, protowire.VarintType)
	badVersion = protowire.AppendVarint(badVersion, 99)

	cases := map[string][]byte{
		"empty":        nil,
		"wrong magic":  append([]byte("SCN0"), valid[4:]...),
		"truncated":    valid[:len(valid)-3],
		"bad index":    badIndex,
		"bad version":  badVersion,
		"garbage tail": append(append([]byte{}, valid...), 0xff),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeScene(raw)
			assert.ErrorIs(t, err, core.ErrInvalidSceneFile)
		})
	}
}

func TestDecodeScene_SkipsUnknownFields(t *testing.T) {
	raw := EncodeScene(sampleScene())
	raw = protowire.AppendTag(raw, 42, protowire.BytesType)
	raw = protowire.AppendString(raw, "future")

	out, err := DecodeScene(raw)
	require.NoError(t, err)
	assert.Len(t, out.Nodes, 2)
}

func TestSceneSerializer_SaveNamesAndCollisions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recordings")
	ss := NewSceneSerializer(dir, nil)
	ss.SetClock(fixedNow)

	first, err := ss.Save(sampleScene())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "scan-20240301T123045123456789Z.scn"), first)

	second, err := ss.Save(sampleScene())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "scan-20240301T123045123456789Z-1.scn"), second)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestSceneSerializer_LoadReturnsSavedBytes(t *testing.T) {
	ss := NewSceneSerializer(t.TempDir(), nil)
	ss.SetClock(fixedNow)
	scene := sampleScene()

	path, err := ss.Save(scene)
	require.NoError(t, err)

	raw, err := ss.Load(path)
	require.NoError(t, err)
	assert.Equal(t, EncodeScene(scene), raw)

	opened, err := ss.Open(path)
	require.NoError(t, err)
	if diff := cmp.Diff(scene.Nodes, opened.Nodes); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestSceneSerializer_SaveFailureIsIOError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	ss := NewSceneSerializer(filepath.Join(blocker, "recordings"), nil)
	_, err := ss.Save(sampleScene())
	var ioErr *core.IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "mkdir", ioErr.Op)
}

func TestSceneSerializer_PreviewPath(t *testing.T) {
	ss := NewSceneSerializer("/data/rec", nil)
	assert.Equal(t, filepath.Join("/data/rec", "previews", "scan-1.webp"), ss.PreviewPath("/data/rec/scan-1.scn"))
}
