package systems

import (
	"errors"
	"fmt"
	m "math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spaghettifunk/anima-scan/engine/assets"
	"github.com/spaghettifunk/anima-scan/engine/assets/loaders"
	"github.com/spaghettifunk/anima-scan/engine/core"
	"github.com/spaghettifunk/anima-scan/engine/math"
	"github.com/spaghettifunk/anima-scan/engine/metadata"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	SceneFileExtension = ".scn"
	PreviewDirectory   = "previews"
	PreviewExtension   = ".webp"

	sceneMagic         = "SCN1"
	sceneFormatVersion = 1
	sceneFilePrefix    = "scan-"
)

// Scene message fields.
const (
	sceneFieldVersion protowire.Number = 1
	sceneFieldBuiltAt protowire.Number = 2
	sceneFieldNode    protowire.Number = 3
)

// Node message fields.
const (
	nodeFieldID        protowire.Number = 1
	nodeFieldTransform protowire.Number = 2
	nodeFieldPositions protowire.Number = 3
	nodeFieldNormals   protowire.Number = 4
	nodeFieldTriangles protowire.Number = 5
)

// SceneSerializer persists scenes as one file per recording in the recordings directory.
type SceneSerializer struct {
	dir    string
	loader assets.Loader
	now    func() time.Time

	// serializes name allocation so two saves never pick the same file
	mu sync.Mutex
}

func NewSceneSerializer(dir string, loader assets.Loader) *SceneSerializer {
	if loader == nil {
		loader = &loaders.BinaryLoader{}
	}
	return &SceneSerializer{
		dir:    dir,
		loader: loader,
		now:    time.Now,
	}
}

// SetClock replaces the capture time source.
func (ss *SceneSerializer) SetClock(now func() time.Time) {
	ss.now = now
}

func (ss *SceneSerializer) Directory() string {
	return ss.dir
}

// PreviewPath is where the thumbnail of the given scene file lives.
func (ss *SceneSerializer) PreviewPath(scenePath string) string {
	base := strings.TrimSuffix(filepath.Base(scenePath), filepath.Ext(scenePath))
	return filepath.Join(filepath.Dir(scenePath), PreviewDirectory, base+PreviewExtension)
}

/**
 * @brief Writes the scene to a new file named after the capture time.
 * The content goes to a hidden temp file first and is renamed into place, so a
 * partially written recording is never visible to the catalog.
 * @returns The path of the new file, or a *core.IOError.
 */
func (ss *SceneSerializer) Save(scene *metadata.Scene) (string, error) {
	data := EncodeScene(scene)

	if err := os.MkdirAll(ss.dir, 0o755); err != nil {
		return "", core.NewIOError("mkdir", ss.dir, err)
	}

	tmp, err := os.CreateTemp(ss.dir, ".scan-*.tmp")
	if err != nil {
		return "", core.NewIOError("create", ss.dir, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", core.NewIOError("write", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", core.NewIOError("sync", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", core.NewIOError("close", tmpPath, err)
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()

	path, err := ss.allocatePath()
	if err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", core.NewIOError("rename", path, err)
	}

	core.LogInfo("saved scene with %d nodes to %s", len(scene.Nodes), path)
	return path, nil
}

func (ss *SceneSerializer) allocatePath() (string, error) {
	t := ss.now().UTC()
	base := fmt.Sprintf("%s%s%09dZ", sceneFilePrefix, t.Format("20060102T150405"), t.Nanosecond())

	for i := 0; ; i++ {
		name := base + SceneFileExtension
		if i > 0 {
			name = fmt.Sprintf("%s-%d%s", base, i, SceneFileExtension)
		}
		path := filepath.Join(ss.dir, name)
		_, err := os.Lstat(path)
		if errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", core.NewIOError("stat", path, err)
		}
	}
}

// Load returns the raw bytes of a recording file.
func (ss *SceneSerializer) Load(path string) ([]byte, error) {
	return ss.loader.Load(path)
}

// Open loads and decodes a recording file.
func (ss *SceneSerializer) Open(path string) (*metadata.Scene, error) {
	raw, err := ss.Load(path)
	if err != nil {
		return nil, err
	}
	scene, err := DecodeScene(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scene, nil
}

func (ss *SceneSerializer) Decode(raw []byte) (*metadata.Scene, error) {
	return DecodeScene(raw)
}

// EncodeScene produces the on-disk representation: the magic followed by a
// protobuf wire encoded Scene message.
func EncodeScene(scene *metadata.Scene) []byte {
	b := []byte(sceneMagic)
	b = protowire.AppendTag(b, sceneFieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, sceneFormatVersion)

	var builtAt uint64
	if !scene.BuiltAt.IsZero() {
		builtAt = uint64(scene.BuiltAt.UnixNano())
	}
	b = protowire.AppendTag(b, sceneFieldBuiltAt, protowire.VarintType)
	b = protowire.AppendVarint(b, builtAt)

	for _, node := range scene.Nodes {
		b = protowire.AppendTag(b, sceneFieldNode, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeNode(node))
	}
	return b
}

func encodeNode(node *metadata.SceneNode) []byte {
	var b []byte
	b = protowire.AppendTag(b, nodeFieldID, protowire.BytesType)
	b = protowire.AppendString(b, node.ID)

	b = protowire.AppendTag(b, nodeFieldTransform, protowire.BytesType)
	b = protowire.AppendBytes(b, packFloats(nil, node.Transform.Data[:]...))

	g := node.Geometry
	if g == nil {
		return b
	}
	b = protowire.AppendTag(b, nodeFieldPositions, protowire.BytesType)
	b = protowire.AppendBytes(b, packVec3s(g.Positions))
	if g.HasNormals() {
		b = protowire.AppendTag(b, nodeFieldNormals, protowire.BytesType)
		b = protowire.AppendBytes(b, packVec3s(g.Normals))
	}

	var tris []byte
	for _, tri := range g.Triangles {
		for _, idx := range tri {
			tris = protowire.AppendVarint(tris, uint64(idx))
		}
	}
	b = protowire.AppendTag(b, nodeFieldTriangles, protowire.BytesType)
	b = protowire.AppendBytes(b, tris)
	return b
}

func packFloats(dst []byte, values ...float32) []byte {
	for _, v := range values {
		dst = protowire.AppendFixed32(dst, m.Float32bits(v))
	}
	return dst
}

func packVec3s(values []math.Vec3) []byte {
	out := make([]byte, 0, len(values)*metadata.Float3Size)
	for _, v := range values {
		out = packFloats(out, v.X, v.Y, v.Z)
	}
	return out
}

func invalidScene(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", core.ErrInvalidSceneFile, fmt.Sprintf(format, args...))
}

// DecodeScene parses the output of EncodeScene. Unknown fields are skipped.
func DecodeScene(raw []byte) (*metadata.Scene, error) {
	if len(raw) < len(sceneMagic) || string(raw[:len(sceneMagic)]) != sceneMagic {
		return nil, invalidScene("missing %s header", sceneMagic)
	}
	b := raw[len(sceneMagic):]

	scene := metadata.NewEmptyScene()
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, invalidScene("scene tag: %v", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == sceneFieldVersion && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			if n >= 0 && v != sceneFormatVersion {
				return nil, invalidScene("unsupported version %d", v)
			}
		case num == sceneFieldBuiltAt && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			if n >= 0 && v != 0 {
				scene.BuiltAt = time.Unix(0, int64(v)).UTC()
			}
		case num == sceneFieldNode && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				node, err := decodeNode(v)
				if err != nil {
					return nil, err
				}
				scene.Nodes = append(scene.Nodes, node)
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, invalidScene("scene field %d: %v", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return scene, nil
}

func decodeNode(b []byte) (*metadata.SceneNode, error) {
	node := &metadata.SceneNode{Transform: math.NewMat4Identity()}
	g := &metadata.Geometry{Positions: []math.Vec3{}, Triangles: []metadata.Triangle{}}
	var indices []uint32

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, invalidScene("node tag: %v", protowire.ParseError(n))
		}
		b = b[n:]

		if typ != protowire.BytesType || num < nodeFieldID || num > nodeFieldTriangles {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, invalidScene("node field %d: %v", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, invalidScene("node field %d: %v", num, protowire.ParseError(n))
		}
		b = b[n:]

		var err error
		switch num {
		case nodeFieldID:
			node.ID = string(v)
		case nodeFieldTransform:
			var floats []float32
			if floats, err = unpackFloats(v); err == nil {
				if len(floats) != 16 {
					return nil, invalidScene("node %q transform has %d values", node.ID, len(floats))
				}
				copy(node.Transform.Data[:], floats)
			}
		case nodeFieldPositions:
			g.Positions, err = unpackVec3s(v)
		case nodeFieldNormals:
			g.Normals, err = unpackVec3s(v)
		case nodeFieldTriangles:
			indices, err = unpackIndices(v)
		}
		if err != nil {
			return nil, err
		}
	}

	if g.Normals != nil && len(g.Normals) != len(g.Positions) {
		return nil, invalidScene("node %q has %d normals for %d positions", node.ID, len(g.Normals), len(g.Positions))
	}
	if len(indices)%3 != 0 {
		return nil, invalidScene("node %q has %d indices, not a multiple of 3", node.ID, len(indices))
	}
	for i := 0; i < len(indices); i += 3 {
		tri := metadata.Triangle{indices[i], indices[i+1], indices[i+2]}
		for _, idx := range tri {
			if int(idx) >= len(g.Positions) {
				return nil, invalidScene("node %q index %d out of range", node.ID, idx)
			}
		}
		g.Triangles = append(g.Triangles, tri)
	}
	node.Geometry = g
	return node, nil
}

func unpackFloats(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, invalidScene("packed floats of %d bytes", len(b))
	}
	out := make([]float32, 0, len(b)/4)
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return nil, invalidScene("packed float: %v", protowire.ParseError(n))
		}
		out = append(out, m.Float32frombits(v))
		b = b[n:]
	}
	return out, nil
}

func unpackVec3s(b []byte) ([]math.Vec3, error) {
	floats, err := unpackFloats(b)
	if err != nil {
		return nil, err
	}
	if len(floats)%3 != 0 {
		return nil, invalidScene("%d floats do not form vectors", len(floats))
	}
	out := make([]math.Vec3, len(floats)/3)
	for i := range out {
		out[i] = math.NewVec3(floats[i*3], floats[i*3+1], floats[i*3+2])
	}
	return out, nil
}

func unpackIndices(b []byte) ([]uint32, error) {
	var out []uint32
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, invalidScene("packed index: %v", protowire.ParseError(n))
		}
		if v > m.MaxUint32 {
			return nil, invalidScene("index %d overflows", v)
		}
		out = append(out, uint32(v))
		b = b[n:]
	}
	return out, nil
}
