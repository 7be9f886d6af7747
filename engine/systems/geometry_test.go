package systems

import (
	"encoding/binary"
	"errors"
	m "math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spaghettifunk/anima-scan/engine/core"
	"github.com/spaghettifunk/anima-scan/engine/math"
	"github.com/spaghettifunk/anima-scan/engine/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeometryConverter_RoundTrip(t *testing.T) {
	gc := NewGeometryConverter()
	cases := []struct {
		name          string
		geometry      *metadata.Geometry
		bytesPerIndex int
	}{
		{"empty", &metadata.Geometry{Positions: []math.Vec3{}, Triangles: []metadata.Triangle{}}, 2},
		{"points only", &metadata.Geometry{Positions: []math.Vec3{{1, 2, 3}, {-4, 5.5, 1e-7}}, Triangles: []metadata.Triangle{}}, 4},
		{"quad 16-bit", quadGeometry(), 2},
		{"grid 32-bit no normals", gridGeometry(7, 5, false), 4},
		{"grid 16-bit", gridGeometry(12, 9, true), 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			vertices, normals, faces, err := gc.Encode(tc.geometry, tc.bytesPerIndex)
			require.NoError(t, err)

			got, err := gc.Convert(vertices, normals, faces)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.geometry, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGeometryConverter_Stride(t *testing.T) {
	// Two float3 records padded to a 16-byte stride, starting 4 bytes in.
	buf := make([]byte, 4+2*16)
	put := func(off int, v float32) { binary.LittleEndian.PutUint32(buf[off:], m.Float32bits(v)) }
	put(4, 1)
	put(8, 2)
	put(12, 3)
	put(20, 4)
	put(24, 5)
	put(28, 6)

	faces := metadata.IndexBufferDescriptor{BytesPerIndex: 4, PrimitiveType: metadata.PrimitiveTypeTriangle}
	g, err := NewGeometryConverter().Convert(metadata.BufferDescriptor{
		Bytes: buf, Offset: 4, Count: 2, Stride: 16, Format: metadata.VertexFormatFloat3,
	}, nil, faces)
	require.NoError(t, err)
	assert.Equal(t, []math.Vec3{{1, 2, 3}, {4, 5, 6}}, g.Positions)
	assert.Nil(t, g.Normals)
	assert.Empty(t, g.Triangles)
}

func TestGeometryConverter_DecodeErrors(t *testing.T) {
	gc := NewGeometryConverter()
	base := func() (metadata.BufferDescriptor, *metadata.BufferDescriptor, metadata.IndexBufferDescriptor) {
		v, n, f, err := gc.Encode(quadGeometry(), 2)
		require.NoError(t, err)
		return v, n, f
	}

	cases := map[string]func(v *metadata.BufferDescriptor, n **metadata.BufferDescriptor, f *metadata.IndexBufferDescriptor){
		"short vertex buffer": func(v *metadata.BufferDescriptor, _ **metadata.BufferDescriptor, _ *metadata.IndexBufferDescriptor) {
			v.Bytes = v.Bytes[:len(v.Bytes)-1]
		},
		"stride below record size": func(v *metadata.BufferDescriptor, _ **metadata.BufferDescriptor, _ *metadata.IndexBufferDescriptor) {
			v.Stride = 8
		},
		"short normal buffer": func(_ *metadata.BufferDescriptor, n **metadata.BufferDescriptor, _ *metadata.IndexBufferDescriptor) {
			(*n).Bytes = (*n).Bytes[:12]
		},
		"normal count mismatch": func(_ *metadata.BufferDescriptor, n **metadata.BufferDescriptor, _ *metadata.IndexBufferDescriptor) {
			(*n).Count = 3
		},
		"short index buffer": func(_ *metadata.BufferDescriptor, _ **metadata.BufferDescriptor, f *metadata.IndexBufferDescriptor) {
			f.Bytes = f.Bytes[:len(f.Bytes)-2]
		},
		"bytes per index 3": func(_ *metadata.BufferDescriptor, _ **metadata.BufferDescriptor, f *metadata.IndexBufferDescriptor) {
			f.BytesPerIndex = 3
		},
		"index out of range": func(_ *metadata.BufferDescriptor, _ **metadata.BufferDescriptor, f *metadata.IndexBufferDescriptor) {
			binary.LittleEndian.PutUint16(f.Bytes[0:], 4)
		},
		"negative count": func(v *metadata.BufferDescriptor, _ **metadata.BufferDescriptor, _ *metadata.IndexBufferDescriptor) {
			v.Count = -1
		},
		"vertex count overflowing the size check": func(v *metadata.BufferDescriptor, _ **metadata.BufferDescriptor, _ *metadata.IndexBufferDescriptor) {
			v.Count = 1 << 60
			v.Stride = 16
			v.Bytes = v.Bytes[:12]
		},
		"offset past the buffer": func(v *metadata.BufferDescriptor, _ **metadata.BufferDescriptor, _ *metadata.IndexBufferDescriptor) {
			v.Offset = len(v.Bytes) + 1
		},
		"triangle count overflowing the size check": func(_ *metadata.BufferDescriptor, _ **metadata.BufferDescriptor, f *metadata.IndexBufferDescriptor) {
			f.PrimitiveCount = 1 << 62
			f.BytesPerIndex = 4
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			v, n, f := base()
			mutate(&v, &n, &f)
			_, err := gc.Convert(v, n, f)
			var decodeErr *core.DecodeError
			require.True(t, errors.As(err, &decodeErr), "got %v", err)
		})
	}
}

func TestGeometryConverter_UnsupportedFormat(t *testing.T) {
	gc := NewGeometryConverter()
	v, n, f, err := gc.Encode(quadGeometry(), 4)
	require.NoError(t, err)

	half := v
	half.Format = metadata.VertexFormatHalf3
	_, err = gc.Convert(half, n, f)
	var unsupported *core.UnsupportedFormatError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "vertices", unsupported.Buffer)
	assert.Equal(t, "half3", unsupported.Format)

	n.Format = metadata.VertexFormatUChar4Normalized
	_, err = gc.Convert(v, n, f)
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "normals", unsupported.Buffer)

	n.Format = metadata.VertexFormatFloat3
	f.PrimitiveType = metadata.PrimitiveTypeLine
	_, err = gc.Convert(v, n, f)
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "faces", unsupported.Buffer)
}

func TestGeometryConverter_DoesNotAliasInput(t *testing.T) {
	gc := NewGeometryConverter()
	v, n, f, err := gc.Encode(quadGeometry(), 2)
	require.NoError(t, err)

	g, err := gc.Convert(v, n, f)
	require.NoError(t, err)
	for i := range v.Bytes {
		v.Bytes[i] = 0xFF
	}
	assert.Equal(t, quadGeometry().Positions, g.Positions)
}

func TestGeometryConverter_EncodeRejects16BitOverflow(t *testing.T) {
	g := &metadata.Geometry{Positions: make([]math.Vec3, m.MaxUint16+2)}
	_, _, _, err := NewGeometryConverter().Encode(g, 2)
	assert.Error(t, err)
}
