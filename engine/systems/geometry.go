package systems

import (
	"encoding/binary"
	m "math"

	"github.com/spaghettifunk/anima-scan/engine/core"
	"github.com/spaghettifunk/anima-scan/engine/math"
	"github.com/spaghettifunk/anima-scan/engine/metadata"
)

// GeometryConverter decodes raw sensor buffers into metadata.Geometry. It is
// stateless and keeps no reference to the input buffers once a call returns.
type GeometryConverter struct{}

func NewGeometryConverter() *GeometryConverter {
	return &GeometryConverter{}
}

func (gc *GeometryConverter) ConvertFragment(fragment *metadata.MeshFragment) (*metadata.Geometry, error) {
	return gc.Convert(fragment.Vertices, fragment.Normals, fragment.Faces)
}

/**
 * @brief Decodes vertex, optional normal and index buffers into a Geometry.
 *
 * @param vertices The vertex buffer. Must be Float3.
 * @param normals The normal buffer, can be nil. Must have the same count as vertices.
 * @param faces The triangle index buffer.
 * @return The decoded geometry, or a *core.DecodeError / *core.UnsupportedFormatError.
 */
func (gc *GeometryConverter) Convert(vertices metadata.BufferDescriptor, normals *metadata.BufferDescriptor, faces metadata.IndexBufferDescriptor) (*metadata.Geometry, error) {
	positions, err := decodeFloat3Buffer("vertices", vertices)
	if err != nil {
		return nil, err
	}

	var normalValues []math.Vec3
	if normals != nil {
		if normals.Count != vertices.Count {
			return nil, core.NewDecodeError("normals", "count %d does not match vertex count %d", normals.Count, vertices.Count)
		}
		normalValues, err = decodeFloat3Buffer("normals", *normals)
		if err != nil {
			return nil, err
		}
	}

	triangles, err := decodeTriangles(faces, len(positions))
	if err != nil {
		return nil, err
	}

	return &metadata.Geometry{
		Positions: positions,
		Normals:   normalValues,
		Triangles: triangles,
	}, nil
}

func decodeFloat3Buffer(name string, desc metadata.BufferDescriptor) ([]math.Vec3, error) {
	if desc.Format != metadata.VertexFormatFloat3 {
		return nil, &core.UnsupportedFormatError{Buffer: name, Format: desc.Format.String()}
	}
	if desc.Count < 0 || desc.Offset < 0 {
		return nil, core.NewDecodeError(name, "negative count %d or offset %d", desc.Count, desc.Offset)
	}
	if desc.Count == 0 {
		return []math.Vec3{}, nil
	}
	if desc.Stride < metadata.Float3Size {
		return nil, core.NewDecodeError(name, "stride %d is smaller than a float3 record", desc.Stride)
	}
	// compare by division, count*stride may overflow int
	if desc.Offset > len(desc.Bytes) || desc.Count > (len(desc.Bytes)-desc.Offset)/desc.Stride {
		return nil, core.NewDecodeError(name, "%d records at stride %d from offset %d exceed %d bytes", desc.Count, desc.Stride, desc.Offset, len(desc.Bytes))
	}

	out := make([]math.Vec3, desc.Count)
	for i := 0; i < desc.Count; i++ {
		rec := desc.Bytes[desc.Offset+i*desc.Stride:]
		out[i] = math.Vec3{
			X: m.Float32frombits(binary.LittleEndian.Uint32(rec[0:4])),
			Y: m.Float32frombits(binary.LittleEndian.Uint32(rec[4:8])),
			Z: m.Float32frombits(binary.LittleEndian.Uint32(rec[8:12])),
		}
	}
	return out, nil
}

func decodeTriangles(desc metadata.IndexBufferDescriptor, vertexCount int) ([]metadata.Triangle, error) {
	if desc.PrimitiveType != metadata.PrimitiveTypeTriangle {
		return nil, &core.UnsupportedFormatError{Buffer: "faces", Format: desc.PrimitiveType.String()}
	}
	if desc.BytesPerIndex != 2 && desc.BytesPerIndex != 4 {
		return nil, core.NewDecodeError("faces", "bytes per index must be 2 or 4, got %d", desc.BytesPerIndex)
	}
	if desc.PrimitiveCount < 0 {
		return nil, core.NewDecodeError("faces", "negative primitive count %d", desc.PrimitiveCount)
	}
	if desc.PrimitiveCount > len(desc.Bytes)/(3*desc.BytesPerIndex) {
		return nil, core.NewDecodeError("faces", "%d triangles exceed %d bytes", desc.PrimitiveCount, len(desc.Bytes))
	}

	out := make([]metadata.Triangle, desc.PrimitiveCount)
	for i := 0; i < desc.PrimitiveCount; i++ {
		for c := 0; c < 3; c++ {
			off := (i*3 + c) * desc.BytesPerIndex
			var idx uint32
			if desc.BytesPerIndex == 2 {
				idx = uint32(binary.LittleEndian.Uint16(desc.Bytes[off:]))
			} else {
				idx = binary.LittleEndian.Uint32(desc.Bytes[off:])
			}
			if int64(idx) >= int64(vertexCount) {
				return nil, core.NewDecodeError("faces", "triangle %d references vertex %d of %d", i, idx, vertexCount)
			}
			out[i][c] = idx
		}
	}
	return out, nil
}

/**
 * @brief Encodes a geometry into tightly packed sensor-style buffers. The inverse
 * of Convert; used to synthesize fragments.
 *
 * @param g The geometry to encode.
 * @param bytesPerIndex 2 or 4. 2 requires every index to fit in 16 bits.
 */
func (gc *GeometryConverter) Encode(g *metadata.Geometry, bytesPerIndex int) (metadata.BufferDescriptor, *metadata.BufferDescriptor, metadata.IndexBufferDescriptor, error) {
	var faces metadata.IndexBufferDescriptor
	if bytesPerIndex != 2 && bytesPerIndex != 4 {
		return metadata.BufferDescriptor{}, nil, faces, core.NewDecodeError("faces", "bytes per index must be 2 or 4, got %d", bytesPerIndex)
	}
	if bytesPerIndex == 2 && len(g.Positions) > m.MaxUint16+1 {
		return metadata.BufferDescriptor{}, nil, faces, core.NewDecodeError("faces", "%d vertices do not fit 16-bit indices", len(g.Positions))
	}

	vertices := encodeFloat3Buffer(g.Positions)
	var normals *metadata.BufferDescriptor
	if g.Normals != nil {
		n := encodeFloat3Buffer(g.Normals)
		normals = &n
	}

	buf := make([]byte, len(g.Triangles)*3*bytesPerIndex)
	for i, tri := range g.Triangles {
		for c, idx := range tri {
			off := (i*3 + c) * bytesPerIndex
			if bytesPerIndex == 2 {
				binary.LittleEndian.PutUint16(buf[off:], uint16(idx))
			} else {
				binary.LittleEndian.PutUint32(buf[off:], idx)
			}
		}
	}
	faces = metadata.IndexBufferDescriptor{
		Bytes:          buf,
		PrimitiveCount: len(g.Triangles),
		BytesPerIndex:  bytesPerIndex,
		PrimitiveType:  metadata.PrimitiveTypeTriangle,
	}
	return vertices, normals, faces, nil
}

func encodeFloat3Buffer(values []math.Vec3) metadata.BufferDescriptor {
	buf := make([]byte, len(values)*metadata.Float3Size)
	for i, v := range values {
		rec := buf[i*metadata.Float3Size:]
		binary.LittleEndian.PutUint32(rec[0:4], m.Float32bits(v.X))
		binary.LittleEndian.PutUint32(rec[4:8], m.Float32bits(v.Y))
		binary.LittleEndian.PutUint32(rec[8:12], m.Float32bits(v.Z))
	}
	return metadata.BufferDescriptor{
		Bytes:  buf,
		Count:  len(values),
		Stride: metadata.Float3Size,
		Format: metadata.VertexFormatFloat3,
	}
}
