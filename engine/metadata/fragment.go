package metadata

import (
	"github.com/spaghettifunk/anima-scan/engine/math"
)

/** @brief The per-record layout of a vertex or normal buffer. */
type VertexFormat uint8

const (
	VertexFormatInvalid VertexFormat = iota
	/** @brief Three little-endian 32-bit floats. The only layout the converter reads. */
	VertexFormatFloat3
	VertexFormatFloat2
	VertexFormatHalf3
	VertexFormatUChar4Normalized
)

func (f VertexFormat) String() string {
	switch f {
	case VertexFormatFloat3:
		return "float3"
	case VertexFormatFloat2:
		return "float2"
	case VertexFormatHalf3:
		return "half3"
	case VertexFormatUChar4Normalized:
		return "uchar4normalized"
	default:
		return "invalid"
	}
}

/** @brief Size in bytes of one Float3 record. */
const Float3Size = 12

type PrimitiveType uint8

const (
	PrimitiveTypeTriangle PrimitiveType = iota
	PrimitiveTypeLine
)

func (p PrimitiveType) String() string {
	switch p {
	case PrimitiveTypeTriangle:
		return "triangle"
	case PrimitiveTypeLine:
		return "line"
	default:
		return "unknown"
	}
}

/**
 * @brief Describes a strided vertex or normal buffer as handed over by the sensor.
 * Offset + Count*Stride must fit inside Bytes.
 */
type BufferDescriptor struct {
	Bytes  []byte
	Offset int
	Count  int
	Stride int
	Format VertexFormat
}

/**
 * @brief Describes the face buffer of a fragment. PrimitiveCount*3 indices of
 * BytesPerIndex bytes each must fit inside Bytes.
 */
type IndexBufferDescriptor struct {
	Bytes          []byte
	PrimitiveCount int
	BytesPerIndex  int
	PrimitiveType  PrimitiveType
}

/**
 * @brief One mesh anchor reported by the sensor.
 */
type MeshFragment struct {
	/** @brief Opaque identifier, unique among currently tracked fragments. */
	ID        string
	Transform math.Mat4
	Vertices  BufferDescriptor
	/** @brief Optional. */
	Normals *BufferDescriptor
	Faces   IndexBufferDescriptor
}

// FragmentListener receives sensor fragment events, one at a time.
type FragmentListener interface {
	FragmentAdded(fragment *MeshFragment)
	FragmentUpdated(fragment *MeshFragment)
	FragmentRemoved(id string)
}
