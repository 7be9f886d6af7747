package systems

import (
	"fmt"
	"image"
	"image/color"
	m "math"
	"os"
	"path/filepath"

	"github.com/HugoSmits86/nativewebp"
	"github.com/spaghettifunk/anima-scan/engine/core"
	"github.com/spaghettifunk/anima-scan/engine/math"
	"github.com/spaghettifunk/anima-scan/engine/metadata"
	"golang.org/x/image/draw"
)

const (
	DefaultPreviewSize = 256
	previewSupersample = 2
	previewMargin      = 0.06
)

var (
	previewBackground = color.RGBA{R: 24, G: 28, B: 36, A: 255}
	previewMeshColor  = [3]float32{110, 190, 200}
	previewLightDir   = math.NewVec3(0.3, 1, 0.2).Normalized()
)

// PreviewRenderer draws a top-down orthographic thumbnail of a scene: X runs
// right, Z runs down and higher surfaces hide lower ones.
type PreviewRenderer struct {
	size int
}

func NewPreviewRenderer(size int) *PreviewRenderer {
	if size <= 0 {
		size = DefaultPreviewSize
	}
	return &PreviewRenderer{size: size}
}

func (pr *PreviewRenderer) Size() int {
	return pr.size
}

type previewFrame struct {
	img  *image.RGBA
	zbuf []float32
	size int
}

/**
 * @brief Rasterizes the scene at a supersampled resolution and scales it down.
 * @param scene The scene to draw. An empty scene yields a blank thumbnail.
 * @returns A size x size image.
 */
func (pr *PreviewRenderer) Rasterize(scene *metadata.Scene) *image.RGBA {
	ss := pr.size * previewSupersample
	fb := &previewFrame{
		img:  image.NewRGBA(image.Rect(0, 0, ss, ss)),
		zbuf: make([]float32, ss*ss),
		size: ss,
	}
	draw.Draw(fb.img, fb.img.Bounds(), image.NewUniform(previewBackground), image.Point{}, draw.Src)
	for i := range fb.zbuf {
		fb.zbuf[i] = float32(m.Inf(-1))
	}

	world := make([][]math.Vec3, len(scene.Nodes))
	bounds := math.Extents3D{}
	first := true
	for i, node := range scene.Nodes {
		if node.Geometry == nil || node.Geometry.VertexCount() == 0 {
			continue
		}
		world[i] = node.WorldPositions()
		ext := math.GeometryExtents(world[i])
		if first {
			bounds = ext
			first = false
		} else {
			bounds.Min = bounds.Min.Min(ext.Min)
			bounds.Max = bounds.Max.Max(ext.Max)
		}
	}

	if !first {
		span := bounds.Max.X - bounds.Min.X
		if dz := bounds.Max.Z - bounds.Min.Z; dz > span {
			span = dz
		}
		if span < math.K_FLOAT_EPSILON {
			span = 1
		}
		usable := float32(ss) * (1 - 2*previewMargin)
		scale := usable / span
		// center the footprint
		offX := (float32(ss) - (bounds.Max.X-bounds.Min.X)*scale) / 2
		offZ := (float32(ss) - (bounds.Max.Z-bounds.Min.Z)*scale) / 2

		project := func(p math.Vec3) math.Vec3 {
			return math.NewVec3((p.X-bounds.Min.X)*scale+offX, (p.Z-bounds.Min.Z)*scale+offZ, p.Y)
		}

		for i, node := range scene.Nodes {
			if world[i] == nil {
				continue
			}
			for _, tri := range node.Geometry.Triangles {
				a, b, c := world[i][tri[0]], world[i][tri[1]], world[i][tri[2]]
				normal := b.Sub(a).Cross(c.Sub(a)).Normalized()
				fb.fillTriangle(project(a), project(b), project(c), shadeFor(normal))
			}
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, pr.size, pr.size))
	draw.CatmullRom.Scale(out, out.Bounds(), fb.img, fb.img.Bounds(), draw.Src, nil)
	return out
}

func shadeFor(normal math.Vec3) color.RGBA {
	// double sided, the sensor winding is not reliable
	ndl := normal.Dot(previewLightDir)
	if ndl < 0 {
		ndl = -ndl
	}
	shade := 0.35 + 0.65*ndl
	return color.RGBA{
		R: channel(previewMeshColor[0] * shade),
		G: channel(previewMeshColor[1] * shade),
		B: channel(previewMeshColor[2] * shade),
		A: 255,
	}
}

func channel(v float32) uint8 {
	return uint8(math.Clamp(v+0.5, 0, 255))
}

// fillTriangle draws a flat triangle given in pixel space (X, Y) with depth in Z.
func (fb *previewFrame) fillTriangle(p0, p1, p2 math.Vec3, c color.RGBA) {
	det := (p1.Y-p2.Y)*(p0.X-p2.X) + (p2.X-p1.X)*(p0.Y-p2.Y)
	if det > -1e-8 && det < 1e-8 {
		return
	}
	invDet := 1 / det

	minX := int(m.Floor(float64(minf(p0.X, p1.X, p2.X))))
	maxX := int(m.Ceil(float64(maxf(p0.X, p1.X, p2.X))))
	minY := int(m.Floor(float64(minf(p0.Y, p1.Y, p2.Y))))
	maxY := int(m.Ceil(float64(maxf(p0.Y, p1.Y, p2.Y))))
	minX = math.Clamp(minX, 0, fb.size-1)
	maxX = math.Clamp(maxX, 0, fb.size-1)
	minY = math.Clamp(minY, 0, fb.size-1)
	maxY = math.Clamp(maxY, 0, fb.size-1)

	dy12, dx21 := p1.Y-p2.Y, p2.X-p1.X
	dy20, dx02 := p2.Y-p0.Y, p0.X-p2.X

	for y := minY; y <= maxY; y++ {
		sy := float32(y) + 0.5 - p2.Y
		for x := minX; x <= maxX; x++ {
			sx := float32(x) + 0.5 - p2.X
			w0 := (dy12*sx + dx21*sy) * invDet
			w1 := (dy20*sx + dx02*sy) * invDet
			w2 := 1 - w0 - w1
			if w0 < -0.001 || w1 < -0.001 || w2 < -0.001 {
				continue
			}
			z := w0*p0.Z + w1*p1.Z + w2*p2.Z
			idx := y*fb.size + x
			if z < fb.zbuf[idx] {
				continue
			}
			fb.zbuf[idx] = z
			fb.img.SetRGBA(x, y, c)
		}
	}
}

func minf(a, b, c float32) float32 {
	return float32(m.Min(float64(a), m.Min(float64(b), float64(c))))
}

func maxf(a, b, c float32) float32 {
	return float32(m.Max(float64(a), m.Max(float64(b), float64(c))))
}

/**
 * @brief Writes the thumbnail of the scene to path as WebP. The parent directory
 * is created when missing.
 */
func (pr *PreviewRenderer) Render(scene *metadata.Scene, path string) error {
	img := pr.Rasterize(scene)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.NewIOError("mkdir", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".preview-*.tmp")
	if err != nil {
		return core.NewIOError("create", dir, err)
	}
	tmpPath := tmp.Name()
	if err := nativewebp.Encode(tmp, img, nil); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("webp encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return core.NewIOError("close", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return core.NewIOError("rename", path, err)
	}
	return nil
}
