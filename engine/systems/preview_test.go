package systems

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/anima-scan/engine/math"
	"github.com/spaghettifunk/anima-scan/engine/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/webp"
)

func nearColor(a, b color.RGBA) bool {
	near := func(x, y uint8) bool {
		d := int(x) - int(y)
		return d >= -2 && d <= 2
	}
	return near(a.R, b.R) && near(a.G, b.G) && near(a.B, b.B)
}

func floorScene() *metadata.Scene {
	return &metadata.Scene{Nodes: []*metadata.SceneNode{
		{ID: "floor", Transform: math.NewMat4Identity(), Geometry: gridGeometry(4, 4, true)},
	}}
}

func TestPreview_EmptySceneIsBackground(t *testing.T) {
	img := NewPreviewRenderer(32).Rasterize(metadata.NewEmptyScene())
	require.Equal(t, 32, img.Bounds().Dx())
	assert.True(t, nearColor(previewBackground, img.RGBAAt(16, 16)))
}

func TestPreview_MeshCoversCenter(t *testing.T) {
	img := NewPreviewRenderer(64).Rasterize(floorScene())
	assert.False(t, nearColor(previewBackground, img.RGBAAt(32, 32)))
	assert.True(t, nearColor(previewBackground, img.RGBAAt(0, 0)), "margin stays clear")
}

func TestPreview_HigherSurfaceWins(t *testing.T) {
	low := &metadata.SceneNode{ID: "low", Transform: math.NewMat4Identity(), Geometry: gridGeometry(2, 2, true)}
	// a vertical wall seen edge-on has no footprint, so tilt a second floor instead
	tilted := gridGeometry(2, 2, true)
	for i := range tilted.Positions {
		tilted.Positions[i].Y = 0.5 + tilted.Positions[i].X
	}
	high := &metadata.SceneNode{ID: "high", Transform: math.NewMat4Identity(), Geometry: tilted}

	lowOnly := NewPreviewRenderer(32).Rasterize(&metadata.Scene{Nodes: []*metadata.SceneNode{low}})
	both := NewPreviewRenderer(32).Rasterize(&metadata.Scene{Nodes: []*metadata.SceneNode{high, low}})
	assert.False(t, nearColor(lowOnly.RGBAAt(16, 16), both.RGBAAt(16, 16)))
}

func TestPreview_RenderWritesDecodableWebP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "previews", "scan-1.webp")
	require.NoError(t, NewPreviewRenderer(48).Render(floorScene(), path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	img, err := webp.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 48, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())

	center := color.RGBAModel.Convert(img.At(24, 24)).(color.RGBA)
	assert.False(t, nearColor(previewBackground, center))
}
