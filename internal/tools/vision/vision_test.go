package vision

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molviz/pymol-agent/internal/tools"
)

func writePNG(t *testing.T, name string, w, h int, fill color.RGBA) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func visionRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	require.NoError(t, Register(reg))
	return reg
}

func invoke(t *testing.T, reg *tools.Registry, name string, args map[string]any) (map[string]any, error) {
	t.Helper()
	exec, _, err := reg.Resolve(name)
	require.NoError(t, err)
	return exec(context.Background(), args)
}

func TestAnalyzeDarkImage(t *testing.T) {
	path := writePNG(t, "dark.png", 64, 48, color.RGBA{A: 255})
	reg := visionRegistry(t)

	out, err := invoke(t, reg, "analyze_molecular_image", map[string]any{"image_path": path})
	require.NoError(t, err)

	assert.Equal(t, "png", out["format"])
	assert.Equal(t, 64, out["width"])
	assert.Equal(t, 48, out["height"])
	assert.Equal(t, true, out["dark_background"])
	assert.InDelta(t, 1.0, out["dark_fraction"], 1e-9)
	assert.InDelta(t, 0.0, out["mean_brightness"], 1e-9)

	colors := out["dominant_colors"].([]string)
	require.NotEmpty(t, colors)
	assert.Equal(t, "#101010", colors[0])
}

func TestAnalyzeBrightImage(t *testing.T) {
	path := writePNG(t, "bright.png", 32, 32, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	reg := visionRegistry(t)

	out, err := invoke(t, reg, "analyze_molecular_image", map[string]any{"image_path": path})
	require.NoError(t, err)
	assert.Equal(t, false, out["dark_background"])
	assert.InDelta(t, 255.0, out["mean_brightness"], 1e-9)
}

func TestAnalyzeMissingFile(t *testing.T) {
	reg := visionRegistry(t)
	_, err := invoke(t, reg, "analyze_molecular_image", map[string]any{"image_path": "/nonexistent.png"})
	assert.ErrorContains(t, err, "failed to open image")
}

func TestAnnotateImageDrawsMarker(t *testing.T) {
	path := writePNG(t, "view.png", 64, 64, color.RGBA{A: 255})
	reg := visionRegistry(t)

	out, err := invoke(t, reg, "annotate_molecular_image", map[string]any{
		"image_path": path,
		"x":          int64(32),
		"y":          int64(32),
		"text":       "binding site",
	})
	require.NoError(t, err)

	annotated := out["annotated_image_path"].(string)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "view_annotated.png"), annotated)
	assert.Equal(t, "red", out["color"])

	f, err := os.Open(annotated)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)

	r, g, b, _ := img.At(32, 32).RGBA()
	assert.Equal(t, uint32(0xffff), r, "marker center is red")
	assert.Zero(t, g)
	assert.Zero(t, b)

	r, g, b, _ = img.At(0, 0).RGBA()
	assert.Zero(t, r+g+b, "corners keep the source pixels")
}

func TestAnnotateImageRejectsBadInput(t *testing.T) {
	path := writePNG(t, "view.png", 16, 16, color.RGBA{A: 255})
	reg := visionRegistry(t)

	_, err := invoke(t, reg, "annotate_molecular_image", map[string]any{
		"image_path": path, "x": int64(2), "y": int64(2), "color": "mauve",
	})
	assert.ErrorContains(t, err, "invalid color")

	_, err = invoke(t, reg, "annotate_molecular_image", map[string]any{
		"image_path": path, "x": int64(99), "y": int64(2),
	})
	assert.ErrorContains(t, err, "outside")
}

func TestAnnotateImageExplicitOutputPath(t *testing.T) {
	path := writePNG(t, "view.png", 16, 16, color.RGBA{A: 255})
	outPath := filepath.Join(t.TempDir(), "marked.png")
	reg := visionRegistry(t)

	out, err := invoke(t, reg, "annotate_molecular_image", map[string]any{
		"image_path": path, "x": int64(8), "y": int64(8), "output_path": outPath, "color": "Yellow",
	})
	require.NoError(t, err)
	assert.Equal(t, outPath, out["annotated_image_path"])
	assert.Equal(t, "yellow", out["color"])
	_, err = os.Stat(outPath)
	assert.NoError(t, err)
}

func TestCompareIdenticalImages(t *testing.T) {
	a := writePNG(t, "a.png", 40, 40, color.RGBA{R: 20, G: 200, B: 20, A: 255})
	b := writePNG(t, "b.png", 40, 40, color.RGBA{R: 20, G: 200, B: 20, A: 255})
	reg := visionRegistry(t)

	out, err := invoke(t, reg, "compare_molecular_images",
		map[string]any{"image1_path": a, "image2_path": b})
	require.NoError(t, err)
	assert.Equal(t, true, out["same_dimensions"])
	assert.InDelta(t, 0.0, out["differing_fraction"], 1e-9)
}

func TestCompareDifferentImages(t *testing.T) {
	a := writePNG(t, "a.png", 40, 40, color.RGBA{A: 255})
	b := writePNG(t, "b.png", 40, 40, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	reg := visionRegistry(t)

	out, err := invoke(t, reg, "compare_molecular_images",
		map[string]any{"image1_path": a, "image2_path": b})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, out["differing_fraction"], 1e-9)
}

func TestCompareDimensionMismatch(t *testing.T) {
	a := writePNG(t, "a.png", 40, 40, color.RGBA{A: 255})
	b := writePNG(t, "b.png", 20, 40, color.RGBA{A: 255})
	reg := visionRegistry(t)

	out, err := invoke(t, reg, "compare_molecular_images",
		map[string]any{"image1_path": a, "image2_path": b})
	require.NoError(t, err)
	assert.Equal(t, false, out["same_dimensions"])
	assert.NotContains(t, out, "differing_fraction")
}

func TestGetImageInfo(t *testing.T) {
	path := writePNG(t, "info.png", 10, 20, color.RGBA{A: 255})
	reg := visionRegistry(t)

	out, err := invoke(t, reg, "get_image_info", map[string]any{"image_path": path})
	require.NoError(t, err)
	assert.Equal(t, "png", out["format"])
	assert.Equal(t, 10, out["width"])
	assert.Equal(t, 20, out["height"])
	assert.Greater(t, out["size_bytes"], int64(0))
}
