// Package vision registers image-analysis tools for rendered molecular
// views. Analysis is local pixel statistics; no model call is involved.
package vision

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/molviz/pymol-agent/internal/tools"
)

// Register adds the vision tool pack to the registry.
func Register(reg *tools.Registry) error {
	packs := []struct {
		spec tools.Spec
		exec tools.Executor
	}{
		{
			spec: tools.Spec{
				Name:        "analyze_molecular_image",
				Description: "Analyze a rendered molecular image: dimensions, brightness, dominant colors and background.",
				Params: []tools.Param{
					{Name: "image_path", Type: tools.TypeString, Description: "Path to a PNG or JPEG image", Required: true},
				},
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				return analyzeImage(tools.StringArg(args, "image_path"))
			},
		},
		{
			spec: tools.Spec{
				Name:        "annotate_molecular_image",
				Description: "Draw a labeled marker onto a rendered image and save an annotated copy.",
				Params: []tools.Param{
					{Name: "image_path", Type: tools.TypeString, Description: "Path to a PNG or JPEG image", Required: true},
					{Name: "x", Type: tools.TypeInteger, Description: "Marker X coordinate in pixels", Required: true},
					{Name: "y", Type: tools.TypeInteger, Description: "Marker Y coordinate in pixels", Required: true},
					{Name: "text", Type: tools.TypeString, Description: "Label drawn next to the marker", Required: false},
					{Name: "color", Type: tools.TypeString, Description: "Marker color: red, green, blue, yellow, white or black (default red)", Required: false},
					{Name: "output_path", Type: tools.TypeString, Description: "Output path (defaults to <name>_annotated<ext>)", Required: false},
				},
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				return annotateImage(
					tools.StringArg(args, "image_path"),
					tools.StringArg(args, "output_path"),
					int(tools.IntArg(args, "x", 0)),
					int(tools.IntArg(args, "y", 0)),
					tools.StringArg(args, "text"),
					tools.StringArg(args, "color"),
				)
			},
		},
		{
			spec: tools.Spec{
				Name:        "compare_molecular_images",
				Description: "Compare two rendered images and report dimension and pixel-level differences.",
				Params: []tools.Param{
					{Name: "image1_path", Type: tools.TypeString, Description: "Path to the first image", Required: true},
					{Name: "image2_path", Type: tools.TypeString, Description: "Path to the second image", Required: true},
				},
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				return compareImages(tools.StringArg(args, "image1_path"), tools.StringArg(args, "image2_path"))
			},
		},
		{
			spec: tools.Spec{
				Name:        "get_image_info",
				Description: "Report basic information about an image file: format, dimensions, file size.",
				Params: []tools.Param{
					{Name: "image_path", Type: tools.TypeString, Description: "Path to the image file", Required: true},
				},
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				return imageInfo(tools.StringArg(args, "image_path"))
			},
		},
	}

	for _, p := range packs {
		if err := reg.Register(p.spec, p.exec); err != nil {
			return fmt.Errorf("failed to register %s: %w", p.spec.Name, err)
		}
	}
	return nil
}

func decode(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// analyzeImage samples the image on a coarse grid; exact per-pixel stats are
// not worth the walk on large renders.
func analyzeImage(path string) (map[string]any, error) {
	img, format, err := decode(path)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	step := max(1, min(width, height)/128)
	var total, dark int
	buckets := make(map[[3]uint8]int)
	var brightnessSum float64

	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			r, g, b, _ := img.At(x, y).RGBA()
			r8, g8, b8 := uint8(r>>8), uint8(g>>8), uint8(b>>8)
			brightness := (float64(r8) + float64(g8) + float64(b8)) / 3
			brightnessSum += brightness
			if brightness < 32 {
				dark++
			}
			// Quantize to 32-level buckets for dominant color grouping.
			buckets[[3]uint8{r8 / 32, g8 / 32, b8 / 32}]++
			total++
		}
	}
	if total == 0 {
		return nil, fmt.Errorf("image has no pixels")
	}

	type bucket struct {
		key   [3]uint8
		count int
	}
	ranked := make([]bucket, 0, len(buckets))
	for k, c := range buckets {
		ranked = append(ranked, bucket{k, c})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].count > ranked[j].count })

	dominant := make([]string, 0, 3)
	for i := 0; i < len(ranked) && i < 3; i++ {
		k := ranked[i].key
		dominant = append(dominant, fmt.Sprintf("#%02x%02x%02x", k[0]*32+16, k[1]*32+16, k[2]*32+16))
	}

	return map[string]any{
		"format":          format,
		"width":           width,
		"height":          height,
		"mean_brightness": brightnessSum / float64(total),
		"dark_fraction":   float64(dark) / float64(total),
		"dark_background": float64(dark)/float64(total) > 0.5,
		"dominant_colors": dominant,
	}, nil
}

var markerColors = map[string]color.RGBA{
	"red":    {R: 255, A: 255},
	"green":  {G: 255, A: 255},
	"blue":   {B: 255, A: 255},
	"yellow": {R: 255, G: 255, A: 255},
	"white":  {R: 255, G: 255, B: 255, A: 255},
	"black":  {A: 255},
}

// annotateImage draws a crosshair marker plus an optional label at (x, y) and
// writes the result to outPath, leaving the source image untouched.
func annotateImage(path, outPath string, x, y int, text, colorName string) (map[string]any, error) {
	src, _, err := decode(path)
	if err != nil {
		return nil, err
	}

	if colorName == "" {
		colorName = "red"
	}
	col, ok := markerColors[strings.ToLower(colorName)]
	if !ok {
		return nil, fmt.Errorf("invalid color %q", colorName)
	}

	bounds := src.Bounds()
	if !image.Pt(x, y).In(bounds) {
		return nil, fmt.Errorf("marker (%d, %d) is outside the %dx%d image", x, y, bounds.Dx(), bounds.Dy())
	}

	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, src, bounds.Min, draw.Src)

	const arm = 6
	for d := -arm; d <= arm; d++ {
		if p := image.Pt(x+d, y); p.In(bounds) {
			canvas.Set(p.X, p.Y, col)
		}
		if p := image.Pt(x, y+d); p.In(bounds) {
			canvas.Set(p.X, p.Y, col)
		}
	}

	if text != "" {
		drawer := &font.Drawer{
			Dst:  canvas,
			Src:  image.NewUniform(col),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(x+arm+3, y+4),
		}
		drawer.DrawString(text)
	}

	if outPath == "" {
		ext := filepath.Ext(path)
		outPath = strings.TrimSuffix(path, ext) + "_annotated" + ext
	}
	if err := writeImage(outPath, canvas); err != nil {
		return nil, err
	}

	return map[string]any{
		"annotated_image_path": outPath,
		"marker_x":             x,
		"marker_y":             y,
		"color":                strings.ToLower(colorName),
	}, nil
}

func writeImage(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output image: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(f, img, nil)
	default:
		err = png.Encode(f, img)
	}
	if err != nil {
		return fmt.Errorf("failed to encode output image: %w", err)
	}
	return nil
}

func compareImages(path1, path2 string) (map[string]any, error) {
	img1, _, err := decode(path1)
	if err != nil {
		return nil, err
	}
	img2, _, err := decode(path2)
	if err != nil {
		return nil, err
	}

	b1, b2 := img1.Bounds(), img2.Bounds()
	result := map[string]any{
		"same_dimensions": b1.Dx() == b2.Dx() && b1.Dy() == b2.Dy(),
		"width1":          b1.Dx(),
		"height1":         b1.Dy(),
		"width2":          b2.Dx(),
		"height2":         b2.Dy(),
	}
	if b1.Dx() != b2.Dx() || b1.Dy() != b2.Dy() {
		return result, nil
	}

	step := max(1, min(b1.Dx(), b1.Dy())/128)
	var total, differing int
	for y := 0; y < b1.Dy(); y += step {
		for x := 0; x < b1.Dx(); x += step {
			r1, g1, bl1, _ := img1.At(b1.Min.X+x, b1.Min.Y+y).RGBA()
			r2, g2, bl2, _ := img2.At(b2.Min.X+x, b2.Min.Y+y).RGBA()
			if absDiff(r1, r2)>>8 > 8 || absDiff(g1, g2)>>8 > 8 || absDiff(bl1, bl2)>>8 > 8 {
				differing++
			}
			total++
		}
	}
	result["differing_fraction"] = float64(differing) / float64(total)
	return result, nil
}

func imageInfo(path string) (map[string]any, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat image: %w", err)
	}
	img, format, err := decode(path)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	return map[string]any{
		"format":     format,
		"width":      bounds.Dx(),
		"height":     bounds.Dy(),
		"size_bytes": fi.Size(),
	}, nil
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
