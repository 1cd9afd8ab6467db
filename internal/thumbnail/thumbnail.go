package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"

	"github.com/jo-hoe/imageintake/internal/intake"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	xdraw "golang.org/x/image/draw"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrUnsupported = errors.New("content cannot be rendered as thumbnail")

// Generate renders data as a PNG at most width pixels wide, keeping the aspect
// ratio. Images narrower than width are not enlarged.
func Generate(data []byte, width int) ([]byte, error) {
	if width <= 0 {
		return nil, fmt.Errorf("invalid thumbnail width: %d", width)
	}

	dims, format, err := intake.DecodeDimensions(data)
	if err != nil || dims == nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	targetWidth, targetHeight := computeScaledDimensions(dims.Width, dims.Height, width)
	slog.Debug("Thumbnail: scaling",
		"format", format,
		"original_width", dims.Width,
		"original_height", dims.Height,
		"width", targetWidth,
		"height", targetHeight)

	var dst *image.RGBA
	if format == "svg" {
		dst, err = renderSVG(data, targetWidth, targetHeight)
	} else {
		dst, err = scaleRaster(data, targetWidth, targetHeight)
	}
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func computeScaledDimensions(originalWidth, originalHeight, maxWidth int) (int, int) {
	if originalWidth <= maxWidth {
		return originalWidth, originalHeight
	}
	height := int(float64(originalHeight) * float64(maxWidth) / float64(originalWidth))
	if height < 1 {
		height = 1
	}
	return maxWidth, height
}

func scaleRaster(data []byte, w, h int) (*image.RGBA, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst, nil
}

func renderSVG(data []byte, w, h int) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, xdraw.Src)

	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	dasher := rasterx.NewDasher(w, h, scanner)
	icon.Draw(dasher, 1.0)
	return dst, nil
}
