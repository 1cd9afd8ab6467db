package intake

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/srwiley/oksvg"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const formatSVG = "svg"

var formatContentTypes = map[string]string{
	"png":     "image/png",
	"jpeg":    "image/jpeg",
	"gif":     "image/gif",
	"bmp":     "image/bmp",
	"tiff":    "image/tiff",
	"webp":    "image/webp",
	formatSVG: "image/svg+xml",
}

// DecodeDimensions reads the pixel size of an encoded image without decoding
// the full pixel data. It returns the detected format name ("png", "svg", ...).
func DecodeDimensions(data []byte) (*Dimensions, string, error) {
	if isSVGData(data) {
		w, h, err := svgSize(data)
		if err != nil {
			return nil, "", err
		}
		return &Dimensions{Width: w, Height: h}, formatSVG, nil
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image config: %w", err)
	}
	return &Dimensions{Width: cfg.Width, Height: cfg.Height}, format, nil
}

// detectContentType picks the most specific content type available: the
// decoded format, then the declared type, then the extension, then sniffing.
// format must be empty unless the content actually decoded.
func detectContentType(handle FileHandle, format string, data []byte) string {
	if ct, ok := formatContentTypes[format]; ok {
		return ct
	}
	if typed, ok := handle.(ContentTyper); ok {
		if ct := typed.ContentType(); ct != "" && ct != "application/octet-stream" {
			return ct
		}
	}
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(handle.Name()))); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}

// isSVGData reports whether the document's root element is <svg>. Markup
// that merely embeds an inline svg, such as an HTML page, is not SVG.
func isSVGData(data []byte) bool {
	n := len(data)
	if n == 0 {
		return false
	}
	if n > 4096 {
		n = 4096
	}
	if !bytes.Contains(bytes.ToLower(data[:n]), []byte("<svg")) {
		return false
	}
	_, ok := svgRoot(data)
	return ok
}

// svgRoot returns the first element of the document if it is <svg>.
func svgRoot(data []byte) (xml.StartElement, bool) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false
	for {
		tok, err := decoder.Token()
		if err != nil {
			return xml.StartElement{}, false
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start, strings.EqualFold(start.Name.Local, "svg")
		}
	}
}

// svgSize prefers explicit width/height attributes on the root element and
// falls back to the viewBox.
func svgSize(data []byte) (int, int, error) {
	if w, h, ok := svgExplicitSize(data); ok {
		return w, h, nil
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.IgnoreErrorMode)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse SVG: %w", err)
	}
	w, h := int(icon.ViewBox.W), int(icon.ViewBox.H)
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("SVG has neither explicit size nor viewBox")
	}
	return w, h, nil
}

func svgExplicitSize(data []byte) (int, int, bool) {
	start, ok := svgRoot(data)
	if !ok {
		return 0, 0, false
	}
	var w, h int
	for _, attr := range start.Attr {
		switch strings.ToLower(attr.Name.Local) {
		case "width":
			w = leadingInt(attr.Value)
		case "height":
			h = leadingInt(attr.Value)
		}
	}
	return w, h, w > 0 && h > 0
}

// leadingInt parses values such as "120", "120px" or "120.5". Percentages
// are not pixel sizes and yield zero.
func leadingInt(value string) int {
	value = strings.TrimSpace(value)
	if strings.HasSuffix(value, "%") {
		return 0
	}
	end := 0
	for end < len(value) && (value[end] == '.' || (value[end] >= '0' && value[end] <= '9')) {
		end++
	}
	f, err := strconv.ParseFloat(value[:end], 64)
	if err != nil {
		return 0
	}
	return int(f)
}
