package intake

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"testing"
	"time"
)

func makePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to build test PNG: %v", err)
	}
	return buf.Bytes()
}

func makeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to build test JPEG: %v", err)
	}
	return buf.Bytes()
}

// sizedFile returns an in-memory file of exactly size bytes declared as the
// given content type.
func sizedFile(name string, size int, contentType string) *MemoryFile {
	f := NewMemoryFile(name, bytes.Repeat([]byte{0xAB}, size))
	f.MIMEType = contentType
	return f
}

// slowFile delays Open, used to shuffle completion order.
type slowFile struct {
	*MemoryFile
	delay time.Duration
}

func (f *slowFile) Open() (io.ReadCloser, error) {
	time.Sleep(f.delay)
	return f.MemoryFile.Open()
}

type brokenFile struct {
	name string
}

var errBroken = errors.New("disk on fire")

func (f *brokenFile) Name() string {
	return f.name
}

func (f *brokenFile) Open() (io.ReadCloser, error) {
	return nil, errBroken
}

func existing(id, name string) *ImageRecord {
	return &ImageRecord{
		ID:          id,
		Handle:      sizedFile(name, 10, "image/png"),
		ContentType: "image/png",
		ByteSize:    10,
		Dimensions:  &Dimensions{Width: 10, Height: 10},
	}
}
