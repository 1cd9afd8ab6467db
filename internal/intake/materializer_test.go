package intake

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jo-hoe/imageintake/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaterialize_PNG(t *testing.T) {
	data := makePNG(t, 7, 5)
	m := NewMaterializer()

	record, err := m.Materialize(context.Background(), NewMemoryFile("a.png", data))
	require.NoError(t, err)

	assert.Equal(t, int64(len(data)), record.ByteSize)
	assert.Equal(t, "image/png", record.ContentType)
	require.NotNil(t, record.Dimensions)
	assert.Equal(t, Dimensions{Width: 7, Height: 5}, *record.Dimensions)
	assert.True(t, strings.HasPrefix(record.EncodedContent, "data:image/png;base64,"))
	assert.Empty(t, record.ID, "identity is assigned by the coordinator")
}

func TestMaterialize_JPEGDetectedByContent(t *testing.T) {
	// the extension lies, the decoder decides
	m := NewMaterializer()
	record, err := m.Materialize(context.Background(), NewMemoryFile("photo.png", makeJPEG(t, 3, 9)))
	require.NoError(t, err)

	assert.Equal(t, "image/jpeg", record.ContentType)
	require.NotNil(t, record.Dimensions)
	assert.Equal(t, Dimensions{Width: 3, Height: 9}, *record.Dimensions)
}

func TestMaterialize_UndecodableKeepsDimensionsAbsent(t *testing.T) {
	m := NewMaterializer()
	record, err := m.Materialize(context.Background(), NewMemoryFile("notes.txt", []byte("hello world")))
	require.NoError(t, err)

	assert.Nil(t, record.Dimensions)
	assert.True(t, strings.HasPrefix(record.ContentType, "text/plain"))
}

func TestMaterialize_ReadFailure(t *testing.T) {
	m := NewMaterializer()
	_, err := m.Materialize(context.Background(), &brokenFile{name: "x.png"})
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrRead)
	assert.ErrorIs(t, err, errBroken)
	var readErr *ReadError
	require.True(t, errors.As(err, &readErr))
	assert.Equal(t, "x.png", readErr.Name)
}

func TestMaterialize_Idempotent(t *testing.T) {
	m := NewMaterializer()
	handle := NewMemoryFile("a.png", makePNG(t, 4, 4))

	first, err := m.Materialize(context.Background(), handle)
	require.NoError(t, err)
	second, err := m.Materialize(context.Background(), handle)
	require.NoError(t, err)

	assert.Equal(t, first.EncodedContent, second.EncodedContent)
	assert.Equal(t, first.Dimensions, second.Dimensions)
}

func TestMaterialize_UsesCache(t *testing.T) {
	c := cache.NewMemoryCache(0)
	m := NewMaterializer(WithCache(c))
	data := makePNG(t, 2, 2)

	_, err := m.Materialize(context.Background(), NewMemoryFile("a.png", data))
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	// same content under another name hits the same entry
	record, err := m.Materialize(context.Background(), NewMemoryFile("b.png", data))
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, "b.png", record.Name())
	require.NotNil(t, record.Dimensions)
	assert.Equal(t, 2, record.Dimensions.Width)
}

func TestMaterializeAll_PreservesOrder(t *testing.T) {
	m := NewMaterializer(WithConcurrency(4))
	handles := []FileHandle{
		&slowFile{MemoryFile: NewMemoryFile("first.png", makePNG(t, 1, 1)), delay: 40 * time.Millisecond},
		&slowFile{MemoryFile: NewMemoryFile("second.png", makePNG(t, 2, 2)), delay: 20 * time.Millisecond},
		NewMemoryFile("third.png", makePNG(t, 3, 3)),
	}

	records, err := m.MaterializeAll(context.Background(), handles)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, handles[i].Name(), r.Name())
		assert.Equal(t, i+1, r.Dimensions.Width)
	}
}

func TestMaterializeAll_FailsAtomically(t *testing.T) {
	m := NewMaterializer()
	handles := []FileHandle{
		NewMemoryFile("ok.png", makePNG(t, 1, 1)),
		&brokenFile{name: "bad.png"},
	}

	records, err := m.MaterializeAll(context.Background(), handles)
	assert.Nil(t, records)
	require.ErrorIs(t, err, ErrRead)
	var readErr *ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, 1, readErr.Index)
}

func TestMaterializeAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMaterializer().MaterializeAll(ctx, []FileHandle{NewMemoryFile("a.png", makePNG(t, 1, 1))})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodeDimensions_SVG(t *testing.T) {
	tests := []struct {
		name  string
		svg   string
		wantW int
		wantH int
	}{
		{
			name:  "explicit size",
			svg:   `<svg xmlns="http://www.w3.org/2000/svg" width="120" height="80"><rect width="10" height="10"/></svg>`,
			wantW: 120,
			wantH: 80,
		},
		{
			name:  "explicit size with units",
			svg:   `<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg" width="64px" height="32.5px"></svg>`,
			wantW: 64,
			wantH: 32,
		},
		{
			name:  "viewBox fallback",
			svg:   `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 300 150"><circle cx="5" cy="5" r="4"/></svg>`,
			wantW: 300,
			wantH: 150,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dims, format, err := DecodeDimensions([]byte(tt.svg))
			require.NoError(t, err)
			assert.Equal(t, "svg", format)
			assert.Equal(t, Dimensions{Width: tt.wantW, Height: tt.wantH}, *dims)
		})
	}
}

func TestDecodeDimensions_Garbage(t *testing.T) {
	dims, _, err := DecodeDimensions([]byte("definitely not an image"))
	assert.Error(t, err)
	assert.Nil(t, dims)
}

func TestMaterialize_SkipsCacheForUndecodableContent(t *testing.T) {
	c := cache.NewMemoryCache(0)
	m := NewMaterializer(WithCache(c))

	text, err := m.Materialize(context.Background(), NewMemoryFile("notes.txt", []byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
	assert.Contains(t, text.ContentType, "text/plain")

	other, err := m.Materialize(context.Background(), NewMemoryFile("page.html", []byte("hello")))
	require.NoError(t, err)
	assert.Contains(t, other.ContentType, "text/html")
}

func TestMaterialize_MarkupWithInlineSVGIsNotAnImage(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		wantType string
	}{
		{
			name:     "html page",
			filename: "page.html",
			content:  `<!DOCTYPE html><html><body><svg width="10" height="10"></svg></body></html>`,
			wantType: "text/html",
		},
		{
			name:     "broken svg",
			filename: "notes.txt",
			content:  `<svg xmlns="http://www.w3.org/2000/svg"></svg>`,
			wantType: "text/plain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := NewMaterializer().Materialize(context.Background(), NewMemoryFile(tt.filename, []byte(tt.content)))
			require.NoError(t, err)
			assert.Nil(t, record.Dimensions)
			assert.Contains(t, record.ContentType, tt.wantType)

			result := Validate([]*ImageRecord{record}, nil, ValidationConfig{})
			_, failed := result.Failure(RuleAcceptType)
			assert.True(t, failed, "non-image content must fail the default type rule")
		})
	}
}

func TestDecodeDimensions_HTMLWithInlineSVG(t *testing.T) {
	dims, format, err := DecodeDimensions([]byte(`<html><body><svg width="10" height="10"></svg></body></html>`))
	assert.Error(t, err)
	assert.Nil(t, dims)
	assert.Empty(t, format)
}
