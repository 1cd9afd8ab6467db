package intake

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/jo-hoe/imageintake/internal/cache"
	"golang.org/x/sync/errgroup"
)

// Materializer turns raw handles into ImageRecords carrying the data URL,
// byte size and pixel dimensions of the file.
type Materializer struct {
	cache       cache.Cache
	logger      *slog.Logger
	concurrency int
}

type MaterializerOption func(*Materializer)

// WithCache shares derived content between materializations of identical
// files. Without a cache every call decodes again.
func WithCache(c cache.Cache) MaterializerOption {
	return func(m *Materializer) {
		m.cache = c
	}
}

func WithMaterializerLogger(logger *slog.Logger) MaterializerOption {
	return func(m *Materializer) {
		m.logger = logger
	}
}

// WithConcurrency bounds the number of files read at once in MaterializeAll.
func WithConcurrency(n int) MaterializerOption {
	return func(m *Materializer) {
		m.concurrency = n
	}
}

func NewMaterializer(opts ...MaterializerOption) *Materializer {
	m := &Materializer{
		logger:      slog.Default(),
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.concurrency <= 0 {
		m.concurrency = 1
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Materialize reads a single handle. A file that cannot be decoded as an
// image is not an error here; its Dimensions stay nil.
func (m *Materializer) Materialize(ctx context.Context, handle FileHandle) (*ImageRecord, error) {
	return m.materialize(ctx, 0, handle)
}

// MaterializeAll reads every handle concurrently and returns the records in
// input order. The first read failure cancels the remaining reads and is
// returned as a *ReadError.
func (m *Materializer) MaterializeAll(ctx context.Context, handles []FileHandle) ([]*ImageRecord, error) {
	records := make([]*ImageRecord, len(handles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, handle := range handles {
		g.Go(func() error {
			record, err := m.materialize(gctx, i, handle)
			if err != nil {
				return err
			}
			records[i] = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (m *Materializer) materialize(ctx context.Context, index int, handle FileHandle) (*ImageRecord, error) {
	if handle == nil {
		return nil, &ReadError{Index: index, Err: fmt.Errorf("nil file handle")}
	}
	name := handle.Name()
	if err := ctx.Err(); err != nil {
		return nil, &ReadError{Index: index, Name: name, Err: err}
	}

	data, err := readAll(handle)
	if err != nil {
		m.logger.Error("Materializer: failed to read file", "filename", name, "error", err)
		return nil, &ReadError{Index: index, Name: name, Err: err}
	}

	key := contentKey(data)
	entry := m.lookup(ctx, key)
	if entry == nil {
		entry = m.derive(handle, data)
		// the type of undecodable content depends on the handle, not the bytes
		if entry.HasDimensions {
			m.store(ctx, key, entry)
		}
	}

	record := &ImageRecord{
		Handle:         handle,
		EncodedContent: entry.EncodedContent,
		ContentType:    entry.ContentType,
		ByteSize:       int64(len(data)),
	}
	if entry.HasDimensions {
		record.Dimensions = &Dimensions{Width: entry.Width, Height: entry.Height}
	}
	return record, nil
}

func (m *Materializer) derive(handle FileHandle, data []byte) *cache.Entry {
	dims, format, err := DecodeDimensions(data)
	if err != nil {
		m.logger.Debug("Materializer: content is not a decodable image",
			"filename", handle.Name(), "error", err)
		format = ""
	}
	contentType := detectContentType(handle, format, data)

	entry := &cache.Entry{
		EncodedContent: encodeDataURL(contentType, data),
		ContentType:    contentType,
	}
	if dims != nil {
		entry.HasDimensions = true
		entry.Width = dims.Width
		entry.Height = dims.Height
	}
	m.logger.Debug("Materializer: file materialized",
		"filename", handle.Name(),
		"size_bytes", len(data),
		"content_type", contentType,
		"has_dimensions", entry.HasDimensions,
		"width", entry.Width,
		"height", entry.Height)
	return entry
}

func (m *Materializer) lookup(ctx context.Context, key string) *cache.Entry {
	if m.cache == nil {
		return nil
	}
	entry, ok, err := m.cache.Get(ctx, key)
	if err != nil {
		m.logger.Warn("Materializer: cache lookup failed", "key", key, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return entry
}

func (m *Materializer) store(ctx context.Context, key string, entry *cache.Entry) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Set(ctx, key, entry); err != nil {
		m.logger.Warn("Materializer: cache store failed", "key", key, "error", err)
	}
}

func readAll(handle FileHandle) ([]byte, error) {
	rc, err := handle.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = rc.Close()
	}()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

func contentKey(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func encodeDataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
