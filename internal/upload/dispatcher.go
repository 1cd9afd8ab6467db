package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"

	"github.com/jo-hoe/imageintake/internal/intake"
)

const DefaultFieldName = "file"

var (
	ErrDispatch = errors.New("upload failed")
	ErrNoFiles  = errors.New("no files to upload")
)

// DispatchError is reported when the destination could not be reached or
// answered with a non-2xx status.
type DispatchError struct {
	StatusCode int
	Body       []byte
	Err        error
}

func (e *DispatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", ErrDispatch, e.Err)
	}
	return fmt.Sprintf("%v: destination responded with status %d", ErrDispatch, e.StatusCode)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

func (e *DispatchError) Is(target error) bool {
	return target == ErrDispatch
}

type Progress struct {
	Loaded int64
	Total  int64
}

// Percent is in [0, 100].
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 100
	}
	return float64(p.Loaded) * 100 / float64(p.Total)
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Callbacks receive the outcome of a dispatch. OnProgress may be called any
// number of times with non-decreasing values; exactly one of OnSuccess and
// OnError is called afterwards. Nil callbacks are skipped.
type Callbacks struct {
	OnProgress func(Progress)
	OnSuccess  func(*Response)
	OnError    func(error)
}

type Request struct {
	Handles     []intake.FileHandle
	Destination string
	Headers     map[string]string
	// FieldName is the multipart field each file is sent under.
	FieldName string
}

type Dispatcher struct {
	client *http.Client
	logger *slog.Logger
}

type Option func(*Dispatcher)

func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		d.client = client
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client: http.DefaultClient,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends the files in the background and returns immediately. The
// returned channel is closed after the terminal callback ran. Overlapping
// dispatches are not deduplicated.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, callbacks Callbacks) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := d.Send(ctx, req, callbacks.OnProgress)
		if err != nil {
			if callbacks.OnError != nil {
				callbacks.OnError(err)
			}
			return
		}
		if callbacks.OnSuccess != nil {
			callbacks.OnSuccess(resp)
		}
	}()
	return done
}

// Send uploads the files as one multipart POST and blocks until the
// destination answered.
func (d *Dispatcher) Send(ctx context.Context, req Request, onProgress func(Progress)) (*Response, error) {
	if len(req.Handles) == 0 {
		return nil, ErrNoFiles
	}

	body, contentType, err := buildBody(req)
	if err != nil {
		d.logger.Error("Dispatcher: failed to build request body", "error", err)
		return nil, &DispatchError{Err: err}
	}

	total := int64(body.Len())
	reader := &progressReader{reader: body, total: total, onProgress: onProgress}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Destination, reader)
	if err != nil {
		return nil, &DispatchError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.ContentLength = total
	httpReq.Header.Set("Content-Type", contentType)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	d.logger.Debug("Dispatcher: sending files",
		"destination", req.Destination,
		"files", len(req.Handles),
		"size_bytes", total)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		d.logger.Error("Dispatcher: request failed", "destination", req.Destination, "error", err)
		return nil, &DispatchError{Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DispatchError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Error("Dispatcher: destination rejected upload",
			"destination", req.Destination,
			"status", resp.StatusCode)
		return nil, &DispatchError{StatusCode: resp.StatusCode, Body: respBody}
	}

	reader.finish()
	d.logger.Info("Dispatcher: upload complete", "destination", req.Destination, "status", resp.StatusCode)
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

func buildBody(req Request) (*bytes.Buffer, string, error) {
	field := req.FieldName
	if field == "" {
		field = DefaultFieldName
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, handle := range req.Handles {
		if err := writeFile(writer, field, handle); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeFile(writer *multipart.Writer, field string, handle intake.FileHandle) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, quoteEscaper.Replace(field), quoteEscaper.Replace(handle.Name())))
	contentType := "application/octet-stream"
	if typed, ok := handle.(intake.ContentTyper); ok && typed.ContentType() != "" {
		contentType = typed.ContentType()
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create part for %s: %w", handle.Name(), err)
	}
	rc, err := handle.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", handle.Name(), err)
	}
	defer func() {
		_ = rc.Close()
	}()
	if _, err := io.Copy(part, rc); err != nil {
		return fmt.Errorf("failed to read %s: %w", handle.Name(), err)
	}
	return nil
}

// progressReader reports bytes handed to the transport. The transport may
// read from another goroutine, so reporting is serialized.
type progressReader struct {
	reader     io.Reader
	total      int64
	onProgress func(Progress)

	mu     sync.Mutex
	loaded int64
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.report(int64(n))
	}
	return n, err
}

func (r *progressReader) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded < r.total {
		r.loaded = r.total
		if r.onProgress != nil {
			r.onProgress(Progress{Loaded: r.loaded, Total: r.total})
		}
	}
}

func (r *progressReader) report(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded += n
	if r.onProgress != nil {
		r.onProgress(Progress{Loaded: r.loaded, Total: r.total})
	}
}
