package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jo-hoe/imageintake/internal/intake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	names   []string
	bodies  []string
	types   []string
	headers http.Header
}

func newReceiver(t *testing.T, status int, field string) (*httptest.Server, *received) {
	t.Helper()
	got := &received{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		got.headers = r.Header.Clone()
		for _, fh := range r.MultipartForm.File[field] {
			f, err := fh.Open()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			data, _ := io.ReadAll(f)
			_ = f.Close()
			got.names = append(got.names, fh.Filename)
			got.bodies = append(got.bodies, string(data))
			got.types = append(got.types, fh.Header.Get("Content-Type"))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func files() []intake.FileHandle {
	a := intake.NewMemoryFile("a.png", []byte("aaaa"))
	a.MIMEType = "image/png"
	return []intake.FileHandle{a, intake.NewMemoryFile(`b "quoted".jpg`, []byte("bb"))}
}

func TestSend_Success(t *testing.T) {
	srv, got := newReceiver(t, http.StatusCreated, "images")
	d := NewDispatcher()

	var mu sync.Mutex
	var progress []Progress
	resp, err := d.Send(context.Background(), Request{
		Handles:     files(),
		Destination: srv.URL,
		Headers:     map[string]string{"X-Token": "secret"},
		FieldName:   "images",
	}, func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		progress = append(progress, p)
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, []string{"a.png", `b "quoted".jpg`}, got.names)
	assert.Equal(t, []string{"aaaa", "bb"}, got.bodies)
	assert.Equal(t, []string{"image/png", "application/octet-stream"}, got.types)
	assert.Equal(t, "secret", got.headers.Get("X-Token"))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, progress)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i].Loaded, progress[i-1].Loaded)
	}
	last := progress[len(progress)-1]
	assert.Equal(t, last.Total, last.Loaded)
	assert.InDelta(t, 100.0, last.Percent(), 0.001)
}

func TestSend_ErrorStatus(t *testing.T) {
	srv, _ := newReceiver(t, http.StatusInternalServerError, DefaultFieldName)

	_, err := NewDispatcher().Send(context.Background(), Request{Handles: files(), Destination: srv.URL}, nil)
	require.ErrorIs(t, err, ErrDispatch)
	var dispatchErr *DispatchError
	require.True(t, errors.As(err, &dispatchErr))
	assert.Equal(t, http.StatusInternalServerError, dispatchErr.StatusCode)
}

func TestSend_NoFiles(t *testing.T) {
	_, err := NewDispatcher().Send(context.Background(), Request{Destination: "http://unused"}, nil)
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestSend_UnreachableDestination(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewDispatcher().Send(context.Background(), Request{Handles: files(), Destination: url}, nil)
	assert.ErrorIs(t, err, ErrDispatch)
}

func TestDispatch_ExactlyOneTerminalCallback(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		wantSuccess bool
	}{
		{"success", http.StatusOK, true},
		{"failure", http.StatusBadGateway, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newReceiver(t, tt.status, DefaultFieldName)
			var successes, failures int
			done := NewDispatcher().Dispatch(context.Background(), Request{Handles: files(), Destination: srv.URL}, Callbacks{
				OnSuccess: func(*Response) { successes++ },
				OnError:   func(error) { failures++ },
			})

			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("dispatch did not finish")
			}
			if tt.wantSuccess {
				assert.Equal(t, 1, successes)
				assert.Equal(t, 0, failures)
			} else {
				assert.Equal(t, 0, successes)
				assert.Equal(t, 1, failures)
			}
		})
	}
}
