package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// executeCommand runs a fresh root command and captures its output.
func executeCommand(args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	rootCmd := newRootCmd()
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func TestCheckCmd_Accepted(t *testing.T) {
	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", 20, 10)
	b := writePNG(t, dir, "b.png", 5, 5)

	out, errOut, err := executeCommand("check", a, b)
	if err != nil {
		t.Fatalf("check failed: %v, stderr: %s", err, errOut)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "a.png\timage/png\t") || !strings.Contains(lines[0], "\t20x10\t") {
		t.Errorf("unexpected first line: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "b.png\t") {
		t.Errorf("unexpected second line: %q", lines[1])
	}
}

func TestCheckCmd_Rejected(t *testing.T) {
	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", 20, 10)
	b := writePNG(t, dir, "b.png", 5, 5)

	out, _, err := executeCommand("check", "--max-number", "1", "--resolution-type", "minimum",
		"--resolution-width", "10", "--resolution-height", "10", a, b)
	if err == nil {
		t.Fatal("expected rejection error, got nil")
	}
	for _, want := range []string{"rejected:", "maxNumber", "resolution", "- b.png"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got: %s", want, out)
		}
	}
}

func TestCheckCmd_JSON(t *testing.T) {
	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", 3, 2)

	out, errOut, err := executeCommand("check", "--json", "--data-url-key", "content", a)
	if err != nil {
		t.Fatalf("check failed: %v, stderr: %s", err, errOut)
	}

	var records []map[string]any
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	content, ok := records[0]["content"].(string)
	if !ok || !strings.HasPrefix(content, "data:image/png;base64,") {
		t.Errorf("expected data URL under custom key, got %v", records[0]["content"])
	}
	if records[0]["uniKey"] == "" {
		t.Error("expected identity token")
	}
}

func TestCheckCmd_InvalidFlags(t *testing.T) {
	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", 3, 2)

	if _, _, err := executeCommand("check", "--resolution-type", "bigger", a); err == nil {
		t.Error("expected error for unknown resolution type")
	}
	if _, _, err := executeCommand("check"); err == nil {
		t.Error("expected error without files")
	}
	if _, _, err := executeCommand("check", filepath.Join(dir, "missing.png")); err == nil {
		t.Error("expected error for unreadable file")
	}
}

func TestUploadCmd(t *testing.T) {
	var mu sync.Mutex
	var received []string
	var token string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		for _, fh := range r.MultipartForm.File["images"] {
			received = append(received, fh.Filename)
		}
		token = r.Header.Get("X-Token")
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ids":["1","2"]}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", 4, 4)
	b := writePNG(t, dir, "b.png", 4, 4)

	out, errOut, err := executeCommand("upload", "--url", srv.URL, "--field-name", "images",
		"--header", "X-Token=secret", a, b)
	if err != nil {
		t.Fatalf("upload failed: %v, stderr: %s", err, errOut)
	}
	if !strings.Contains(out, "uploaded 2 files: status 201") {
		t.Errorf("unexpected output: %s", out)
	}
	if !strings.Contains(errOut, "(100%)") {
		t.Errorf("expected final progress in stderr, got: %s", errOut)
	}

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(received, ",") != "a.png,b.png" {
		t.Errorf("unexpected received files: %v", received)
	}
	if token != "secret" {
		t.Errorf("expected header to be forwarded, got %q", token)
	}
}

func TestUploadCmd_Failures(t *testing.T) {
	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", 4, 4)

	if _, _, err := executeCommand("upload", a); err == nil {
		t.Error("expected error without --url")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	if _, _, err := executeCommand("upload", "--url", srv.URL, a); err == nil {
		t.Error("expected error for failing receiver")
	}
}

func TestCheckCmd_ConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", 4, 4)
	configPath := filepath.Join(dir, "config.yaml")
	config := "database: {type: sqlite, connectionString: ':memory:'}\nuploader: {acceptType: [jpg]}\n"
	if err := os.WriteFile(configPath, []byte(config), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	out, _, err := executeCommand("check", "--config", configPath, a)
	if err == nil {
		t.Fatal("expected png to be rejected by config accept list")
	}
	if !strings.Contains(out, "acceptType") {
		t.Errorf("expected acceptType failure, got: %s", out)
	}

	// flags win over the config file
	if _, _, err := executeCommand("check", "--config", configPath, "--accept", "png", a); err != nil {
		t.Errorf("expected --accept to override config, got %v", err)
	}
}
