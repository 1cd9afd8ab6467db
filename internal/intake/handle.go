package intake

import (
	"bytes"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
)

// FileHandle is a raw reference to a file selected by the user, either from a
// picker or from a drop. Implementations must allow Open to be called more
// than once: the materializer reads the content and the dispatcher reads it
// again when the file is sent.
type FileHandle interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// ContentTyper is implemented by handles that carry a declared content type.
type ContentTyper interface {
	ContentType() string
}

// LocalFile is a handle backed by a path on disk.
type LocalFile struct {
	Path string
}

func NewLocalFile(path string) *LocalFile {
	return &LocalFile{Path: path}
}

func (f *LocalFile) Name() string {
	return filepath.Base(f.Path)
}

func (f *LocalFile) Open() (io.ReadCloser, error) {
	return os.Open(f.Path)
}

// MemoryFile is a handle over bytes already held in memory.
type MemoryFile struct {
	FileName string
	Data     []byte
	MIMEType string
}

func NewMemoryFile(name string, data []byte) *MemoryFile {
	return &MemoryFile{FileName: name, Data: data}
}

func (f *MemoryFile) Name() string {
	return f.FileName
}

func (f *MemoryFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.Data)), nil
}

func (f *MemoryFile) ContentType() string {
	return f.MIMEType
}

// MultipartFile adapts an uploaded form file to a FileHandle.
type MultipartFile struct {
	Header *multipart.FileHeader
}

func NewMultipartFile(header *multipart.FileHeader) *MultipartFile {
	return &MultipartFile{Header: header}
}

func (f *MultipartFile) Name() string {
	return f.Header.Filename
}

func (f *MultipartFile) Open() (io.ReadCloser, error) {
	return f.Header.Open()
}

func (f *MultipartFile) ContentType() string {
	return f.Header.Header.Get("Content-Type")
}

// MultipartFiles converts all form files into handles, preserving order.
func MultipartFiles(headers []*multipart.FileHeader) []FileHandle {
	handles := make([]FileHandle, 0, len(headers))
	for _, h := range headers {
		handles = append(handles, NewMultipartFile(h))
	}
	return handles
}

// LocalFiles converts paths into handles, preserving order.
func LocalFiles(paths []string) []FileHandle {
	handles := make([]FileHandle, 0, len(paths))
	for _, p := range paths {
		handles = append(handles, NewLocalFile(p))
	}
	return handles
}
