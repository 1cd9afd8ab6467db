package intake

import (
	"errors"
	"fmt"
)

var (
	ErrRead                = errors.New("file could not be read")
	ErrRejected            = errors.New("batch rejected by validation")
	ErrEmptyBatch          = errors.New("no files provided")
	ErrInvalidUpdateTarget = errors.New("pending update target is out of range")
)

// ReadError reports the file of a batch that could not be read.
type ReadError struct {
	Index int
	Name  string
	Err   error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read file %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

func (e *ReadError) Is(target error) bool {
	return target == ErrRead
}

// RejectionError carries the full validation report together with the batch
// that was attempted.
type RejectionError struct {
	Result ValidationResult
	Batch  []*ImageRecord
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%v: %s", ErrRejected, e.Result.Summary())
}

func (e *RejectionError) Is(target error) bool {
	return target == ErrRejected
}
