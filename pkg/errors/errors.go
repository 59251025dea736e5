// Package errors defines the sentinel errors shared by the extraction
// pipeline and maps them onto per-file manifest outcomes.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrCorruptContainer  = errors.New("corrupt container")
	ErrNoBodySections    = errors.New("no body sections")
	ErrTruncated         = errors.New("truncated record stream")
	ErrEncrypted         = errors.New("document is encrypted")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrEmptyContent      = errors.New("no content")
	ErrTooShort          = errors.New("too short (image-based?)")
	ErrGarbled           = errors.New("garbled text")
	ErrTooLarge          = errors.New("file too large")
	ErrAlreadyProcessed  = errors.New("already processed")
	ErrTimeout           = errors.New("operation timed out")
)

// Status is the outcome recorded for a file in the run manifest.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkip    Status = "skip"
	StatusError   Status = "error"
)

// FileError carries a sentinel, a human readable reason and the manifest
// status the orchestrator should record.
type FileError struct {
	Err     error
	Message string
	Status  Status
}

func (e *FileError) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

func New(sentinel error, status Status, message string) *FileError {
	return &FileError{
		Err:     sentinel,
		Message: message,
		Status:  status,
	}
}

func Newf(sentinel error, status Status, format string, args ...any) *FileError {
	return &FileError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
		Status:  status,
	}
}

// ManifestStatus maps an error returned by the pipeline to a manifest status.
// A nil error is a success.
func ManifestStatus(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var fileErr *FileError
	if errors.As(err, &fileErr) && fileErr.Status != "" {
		return fileErr.Status
	}

	switch {
	case errors.Is(err, ErrNoBodySections),
		errors.Is(err, ErrEmptyContent),
		errors.Is(err, ErrTooShort),
		errors.Is(err, ErrEncrypted),
		errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrAlreadyProcessed):
		return StatusSkip
	default:
		return StatusError
	}
}

// Reason returns the manifest reason string for err.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var fileErr *FileError
	if errors.As(err, &fileErr) {
		return fileErr.Error()
	}
	return err.Error()
}
