package models

import (
	"context"
	"errors"
)

// Error kinds shared across the pipeline. Packages wrap these with %w so
// callers can classify failures with errors.Is.
var (
	ErrConfig     = errors.New("configuration error")
	ErrTransport  = errors.New("transport error")
	ErrExtraction = errors.New("extraction error")
	ErrFormat     = errors.New("format error")
	ErrStorage    = errors.New("storage error")
	// ErrExport marks a failed export mirror after the store already committed.
	ErrExport     = errors.New("export error")
)

// Kind returns a stable label for err suitable for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrExtraction):
		return "extraction"
	case errors.Is(err, ErrFormat):
		return "format"
	case errors.Is(err, ErrExport):
		return "export"
	case errors.Is(err, ErrStorage):
		return "storage"
	default:
		return "other"
	}
}
