package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// MultiWriter writes to each writer in order and stops at the first
// failure. The first writer is the store; the rest mirror what it wrote
// and see its generated ids. A failure after the first writer is reported
// as models.ErrExport, since the store has already committed.
type MultiWriter struct {
	writers []ReviewWriter
}

// NewMultiWriter fans writes out to writers; nil entries are skipped.
func NewMultiWriter(writers ...ReviewWriter) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range writers {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// Write writes pr to every writer.
func (mw *MultiWriter) Write(ctx context.Context, pr *models.ProductReviews) error {
	for i, w := range mw.writers {
		if err := w.Write(ctx, pr); err != nil {
			if i > 0 && !errors.Is(err, models.ErrExport) {
				return fmt.Errorf("%w: writer %d: %w", models.ErrExport, i, err)
			}
			return fmt.Errorf("writer %d: %w", i, err)
		}
	}
	return nil
}

// Close closes every writer and joins their errors.
func (mw *MultiWriter) Close() error {
	var errs []error
	for i, w := range mw.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
