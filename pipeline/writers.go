package pipeline

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// ExportRecord is one flattened review row written by the export writers.
type ExportRecord struct {
	ProductID int64  `json:"product_id"`
	Product   string `json:"product"`
	SID       int64  `json:"sid"`
	User      string `json:"user"`
	Date      string `json:"date"`
	Message   string `json:"message"`
	SourceURL string `json:"source_url"`
}

func exportRecords(pr *models.ProductReviews) []ExportRecord {
	records := make([]ExportRecord, 0, len(pr.Reviews))
	for _, review := range pr.Reviews {
		records = append(records, ExportRecord{
			ProductID: pr.Product.ID,
			Product:   pr.Product.Name,
			SID:       review.ID,
			User:      review.User,
			Date:      review.Date,
			Message:   review.Message,
			SourceURL: pr.SourceURL,
		})
	}
	return records
}

// CSVWriter writes review rows to CSV.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	header := []string{"product_id", "product", "sid", "user", "date", "message", "source_url"}
	if err := writer.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends one row per review of pr.
func (cw *CSVWriter) Write(_ context.Context, pr *models.ProductReviews) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, rec := range exportRecords(pr) {
		record := []string{
			strconv.FormatInt(rec.ProductID, 10),
			rec.Product,
			strconv.FormatInt(rec.SID, 10),
			rec.User,
			rec.Date,
			rec.Message,
			rec.SourceURL,
		}
		if err := cw.writer.Write(record); err != nil {
			return fmt.Errorf("%w: write csv record: %w", models.ErrExport, err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("%w: flush csv records: %w", models.ErrExport, err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// JSONWriter writes newline-delimited JSON review rows.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends the reviews of pr in JSONL format.
func (jw *JSONWriter) Write(_ context.Context, pr *models.ProductReviews) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, rec := range exportRecords(pr) {
		if err := jw.encoder.Encode(rec); err != nil {
			return fmt.Errorf("%w: encode json record: %w", models.ErrExport, err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("%w: flush json writer: %w", models.ErrExport, err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
