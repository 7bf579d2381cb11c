// Package seed loads the list of product review URLs to scrape.
package seed

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// Load reads seed URLs from the newline-delimited file at path.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open seed file: %w", models.ErrConfig, err)
	}
	defer f.Close()

	urls, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read seed file %q: %w", models.ErrConfig, path, err)
	}
	return urls, nil
}

// Read returns every non-blank, whitespace-trimmed line of r in order.
// Duplicates are kept.
func Read(r io.Reader) ([]string, error) {
	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return urls, nil
}
