// Package sink writes emitted batches as JSON lines.
package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JakeFAU/web-connector/internal/crawler"
)

// Stdout selects standard output as the destination.
const Stdout = "-"

// JSONLines writes one JSON object per line. It is safe for concurrent use.
type JSONLines struct {
	mu     sync.Mutex
	buf    *bufio.Writer
	enc    *json.Encoder
	closer io.Closer
}

// Open creates a writer for path, or for stdout when path is "-" or empty.
// Parent directories are created as needed.
func Open(path string) (*JSONLines, error) {
	path = strings.TrimSpace(path)
	if path == "" || path == Stdout {
		return New(os.Stdout, nil), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create output dir for %s: %w", path, err)
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	return New(f, f), nil
}

// New wraps w. closer, if non-nil, is closed by Close.
func New(w io.Writer, closer io.Closer) *JSONLines {
	buf := bufio.NewWriter(w)
	return &JSONLines{buf: buf, enc: json.NewEncoder(buf), closer: closer}
}

// WriteDocuments appends every document of the batch and flushes.
func (s *JSONLines) WriteDocuments(batch []crawler.Document) error {
	return writeAll(s, batch)
}

// WriteSlim appends every slim record of the batch and flushes.
func (s *JSONLines) WriteSlim(batch []crawler.SlimDocument) error {
	return writeAll(s, batch)
}

func writeAll[T any](s *JSONLines, items []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range items {
		if err := s.enc.Encode(items[i]); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
	}
	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// Close flushes buffered output and closes the destination.
func (s *JSONLines) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	if s.closer == nil {
		return nil
	}
	if err := s.closer.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}
