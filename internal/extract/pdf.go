package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

var errEmptyPDF = errors.New("empty pdf")

// PDFReader extracts plain text and document-info metadata from PDF bytes.
type PDFReader struct{}

// NewPDFReader returns a PDFReader.
func NewPDFReader() *PDFReader {
	return &PDFReader{}
}

// ExtractPDF returns the text of every page and the string-valued entries of
// the document's Info dictionary. Malformed files produce an error rather
// than a panic.
func (PDFReader) ExtractPDF(data []byte) (text string, meta map[string]string, err error) {
	if len(data) == 0 {
		return "", nil, errEmptyPDF
	}
	defer func() {
		if r := recover(); r != nil {
			text, meta = "", nil
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", nil, fmt.Errorf("extract pdf text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", nil, fmt.Errorf("read pdf text: %w", err)
	}
	return strings.TrimSpace(string(raw)), infoMetadata(reader), nil
}

func infoMetadata(reader *pdf.Reader) map[string]string {
	meta := make(map[string]string)
	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return meta
	}
	for _, key := range info.Keys() {
		v := info.Key(key)
		if v.Kind() != pdf.String {
			continue
		}
		if s := strings.TrimSpace(v.Text()); s != "" {
			meta[key] = s
		}
	}
	return meta
}
