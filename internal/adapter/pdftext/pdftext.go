// Package pdftext pulls plain text out of pipeline summary reports.
package pdftext

import (
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// ErrNoPages is returned for a PDF without a readable first page.
var ErrNoPages = errors.New("pdf has no pages")

// Extractor reads report text with github.com/ledongthuc/pdf.
type Extractor struct{}

// NewExtractor creates a report text extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// FirstPage returns the plain text content of the first page of the PDF at path.
func (e *Extractor) FirstPage(path string) (text string, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if f != nil {
		defer f.Close()
	}
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}

	if r.NumPage() < 1 {
		return "", ErrNoPages
	}
	page := r.Page(1)
	if page.V.IsNull() {
		return "", ErrNoPages
	}

	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("extract text from %s: %w", path, err)
	}
	return text, nil
}
