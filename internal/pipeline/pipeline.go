// Package pipeline wires the crawl and plot phases from their stage interfaces.
package pipeline

import (
	"context"

	"github.com/lcogt/nres-sn/internal/domain"
)

// Archives locates a night's tarballs and exposes each one's report PDF for
// the duration of a callback.
type Archives interface {
	Locate(night domain.Night) ([]string, error)
	WithReport(tarball string, fn func(pdfPath string) error) error
}

// TextExtractor pulls plain text from the first page of a PDF.
type TextExtractor interface {
	FirstPage(path string) (string, error)
}

// LogWriter persists a night's observations.
type LogWriter interface {
	Write(path string, obs []domain.Observation) error
}

// Publisher forwards a night's observations to a downstream sink.
type Publisher interface {
	Publish(ctx context.Context, night domain.Night, obs []domain.Observation) error
}

// LogReader loads a per-night log as a normalized series.
type LogReader interface {
	Read(path string) (domain.Series, error)
}

// Renderer draws datasets and model curves into a figure.
type Renderer interface {
	Render(datasets []domain.Dataset, curves []domain.Curve) error
}
