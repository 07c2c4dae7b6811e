package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/lcogt/nres-sn/internal/domain"
	"github.com/lcogt/nres-sn/internal/observability"
)

// ReporterConfig holds plot phase settings.
type ReporterConfig struct {
	PerdiemDir string

	// SiteColors maps a site code to its data color; other sites use DefaultColor.
	SiteColors   map[string]string
	DefaultColor string
}

// PlotResult summarizes a plot run.
type PlotResult struct {
	LogsRead    int
	LogsSkipped int
	Points      int
}

// Reporter runs the plot phase.
type Reporter struct {
	reader   LogReader
	renderer Renderer
	cfg      ReporterConfig
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewReporter creates a Reporter.
func NewReporter(reader LogReader, renderer Renderer, cfg ReporterConfig, logger *slog.Logger, metrics *observability.Metrics) *Reporter {
	if cfg.DefaultColor == "" {
		cfg.DefaultColor = "blue"
	}
	return &Reporter{
		reader:   reader,
		renderer: renderer,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// Plot reads each night's log in order and renders them with the given
// curves. Missing or empty logs are logged and skipped; any other read
// error aborts the run.
func (r *Reporter) Plot(ctx context.Context, nights []domain.Night, curves []domain.Curve) (PlotResult, error) {
	var res PlotResult
	datasets := make([]domain.Dataset, 0, len(nights))

	for _, night := range nights {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		path := filepath.Join(r.cfg.PerdiemDir, night.LogFile())
		series, err := r.reader.Read(path)
		if errors.Is(err, domain.ErrNoData) {
			r.logger.Warn("cannot use per-night log", "night", night.String(), "path", path, "error", err)
			r.metrics.LogsSkipped.Inc()
			res.LogsSkipped++
			continue
		}
		if err != nil {
			return res, err
		}

		r.metrics.LogsRead.Inc()
		res.LogsRead++
		res.Points += series.Len()
		datasets = append(datasets, domain.Dataset{
			Label:  night.Label(),
			Color:  r.colorFor(night.Site),
			Series: series,
		})
	}

	if err := r.renderer.Render(datasets, curves); err != nil {
		return res, err
	}
	return res, nil
}

func (r *Reporter) colorFor(site string) string {
	if c, ok := r.cfg.SiteColors[site]; ok && c != "" {
		return c
	}
	return r.cfg.DefaultColor
}
