package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/lcogt/nres-sn/internal/domain"
	"github.com/lcogt/nres-sn/internal/observability"
)

// Skip reasons recorded on the reports_skipped_total metric.
const (
	skipExtract     = "extract"
	skipMismatch    = "mismatch"
	skipEngineering = "engineering"
)

// skipError marks an archive that produced no record but does not stop the crawl.
type skipError struct {
	reason string
	err    error
}

func (e *skipError) Error() string { return e.reason + ": " + e.err.Error() }
func (e *skipError) Unwrap() error { return e.err }

// CrawlerConfig holds crawl settings that do not come from a stage.
type CrawlerConfig struct {
	PerdiemDir      string
	Translations    map[string]string
	SkipEngineering bool
}

// CrawlResult summarizes one crawled night.
type CrawlResult struct {
	Night      domain.Night
	LogPath    string
	Archives   int
	Records    int
	Unresolved int
	Skipped    int
	Duration   time.Duration
}

// Crawler runs the extraction phase: locate, extract, parse, resolve, write.
type Crawler struct {
	archives  Archives
	extractor TextExtractor
	catalog   domain.Catalog
	writer    LogWriter
	publisher Publisher
	cfg       CrawlerConfig
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewCrawler creates a Crawler. A nil catalog leaves every magnitude
// unresolved; a nil publisher disables publishing.
func NewCrawler(a Archives, e TextExtractor, c domain.Catalog, w LogWriter, p Publisher, cfg CrawlerConfig, logger *slog.Logger, metrics *observability.Metrics) *Crawler {
	if cfg.Translations == nil {
		cfg.Translations = domain.DefaultTranslations
	}
	return &Crawler{
		archives:  a,
		extractor: e,
		catalog:   c,
		writer:    w,
		publisher: p,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

// CrawlAll crawls each night in order and stops at the first fatal error.
func (c *Crawler) CrawlAll(ctx context.Context, nights []domain.Night) ([]CrawlResult, error) {
	results := make([]CrawlResult, 0, len(nights))
	for _, night := range nights {
		res, err := c.Crawl(ctx, night)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Crawl processes every tarball of one night and writes the night's log.
// Archives that cannot be extracted or whose report does not match the
// template are logged and skipped. An empty night still writes an empty log.
func (c *Crawler) Crawl(ctx context.Context, night domain.Night) (CrawlResult, error) {
	start := domain.Now()
	logger := c.logger.With("night", night.String())
	res := CrawlResult{
		Night:   night,
		LogPath: filepath.Join(c.cfg.PerdiemDir, night.LogFile()),
	}

	tarballs, err := c.archives.Locate(night)
	if err != nil {
		return res, fmt.Errorf("locate %s: %w", night, err)
	}
	res.Archives = len(tarballs)
	c.metrics.ArchivesFound.Add(float64(len(tarballs)))
	logger.Info("crawling night", "archives", len(tarballs))

	obs := make([]domain.Observation, 0, len(tarballs))
	for _, tarball := range tarballs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		o, err := c.processArchive(ctx, tarball, logger)
		if err != nil {
			var skip *skipError
			if !errors.As(err, &skip) {
				skip = &skipError{reason: skipExtract, err: err}
			}
			logger.Warn("skipping archive",
				"archive", filepath.Base(tarball),
				"reason", skip.reason,
				"error", skip.err,
			)
			c.metrics.ReportsSkipped.WithLabelValues(skip.reason).Inc()
			res.Skipped++
			continue
		}

		c.metrics.ReportsParsed.Inc()
		if !o.Magnitude.Resolved {
			res.Unresolved++
		}
		obs = append(obs, o)
	}

	if err := c.writer.Write(res.LogPath, obs); err != nil {
		return res, fmt.Errorf("write %s: %w", res.LogPath, err)
	}
	res.Records = len(obs)
	c.metrics.RecordsWritten.Add(float64(len(obs)))
	c.metrics.NightsCrawled.Inc()

	if c.publisher != nil && len(obs) > 0 {
		if err := c.publisher.Publish(ctx, night, obs); err != nil {
			logger.Warn("publish observations failed", "records", len(obs), "error", err)
		}
	}

	res.Duration = domain.Now().Sub(start)
	logger.Info("night crawled",
		"log", res.LogPath,
		"records", res.Records,
		"unresolved", res.Unresolved,
		"skipped", res.Skipped,
	)
	return res, nil
}

// processArchive turns one tarball into an observation. The report is only
// read inside WithReport so the extraction directory is gone on return.
func (c *Crawler) processArchive(ctx context.Context, tarball string, logger *slog.Logger) (domain.Observation, error) {
	start := domain.Now()
	defer func() {
		c.metrics.ArchiveDuration.Observe(domain.Now().Sub(start).Seconds())
	}()

	var report domain.Report
	err := c.archives.WithReport(tarball, func(pdfPath string) error {
		text, err := c.extractor.FirstPage(pdfPath)
		if err != nil {
			return &skipError{reason: skipExtract, err: err}
		}
		report, err = domain.ParseReport(text)
		if err != nil {
			logger.Debug("report text", "archive", filepath.Base(tarball), "text", text)
			return &skipError{reason: skipMismatch, err: err}
		}
		return nil
	})
	if err != nil {
		return domain.Observation{}, err
	}

	if c.cfg.SkipEngineering && domain.IsEngineering(report.Name) {
		return domain.Observation{}, &skipError{reason: skipEngineering, err: fmt.Errorf("engineering target %s", report.Name)}
	}

	mag := domain.ResolveMagnitude(ctx, report.Name, c.catalog, c.cfg.Translations, logger)
	o := domain.NewObservation(report, mag)
	o.Archive = filepath.Base(tarball)

	logger.Debug("observation",
		"star", o.Star,
		"magnitude", o.Magnitude.Value,
		"resolved", o.Magnitude.Resolved,
		"sn", o.SN,
		"exptime", o.ExposureSeconds,
	)
	return o, nil
}
