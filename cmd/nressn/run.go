package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lcogt/nres-sn/internal/adapter/archive"
	kafkaadapter "github.com/lcogt/nres-sn/internal/adapter/kafka"
	"github.com/lcogt/nres-sn/internal/adapter/pdftext"
	"github.com/lcogt/nres-sn/internal/adapter/perdiem"
	"github.com/lcogt/nres-sn/internal/adapter/simbad"
	"github.com/lcogt/nres-sn/internal/config"
	"github.com/lcogt/nres-sn/internal/domain"
	"github.com/lcogt/nres-sn/internal/observability"
	"github.com/lcogt/nres-sn/internal/pipeline"
	"github.com/lcogt/nres-sn/internal/plot"
)

// run executes the crawl phase, the plot phase or both, crawl first.
func run(ctx context.Context, cfg config.Config, crawl, plotting bool, out io.Writer) error {
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	metrics := observability.NewMetrics()
	defer func() {
		if werr := metrics.WriteTextfile(cfg.MetricsFile); werr != nil {
			logger.Error("write metrics textfile", "path", cfg.MetricsFile, "error", werr)
		}
	}()

	nights := cfg.Nights()
	logger.Debug("nights selected", "count", len(nights), "instruments", cfg.Instruments, "dates", cfg.Dates)

	if crawl {
		results, err := runCrawl(ctx, cfg, nights, logger, metrics)
		if len(results) > 0 {
			fmt.Fprintln(out, crawlSummary(results))
		}
		if err != nil {
			return err
		}
	}

	if plotting {
		res, err := runPlot(ctx, cfg, nights, logger, metrics)
		if err != nil {
			return err
		}
		logger.Info("plot complete", "logs_read", res.LogsRead, "logs_skipped", res.LogsSkipped, "points", res.Points)
	}
	return nil
}

func runCrawl(ctx context.Context, cfg config.Config, nights []domain.Night, logger *slog.Logger, metrics *observability.Metrics) ([]pipeline.CrawlResult, error) {
	// Catalog lookups are feature-flagged via simbad.enabled / --no-simbad.
	var catalog domain.Catalog
	if cfg.Simbad.Enabled {
		client := simbad.NewClient(cfg.Simbad.URL, cfg.Simbad.Timeout.Duration, metrics, logger)
		catalog = simbad.NewCachedCatalog(client, cfg.Simbad.CacheSize, metrics)
		logger.Info("simbad lookups enabled", "url", cfg.Simbad.URL, "timeout", cfg.Simbad.Timeout.Duration)
	} else {
		logger.Info("simbad lookups disabled")
	}

	var publisher pipeline.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		writer := kafkaadapter.NewWriter(&cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		publisher = writer
		logger.Info("kafka publishing enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	crawler := pipeline.NewCrawler(
		archive.NewStore(cfg.Mount, cfg.TempDir),
		pdftext.NewExtractor(),
		catalog,
		perdiem.NewWriter(cfg.Append, logger),
		publisher,
		pipeline.CrawlerConfig{
			PerdiemDir:      cfg.PerdiemDir,
			Translations:    cfg.Translations,
			SkipEngineering: cfg.SkipEngineering,
		},
		logger,
		metrics,
	)
	return crawler.CrawlAll(ctx, nights)
}

func runPlot(ctx context.Context, cfg config.Config, nights []domain.Night, logger *slog.Logger, metrics *observability.Metrics) (pipeline.PlotResult, error) {
	opts := plot.DefaultOptions(cfg.PlotName)
	opts.Palette = cfg.Palette

	reporter := pipeline.NewReporter(
		perdiem.NewReader(perdiem.ReadOptions{DropSentinels: cfg.DropSentinels}),
		plot.NewRenderer(opts, logger),
		pipeline.ReporterConfig{
			PerdiemDir:   cfg.PerdiemDir,
			SiteColors:   cfg.SiteColors,
			DefaultColor: cfg.DefaultColor,
		},
		logger,
		metrics,
	)
	return reporter.Plot(ctx, nights, cfg.ResolvedCurves())
}
