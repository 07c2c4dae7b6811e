package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/lcogt/nres-sn/internal/config"
)

// flagValues holds raw flag values. Only flags the user actually set are
// applied over the file and environment configuration.
type flagValues struct {
	configPath string
	crawl      bool
	plot       bool

	logLevel    string
	logFormat   string
	perdiems    string
	mount       string
	instruments []string
	dates       []string
	plotName    string
	ron         float64

	appendLogs      bool
	skipEngineering bool
	palette         bool
	dropSentinels   bool
	noSimbad        bool
	metricsFile     string

	kafkaBrokers  []string
	kafkaTopic    string
	simbadURL     string
	simbadTimeout time.Duration
}

func newRootCommand() *cobra.Command {
	var f flagValues
	defaults := config.Default()

	rootCmd := &cobra.Command{
		Use:           "nressn [flags] [YYYYMMDD...]",
		Short:         "NRES signal-to-noise crawler and plotter",
		Example:       "  nressn --crawl --plot --instruments nres01 --date 20171128 20171129",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !f.crawl && !f.plot {
				return cmd.Help()
			}
			// Positional arguments are further nights, so "--date a b" works.
			f.dates = append(f.dates, args...)
			changed := func(name string) bool {
				return cmd.Flags().Changed(name) || (name == "date" && len(args) > 0)
			}
			cfg, err := loadConfig(&f, changed)
			if err != nil {
				return err
			}
			if len(cfg.Dates) == 0 {
				return errors.New("no dates given: pass --date YYYYMMDD")
			}
			return run(cmd.Context(), cfg, f.crawl, f.plot, cmd.OutOrStdout())
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&f.configPath, "config", "c", "", "Configuration file path (TOML)")
	flags.BoolVar(&f.crawl, "crawl", false, "Crawl archives and write per-night logs")
	flags.BoolVar(&f.plot, "plot", false, "Plot S/N against magnitude from per-night logs")

	flags.StringVar(&f.logLevel, "log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")
	flags.StringVar(&f.logFormat, "log-format", defaults.LogFormat, "Log format (json, text, auto)")
	flags.StringVar(&f.perdiems, "perdiems", defaults.PerdiemDir, "Directory holding per-night logs")
	flags.StringVar(&f.mount, "mount", defaults.Mount, "Engineering archive mount point")
	flags.StringSliceVar(&f.instruments, "instruments", defaults.Instruments, "Instrument codes to process")
	flags.StringSliceVar(&f.dates, "date", nil, "Nights to process as YYYYMMDD; repeat the flag, separate with commas or list them after it")
	flags.StringVar(&f.plotName, "plotname", defaults.PlotName, "Output figure path; empty skips the plot")
	flags.Float64Var(&f.ron, "ron", defaults.RON, "Read-out noise for the site model curves")

	flags.BoolVar(&f.appendLogs, "append", false, "Append to existing per-night logs instead of replacing them")
	flags.BoolVar(&f.skipEngineering, "skip-engineering", false, "Skip targets with an _ENGR suffix")
	flags.BoolVar(&f.palette, "palette", false, "Re-encode the PNG figure with a reduced palette")
	flags.BoolVar(&f.dropSentinels, "drop-sentinels", false, "Treat legacy 0 and 99 magnitudes as unresolved when plotting")
	flags.BoolVar(&f.noSimbad, "no-simbad", false, "Skip catalog lookups; every magnitude is unresolved")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile on exit")

	flags.StringSliceVar(&f.kafkaBrokers, "kafka-brokers", nil, "Kafka brokers to publish crawled observations to")
	flags.StringVar(&f.kafkaTopic, "kafka-topic", defaults.Kafka.Topic, "Kafka topic for crawled observations")
	flags.StringVar(&f.simbadURL, "simbad-url", defaults.Simbad.URL, "SIMBAD TAP sync endpoint")
	flags.DurationVar(&f.simbadTimeout, "simbad-timeout", defaults.Simbad.Timeout.Duration, "SIMBAD request timeout")

	return rootCmd
}

// loadConfig layers defaults, the optional config file, NRES_* environment
// variables and explicitly set flags, then validates the result.
func loadConfig(f *flagValues, changed func(string) bool) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		if err := config.LoadFile(&cfg, f.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return config.Config{}, err
	}
	f.apply(&cfg, changed)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (f *flagValues) apply(cfg *config.Config, changed func(string) bool) {
	set := func(name string, fn func()) {
		if changed(name) {
			fn()
		}
	}
	set("log-level", func() { cfg.LogLevel = f.logLevel })
	set("log-format", func() { cfg.LogFormat = f.logFormat })
	set("perdiems", func() { cfg.PerdiemDir = f.perdiems })
	set("mount", func() { cfg.Mount = f.mount })
	set("instruments", func() { cfg.Instruments = f.instruments })
	set("date", func() { cfg.Dates = f.dates })
	set("plotname", func() { cfg.PlotName = f.plotName })
	set("ron", func() { cfg.RON = f.ron })
	set("append", func() { cfg.Append = f.appendLogs })
	set("skip-engineering", func() { cfg.SkipEngineering = f.skipEngineering })
	set("palette", func() { cfg.Palette = f.palette })
	set("drop-sentinels", func() { cfg.DropSentinels = f.dropSentinels })
	set("no-simbad", func() { cfg.Simbad.Enabled = !f.noSimbad })
	set("metrics-file", func() { cfg.MetricsFile = f.metricsFile })
	set("kafka-brokers", func() { cfg.Kafka.Brokers = f.kafkaBrokers })
	set("kafka-topic", func() { cfg.Kafka.Topic = f.kafkaTopic })
	set("simbad-url", func() { cfg.Simbad.URL = f.simbadURL })
	set("simbad-timeout", func() { cfg.Simbad.Timeout = config.Duration{Duration: f.simbadTimeout} })
}
