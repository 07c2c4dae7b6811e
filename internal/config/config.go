package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/pelletier/go-toml/v2"

	"github.com/lcogt/nres-sn/internal/domain"
)

// Duration is a time.Duration that reads and writes as a Go duration string
// ("10s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Site pairs an observatory site code with the NRES unit installed there.
type Site struct {
	Site       string `toml:"site"`
	Instrument string `toml:"instrument"`
}

// Curve configures one reference throughput curve. A nil RON uses the
// run-wide read-out noise.
type Curve struct {
	Label   string   `toml:"label"`
	Color   string   `toml:"color"`
	RefFlux float64  `toml:"refflux"`
	RON     *float64 `toml:"ron"`
}

// Simbad configures the catalog client.
type Simbad struct {
	Enabled   bool     `toml:"enabled"`
	URL       string   `toml:"url"`
	Timeout   Duration `toml:"timeout"`
	CacheSize int      `toml:"cache_size"`
}

// Kafka configures the optional observation sink. Publishing is enabled
// when Brokers is non-empty.
type Kafka struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// Config holds all settings for a crawl and plot run.
type Config struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	Mount      string `toml:"mount"`
	PerdiemDir string `toml:"perdiem_dir"`
	TempDir    string `toml:"temp_dir"`

	Instruments []string `toml:"instruments"`
	Dates       []string `toml:"dates"`

	Append          bool `toml:"append"`
	SkipEngineering bool `toml:"skip_engineering"`
	DropSentinels   bool `toml:"drop_sentinels"`

	PlotName     string            `toml:"plot_name"`
	Palette      bool              `toml:"palette"`
	RON          float64           `toml:"ron"`
	SiteColors   map[string]string `toml:"site_colors"`
	DefaultColor string            `toml:"default_color"`

	MetricsFile string `toml:"metrics_file"`

	Sites        []Site            `toml:"sites"`
	Translations map[string]string `toml:"translations"`
	Curves       []Curve           `toml:"curves"`
	Simbad       Simbad            `toml:"simbad"`
	Kafka        Kafka             `toml:"kafka"`
}

func float64Ptr(v float64) *float64 { return &v }

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:     "info",
		LogFormat:    "auto",
		Mount:        "/nfs/archive/engineering",
		PerdiemDir:   "../perdiem",
		Instruments:  []string{"nres01", "nres02"},
		PlotName:     "NRESsn.png",
		SiteColors:   map[string]string{"elp": "red"},
		DefaultColor: "blue",
		Sites: []Site{
			{Site: "lsc", Instrument: "nres01"},
			{Site: "elp", Instrument: "nres02"},
			{Site: "tlv", Instrument: "nres03"},
			{Site: "cpt", Instrument: "nres04"},
		},
		Translations: maps.Clone(domain.DefaultTranslations),
		Curves: []Curve{
			{Label: "lsc nres01 pre-fl10", Color: "gray", RefFlux: 500000},
			{Label: "lsc nres01", Color: "blue", RefFlux: 180000},
			{Label: "elp nres02", Color: "red", RefFlux: 900000},
			{Label: "NASA req", Color: "lightgreen", RefFlux: 4180030, RON: float64Ptr(0.001)},
			{Label: "NSF promise", Color: "brown", RefFlux: 10499761, RON: float64Ptr(0.001)},
		},
		Simbad: Simbad{
			Enabled:   true,
			URL:       "https://simbad.cds.unistra.fr/simbad/sim-tap/sync",
			Timeout:   Duration{10 * time.Second},
			CacheSize: 1000,
		},
		Kafka: Kafka{Topic: "nres-sn-observations"},
	}
}

// LoadFile decodes a TOML file over cfg. Keys absent from the file keep
// their current values, tables such as translations merge into the
// defaults and arrays such as curves replace them.
func LoadFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg from NRES_* environment variables.
func ApplyEnv(cfg *Config) error {
	cfg.LogLevel = sharedcfg.EnvOrDefault("NRES_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = sharedcfg.EnvOrDefault("NRES_LOG_FORMAT", cfg.LogFormat)
	cfg.Mount = sharedcfg.EnvOrDefault("NRES_MOUNT", cfg.Mount)
	cfg.PerdiemDir = sharedcfg.EnvOrDefault("NRES_PERDIEM_DIR", cfg.PerdiemDir)
	cfg.TempDir = sharedcfg.EnvOrDefault("NRES_TEMP_DIR", cfg.TempDir)
	cfg.MetricsFile = sharedcfg.EnvOrDefault("NRES_METRICS_FILE", cfg.MetricsFile)
	cfg.Simbad.URL = sharedcfg.EnvOrDefault("NRES_SIMBAD_URL", cfg.Simbad.URL)
	cfg.Kafka.Topic = sharedcfg.EnvOrDefault("NRES_KAFKA_TOPIC", cfg.Kafka.Topic)

	if v := os.Getenv("NRES_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = sharedcfg.ParseBrokers(v)
	}
	if v := os.Getenv("NRES_SIMBAD_ENABLED"); v != "" {
		cfg.Simbad.Enabled = v == "true"
	}
	if v := os.Getenv("NRES_SIMBAD_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return errors.New("invalid NRES_SIMBAD_TIMEOUT")
		}
		cfg.Simbad.Timeout = Duration{d}
	}
	if v := os.Getenv("NRES_SIMBAD_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return errors.New("invalid NRES_SIMBAD_CACHE_SIZE")
		}
		cfg.Simbad.CacheSize = n
	}
	if v := os.Getenv("NRES_RON"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return errors.New("invalid NRES_RON")
		}
		cfg.RON = f
	}
	return nil
}

// Validate checks that cfg is usable. Dates are checked by the caller,
// which decides whether a run without dates is an error.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Mount) == "" {
		return errors.New("mount is required")
	}
	if strings.TrimSpace(c.PerdiemDir) == "" {
		return errors.New("perdiem_dir is required")
	}
	if c.RON < 0 {
		return errors.New("ron must not be negative")
	}
	if c.Simbad.Enabled {
		if c.Simbad.URL == "" {
			return errors.New("simbad.url is required when simbad is enabled")
		}
		if c.Simbad.Timeout.Duration <= 0 {
			return errors.New("simbad.timeout must be positive")
		}
		if c.Simbad.CacheSize < 1 {
			return errors.New("simbad.cache_size must be positive")
		}
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when kafka.brokers is set")
	}
	for i, cv := range c.Curves {
		if cv.Label == "" {
			return fmt.Errorf("curves[%d]: label is required", i)
		}
		if cv.RefFlux <= 0 {
			return fmt.Errorf("curve %q: refflux must be positive", cv.Label)
		}
		if cv.RON != nil && *cv.RON < 0 {
			return fmt.Errorf("curve %q: ron must not be negative", cv.Label)
		}
	}
	for _, inst := range c.Instruments {
		if _, ok := c.siteOf(inst); !ok {
			return fmt.Errorf("unknown instrument %q", inst)
		}
	}
	for _, d := range c.Dates {
		if _, err := time.Parse("20060102", d); err != nil {
			return fmt.Errorf("invalid date %q: want YYYYMMDD", d)
		}
	}
	return nil
}

func (c *Config) siteOf(instrument string) (string, bool) {
	for _, s := range c.Sites {
		if s.Instrument == instrument {
			return s.Site, true
		}
	}
	return "", false
}

// Nights expands the selected instruments and dates into nights, in site
// registry order and then date order.
func (c *Config) Nights() []domain.Night {
	selected := make(map[string]bool, len(c.Instruments))
	for _, inst := range c.Instruments {
		selected[inst] = true
	}

	var nights []domain.Night
	for _, s := range c.Sites {
		if !selected[s.Instrument] {
			continue
		}
		for _, date := range c.Dates {
			nights = append(nights, domain.Night{Site: s.Site, Instrument: s.Instrument, Date: date})
		}
	}
	return nights
}

// ResolvedCurves returns the reference curves with the run-wide read-out
// noise filled in where a curve does not set its own.
func (c *Config) ResolvedCurves() []domain.Curve {
	curves := make([]domain.Curve, 0, len(c.Curves))
	for _, cv := range c.Curves {
		r := c.RON
		if cv.RON != nil {
			r = *cv.RON
		}
		curves = append(curves, domain.Curve{Label: cv.Label, Color: cv.Color, RefFlux: cv.RefFlux, RON: r})
	}
	return curves
}
