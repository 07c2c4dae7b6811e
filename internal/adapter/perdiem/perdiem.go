// Package perdiem reads and writes per-night S/N logs.
//
// A log holds one record per line, four whitespace-separated fields:
//
//	star magnitude sn exposure_seconds
//
// e.g. "HD12345 8.2 45.3 60". Unresolved magnitudes are written as NaN.
// There is no header and no uniqueness constraint.
package perdiem

import (
	"bufio"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"github.com/lcogt/nres-sn/internal/domain"
)

// minLogSize is the smallest file size considered to hold data.
const minLogSize = 10

// legacySentinels are the fallback magnitudes older crawls wrote for failed lookups.
var legacySentinels = []float64{0, 99}

// Path returns the per-night log path for a night under dir.
func Path(dir string, night domain.Night) string {
	return filepath.Join(dir, night.LogFile())
}

// FormatLine renders an observation as a log line without trailing newline.
func FormatLine(o domain.Observation) string {
	mag := "NaN"
	if o.Magnitude.IsFinite() {
		mag = formatFloat(o.Magnitude.Value)
	}
	return o.Star + " " + mag + " " + formatFloat(o.SN) + " " + formatFloat(o.ExposureSeconds)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Writer writes per-night logs.
type Writer struct {
	appendMode bool
	logger     *slog.Logger
}

// NewWriter creates a Writer. With appendMode set records are appended to an
// existing log; otherwise the log is replaced.
func NewWriter(appendMode bool, logger *slog.Logger) *Writer {
	return &Writer{appendMode: appendMode, logger: logger}
}

// Write stores observations at path in order. An advisory lock on
// path+".lock" serializes concurrent crawls of the same night. In replace
// mode the file is written to a temporary sibling and renamed into place.
func (w *Writer) Write(path string, obs []domain.Observation) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			w.logger.Warn("unlock per-night log failed", "path", path, "error", err)
		}
	}()

	if w.appendMode {
		return appendLines(path, obs)
	}
	return replaceLines(path, obs)
}

func appendLines(path string, obs []domain.Observation) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if err := writeLines(f, obs); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func replaceLines(path string, obs []domain.Observation) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp log: %w", err)
	}
	tmpName := tmp.Name()

	if err := writeLines(tmp, obs); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename log into place: %w", err)
	}
	return nil
}

func writeLines(f *os.File, obs []domain.Observation) error {
	bw := bufio.NewWriter(f)
	for _, o := range obs {
		if _, err := bw.WriteString(FormatLine(o) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Record is one parsed log line before normalization.
type Record struct {
	Star            string
	Magnitude       float64
	SN              float64
	ExposureSeconds float64
}

// ParseLine parses a single log line.
func ParseLine(line string) (Record, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return Record{}, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}

	vals := make([]float64, 3)
	for i, name := range []string{"magnitude", "sn", "exposure"} {
		v, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return Record{}, fmt.Errorf("parse %s %q: %w", name, fields[i+1], err)
		}
		vals[i] = v
	}

	return Record{Star: fields[0], Magnitude: vals[0], SN: vals[1], ExposureSeconds: vals[2]}, nil
}

// ReadOptions tunes how a log is read back.
type ReadOptions struct {
	// DropSentinels treats the legacy 0 and 99 fallback magnitudes as unresolved.
	DropSentinels bool
}

// Reader reads per-night logs into normalized series.
type Reader struct {
	opts ReadOptions
}

// NewReader creates a Reader.
func NewReader(opts ReadOptions) *Reader {
	return &Reader{opts: opts}
}

// Read parses the log at path, drops records whose magnitude is not finite
// and normalizes S/N to a 60 second exposure. A missing or near-empty file
// returns domain.ErrNoData. A malformed line is an error naming the line.
func (r *Reader) Read(path string) (domain.Series, error) {
	info, err := os.Stat(path)
	if err != nil || info.Size() <= minLogSize {
		return domain.Series{}, fmt.Errorf("%s: %w", path, domain.ErrNoData)
	}

	f, err := os.Open(path)
	if err != nil {
		return domain.Series{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var series domain.Series
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		rec, err := ParseLine(line)
		if err != nil {
			return domain.Series{}, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if !r.usable(rec.Magnitude) {
			continue
		}
		series.Append(rec.Star, rec.Magnitude, domain.NormalizeSN(rec.SN, rec.ExposureSeconds))
	}
	if err := sc.Err(); err != nil {
		return domain.Series{}, fmt.Errorf("read %s: %w", path, err)
	}
	return series, nil
}

func (r *Reader) usable(mag float64) bool {
	if math.IsNaN(mag) || math.IsInf(mag, 0) {
		return false
	}
	if r.opts.DropSentinels {
		for _, s := range legacySentinels {
			if mag == s {
				return false
			}
		}
	}
	return true
}
