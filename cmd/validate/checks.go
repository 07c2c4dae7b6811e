package main

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/lcogt/nres-sn/internal/adapter/perdiem"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// logLine is a parsed log line with its 1-based line number.
type logLine struct {
	lineNum int
	record  perdiem.Record
}

type malformedLine struct {
	lineNum int
	text    string
	err     error
}

// logFile holds every line of one per-night log. Unlike perdiem.Reader it
// keeps going past malformed lines so all problems are reported at once.
type logFile struct {
	path      string
	records   []logLine
	malformed []malformedLine
}

func (f logFile) name() string { return filepath.Base(f.path) }

func (f logFile) unresolved() int {
	n := 0
	for _, l := range f.records {
		if math.IsNaN(l.record.Magnitude) {
			n++
		}
	}
	return n
}

func loadLog(path string) (logFile, error) {
	fh, err := os.Open(path)
	if err != nil {
		return logFile{}, err
	}
	defer fh.Close()

	lf := logFile{path: path}
	sc := bufio.NewScanner(fh)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		rec, err := perdiem.ParseLine(line)
		if err != nil {
			lf.malformed = append(lf.malformed, malformedLine{lineNum: lineNum, text: line, err: err})
			continue
		}
		lf.records = append(lf.records, logLine{lineNum: lineNum, record: rec})
	}
	if err := sc.Err(); err != nil {
		return logFile{}, err
	}
	return lf, nil
}

// validateFormat reports every line that the plot phase would reject.
func validateFormat(files []logFile) *phase {
	p := &phase{name: "Line format"}
	for _, f := range files {
		for _, m := range f.malformed {
			p.errorf("%s:%d: %v: %q", f.name(), m.lineNum, m.err, m.text)
		}
	}
	return p
}

// validateExposures rejects records that cannot be normalized to 60 s.
func validateExposures(files []logFile) *phase {
	p := &phase{name: "Exposure times"}
	for _, f := range files {
		for _, l := range f.records {
			if !(l.record.ExposureSeconds > 0) || math.IsInf(l.record.ExposureSeconds, 0) {
				p.errorf("%s:%d: %s: exposure %v s", f.name(), l.lineNum, l.record.Star, l.record.ExposureSeconds)
			}
			if !(l.record.SN >= 0) || math.IsInf(l.record.SN, 0) {
				p.errorf("%s:%d: %s: S/N %v", f.name(), l.lineNum, l.record.Star, l.record.SN)
			}
		}
	}
	return p
}

// validateDuplicates finds records repeated within one log, the usual
// trace of crawling a night twice in append mode.
func validateDuplicates(files []logFile) *phase {
	p := &phase{name: "Duplicate records"}
	for _, f := range files {
		seen := make(map[string]int, len(f.records))
		for _, l := range f.records {
			r := l.record
			key := fmt.Sprintf("%s %v %v %v", r.Star, r.Magnitude, r.SN, r.ExposureSeconds)
			if first, ok := seen[key]; ok {
				p.errorf("%s:%d: duplicate of line %d (%s)", f.name(), l.lineNum, first, l.record.Star)
				continue
			}
			seen[key] = l.lineNum
		}
	}
	return p
}

// validateMagnitudes flags the legacy 0 and 99 fallback magnitudes. NaN is
// the explicit unresolved marker and passes.
func validateMagnitudes(files []logFile, allowSentinels bool) *phase {
	p := &phase{name: "Magnitudes"}
	for _, f := range files {
		for _, l := range f.records {
			m := l.record.Magnitude
			switch {
			case math.IsNaN(m):
			case math.IsInf(m, 0):
				p.errorf("%s:%d: %s: infinite magnitude", f.name(), l.lineNum, l.record.Star)
			case (m == 0 || m == 99) && !allowSentinels:
				p.errorf("%s:%d: %s: legacy sentinel magnitude %v", f.name(), l.lineNum, l.record.Star, m)
			}
		}
	}
	return p
}
