package domain

import (
	"errors"
	"math"
	"strings"
)

// ErrNoData reports a per-night log that is missing or too small to hold a record.
var ErrNoData = errors.New("no per-night data")

// Night identifies one observing night of one instrument at one site.
type Night struct {
	Site       string
	Instrument string
	Date       string // UTC start of night, YYYYMMDD
}

// LogFile returns the per-night log file name, e.g. "nres01-20171128.txt".
func (n Night) LogFile() string {
	return n.Instrument + "-" + n.Date + ".txt"
}

// Label is the human-readable legend label, e.g. "lsc nres01 20171128".
func (n Night) Label() string {
	return n.Site + " " + n.Instrument + " " + n.Date
}

func (n Night) String() string {
	return n.Site + "/" + n.Instrument + "/" + n.Date
}

// Magnitude is a catalog V magnitude that may have failed to resolve.
type Magnitude struct {
	Value    float64
	Resolved bool
}

// ResolvedMagnitude wraps a magnitude returned by the catalog.
func ResolvedMagnitude(v float64) Magnitude {
	return Magnitude{Value: v, Resolved: true}
}

// UnresolvedMagnitude marks a target whose catalog lookup failed.
func UnresolvedMagnitude() Magnitude {
	return Magnitude{Value: math.NaN()}
}

// IsFinite reports whether the magnitude is resolved and usable for plotting.
func (m Magnitude) IsFinite() bool {
	return m.Resolved && !math.IsNaN(m.Value) && !math.IsInf(m.Value, 0)
}

// Observation is one extracted report: target, magnitude, S/N and exposure.
type Observation struct {
	Star            string
	Magnitude       Magnitude
	SN              float64
	ExposureSeconds float64

	// Archive is the tarball base name the report came from. Not persisted.
	Archive string
}

// NewObservation builds an observation from a parsed report and its
// resolved magnitude. Each run of whitespace in the target name becomes a
// single underscore so the name survives the whitespace-delimited log format.
func NewObservation(r Report, mag Magnitude) Observation {
	return Observation{
		Star:            strings.Join(strings.Fields(r.Name), "_"),
		Magnitude:       mag,
		SN:              r.SN,
		ExposureSeconds: float64(r.ExposureSeconds),
	}
}

// SN60 returns the S/N scaled to a 60 second exposure.
func (o Observation) SN60() float64 {
	return NormalizeSN(o.SN, o.ExposureSeconds)
}

// Series holds parallel per-record columns read back from a per-night log.
type Series struct {
	Names      []string
	Magnitudes []float64
	SN60       []float64
}

// Append adds one record to all columns.
func (s *Series) Append(name string, mag, sn60 float64) {
	s.Names = append(s.Names, name)
	s.Magnitudes = append(s.Magnitudes, mag)
	s.SN60 = append(s.SN60, sn60)
}

// Len returns the number of records.
func (s Series) Len() int { return len(s.Names) }

// Dataset is a labeled series ready for plotting.
type Dataset struct {
	Label  string
	Color  string
	Series Series
}

// NormalizeSN scales a measured S/N to its 60-second-exposure equivalent,
// sn * sqrt(60 / texp). Non-positive exposure times yield NaN.
func NormalizeSN(sn, texp float64) float64 {
	if texp <= 0 {
		return math.NaN()
	}
	return sn * math.Sqrt(60/texp)
}
