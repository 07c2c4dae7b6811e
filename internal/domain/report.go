package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrReportMismatch is returned when report text does not follow the
// pipeline summary template.
var ErrReportMismatch = errors.New("report text does not match template")

// reportRe captures (name, exposure seconds, S/N) from the first line of a
// pipeline summary, e.g. "HD12345, expt=60 s, S/N=45.3," -> HD12345, 60, 45.3.
var reportRe = regexp.MustCompile(`^([\w\s+-]+),\s.*?expt\s?=\s?(\d+) s,.*N=\s*(\d+\.\d+),`)

// engineeringSuffix marks targets observed as engineering tests.
const engineeringSuffix = "_ENGR"

// Report is the information parsed from a pipeline summary report.
type Report struct {
	Name            string
	ExposureSeconds int
	SN              float64
}

// ParseReport extracts the target name, exposure time and S/N from the text
// of a report's first page. It returns ErrReportMismatch if the text does
// not match the template.
func ParseReport(text string) (Report, error) {
	m := reportRe.FindStringSubmatch(text)
	if m == nil {
		return Report{}, ErrReportMismatch
	}

	expt, err := strconv.Atoi(m[2])
	if err != nil {
		return Report{}, fmt.Errorf("parse exposure time %q: %w", m[2], err)
	}
	sn, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return Report{}, fmt.Errorf("parse S/N %q: %w", m[3], err)
	}

	return Report{Name: m[1], ExposureSeconds: expt, SN: sn}, nil
}

// IsEngineering reports whether a target name carries the engineering suffix.
func IsEngineering(name string) bool {
	return strings.HasSuffix(strings.ToUpper(strings.TrimSpace(name)), engineeringSuffix)
}
