// Package progress extracts completion percentages from external tool output.
package progress

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

type Phase string

const (
	PhaseDownloading Phase = "Downloading"
	PhaseConverting  Phase = "Converting"
)

type Sample struct {
	Percent float64
	Phase   Phase
}

func (s Sample) String() string {
	return fmt.Sprintf("%s: %.1f%%", s.Phase, s.Percent)
}

var percentPattern = regexp.MustCompile(`(\d+\.\d+)%`)

// Parse returns a Sample for the first "digits.digits%" token in line, clamped to [0, 100].
func Parse(line string, phase Phase) (Sample, bool) {
	m := percentPattern.FindStringSubmatch(line)
	if m == nil {
		return Sample{}, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	// Out of range still gives the nearest value, which clamps like any other
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return Sample{}, false
	}
	return Sample{Percent: clamp(v), Phase: phase}, true
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	} else if v > 100 {
		return 100
	}
	return v
}

var elapsedPattern = regexp.MustCompile(`time=(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// DurationEstimator derives progress from the elapsed media time the transcoder reports ("time=00:01:02.50"),
// relative to the known total duration of the input.
type DurationEstimator struct {
	Total time.Duration
}

func (e DurationEstimator) Estimate(line string, phase Phase) (Sample, bool) {
	if e.Total <= 0 {
		return Sample{}, false
	}
	m := elapsedPattern.FindStringSubmatch(line)
	if m == nil {
		return Sample{}, false
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return Sample{}, false
	}
	elapsed := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute +
		time.Duration(seconds*float64(time.Second))
	return Sample{Percent: clamp(100 * elapsed.Seconds() / e.Total.Seconds()), Phase: phase}, true
}

// Parser tries Parse first, then falls back to the estimator.
type Parser struct {
	Phase     Phase
	Estimator DurationEstimator
}

func (p Parser) Parse(line string) (Sample, bool) {
	if s, ok := Parse(line, p.Phase); ok {
		return s, true
	}
	return p.Estimator.Estimate(line, p.Phase)
}
