// Package report reduces batch results to a summary and renders it for the
// terminal or as a YAML file.
package report

import (
	"time"

	"baler/internal/batch"
)

// Failure is one failed or skipped job in the summary listing.
type Failure struct {
	Index   int    `yaml:"index"`
	Input   string `yaml:"input"`
	Kind    string `yaml:"kind"`
	Message string `yaml:"message"`
	Skipped bool   `yaml:"skipped,omitempty"`
}

// Summary aggregates all results of one batch. TotalDuration is the sum of
// the per-job durations, not the wall-clock time of the batch.
type Summary struct {
	RunID         string        `yaml:"run_id,omitempty"`
	Operation     string        `yaml:"operation,omitempty"`
	Total         int           `yaml:"total"`
	Succeeded     int           `yaml:"succeeded"`
	Failed        int           `yaml:"failed"`
	Skipped       int           `yaml:"skipped"`
	TotalBytes    int64         `yaml:"total_bytes"`
	TotalDuration time.Duration `yaml:"-"`
	Throughput    float64       `yaml:"throughput_bytes_per_sec"`
	Failures      []Failure     `yaml:"failures,omitempty"`
}

// OK reports whether every job succeeded.
func (s Summary) OK() bool {
	return s.Failed == 0 && s.Skipped == 0
}

// Summarize is a pure reduction over results. Failures keep the order of
// results, which the scheduler returns in submission order.
func Summarize(results []batch.Result) Summary {
	s := Summary{Total: len(results)}
	for _, res := range results {
		switch {
		case res.Success:
			s.Succeeded++
		case !res.Attempted:
			s.Skipped++
			s.Failures = append(s.Failures, Failure{
				Index:   res.Index,
				Input:   res.Input,
				Kind:    "skipped",
				Message: res.Message(),
				Skipped: true,
			})
		default:
			s.Failed++
			s.Failures = append(s.Failures, Failure{
				Index:   res.Index,
				Input:   res.Input,
				Kind:    res.Kind().String(),
				Message: res.Message(),
			})
		}
		s.TotalBytes += res.Bytes
		s.TotalDuration += res.Duration
	}
	s.Throughput = throughput(s.TotalBytes, s.TotalDuration)
	return s
}

func throughput(bytes int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(bytes) / d.Seconds()
}
