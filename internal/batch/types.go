package batch

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"baler/internal/engine"
	"baler/internal/failure"
	"baler/pkg/archfmt"
)

const (
	MinParallel = 1
	MaxParallel = 32
)

// Options are shared by every job of a batch. Each job holds its own copy.
type Options struct {
	Password  string
	Overwrite bool
	Format    archfmt.Format
	Include   []string
	Exclude   []string
	Hoist     bool
	Checksum  bool
}

// Job is one unit of batch work. Inputs holds more than one path only when
// several inputs are packed into a single archive.
type Job struct {
	Index   int
	Inputs  []string
	Output  string
	Options Options
}

// Input is the path the job is reported under.
func (j Job) Input() string {
	if len(j.Inputs) == 0 {
		return ""
	}
	if len(j.Inputs) == 1 {
		return j.Inputs[0]
	}
	return fmt.Sprintf("%s (+%d more)", j.Inputs[0], len(j.Inputs)-1)
}

// Result is the outcome of one Job. Attempted is false for jobs that were
// never started because the batch was stopped.
type Result struct {
	Index     int
	Input     string
	Output    string
	Attempted bool
	Success   bool
	Err       error
	Bytes     int64
	Files     int
	Duration  time.Duration
	Checksum  string
	Entries   []engine.Entry
	Warnings  []string
}

// Kind reports the error kind of a failed result.
func (r Result) Kind() failure.Kind {
	return failure.KindOf(r.Err)
}

// Message is the error text of a failed or skipped result.
func (r Result) Message() string {
	if !r.Attempted {
		return "not attempted (batch stopped)"
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return ""
}

// ProgressUpdate carries counter deltas to a progress display. BytesDelta
// is the engine figure of a finished job; StreamedDelta counts bytes read or
// written while a job runs, with Entry naming the archive member.
type ProgressUpdate struct {
	TotalDelta    int
	DoneDelta     int
	FailedDelta   int
	SkippedDelta  int
	BytesDelta    int64
	StreamedDelta int64
	Current       string
	Entry         string
}

// Config controls a scheduler run.
type Config struct {
	MaxParallel     int
	ContinueOnError bool
	RunID           string
	Logger          zerolog.Logger
	Updates         chan<- ProgressUpdate
}

// ClampParallel bounds n to [MinParallel, MaxParallel].
func ClampParallel(n int) int {
	if n < MinParallel {
		return MinParallel
	}
	if n > MaxParallel {
		return MaxParallel
	}
	return n
}
