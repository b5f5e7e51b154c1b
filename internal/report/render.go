package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"baler/internal/batch"
	"baler/internal/tui"
)

// Render formats the summary table followed by the failure listing.
func Render(s Summary) string {
	title := "baler"
	if s.Operation != "" {
		title += " " + s.Operation
	}

	rows := []tui.SummaryRow{
		{Label: "Jobs", Value: fmt.Sprintf("%d", s.Total)},
		{Label: "Succeeded", Value: fmt.Sprintf("%d", s.Succeeded), Tone: tui.ToneGood},
		{Label: "Failed", Value: fmt.Sprintf("%d", s.Failed), Tone: countTone(s.Failed)},
	}
	if s.Skipped > 0 {
		rows = append(rows, tui.SummaryRow{Label: "Not attempted", Value: fmt.Sprintf("%d", s.Skipped), Tone: tui.ToneBad})
	}
	rows = append(rows,
		tui.SummaryRow{Label: "Bytes", Value: tui.FormatBytes(s.TotalBytes)},
		tui.SummaryRow{Label: "Total time", Value: s.TotalDuration.Round(time.Millisecond).String()},
		tui.SummaryRow{Label: "Throughput", Value: FormatRate(s.Throughput)},
	)
	if s.RunID != "" {
		rows = append(rows, tui.SummaryRow{Label: "Run", Value: s.RunID, Tone: tui.ToneDim})
	}

	out := tui.RenderSummary(title, rows)
	if len(s.Failures) == 0 {
		return out
	}

	items := make([]string, 0, len(s.Failures))
	for _, f := range s.Failures {
		msg := f.Message
		if !strings.HasPrefix(msg, f.Input) {
			msg = f.Input + ": " + msg
		}
		items = append(items, msg)
	}
	return out + "\n" + tui.RenderList("Failures", items)
}

// FormatRate renders a bytes-per-second figure.
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "-"
	}
	return tui.FormatBytes(int64(bytesPerSec)) + "/s"
}

func countTone(n int) tui.Tone {
	if n > 0 {
		return tui.ToneBad
	}
	return tui.ToneDim
}

type jobRecord struct {
	Index      int      `yaml:"index"`
	Input      string   `yaml:"input"`
	Output     string   `yaml:"output,omitempty"`
	Status     string   `yaml:"status"`
	Error      string   `yaml:"error,omitempty"`
	Bytes      int64    `yaml:"bytes"`
	Files      int      `yaml:"files"`
	DurationMS int64    `yaml:"duration_ms"`
	Checksum   string   `yaml:"xxhash64,omitempty"`
	Warnings   []string `yaml:"warnings,omitempty"`
}

type document struct {
	Summary         Summary     `yaml:"summary"`
	TotalDurationMS int64       `yaml:"total_duration_ms"`
	GeneratedAt     string      `yaml:"generated_at"`
	Jobs            []jobRecord `yaml:"jobs"`
}

// WriteYAML stores the summary and every per-job result at path.
func WriteYAML(path string, s Summary, results []batch.Result) error {
	doc := document{
		Summary:         s,
		TotalDurationMS: s.TotalDuration.Milliseconds(),
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
		Jobs:            make([]jobRecord, 0, len(results)),
	}
	for _, res := range results {
		doc.Jobs = append(doc.Jobs, jobRecord{
			Index:      res.Index,
			Input:      res.Input,
			Output:     res.Output,
			Status:     status(res),
			Error:      res.Message(),
			Bytes:      res.Bytes,
			Files:      res.Files,
			DurationMS: res.Duration.Milliseconds(),
			Checksum:   res.Checksum,
			Warnings:   res.Warnings,
		})
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func status(res batch.Result) string {
	switch {
	case res.Success:
		return "ok"
	case !res.Attempted:
		return "skipped"
	default:
		return strings.ReplaceAll(res.Kind().String(), " ", "_")
	}
}
