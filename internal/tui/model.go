package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"baler/internal/batch"
)

// Model follows a running batch through its progress channel. It quits when
// the channel is closed.
type Model struct {
	updates     <-chan batch.ProgressUpdate
	onInterrupt func()
	title       string
	started     time.Time
	bar         progress.Model
	width       int
	total       int
	done        int
	failed      int
	skipped     int
	bytes       int64
	streamed    int64
	current     string
	entry       string
	interrupted bool
	quitting    bool
}

type doneMsg struct{}

type updateMsg batch.ProgressUpdate

// NewModel builds the progress view. onInterrupt runs when the user presses
// ctrl+c; the model keeps draining updates until the scheduler finishes.
func NewModel(title string, updates <-chan batch.ProgressUpdate, onInterrupt func()) Model {
	return Model{
		updates:     updates,
		onInterrupt: onInterrupt,
		title:       title,
		started:     time.Now(),
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
}

func (m Model) Init() tea.Cmd {
	return listenForUpdates(m.updates)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case updateMsg:
		m.total += msg.TotalDelta
		m.done += msg.DoneDelta
		m.failed += msg.FailedDelta
		m.skipped += msg.SkippedDelta
		m.bytes += msg.BytesDelta
		m.streamed += msg.StreamedDelta
		if msg.Current != "" {
			m.current = msg.Current
			m.entry = msg.Entry
		}
		return m, listenForUpdates(m.updates)
	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && !m.interrupted {
			m.interrupted = true
			if m.onInterrupt != nil {
				m.onInterrupt()
			}
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = barWidth(msg.Width)
		return m, nil
	default:
		return m, nil
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	finished := m.done + m.skipped
	ratio := 0.0
	if m.total > 0 {
		ratio = float64(finished) / float64(m.total)
		if ratio > 1 {
			ratio = 1
		}
	}

	elapsed := time.Since(m.started).Round(time.Millisecond)
	status := dimStyle.Render(fmt.Sprintf("  failed:%d skipped:%d", m.failed, m.skipped))
	if m.interrupted {
		status += warnStyle.Render("  stopping after in-flight jobs")
	}

	lines := []string{
		titleStyle.Render(m.title),
		labelStyle.Render(fmt.Sprintf("Jobs: %d/%d", finished, m.total)) + status,
		labelStyle.Render("Processed: "+FormatBytes(m.bytes)) + dimStyle.Render("  copied: "+FormatBytes(m.streamed)),
		dimStyle.Render(fmt.Sprintf("Elapsed: %s", elapsed)),
		m.bar.ViewAs(ratio),
	}
	if m.current != "" {
		current := m.current
		if m.entry != "" {
			current += ": " + m.entry
		}
		lines = append(lines, dimStyle.Render(truncate(current, m.width)))
	}

	return strings.Join(lines, "\n")
}

func listenForUpdates(updates <-chan batch.ProgressUpdate) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-updates
		if !ok {
			return doneMsg{}
		}
		return updateMsg(update)
	}
}

func barWidth(termWidth int) int {
	w := termWidth - 10
	if w > 60 {
		w = 60
	}
	if w < 20 {
		w = 20
	}
	return w
}

func truncate(s string, width int) string {
	if width <= 3 || len(s) <= width {
		return s
	}
	return "..." + s[len(s)-width+3:]
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
