package cmd

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"baler/internal/batch"
	"baler/internal/tui"
)

// startProgress drains updates into a display and returns a function that
// blocks until the display has finished. Callers close updates first.
func startProgress(showTUI bool, title string, updates <-chan batch.ProgressUpdate, interrupt func()) func() {
	done := make(chan struct{})

	if showTUI && isatty.IsTerminal(os.Stderr.Fd()) && isatty.IsTerminal(os.Stdin.Fd()) {
		program := tea.NewProgram(tui.NewModel(title, updates, interrupt), tea.WithOutput(os.Stderr))
		go func() {
			defer close(done)
			if _, err := program.Run(); err != nil {
				log.Debug().Err(err).Msg("progress view exited")
				for range updates {
				}
			}
		}()
		return func() { <-done }
	}

	go func() {
		defer close(done)
		var bar *progressbar.ProgressBar
		for update := range updates {
			if update.TotalDelta > 0 && bar == nil {
				bar = progressbar.NewOptions(update.TotalDelta,
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionSetDescription(title),
					progressbar.OptionSetPredictTime(true),
					progressbar.OptionShowCount(),
					progressbar.OptionSetTheme(progressbar.Theme{
						Saucer: "█", SaucerHead: "█", SaucerPadding: "░",
						BarStart: "[", BarEnd: "]",
					}),
				)
			}
			if n := update.DoneDelta + update.SkippedDelta; bar != nil && n > 0 {
				_ = bar.Add(n)
			}
		}
		if bar != nil {
			_ = bar.Finish()
			_, _ = os.Stderr.WriteString("\n")
		}
	}()
	return func() { <-done }
}
