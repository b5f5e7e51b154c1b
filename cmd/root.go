package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"baler/internal/config"
	"baler/internal/failure"
	"baler/internal/logger"
)

var (
	cfgFile  string
	logLevel string
	logFile  string

	cfg       *config.Config
	log       = logger.Discard()
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "baler",
	Short: "baler - batch pack, extract and convert archives",
	Long: "baler packs, extracts, converts and lists zip, 7z and tar archives in batches,\n" +
		"working out what to do from the inputs when no operation is given.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return failure.Wrap(failure.KindValidation, cfgFile, err)
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-file") {
			loaded.Log.File = logFile
		}

		l, closer, err := logger.Init(loaded.Log.Level, loaded.Log.File)
		if err != nil {
			return failure.FromOS(loaded.Log.File, fmt.Errorf("open log file: %w", err), failure.KindGeneral)
		}
		cfg, log, logCloser = loaded, l, closer
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

// errBatchFailed marks a batch that ran to the end with failed jobs. The
// summary has already been printed.
var errBatchFailed = errors.New("one or more jobs failed")

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err == nil {
		return
	}
	if logCloser != nil {
		_ = logCloser.Close()
	}
	if errors.Is(err, errBatchFailed) {
		os.Exit(failure.ExitCode(failure.KindGeneral))
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(failure.ExitCode(failure.KindOf(err)))
}

func init() {
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.baler/baler.yaml or ./baler.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also append JSON logs to this file")
}

func loggerFor(runID string) zerolog.Logger {
	return log.With().Str("run_id", runID).Logger()
}
