package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"baler/internal/batch"
	"baler/internal/detect"
)

var (
	autoOutput    string
	autoOperation string
	autoPassword  string
	autoJobs      int
	autoRecursive bool
	autoOverwrite bool
	autoFormat    string
)

var autoCmd = &cobra.Command{
	Use:   "auto [flags] <inputs...>",
	Short: "Work out the operation from the inputs and run it",
	Long: "auto inspects the inputs and picks an operation:\n" +
		"  one archive, no output          list its contents\n" +
		"  archives, archive output        convert\n" +
		"  archives                        extract\n" +
		"  files or folders                pack\n" +
		"Mixed archives and other inputs need --operation.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		override, err := detect.ParseOperation(autoOperation)
		if err != nil {
			return err
		}

		items, err := detect.NewClassifier(nil).Classify(args)
		if err != nil {
			return err
		}

		op := override
		if op == detect.OpUnknown {
			if op, err = detect.Detect(items, autoOutput); err != nil {
				return err
			}
			log.Debug().Str("operation", op.String()).Int("inputs", len(items)).Msg("operation detected")
		}

		format, err := resolveFormat(op, autoFormat, autoOutput)
		if err != nil {
			return err
		}
		if err := detect.Validate(op, items, autoOutput, format); err != nil {
			return err
		}
		if override == detect.OpUnknown {
			fmt.Fprintf(os.Stderr, "Detected operation: %s\n", op)
		}

		return runBatch(cmd.Context(), runRequest{
			op:     op,
			items:  items,
			output: autoOutput,
			opts: batch.Options{
				Password:  autoPassword,
				Overwrite: autoOverwrite || cfg.Overwrite,
				Format:    format,
				Hoist:     cfg.Hoist,
				Checksum:  cfg.Checksum,
			},
			recursive:       autoRecursive || cfg.Recursive,
			jobs:            jobsFlag(cmd, autoJobs),
			continueOnError: !cfg.StopOnError,
			showTUI:         cfg.TUI && op != detect.OpList,
		})
	},
}

func init() {
	autoCmd.Flags().StringVarP(&autoOutput, "output", "o", "", "output directory or archive path")
	autoCmd.Flags().StringVar(&autoOperation, "operation", "auto", "auto, extract, pack, convert or list")
	autoCmd.Flags().StringVarP(&autoPassword, "password", "p", "", "archive password (7z or encrypted zip extraction)")
	autoCmd.Flags().IntVarP(&autoJobs, "jobs", "j", 0, "maximum concurrent jobs (1-32)")
	autoCmd.Flags().BoolVarP(&autoRecursive, "recursive", "r", false, "search directories recursively for archives")
	autoCmd.Flags().BoolVar(&autoOverwrite, "overwrite", false, "replace existing files")
	autoCmd.Flags().StringVar(&autoFormat, "format", "", "target format for pack or convert")

	rootCmd.AddCommand(autoCmd)
}
