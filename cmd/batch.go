package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"baler/internal/batch"
	"baler/internal/detect"
	"baler/pkg/archfmt"
)

var (
	batchOutput      string
	batchFormat      string
	batchPassword    string
	batchJobs        int
	batchRecursive   bool
	batchOverwrite   bool
	batchStopOnError bool
	batchInclude     []string
	batchExclude     []string
	batchReport      string
	batchChecksum    bool
	batchNoHoist     bool
	batchNoTUI       bool
)

var batchCmd = &cobra.Command{
	Use:   "batch [flags] <inputs...> <extract|pack|convert>",
	Short: "Run one operation over many inputs in parallel",
	Long: "batch applies extract, pack or convert to every input. Directories given to\n" +
		"extract or convert are searched for archives (recursively with -r).",
	Example: "  baler batch downloads/*.zip extract -o unpacked -j 4\n" +
		"  baler batch photos docs pack -o backups --format tar.zst\n" +
		"  baler batch old/ convert -o new --format tar.xz --report convert.yaml",
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputs, opName := args[:len(args)-1], args[len(args)-1]
		op, err := detect.ParseOperation(opName)
		if err != nil {
			return err
		}
		if op != detect.OpExtract && op != detect.OpPack && op != detect.OpConvert {
			return fmt.Errorf("batch operation must be extract, pack or convert, got %q", opName)
		}

		items, err := detect.NewClassifier(nil).Classify(inputs)
		if err != nil {
			return err
		}

		format, err := resolveFormat(op, batchFormat, batchOutput)
		if err != nil {
			return err
		}
		if err := detect.Validate(op, items, batchOutput, format); err != nil {
			return err
		}

		return runBatch(cmd.Context(), runRequest{
			op:     op,
			items:  items,
			output: batchOutput,
			opts: batch.Options{
				Password:  batchPassword,
				Overwrite: batchOverwrite || cfg.Overwrite,
				Format:    format,
				Include:   batchInclude,
				Exclude:   batchExclude,
				Hoist:     cfg.Hoist && !batchNoHoist,
				Checksum:  batchChecksum || cfg.Checksum,
			},
			recursive:       batchRecursive || cfg.Recursive,
			jobs:            jobsFlag(cmd, batchJobs),
			continueOnError: !(batchStopOnError || cfg.StopOnError),
			reportPath:      batchReport,
			showTUI:         cfg.TUI && !batchNoTUI,
		})
	},
}

// resolveFormat picks the target format. An explicit flag wins. Pack into a
// directory falls back to the configured default; pack into an archive path
// and convert leave it to the output extension.
func resolveFormat(op detect.Operation, flag, output string) (archfmt.Format, error) {
	if flag != "" {
		return archfmt.ParseFormat(flag)
	}
	if op == detect.OpPack && !detect.LooksLikeArchive(output) {
		return archfmt.ParseFormat(cfg.Format)
	}
	return archfmt.Unknown, nil
}

func jobsFlag(cmd *cobra.Command, value int) int {
	if cmd.Flags().Changed("jobs") {
		return batch.ClampParallel(value)
	}
	return cfg.Jobs
}

func init() {
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "output directory (or archive path for a single result)")
	batchCmd.Flags().StringVar(&batchFormat, "format", "", "target format: zip, tar.gz, tar.xz, tar.zst")
	batchCmd.Flags().StringVarP(&batchPassword, "password", "p", "", "archive password (7z or encrypted zip extraction)")
	batchCmd.Flags().IntVarP(&batchJobs, "jobs", "j", 0, "maximum concurrent jobs (1-32, default from config or CPU count)")
	batchCmd.Flags().BoolVarP(&batchRecursive, "recursive", "r", false, "search directories recursively for archives")
	batchCmd.Flags().BoolVar(&batchOverwrite, "overwrite", false, "replace existing files")
	batchCmd.Flags().BoolVar(&batchStopOnError, "stop-on-error", false, "start no new jobs after the first failure")
	batchCmd.Flags().StringArrayVar(&batchInclude, "include", nil, "only pack files whose name matches this pattern (repeatable)")
	batchCmd.Flags().StringArrayVar(&batchExclude, "exclude", nil, "skip files whose name matches this pattern (repeatable)")
	batchCmd.Flags().StringVar(&batchReport, "report", "", "write a YAML report of every job to this file")
	batchCmd.Flags().BoolVar(&batchChecksum, "checksum", false, "record an xxhash64 checksum of every archive written")
	batchCmd.Flags().BoolVar(&batchNoHoist, "no-hoist", false, "keep a single top-level folder when extracting")
	batchCmd.Flags().BoolVar(&batchNoTUI, "no-tui", false, "plain progress bar instead of the interactive view")

	rootCmd.AddCommand(batchCmd)
}
