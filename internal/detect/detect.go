// Package detect classifies command-line inputs and infers which archive
// operation the user meant when none was given.
package detect

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"baler/internal/failure"
	"baler/pkg/archfmt"
)

// Operation is the single action applied to every input of a batch.
type Operation int

const (
	OpUnknown Operation = iota
	OpExtract
	OpPack
	OpConvert
	OpList
)

func (o Operation) String() string {
	switch o {
	case OpExtract:
		return "extract"
	case OpPack:
		return "pack"
	case OpConvert:
		return "convert"
	case OpList:
		return "list"
	default:
		return "unknown"
	}
}

// ParseOperation reads an --operation value. "auto" and "" yield OpUnknown,
// meaning the caller should run Detect.
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return OpUnknown, nil
	case "extract", "x":
		return OpExtract, nil
	case "pack", "compress", "c":
		return OpPack, nil
	case "convert":
		return OpConvert, nil
	case "list", "ls", "l":
		return OpList, nil
	}
	return OpUnknown, failure.New(failure.KindValidation, "", fmt.Sprintf("unknown operation %q", s))
}

// Kind is what an input path turned out to be.
type Kind int

const (
	KindRegularFile Kind = iota
	KindDirectory
	KindArchive
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindArchive:
		return "archive"
	default:
		return "file"
	}
}

// InputItem is one classified input.
type InputItem struct {
	Path   string
	Kind   Kind
	Format archfmt.Format
	Size   int64
}

// Classifier turns paths into InputItems.
type Classifier struct {
	fs      afero.Fs
	sniffer *archfmt.Sniffer
}

func NewClassifier(fsys afero.Fs) *Classifier {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Classifier{fs: fsys, sniffer: archfmt.NewSniffer(fsys)}
}

// Classify stats every path. A missing or unreadable path fails the whole
// call, naming that path.
func (c *Classifier) Classify(paths []string) ([]InputItem, error) {
	items := make([]InputItem, 0, len(paths))
	for _, path := range paths {
		item, err := c.ClassifyOne(path)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *Classifier) ClassifyOne(path string) (InputItem, error) {
	info, err := c.fs.Stat(path)
	if err != nil {
		return InputItem{}, failure.FromOS(path, err, failure.KindGeneral)
	}
	if info.IsDir() {
		return InputItem{Path: path, Kind: KindDirectory}, nil
	}

	item := InputItem{Path: path, Kind: KindRegularFile, Size: info.Size()}
	format, err := c.sniffer.Detect(path)
	switch {
	case err == nil:
		item.Kind = KindArchive
		item.Format = format
	case failure.Is(err, failure.KindUnsupportedFormat):
	default:
		return InputItem{}, err
	}
	return item, nil
}

// LooksLikeArchive reports whether path names a supported archive by its
// extension alone. Used for output paths that need not exist yet.
func LooksLikeArchive(path string) bool {
	return archfmt.FromExtension(path) != archfmt.Unknown
}

// Detect applies the inference rules in order; the first match wins. Mixed
// archive and non-archive inputs are never guessed at.
func Detect(items []InputItem, output string) (Operation, error) {
	if len(items) == 0 {
		return OpUnknown, failure.New(failure.KindValidation, "", "no inputs given")
	}

	archives := 0
	for _, item := range items {
		if item.Kind == KindArchive {
			archives++
		}
	}

	switch {
	case archives == len(items) && output == "" && len(items) == 1:
		return OpList, nil
	case archives == len(items) && output != "" && LooksLikeArchive(output):
		return OpConvert, nil
	case archives == len(items):
		return OpExtract, nil
	case archives == 0:
		return OpPack, nil
	}
	return OpUnknown, failure.New(failure.KindAmbiguous, "",
		"Mixed input types detected; use --operation to choose extract or pack")
}

// Validate re-checks the preconditions of op against the inputs. target is
// the explicit conversion format, if one was given.
func Validate(op Operation, items []InputItem, output string, target archfmt.Format) error {
	if len(items) == 0 {
		return failure.New(failure.KindValidation, "", "no inputs given")
	}

	switch op {
	case OpList:
		if len(items) != 1 {
			return failure.New(failure.KindValidation, "", fmt.Sprintf("list takes exactly one archive, got %d inputs", len(items)))
		}
		return requireArchives(items, false)
	case OpExtract:
		return requireArchives(items, true)
	case OpConvert:
		if err := requireArchives(items, true); err != nil {
			return err
		}
		if target == archfmt.Unknown && !LooksLikeArchive(output) {
			return failure.New(failure.KindValidation, output, "convert needs an archive output path or --format")
		}
		return nil
	case OpPack:
		for _, item := range items {
			if item.Path == "" {
				return failure.New(failure.KindValidation, "", "empty input path")
			}
		}
		return nil
	}
	return failure.New(failure.KindValidation, "", "operation could not be determined")
}

// Directories are accepted when allowDirs is set; the planner expands them
// into the archives they contain.
func requireArchives(items []InputItem, allowDirs bool) error {
	for _, item := range items {
		if item.Kind == KindDirectory && allowDirs {
			continue
		}
		if item.Kind != KindArchive {
			return failure.New(failure.KindValidation, item.Path, "not a supported archive")
		}
	}
	return nil
}
