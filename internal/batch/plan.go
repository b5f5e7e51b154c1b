package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"baler/internal/detect"
	"baler/internal/failure"
	"baler/pkg/archfmt"
)

// Planner turns classified inputs into jobs with resolved output paths.
type Planner struct {
	fs         afero.Fs
	classifier *detect.Classifier
	// Recursive makes directory inputs of extract, convert and list search
	// nested directories for archives, not just their direct children.
	Recursive bool
}

func NewPlanner(fsys afero.Fs) *Planner {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Planner{fs: fsys, classifier: detect.NewClassifier(fsys)}
}

// Plan builds the jobs for op. output is a directory, or an archive path
// when a single archive is produced.
func (p *Planner) Plan(op detect.Operation, items []detect.InputItem, output string, opts Options) ([]Job, error) {
	var (
		jobs []Job
		err  error
	)
	switch op {
	case detect.OpExtract:
		jobs, err = p.planExtract(items, output, opts)
	case detect.OpPack:
		jobs, err = p.planPack(items, output, opts)
	case detect.OpConvert:
		jobs, err = p.planConvert(items, output, opts)
	case detect.OpList:
		jobs, err = p.planList(items, opts)
	default:
		return nil, failure.New(failure.KindValidation, "", "operation could not be determined")
	}
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, failure.New(failure.KindValidation, "", "no inputs to "+op.String())
	}

	dedupeOutputs(jobs)
	for i := range jobs {
		jobs[i].Index = i
	}
	return jobs, nil
}

func (p *Planner) planExtract(items []detect.InputItem, output string, opts Options) ([]Job, error) {
	archives, err := p.expandArchives(items)
	if err != nil {
		return nil, err
	}

	base := output
	if base == "" {
		base = "."
	}
	jobs := make([]Job, 0, len(archives))
	for _, archive := range archives {
		dest := filepath.Join(base, archfmt.TrimExtension(archive.Path))
		if output != "" && len(archives) == 1 {
			dest = output
		}
		jobs = append(jobs, Job{Inputs: []string{archive.Path}, Output: dest, Options: opts})
	}
	return jobs, nil
}

func (p *Planner) planPack(items []detect.InputItem, output string, opts Options) ([]Job, error) {
	if output != "" && detect.LooksLikeArchive(output) {
		if opts.Format == archfmt.Unknown {
			opts.Format = archfmt.FromExtension(output)
		}
		inputs := make([]string, 0, len(items))
		for _, item := range items {
			inputs = append(inputs, item.Path)
		}
		return []Job{{Inputs: inputs, Output: output, Options: opts}}, nil
	}

	if opts.Format == archfmt.Unknown {
		opts.Format = archfmt.Zip
	}
	base := output
	if base == "" {
		base = "."
	}
	jobs := make([]Job, 0, len(items))
	for _, item := range items {
		name := filepath.Base(filepath.Clean(item.Path))
		if item.Kind != detect.KindDirectory {
			name = archfmt.TrimExtension(name)
		}
		jobs = append(jobs, Job{
			Inputs:  []string{item.Path},
			Output:  filepath.Join(base, name+opts.Format.Extension()),
			Options: opts,
		})
	}
	return jobs, nil
}

func (p *Planner) planConvert(items []detect.InputItem, output string, opts Options) ([]Job, error) {
	archives, err := p.expandArchives(items)
	if err != nil {
		return nil, err
	}

	single := output != "" && detect.LooksLikeArchive(output)
	if single && len(archives) > 1 {
		return nil, failure.New(failure.KindValidation, output,
			fmt.Sprintf("cannot convert %d archives into one file; give an output directory and --format", len(archives)))
	}
	if opts.Format == archfmt.Unknown && single {
		opts.Format = archfmt.FromExtension(output)
	}
	if opts.Format == archfmt.Unknown {
		return nil, failure.New(failure.KindValidation, output, "convert needs a target format")
	}

	if single {
		return []Job{{Inputs: []string{archives[0].Path}, Output: output, Options: opts}}, nil
	}

	base := output
	if base == "" {
		base = "."
	}
	jobs := make([]Job, 0, len(archives))
	for _, archive := range archives {
		dest := filepath.Join(base, archfmt.TrimExtension(archive.Path)+opts.Format.Extension())
		jobs = append(jobs, Job{Inputs: []string{archive.Path}, Output: dest, Options: opts})
	}
	return jobs, nil
}

func (p *Planner) planList(items []detect.InputItem, opts Options) ([]Job, error) {
	archives, err := p.expandArchives(items)
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(archives))
	for _, archive := range archives {
		jobs = append(jobs, Job{Inputs: []string{archive.Path}, Options: opts})
	}
	return jobs, nil
}

// expandArchives replaces directory inputs with the archives found inside
// them, in lexical order. Non-archive files inside a directory are ignored;
// a non-archive file given directly is an error.
func (p *Planner) expandArchives(items []detect.InputItem) ([]detect.InputItem, error) {
	var out []detect.InputItem
	for _, item := range items {
		switch item.Kind {
		case detect.KindArchive:
			out = append(out, item)
		case detect.KindDirectory:
			found, err := p.archivesIn(item.Path)
			if err != nil {
				return nil, err
			}
			out = append(out, found...)
		default:
			return nil, failure.New(failure.KindValidation, item.Path, "not a supported archive")
		}
	}
	return out, nil
}

func (p *Planner) archivesIn(dir string) ([]detect.InputItem, error) {
	var paths []string
	if p.Recursive {
		err := afero.Walk(p.fs, dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.Mode().IsRegular() {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, failure.FromOS(dir, err, failure.KindGeneral)
		}
	} else {
		infos, err := afero.ReadDir(p.fs, dir)
		if err != nil {
			return nil, failure.FromOS(dir, err, failure.KindGeneral)
		}
		for _, info := range infos {
			if info.Mode().IsRegular() {
				paths = append(paths, filepath.Join(dir, info.Name()))
			}
		}
	}
	sort.Strings(paths)

	var found []detect.InputItem
	for _, path := range paths {
		item, err := p.classifier.ClassifyOne(path)
		if err != nil {
			return nil, err
		}
		if item.Kind == detect.KindArchive {
			found = append(found, item)
		}
	}
	return found, nil
}

// dedupeOutputs gives colliding output paths a numeric suffix, keeping the
// first occurrence unchanged.
func dedupeOutputs(jobs []Job) {
	seen := make(map[string]bool, len(jobs))
	for i := range jobs {
		out := jobs[i].Output
		if out == "" {
			continue
		}
		key := filepath.Clean(out)
		if !seen[key] {
			seen[key] = true
			continue
		}

		dir, name := filepath.Split(out)
		stem, ext := splitArchiveName(name)
		for n := 1; ; n++ {
			candidate := filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, n, ext))
			if !seen[filepath.Clean(candidate)] {
				seen[filepath.Clean(candidate)] = true
				jobs[i].Output = candidate
				break
			}
		}
	}
}

func splitArchiveName(name string) (string, string) {
	if archfmt.FromExtension(name) == archfmt.Unknown {
		return name, ""
	}
	stem := archfmt.TrimExtension(name)
	return stem, strings.TrimPrefix(name, stem)
}
