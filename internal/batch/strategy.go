package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"baler/internal/detect"
	"baler/internal/engine"
	"baler/internal/failure"
)

// Outcome is what a strategy reports back for one job. Bytes is the engine's
// own figure: archive size for extract and list, destination size for pack
// and convert. It stays zero when the job fails.
type Outcome struct {
	Bytes    int64
	Files    int
	Checksum string
	Entries  []engine.Entry
	Warnings []string
}

// Strategy performs the batch operation for a single job. progress, when not
// nil, receives the bytes streamed through the engine as they move.
type Strategy interface {
	Execute(ctx context.Context, job Job, progress engine.Callback) (Outcome, error)
}

// StrategyFor selects the strategy for op.
func StrategyFor(op detect.Operation, eng engine.Engine, log zerolog.Logger) (Strategy, error) {
	switch op {
	case detect.OpExtract:
		return ExtractStrategy{Engine: eng, Log: log}, nil
	case detect.OpPack:
		return PackStrategy{Engine: eng}, nil
	case detect.OpConvert:
		return ConvertStrategy{Engine: eng, Log: log}, nil
	case detect.OpList:
		return ListStrategy{Engine: eng}, nil
	}
	return nil, failure.New(failure.KindValidation, "", fmt.Sprintf("no strategy for operation %s", op))
}

type ExtractStrategy struct {
	Engine engine.Engine
	Log    zerolog.Logger
}

func (s ExtractStrategy) Execute(ctx context.Context, job Job, progress engine.Callback) (Outcome, error) {
	var out Outcome
	res, err := s.Engine.Extract(ctx, job.Inputs[0], job.Output, engine.ExtractOptions{
		Password:  job.Options.Password,
		Overwrite: job.Options.Overwrite,
		Hoist:     job.Options.Hoist,
	}, progress, collectWarnings(&out, s.Log, job))
	out.Files = res.FilesExtracted
	if err != nil {
		return out, err
	}
	out.Bytes = res.ArchiveSize
	return out, nil
}

type PackStrategy struct {
	Engine engine.Engine
}

func (s PackStrategy) Execute(ctx context.Context, job Job, progress engine.Callback) (Outcome, error) {
	var out Outcome
	res, err := s.Engine.Pack(ctx, job.Inputs, job.Output, engine.PackOptions{
		Format:    job.Options.Format,
		Password:  job.Options.Password,
		Overwrite: job.Options.Overwrite,
		Include:   job.Options.Include,
		Exclude:   job.Options.Exclude,
	}, progress)
	out.Files = res.FilesProcessed
	if err != nil {
		return out, err
	}
	out.Bytes = res.CompressedSize
	if job.Options.Checksum {
		out.Checksum, err = checksumFile(job.Output)
	}
	return out, err
}

// ConvertStrategy extracts into a private temporary directory and packs its
// contents into the target format. The temporary tree is removed afterwards.
type ConvertStrategy struct {
	Engine engine.Engine
	Log    zerolog.Logger
}

func (s ConvertStrategy) Execute(ctx context.Context, job Job, progress engine.Callback) (Outcome, error) {
	var out Outcome
	staging, err := os.MkdirTemp("", "baler-convert-*")
	if err != nil {
		return out, failure.FromOS("", err, failure.KindGeneral)
	}
	defer os.RemoveAll(staging)

	if _, err := s.Engine.Extract(ctx, job.Inputs[0], staging, engine.ExtractOptions{
		Password:  job.Options.Password,
		Overwrite: true,
	}, progress, collectWarnings(&out, s.Log, job)); err != nil {
		return out, err
	}

	entries, err := os.ReadDir(staging)
	if err != nil {
		return out, failure.FromOS(staging, err, failure.KindGeneral)
	}
	if len(entries) == 0 {
		return out, failure.New(failure.KindGeneral, job.Inputs[0], "archive is empty; nothing to convert")
	}
	inputs := make([]string, 0, len(entries))
	for _, entry := range entries {
		inputs = append(inputs, filepath.Join(staging, entry.Name()))
	}

	res, err := s.Engine.Pack(ctx, inputs, job.Output, engine.PackOptions{
		Format:    job.Options.Format,
		Overwrite: job.Options.Overwrite,
		Include:   job.Options.Include,
		Exclude:   job.Options.Exclude,
	}, progress)
	out.Files = res.FilesProcessed
	if err != nil {
		return out, err
	}
	out.Bytes = res.CompressedSize
	if job.Options.Checksum {
		out.Checksum, err = checksumFile(job.Output)
	}
	return out, err
}

type ListStrategy struct {
	Engine engine.Engine
}

func (s ListStrategy) Execute(ctx context.Context, job Job, _ engine.Callback) (Outcome, error) {
	var out Outcome
	res, err := s.Engine.List(ctx, job.Inputs[0], engine.ExtractOptions{Password: job.Options.Password})
	out.Entries = res.Entries
	for _, e := range res.Entries {
		if !e.IsDir {
			out.Files++
		}
	}
	if err != nil {
		return out, err
	}
	out.Bytes = res.ArchiveSize
	return out, nil
}

func collectWarnings(out *Outcome, log zerolog.Logger, job Job) engine.WarnFunc {
	return func(msg string) {
		out.Warnings = append(out.Warnings, msg)
		log.Warn().Str("input", job.Input()).Msg(msg)
	}
}

// checksumFile returns the xxhash64 digest of path as 16 hex digits.
func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", failure.FromOS(path, err, failure.KindGeneral)
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", failure.FromOS(path, err, failure.KindGeneral)
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
