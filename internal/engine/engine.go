// Package engine is the boundary to the archive codecs. The batch scheduler
// and the CLI only see the Engine interface; Archiver implements it on top of
// github.com/mholt/archives.
package engine

import (
	"context"
	"time"

	"baler/pkg/archfmt"
)

// Callback receives the name of the entry being processed and the number of
// bytes just copied for it.
type Callback func(entry string, n int64)

// WarnFunc receives non-fatal conditions, such as an existing file left alone.
type WarnFunc func(msg string)

type PackOptions struct {
	Format    archfmt.Format
	Password  string
	Overwrite bool
	Include   []string
	Exclude   []string
}

type ExtractOptions struct {
	Password  string
	Overwrite bool
	// Hoist collapses a single top-level directory into the destination.
	Hoist bool
}

type PackResult struct {
	FilesProcessed   int
	UncompressedSize int64
	CompressedSize   int64
	Duration         time.Duration
}

// ExtractResult describes a finished extraction. ArchiveSize is only set
// when the extraction succeeded.
type ExtractResult struct {
	FilesExtracted int
	TotalSize      int64
	SkippedFiles   int
	ArchiveSize    int64
	Hoisted        bool
	Duration       time.Duration
}

// ListResult is the table of contents of an archive.
type ListResult struct {
	Entries     []Entry
	ArchiveSize int64
}

// Entry is one member of an archive as reported by List.
type Entry struct {
	Name    string
	Size    int64
	IsDir   bool
	ModTime time.Time
}

// Engine packs and extracts archives. Errors are failure.Error values.
type Engine interface {
	Pack(ctx context.Context, inputs []string, output string, opts PackOptions, progress Callback) (PackResult, error)
	Extract(ctx context.Context, archive, outputDir string, opts ExtractOptions, progress Callback, warn WarnFunc) (ExtractResult, error)
	List(ctx context.Context, archive string, opts ExtractOptions) (ListResult, error)
}
