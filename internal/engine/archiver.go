package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mholt/archives"

	"baler/internal/failure"
	"baler/pkg/archfmt"
)

const copyBufferSize = 64 * 1024

// Archiver is the Engine backed by mholt/archives. The zero value is not
// usable; call NewArchiver.
type Archiver struct {
	sniffer *archfmt.Sniffer
}

func NewArchiver() *Archiver {
	return &Archiver{sniffer: archfmt.NewSniffer(nil)}
}

var _ Engine = (*Archiver)(nil)

func (a *Archiver) Pack(ctx context.Context, inputs []string, output string, opts PackOptions, progress Callback) (PackResult, error) {
	start := time.Now()
	res := PackResult{}

	if len(inputs) == 0 {
		return res, failure.New(failure.KindValidation, output, "nothing to pack")
	}
	if opts.Password != "" {
		return res, failure.New(failure.KindUnsupportedFormat, output, "password-protected packing is not supported")
	}
	format, err := archiverFor(opts.Format)
	if err != nil {
		return res, failure.Wrap(failure.KindUnsupportedFormat, output, err)
	}

	if !opts.Overwrite {
		if _, err := os.Stat(output); err == nil {
			return res, failure.New(failure.KindGeneral, output, "output exists (use --overwrite to replace it)")
		}
	}

	// One FilesFromDisk call per input, in sorted order, keeps the entry
	// order of the archive stable between runs.
	sorted := append([]string(nil), inputs...)
	sort.Strings(sorted)
	var files []archives.FileInfo
	for _, input := range sorted {
		if _, err := os.Stat(input); err != nil {
			return res, failure.FromOS(input, err, failure.KindGeneral)
		}
		found, err := archives.FilesFromDisk(ctx, nil, map[string]string{
			input: filepath.Base(filepath.Clean(input)),
		})
		if err != nil {
			return res, failure.FromOS(input, err, failure.KindGeneral)
		}
		files = append(files, found...)
	}

	files = filterFiles(files, opts.Include, opts.Exclude)
	for i := range files {
		if files[i].IsDir() {
			continue
		}
		res.FilesProcessed++
		res.UncompressedSize += files[i].Size()
		files[i].Open = countingOpen(files[i].NameInArchive, files[i].Open, progress)
	}

	destDir := filepath.Dir(output)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return res, failure.FromOS(destDir, err, failure.KindGeneral)
	}

	tmpFile, err := os.CreateTemp(destDir, ".baler-*.tmp")
	if err != nil {
		return res, failure.FromOS(destDir, err, failure.KindGeneral)
	}
	defer os.Remove(tmpFile.Name())

	if err := format.Archive(ctx, tmpFile, files); err != nil {
		_ = tmpFile.Close()
		return res, failure.FromOS(output, fmt.Errorf("write archive: %w", err), failure.KindGeneral)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return res, failure.FromOS(output, err, failure.KindGeneral)
	}
	if err := tmpFile.Close(); err != nil {
		return res, failure.FromOS(output, err, failure.KindGeneral)
	}

	if err := replaceFile(tmpFile.Name(), output); err != nil {
		return res, failure.FromOS(output, err, failure.KindGeneral)
	}

	outInfo, err := os.Stat(output)
	if err != nil {
		return res, failure.FromOS(output, err, failure.KindGeneral)
	}
	res.CompressedSize = outInfo.Size()
	res.Duration = time.Since(start)
	return res, nil
}

func (a *Archiver) Extract(ctx context.Context, archive, outputDir string, opts ExtractOptions, progress Callback, warn WarnFunc) (ExtractResult, error) {
	start := time.Now()
	res := ExtractResult{}

	info, err := os.Stat(archive)
	if err != nil {
		return res, failure.FromOS(archive, err, failure.KindGeneral)
	}

	absOut, err := filepath.Abs(outputDir)
	if err != nil {
		return res, failure.FromOS(outputDir, err, failure.KindGeneral)
	}
	if err := os.MkdirAll(absOut, 0o755); err != nil {
		return res, failure.FromOS(outputDir, err, failure.KindGeneral)
	}
	existing, err := topLevelNames(absOut)
	if err != nil {
		return res, failure.FromOS(outputDir, err, failure.KindGeneral)
	}

	// Top-level names of the archive itself. Hoisting is decided from these,
	// never from what the destination already held.
	roots := make(map[string]bool)

	handler := func(ctx context.Context, f archives.FileInfo) error {
		target, ok := securePath(absOut, f.NameInArchive)
		if !ok {
			return failure.New(failure.KindCorruptedArchive, archive,
				fmt.Sprintf("entry %q escapes the destination", f.NameInArchive))
		}
		if root := topLevel(f.NameInArchive); root != "" {
			roots[root] = true
		}

		if f.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if f.Mode()&fs.ModeSymlink != 0 || !f.Mode().IsRegular() {
			res.SkippedFiles++
			notify(warn, fmt.Sprintf("skipping non-regular entry %s", f.NameInArchive))
			return nil
		}
		if !opts.Overwrite {
			if _, err := os.Lstat(target); err == nil {
				res.SkippedFiles++
				notify(warn, fmt.Sprintf("not overwriting %s", target))
				return nil
			}
		}

		written, err := extractEntry(f, target, progress)
		if err != nil {
			return err
		}
		res.FilesExtracted++
		res.TotalSize += written
		return nil
	}

	if err := a.walk(ctx, archive, opts.Password, true, handler); err != nil {
		return res, err
	}

	if opts.Hoist && len(roots) == 1 {
		for root := range roots {
			if existing[root] {
				break
			}
			hoisted, err := hoistRoot(absOut, root)
			if err != nil {
				notify(warn, fmt.Sprintf("could not hoist %s: %v", filepath.Join(absOut, root), err))
			}
			res.Hoisted = hoisted
		}
	}

	res.ArchiveSize = info.Size()
	res.Duration = time.Since(start)
	return res, nil
}

func (a *Archiver) List(ctx context.Context, archive string, opts ExtractOptions) (ListResult, error) {
	var res ListResult
	info, err := os.Stat(archive)
	if err != nil {
		return res, failure.FromOS(archive, err, failure.KindGeneral)
	}

	err = a.walk(ctx, archive, opts.Password, false, func(ctx context.Context, f archives.FileInfo) error {
		res.Entries = append(res.Entries, Entry{
			Name:    f.NameInArchive,
			Size:    f.Size(),
			IsDir:   f.IsDir(),
			ModTime: f.ModTime(),
		})
		return nil
	})
	if err != nil {
		return res, err
	}
	res.ArchiveSize = info.Size()
	return res, nil
}

// walk feeds every entry of archive to handler. Encrypted zips go through
// a decrypting reader; readContent says whether the handler opens entries,
// which for an encrypted zip requires a password.
func (a *Archiver) walk(ctx context.Context, archive, password string, readContent bool, handler archives.FileHandler) error {
	format, err := a.sniffer.Detect(archive)
	if err != nil {
		return err
	}

	if format == archfmt.Zip {
		encrypted, err := zipEncrypted(archive)
		if err == nil && encrypted {
			if readContent && password == "" {
				return failure.New(failure.KindInvalidPassword, archive, "archive is encrypted; a password is required")
			}
			if err := walkEncryptedZip(ctx, archive, password, handler); err != nil {
				return classifyDecryptError(archive, password, err)
			}
			return nil
		}
	}

	extractor, err := extractorFor(archive, format, password)
	if err != nil {
		return err
	}

	file, err := os.Open(archive)
	if err != nil {
		return failure.FromOS(archive, err, failure.KindGeneral)
	}
	defer file.Close()

	if err := extractor.Extract(ctx, file, handler); err != nil {
		return classifyExtractError(archive, password, err)
	}
	return nil
}

func extractorFor(archive string, format archfmt.Format, password string) (archives.Extractor, error) {
	switch format {
	case archfmt.Zip:
		return archives.Zip{}, nil
	case archfmt.SevenZip:
		return archives.SevenZip{Password: password}, nil
	case archfmt.TarGz:
		return archives.CompressedArchive{Compression: archives.Gz{}, Extraction: archives.Tar{}}, nil
	case archfmt.TarXz:
		return archives.CompressedArchive{Compression: archives.Xz{}, Extraction: archives.Tar{}}, nil
	case archfmt.TarZstd:
		return archives.CompressedArchive{Compression: archives.Zstd{}, Extraction: archives.Tar{}}, nil
	}
	return nil, failure.New(failure.KindUnsupportedFormat, archive, "unsupported archive format")
}

func archiverFor(format archfmt.Format) (archives.Archiver, error) {
	switch format {
	case archfmt.Zip, archfmt.Unknown:
		return archives.Zip{}, nil
	case archfmt.TarGz:
		return archives.CompressedArchive{Compression: archives.Gz{}, Archival: archives.Tar{}}, nil
	case archfmt.TarXz:
		return archives.CompressedArchive{Compression: archives.Xz{}, Archival: archives.Tar{}}, nil
	case archfmt.TarZstd:
		return archives.CompressedArchive{Compression: archives.Zstd{}, Archival: archives.Tar{}}, nil
	}
	return nil, fmt.Errorf("packing %s archives is not supported", format)
}

func extractEntry(f archives.FileInfo, target string, progress Callback) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}

	reader, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", f.NameInArchive, err)
	}
	defer reader.Close()

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	writer, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return 0, err
	}

	written, err := io.CopyBuffer(&progressWriter{w: writer, name: f.NameInArchive, progress: progress}, reader, make([]byte, copyBufferSize))
	if closeErr := writer.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return written, fmt.Errorf("copy %s: %w", f.NameInArchive, err)
	}

	if !f.ModTime().IsZero() {
		_ = os.Chtimes(target, time.Now(), f.ModTime())
	}
	return written, nil
}

// classifyExtractError maps codec failures onto error kinds. The codecs do
// not export typed errors, so the message is the only signal.
func classifyExtractError(archive, password string, err error) error {
	var tagged *failure.Error
	if errors.As(err, &tagged) {
		return err
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return failure.FromOS(archive, err, failure.KindGeneral)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "password"), strings.Contains(msg, "encrypt"),
		strings.Contains(msg, "decryption"), strings.Contains(msg, "authentication"):
		return failure.Wrap(failure.KindInvalidPassword, archive, err)
	case password != "" && strings.Contains(msg, "checksum"):
		return failure.Wrap(failure.KindInvalidPassword, archive, err)
	}
	return failure.Wrap(failure.KindCorruptedArchive, archive, err)
}

// classifyDecryptError is classifyExtractError for encrypted zips. ZipCrypto
// has no reliable password check, so a wrong key surfaces as whatever the
// decompressor makes of the noise. Anything that is not a filesystem error
// is reported as a password problem.
func classifyDecryptError(archive, password string, err error) error {
	var tagged *failure.Error
	var pathErr *fs.PathError
	if password == "" || errors.As(err, &tagged) || errors.As(err, &pathErr) || errors.Is(err, context.Canceled) {
		return classifyExtractError(archive, password, err)
	}
	return failure.Wrap(failure.KindInvalidPassword, archive, err)
}

func notify(warn WarnFunc, msg string) {
	if warn != nil {
		warn(msg)
	}
}

// securePath joins name under root, rejecting entries that would land
// outside of it.
func securePath(root, name string) (string, bool) {
	cleaned := filepath.FromSlash(strings.TrimLeft(name, `/\`))
	target := filepath.Join(root, cleaned)
	if !isWithin(target, root) {
		return "", false
	}
	return target, true
}

func replaceFile(tmpPath, destPath string) error {
	if err := os.Rename(tmpPath, destPath); err == nil {
		return nil
	}
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(tmpPath, destPath)
}

func isWithin(path string, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
