package archfmt

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/spf13/afero"

	"baler/internal/failure"
)

// Format identifies a supported archive container.
type Format int

const (
	Unknown Format = iota
	Zip
	SevenZip
	TarGz
	TarXz
	TarZstd
)

func (f Format) String() string {
	switch f {
	case Zip:
		return "zip"
	case SevenZip:
		return "7z"
	case TarGz:
		return "tar.gz"
	case TarXz:
		return "tar.xz"
	case TarZstd:
		return "tar.zst"
	default:
		return "unknown"
	}
}

// Extension returns the canonical filename suffix, including the leading dot.
func (f Format) Extension() string {
	if f == Unknown {
		return ""
	}
	return "." + f.String()
}

// ParseFormat accepts the canonical names plus the common short aliases.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), ".")) {
	case "zip":
		return Zip, nil
	case "7z", "7zip", "sevenzip":
		return SevenZip, nil
	case "tar.gz", "tgz", "targz", "gz", "gzip":
		return TarGz, nil
	case "tar.xz", "txz", "tarxz", "xz":
		return TarXz, nil
	case "tar.zst", "tar.zstd", "tzst", "zst", "zstd":
		return TarZstd, nil
	}
	return Unknown, failure.New(failure.KindUnsupportedFormat, "", fmt.Sprintf("unknown archive format %q", name))
}

const (
	headerSize  = 16
	ustarOffset = 257
	sniffSize   = 512
)

var (
	zipSig      = []byte{'P', 'K', 0x03, 0x04}
	zipEmptySig = []byte{'P', 'K', 0x05, 0x06}
	sevenZipSig = []byte{'7', 'z', 0xbc, 0xaf, 0x27, 0x1c}
	gzipSig     = []byte{0x1f, 0x8b, 0x08}
	xzSig       = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	zstdSig     = []byte{0x28, 0xb5, 0x2f, 0xfd}
	ustarTag    = []byte("ustar")
)

// Compound suffixes come first so ".tar.gz" never matches as a bare ".gz".
var extensions = []struct {
	suffix string
	format Format
}{
	{".tar.gz", TarGz},
	{".tar.xz", TarXz},
	{".tar.zst", TarZstd},
	{".tar.zstd", TarZstd},
	{".zip", Zip},
	{".7z", SevenZip},
	{".tgz", TarGz},
	{".txz", TarXz},
	{".tzst", TarZstd},
}

// DetectHeader matches the magic-byte prefixes of a file's leading bytes. The
// second result is false when the caller should fall back to the filename,
// either because nothing matched or because a ustar tag means the extension
// must decide between container and compression.
func DetectHeader(header []byte) (Format, bool) {
	if hasUstar(header) {
		return Unknown, false
	}

	head := header
	if len(head) > headerSize {
		head = head[:headerSize]
	}

	switch {
	case bytes.HasPrefix(head, zipSig), bytes.HasPrefix(head, zipEmptySig):
		return Zip, true
	case bytes.HasPrefix(head, sevenZipSig):
		return SevenZip, true
	case bytes.HasPrefix(head, gzipSig):
		return TarGz, true
	case bytes.HasPrefix(head, xzSig):
		return TarXz, true
	case bytes.HasPrefix(head, zstdSig):
		return TarZstd, true
	}
	return Unknown, false
}

// FromExtension matches the lower-cased filename suffix.
func FromExtension(path string) Format {
	name := strings.ToLower(filepath.Base(path))
	for _, ext := range extensions {
		if strings.HasSuffix(name, ext.suffix) && len(name) > len(ext.suffix) {
			return ext.format
		}
	}
	return Unknown
}

// TrimExtension strips a known archive suffix from the base name of path,
// or the last extension when none matches.
func TrimExtension(path string) string {
	base := filepath.Base(path)
	lower := strings.ToLower(base)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, ext.suffix) && len(lower) > len(ext.suffix) {
			return base[:len(base)-len(ext.suffix)]
		}
	}
	if ext := filepath.Ext(base); ext != "" && ext != base {
		return strings.TrimSuffix(base, ext)
	}
	return base
}

// Sniffer detects archive formats on a filesystem. It holds no mutable state
// and may be shared between goroutines.
type Sniffer struct {
	fs afero.Fs
}

// NewSniffer returns a Sniffer reading from fsys. A nil fsys means the OS
// filesystem.
func NewSniffer(fsys afero.Fs) *Sniffer {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Sniffer{fs: fsys}
}

// Detect identifies path by content, then by extension. It fails with
// KindUnsupportedFormat when neither strategy matches.
func (s *Sniffer) Detect(path string) (Format, error) {
	header, err := s.readHeader(path)
	if err != nil {
		return Unknown, err
	}

	if format, ok := DetectHeader(header); ok {
		return format, nil
	}
	if format := FromExtension(path); format != Unknown {
		return format, nil
	}
	return Unknown, unsupported(path, header)
}

// DetectContent only consults the file's leading bytes.
func (s *Sniffer) DetectContent(path string) (Format, error) {
	header, err := s.readHeader(path)
	if err != nil {
		return Unknown, err
	}
	if format, ok := DetectHeader(header); ok {
		return format, nil
	}
	return Unknown, unsupported(path, header)
}

func (s *Sniffer) readHeader(path string) ([]byte, error) {
	file, err := s.fs.Open(path)
	if err != nil {
		return nil, failure.FromOS(path, err, failure.KindGeneral)
	}
	defer file.Close()

	return SniffReader(file)
}

// SniffReader reads up to the first 512 bytes from r. Short files are not an
// error; an empty header simply matches nothing.
func SniffReader(r io.Reader) ([]byte, error) {
	header := make([]byte, sniffSize)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return header[:n], nil
}

func hasUstar(header []byte) bool {
	end := ustarOffset + len(ustarTag)
	return len(header) >= end && bytes.Equal(header[ustarOffset:end], ustarTag)
}

func unsupported(path string, header []byte) error {
	msg := "unsupported archive format"
	if filetype.IsArchive(header) {
		if kind, err := filetype.Match(header); err == nil && kind != filetype.Unknown {
			msg = fmt.Sprintf("unsupported archive format (%s)", kind.Extension)
		}
	}
	return failure.New(failure.KindUnsupportedFormat, path, msg)
}
