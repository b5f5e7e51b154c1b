package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	yzip "github.com/yeka/zip"

	"baler/internal/failure"
	"baler/pkg/archfmt"
)

func TestPackExtractRoundTrip(t *testing.T) {
	for _, format := range []archfmt.Format{archfmt.Zip, archfmt.TarGz, archfmt.TarXz, archfmt.TarZstd} {
		t.Run(format.String(), func(t *testing.T) {
			dir := t.TempDir()
			src := buildTree(t, dir)
			out := filepath.Join(dir, "out", "project"+format.Extension())

			a := NewArchiver()
			var progressed int64
			packed, err := a.Pack(context.Background(), []string{src}, out, PackOptions{Format: format}, func(_ string, n int64) {
				progressed += n
			})
			if err != nil {
				t.Fatalf("Pack: %v", err)
			}
			if packed.FilesProcessed != 3 {
				t.Fatalf("FilesProcessed = %d, want 3", packed.FilesProcessed)
			}
			if packed.CompressedSize == 0 || progressed != packed.UncompressedSize {
				t.Fatalf("sizes: compressed=%d progressed=%d uncompressed=%d", packed.CompressedSize, progressed, packed.UncompressedSize)
			}

			got, err := archfmt.NewSniffer(nil).Detect(out)
			if err != nil || got != format {
				t.Fatalf("sniffed %v, %v; want %v", got, err, format)
			}

			dest := filepath.Join(dir, "extracted")
			res, err := a.Extract(context.Background(), out, dest, ExtractOptions{}, nil, nil)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if res.FilesExtracted != 3 || res.ArchiveSize != packed.CompressedSize {
				t.Fatalf("extract result = %+v", res)
			}
			assertFile(t, filepath.Join(dest, "project", "sub", "deep.txt"), "deep")
		})
	}
}

func TestExtractHoistsSingleRoot(t *testing.T) {
	dir := t.TempDir()
	src := buildTree(t, dir)
	out := filepath.Join(dir, "project.zip")

	a := NewArchiver()
	if _, err := a.Pack(context.Background(), []string{src}, out, PackOptions{Format: archfmt.Zip}, nil); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	dest := filepath.Join(dir, "hoisted")
	res, err := a.Extract(context.Background(), out, dest, ExtractOptions{Hoist: true}, nil, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !res.Hoisted {
		t.Fatal("expected the single root directory to be hoisted")
	}
	assertFile(t, filepath.Join(dest, "readme.md"), "hello")
	assertFile(t, filepath.Join(dest, "sub", "deep.txt"), "deep")
}

func TestExtractLeavesExistingFoldersAlone(t *testing.T) {
	dir := t.TempDir()
	a := NewArchiver()

	// An archive whose only root has the same name as a folder the user
	// already keeps in the destination.
	theirs := filepath.Join(dir, "src", "notes")
	writeFile(t, filepath.Join(theirs, "theirs.txt"), "theirs")
	notesZip := filepath.Join(dir, "notes.zip")
	if _, err := a.Pack(context.Background(), []string{theirs}, notesZip, PackOptions{Format: archfmt.Zip}, nil); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	dest := filepath.Join(dir, "dest")
	writeFile(t, filepath.Join(dest, "notes", "mine.txt"), "mine")

	res, err := a.Extract(context.Background(), notesZip, dest, ExtractOptions{Hoist: true}, nil, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Hoisted {
		t.Fatal("a folder that existed before extraction must not be hoisted")
	}
	assertFile(t, filepath.Join(dest, "notes", "mine.txt"), "mine")
	assertFile(t, filepath.Join(dest, "notes", "theirs.txt"), "theirs")

	// A new single root is still hoisted next to the user's folder.
	src := buildTree(t, dir)
	projectZip := filepath.Join(dir, "project.zip")
	if _, err := a.Pack(context.Background(), []string{src}, projectZip, PackOptions{Format: archfmt.Zip}, nil); err != nil {
		t.Fatalf("Pack: %v", err)
	}
	res, err = a.Extract(context.Background(), projectZip, dest, ExtractOptions{Hoist: true}, nil, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !res.Hoisted {
		t.Fatal("expected the new project folder to be hoisted")
	}
	assertFile(t, filepath.Join(dest, "readme.md"), "hello")
	assertFile(t, filepath.Join(dest, "notes", "mine.txt"), "mine")
	if _, err := os.Stat(filepath.Join(dest, "project")); !os.IsNotExist(err) {
		t.Fatalf("project folder should be gone after hoisting, stat err = %v", err)
	}
}

func TestHoistKeepsSameNamedChild(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "pkg", "pkg")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(nested, "a.txt"), "a")

	hoisted, err := hoistRoot(dir, "pkg")
	if err != nil || !hoisted {
		t.Fatalf("hoistRoot = %v, %v", hoisted, err)
	}
	assertFile(t, filepath.Join(dir, "pkg", "a.txt"), "a")
}

func TestHoistSkipsCollisions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "one", "loose.txt"), "archive")
	writeFile(t, filepath.Join(dir, "loose.txt"), "user")

	hoisted, err := hoistRoot(dir, "one")
	if err != nil || hoisted {
		t.Fatalf("hoistRoot = %v, %v; want no hoist", hoisted, err)
	}
	assertFile(t, filepath.Join(dir, "loose.txt"), "user")
	assertFile(t, filepath.Join(dir, "one", "loose.txt"), "archive")
}

func TestHoistSkipsFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "single.txt"), "x")

	hoisted, err := hoistRoot(dir, "single.txt")
	if err != nil || hoisted {
		t.Fatalf("hoistRoot = %v, %v; want no hoist", hoisted, err)
	}
}

func TestTopLevel(t *testing.T) {
	cases := map[string]string{
		"project/readme.md": "project",
		"project/":          "project",
		"/abs/file":         "abs",
		"./a/b":             "a",
		`win\dir\f.txt`:     "win",
		"loose.txt":         "loose.txt",
	}
	for in, want := range cases {
		if got := topLevel(in); got != want {
			t.Errorf("topLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEncryptedZip(t *testing.T) {
	methods := map[string]yzip.EncryptionMethod{
		"zipcrypto": yzip.StandardEncryption,
		"aes256":    yzip.AES256Encryption,
	}
	for name, method := range methods {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			locked := filepath.Join(dir, "locked.zip")
			writeEncryptedZip(t, locked, "s3cret", method, map[string]string{
				"secret/a.txt": "alpha",
				"secret/b.txt": "bravo",
			})
			a := NewArchiver()

			listed, err := a.List(context.Background(), locked, ExtractOptions{})
			if err != nil {
				t.Fatalf("List without password: %v", err)
			}
			if len(listed.Entries) != 2 || listed.ArchiveSize == 0 {
				t.Fatalf("list = %+v", listed)
			}

			_, err = a.Extract(context.Background(), locked, filepath.Join(dir, "none"), ExtractOptions{}, nil, nil)
			if !failure.Is(err, failure.KindInvalidPassword) {
				t.Fatalf("no password: got %v, want invalid password", err)
			}

			res, err := a.Extract(context.Background(), locked, filepath.Join(dir, "wrong"), ExtractOptions{Password: "guess"}, nil, nil)
			if !failure.Is(err, failure.KindInvalidPassword) {
				t.Fatalf("wrong password: got %v, want invalid password", err)
			}
			if res.ArchiveSize != 0 {
				t.Fatalf("failed extraction reported ArchiveSize %d", res.ArchiveSize)
			}

			dest := filepath.Join(dir, "right")
			var streamed int64
			res, err = a.Extract(context.Background(), locked, dest, ExtractOptions{Password: "s3cret"}, func(_ string, n int64) {
				streamed += n
			}, nil)
			if err != nil {
				t.Fatalf("right password: %v", err)
			}
			if res.FilesExtracted != 2 || streamed != int64(len("alpha")+len("bravo")) {
				t.Fatalf("extract = %+v streamed=%d", res, streamed)
			}
			assertFile(t, filepath.Join(dest, "secret", "a.txt"), "alpha")
			assertFile(t, filepath.Join(dest, "secret", "b.txt"), "bravo")
		})
	}
}

func TestExtractSkipsExistingWithoutOverwrite(t *testing.T) {
	dir := t.TempDir()
	src := buildTree(t, dir)
	out := filepath.Join(dir, "project.tar.gz")
	a := NewArchiver()
	if _, err := a.Pack(context.Background(), []string{src}, out, PackOptions{Format: archfmt.TarGz}, nil); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	dest := filepath.Join(dir, "dest")
	writeFile(t, filepath.Join(dest, "project", "readme.md"), "local edits")

	var warnings []string
	res, err := a.Extract(context.Background(), out, dest, ExtractOptions{}, nil, func(msg string) {
		warnings = append(warnings, msg)
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.SkippedFiles != 1 || len(warnings) != 1 {
		t.Fatalf("skipped=%d warnings=%v", res.SkippedFiles, warnings)
	}
	assertFile(t, filepath.Join(dest, "project", "readme.md"), "local edits")

	if _, err := a.Extract(context.Background(), out, dest, ExtractOptions{Overwrite: true}, nil, nil); err != nil {
		t.Fatalf("Extract overwrite: %v", err)
	}
	assertFile(t, filepath.Join(dest, "project", "readme.md"), "hello")
}

func TestPackRefusesExistingOutput(t *testing.T) {
	dir := t.TempDir()
	src := buildTree(t, dir)
	out := filepath.Join(dir, "exists.zip")
	writeFile(t, out, "old")

	_, err := NewArchiver().Pack(context.Background(), []string{src}, out, PackOptions{Format: archfmt.Zip}, nil)
	if err == nil {
		t.Fatal("expected refusal to overwrite")
	}
	assertFile(t, out, "old")
}

func TestPackFilters(t *testing.T) {
	dir := t.TempDir()
	src := buildTree(t, dir)
	writeFile(t, filepath.Join(src, "debug.log"), "noise")
	out := filepath.Join(dir, "filtered.zip")

	a := NewArchiver()
	_, err := a.Pack(context.Background(), []string{src}, out, PackOptions{
		Format:  archfmt.Zip,
		Include: []string{"*.md", "*.log", "*.txt"},
		Exclude: []string{"*.log", "sub"},
	}, nil)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	listed, err := a.List(context.Background(), out, ExtractOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var files []string
	for _, e := range listed.Entries {
		if !e.IsDir {
			files = append(files, filepath.Base(e.Name))
		}
	}
	sort.Strings(files)
	want := []string{"notes.txt", "readme.md"}
	if len(files) != len(want) || files[0] != want[0] || files[1] != want[1] {
		t.Fatalf("files = %v, want %v", files, want)
	}
}

func TestPackOrderIsStable(t *testing.T) {
	dir := t.TempDir()
	zeta := filepath.Join(dir, "in", "zeta.txt")
	alpha := filepath.Join(dir, "in", "alpha")
	writeFile(t, zeta, "z")
	writeFile(t, filepath.Join(alpha, "one.txt"), "1")
	writeFile(t, filepath.Join(dir, "in", "mid.txt"), "m")
	mid := filepath.Join(dir, "in", "mid.txt")

	a := NewArchiver()
	var orders [][]string
	for i, inputs := range [][]string{{zeta, mid, alpha}, {alpha, zeta, mid}, {mid, alpha, zeta}} {
		out := filepath.Join(dir, fmt.Sprintf("bundle-%d.zip", i))
		if _, err := a.Pack(context.Background(), inputs, out, PackOptions{Format: archfmt.Zip}, nil); err != nil {
			t.Fatalf("Pack: %v", err)
		}
		listed, err := a.List(context.Background(), out, ExtractOptions{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		var names []string
		for _, e := range listed.Entries {
			names = append(names, e.Name)
		}
		orders = append(orders, names)
	}

	if len(orders[0]) == 0 || orders[0][0] != "alpha/" && orders[0][0] != "alpha" {
		t.Fatalf("first entry = %v, want the alpha folder", orders[0])
	}
	for _, names := range orders[1:] {
		if strings.Join(names, ",") != strings.Join(orders[0], ",") {
			t.Fatalf("entry order changed with input order:\n%v\n%v", orders[0], names)
		}
	}
}

func TestPackUnsupported(t *testing.T) {
	dir := t.TempDir()
	src := buildTree(t, dir)
	a := NewArchiver()

	_, err := a.Pack(context.Background(), []string{src}, filepath.Join(dir, "x.7z"), PackOptions{Format: archfmt.SevenZip}, nil)
	if !failure.Is(err, failure.KindUnsupportedFormat) {
		t.Fatalf("7z pack error = %v", err)
	}
	_, err = a.Pack(context.Background(), []string{src}, filepath.Join(dir, "x.zip"), PackOptions{Format: archfmt.Zip, Password: "pw"}, nil)
	if !failure.Is(err, failure.KindUnsupportedFormat) {
		t.Fatalf("password pack error = %v", err)
	}
}

func TestExtractCorrupted(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "broken.zip")
	writeFile(t, bad, "PK\x03\x04 this is not really a zip file")

	res, err := NewArchiver().Extract(context.Background(), bad, filepath.Join(dir, "out"), ExtractOptions{}, nil, nil)
	if !failure.Is(err, failure.KindCorruptedArchive) {
		t.Fatalf("expected corrupted archive, got %v", err)
	}
	if res.ArchiveSize != 0 {
		t.Fatalf("failed extraction reported ArchiveSize %d", res.ArchiveSize)
	}
}

func TestExtractMissingArchive(t *testing.T) {
	_, err := NewArchiver().Extract(context.Background(), filepath.Join(t.TempDir(), "nope.zip"), t.TempDir(), ExtractOptions{}, nil, nil)
	if !failure.Is(err, failure.KindFileNotFound) {
		t.Fatalf("expected file not found, got %v", err)
	}
}

func TestClassifyExtractError(t *testing.T) {
	cases := []struct {
		err      error
		password string
		want     failure.Kind
	}{
		{errors.New("7z: wrong password"), "", failure.KindInvalidPassword},
		{errors.New("zip: unsupported encryption"), "", failure.KindInvalidPassword},
		{errors.New("zip: authentication failed"), "secret", failure.KindInvalidPassword},
		{errors.New("zip: decryption error"), "secret", failure.KindInvalidPassword},
		{errors.New("checksum mismatch"), "secret", failure.KindInvalidPassword},
		{errors.New("checksum mismatch"), "", failure.KindCorruptedArchive},
		{errors.New("unexpected EOF"), "", failure.KindCorruptedArchive},
	}
	for _, tc := range cases {
		if got := failure.KindOf(classifyExtractError("a", tc.password, tc.err)); got != tc.want {
			t.Errorf("classify(%q, pw=%q) = %v, want %v", tc.err, tc.password, got, tc.want)
		}
	}
}

func TestClassifyDecryptError(t *testing.T) {
	if got := failure.KindOf(classifyDecryptError("a", "pw", errors.New("flate: corrupt input before offset 5"))); got != failure.KindInvalidPassword {
		t.Errorf("decompressor noise = %v, want invalid password", got)
	}
	pathErr := &os.PathError{Op: "open", Path: "/x", Err: os.ErrPermission}
	if got := failure.KindOf(classifyDecryptError("a", "pw", fmt.Errorf("copy a.txt: %w", pathErr))); got != failure.KindPermissionDenied {
		t.Errorf("filesystem error = %v, want permission denied", got)
	}
	if got := failure.KindOf(classifyDecryptError("a", "", errors.New("unexpected EOF"))); got != failure.KindCorruptedArchive {
		t.Errorf("no password = %v, want corrupted archive", got)
	}
}

func TestSecurePath(t *testing.T) {
	root := filepath.Join(t.TempDir(), "root")
	if _, ok := securePath(root, "../../etc/passwd"); ok {
		t.Fatal("traversal entry accepted")
	}
	if _, ok := securePath(root, "a/../../b"); ok {
		t.Fatal("nested traversal accepted")
	}
	got, ok := securePath(root, "/abs/file.txt")
	if !ok || got != filepath.Join(root, "abs", "file.txt") {
		t.Fatalf("absolute entry = %q, %v", got, ok)
	}
	if _, ok := securePath(root, "..hidden/file"); !ok {
		t.Fatal("dot-dot prefixed name should be allowed")
	}
}

func buildTree(t *testing.T, dir string) string {
	t.Helper()
	src := filepath.Join(dir, "project")
	writeFile(t, filepath.Join(src, "readme.md"), "hello")
	writeFile(t, filepath.Join(src, "notes.txt"), "notes")
	writeFile(t, filepath.Join(src, "sub", "deep.txt"), "deep")
	return src
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeEncryptedZip(t *testing.T, path, password string, method yzip.EncryptionMethod, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	zw := yzip.NewWriter(f)
	for _, name := range names {
		w, err := zw.Encrypt(name, password, method)
		if err != nil {
			t.Fatalf("encrypt %s: %v", name, err)
		}
		if _, err := io.WriteString(w, files[name]); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
}

func assertFile(t *testing.T, path, want string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if string(data) != want {
		t.Fatalf("%s = %q, want %q", path, data, want)
	}
}
