package engine

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
)

// filterFiles applies include/exclude globs to the base name of every file
// entry. Directory entries are kept unless excluded, so empty folders
// survive an include filter. Excluding a directory drops everything beneath it.
func filterFiles(files []archives.FileInfo, include, exclude []string) []archives.FileInfo {
	if len(include) == 0 && len(exclude) == 0 {
		return files
	}

	var excludedDirs []string
	kept := files[:0]
	for _, f := range files {
		name := strings.TrimSuffix(f.NameInArchive, "/")
		if underAny(name, excludedDirs) {
			continue
		}
		base := path.Base(name)
		if matchAny(base, exclude) {
			if f.IsDir() {
				excludedDirs = append(excludedDirs, name)
			}
			continue
		}
		if !f.IsDir() && len(include) > 0 && !matchAny(base, include) {
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

func matchAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

func underAny(name string, dirs []string) bool {
	for _, dir := range dirs {
		if strings.HasPrefix(name, dir+"/") {
			return true
		}
	}
	return false
}

// countingOpen wraps open so that reads of the returned file are reported
// through progress.
func countingOpen(name string, open func() (fs.File, error), progress Callback) func() (fs.File, error) {
	if progress == nil || open == nil {
		return open
	}
	return func() (fs.File, error) {
		file, err := open()
		if err != nil {
			return nil, err
		}
		return &countingFile{File: file, name: name, progress: progress}, nil
	}
}

type countingFile struct {
	fs.File
	name     string
	progress Callback
}

func (f *countingFile) Read(p []byte) (int, error) {
	n, err := f.File.Read(p)
	if n > 0 {
		f.progress(f.name, int64(n))
	}
	return n, err
}

type progressWriter struct {
	w        io.Writer
	name     string
	progress Callback
}

func (pw *progressWriter) Write(p []byte) (n int, err error) {
	n, err = pw.w.Write(p)
	if n > 0 && pw.progress != nil {
		pw.progress(pw.name, int64(n))
	}
	return
}

// topLevelNames returns the names directly inside dir.
func topLevelNames(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name()] = true
	}
	return names, nil
}

// topLevel returns the first path element of an archive entry name.
func topLevel(name string) string {
	cleaned := path.Clean("/" + strings.ReplaceAll(name, `\`, "/"))
	first, _, _ := strings.Cut(strings.TrimPrefix(cleaned, "/"), "/")
	return first
}

// hoistRoot moves the contents of dir/name up into dir and removes the
// emptied folder. Nothing moves when name is not a directory or when one of
// its children would land on something already in dir. The folder is renamed
// first so that a child sharing its name can be moved without colliding.
func hoistRoot(dir, name string) (bool, error) {
	root := filepath.Join(dir, name)
	info, err := os.Lstat(root)
	if err != nil || !info.IsDir() {
		return false, err
	}

	children, err := os.ReadDir(root)
	if err != nil {
		return false, err
	}
	for _, child := range children {
		if child.Name() == name {
			continue
		}
		if _, err := os.Lstat(filepath.Join(dir, child.Name())); err == nil {
			return false, nil
		}
	}

	staging, err := os.MkdirTemp(dir, ".baler-hoist-*")
	if err != nil {
		return false, err
	}
	if err := os.Remove(staging); err != nil {
		return false, err
	}
	if err := os.Rename(root, staging); err != nil {
		return false, err
	}

	for _, child := range children {
		src := filepath.Join(staging, child.Name())
		dst := filepath.Join(dir, child.Name())
		if err := os.Rename(src, dst); err != nil {
			return false, fmt.Errorf("move %s: %w", child.Name(), err)
		}
	}
	return true, os.Remove(staging)
}
