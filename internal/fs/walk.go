package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Entry is a file or directory found under a scanned root.
type Entry struct {
	RelPath string // slash-separated, relative to the root
	IsDir   bool
	Size    int64
	ModTime time.Time
	Info    fs.FileInfo
}

// Walk lists regular files and directories under root in lexical order.
// The root itself is not returned. Ignored directories are pruned with
// their contents, and symlinks, devices, pipes and sockets are skipped.
// skipDirs names root-relative directories that are always pruned.
func Walk(root string, matcher *IgnoreMatcher, skipDirs ...string) ([]Entry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", root)
	}

	skip := make(map[string]bool, len(skipDirs))
	for _, d := range skipDirs {
		skip[filepath.ToSlash(d)] = true
	}

	var entries []Entry
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", p, err)
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if skip[rel] || (matcher != nil && matcher.Match(rel, true)) {
				return filepath.SkipDir
			}
		} else {
			if !d.Type().IsRegular() {
				return nil
			}
			if matcher != nil && matcher.Match(rel, false) {
				return nil
			}
		}

		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		e := Entry{RelPath: rel, IsDir: d.IsDir(), ModTime: fi.ModTime(), Info: fi}
		if !e.IsDir {
			e.Size = fi.Size()
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return entries, nil
}

// HashFile returns the hex SHA-256 of the file's contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
