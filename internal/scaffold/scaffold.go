// Package scaffold generates a starter emails directory.
package scaffold

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/conneroisu/postcard/internal/config"
	perrors "github.com/conneroisu/postcard/internal/errors"
)

//go:embed all:skeleton
var skeletonFS embed.FS

// Skeleton returns the starter tree rooted at its top directory.
func Skeleton() fs.FS {
	sub, err := fs.Sub(skeletonFS, "skeleton")
	if err != nil {
		panic(err)
	}
	return sub
}

// SkeletonFiles lists the files Generate writes, slash-separated and sorted.
func SkeletonFiles() []string {
	var files []string
	_ = fs.WalkDir(Skeleton(), ".", func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, path)
		}
		return err
	})
	sort.Strings(files)
	return files
}

// FindExisting returns an existing emails directory under root, preferring
// src/emails over emails.
func FindExisting(root string) (string, bool) {
	return config.FindEmailsDir(root)
}

// SuggestPath returns where a new emails directory should go: src/emails
// when root has a src directory, emails otherwise.
func SuggestPath(root string) string {
	if info, err := os.Stat(filepath.Join(root, "src")); err == nil && info.IsDir() {
		return filepath.Join(root, "src", "emails")
	}
	return filepath.Join(root, "emails")
}

// Generate copies the skeleton into dest and returns the files written. It
// refuses to overwrite: if any target file exists nothing is written.
func Generate(dest string) ([]string, error) {
	files := SkeletonFiles()

	for _, name := range files {
		target := filepath.Join(dest, filepath.FromSlash(name))
		if _, err := os.Lstat(target); err == nil {
			return nil, perrors.NewValidationError(perrors.ErrCodeFileExists,
				fmt.Sprintf("refusing to overwrite %s", target))
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, perrors.NewIOError(perrors.ErrCodeFileRead, "checking destination", err).WithLocation(target, 0)
		}
	}

	skeleton := Skeleton()
	written := make([]string, 0, len(files))
	for _, name := range files {
		content, err := fs.ReadFile(skeleton, name)
		if err != nil {
			return written, err
		}

		target := filepath.Join(dest, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return written, perrors.NewIOError(perrors.ErrCodeFileWrite, "creating directory", err).WithLocation(filepath.Dir(target), 0)
		}
		// O_EXCL closes the window between the check above and the write.
		f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return written, perrors.NewIOError(perrors.ErrCodeFileWrite, "creating file", err).WithLocation(target, 0)
		}
		_, err = f.Write(content)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return written, perrors.NewIOError(perrors.ErrCodeFileWrite, "writing file", err).WithLocation(target, 0)
		}
		written = append(written, target)
	}
	return written, nil
}
