package upload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const rootDir = "/"

// OpenStorage creates the base directory and returns a filesystem rooted
// at it. Callers must treat an error as fatal: serving uploads without a
// usable storage root is not allowed.
func OpenStorage(policy Policy) (afero.Fs, error) {
	abs, err := filepath.Abs(policy.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory %s: %w", abs, err)
	}
	probe, err := os.CreateTemp(abs, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("upload directory %s is not writable: %w", abs, err)
	}
	probe.Close()
	_ = os.Remove(probe.Name())

	return afero.NewBasePathFs(afero.NewOsFs(), abs), nil
}

// fsPath converts a slash-separated relative path into a path on the
// storage filesystem.
func fsPath(rel string) string {
	return filepath.Join(rootDir, filepath.FromSlash(rel))
}

// relPath is the inverse of fsPath.
func relPath(name string) string {
	return strings.TrimPrefix(filepath.ToSlash(filepath.Clean(name)), "/")
}

// walkArtifacts visits every regular file under the base directory except
// the staging area.
func walkArtifacts(ctx context.Context, storage afero.Fs, fn func(rel string, info fs.FileInfo)) error {
	staging := fsPath(stagingDir)
	err := afero.Walk(storage, rootDir, func(name string, info fs.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() {
			if name == staging {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Mode().IsRegular() {
			fn(relPath(name), info)
		}
		return nil
	})
	if err != nil {
		return storageFault("scan upload directory", err)
	}
	return nil
}

// topDir returns the first segment of a slash-separated path.
func topDir(rel string) string {
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		return rel[:i]
	}
	return path.Clean(rel)
}

// PublicFS serves committed artifacts over HTTP. Directories and the
// staging area are reported as missing so nothing can be listed.
func PublicFS(storage afero.Fs) http.FileSystem {
	return publicFS{fs: afero.NewHttpFs(storage).Dir(rootDir)}
}

type publicFS struct {
	fs http.FileSystem
}

func (p publicFS) Open(name string) (http.File, error) {
	if topDir(relPath(name)) == stagingDir {
		return nil, fs.ErrNotExist
	}
	f, err := p.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}
