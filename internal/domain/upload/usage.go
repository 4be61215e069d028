package upload

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"ecoportal/internal/pkg/metrics"
)

// CategoryUsage is the footprint of one storage subdirectory.
type CategoryUsage struct {
	Files int   `json:"files"`
	Bytes int64 `json:"bytes"`
}

// UsageReport summarizes what is stored under the base directory.
type UsageReport struct {
	TotalBytes int64                      `json:"total_bytes"`
	QuotaBytes int64                      `json:"quota_bytes"`
	Categories map[Category]CategoryUsage `json:"categories"`
}

// Usage walks the base directory once and groups files by category
// subdirectory. Files outside any known subdirectory count as misc.
func (p *Pipeline) Usage(ctx context.Context) (*UsageReport, error) {
	byDir := make(map[string]Category, len(p.policy.Subdirs))
	for c, dir := range p.policy.Subdirs {
		byDir[dir] = c
	}

	report := &UsageReport{
		QuotaBytes: p.policy.QuotaBytes,
		Categories: make(map[Category]CategoryUsage),
	}
	err := walkArtifacts(ctx, p.storage, func(rel string, info fs.FileInfo) {
		c, ok := byDir[topDir(rel)]
		if !ok {
			c = CategoryMisc
		}
		u := report.Categories[c]
		u.Files++
		u.Bytes += info.Size()
		report.Categories[c] = u
		report.TotalBytes += info.Size()
	})
	if err != nil {
		return nil, err
	}
	metrics.SetStoredBytes(report.TotalBytes)
	return report, nil
}

// SweepStaging removes staged files older than maxAge. They are left behind
// only when a process dies between staging and commit.
func (p *Pipeline) SweepStaging(ctx context.Context, maxAge time.Duration) (int, error) {
	dir := fsPath(stagingDir)
	entries, err := afero.ReadDir(p.storage, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, storageFault("read staging directory", err)
	}

	cutoff := p.now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if e.IsDir() || e.ModTime().After(cutoff) {
			continue
		}
		name := filepath.Join(dir, e.Name())
		if err := p.storage.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			p.log.Warn("staging sweep failed", "path", name, "err", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		p.log.Info("staging swept", "removed", removed, "max_age", maxAge)
	}
	return removed, nil
}
