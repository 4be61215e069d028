package upload

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
)

// QuotaGuard enforces the aggregate storage ceiling.
//
// Usage is recomputed with a full directory walk on every check, which is
// O(number of stored files). No lock is held between the check and the
// write, so two concurrent uploads may both pass and overshoot the ceiling
// by up to one file. The quota is a soft operational limit and this race is
// accepted.
type QuotaGuard struct {
	storage afero.Fs
	quota   int64
}

func NewQuotaGuard(storage afero.Fs, quota int64) *QuotaGuard {
	return &QuotaGuard{storage: storage, quota: quota}
}

// Usage returns the total bytes stored under the base directory, excluding
// files still in staging.
func (q *QuotaGuard) Usage(ctx context.Context) (int64, error) {
	var total int64
	err := walkArtifacts(ctx, q.storage, func(_ string, info fs.FileInfo) {
		total += info.Size()
	})
	return total, err
}

// Check rejects an incoming file whose size would push usage past the quota.
// It returns the usage measured before the incoming file.
func (q *QuotaGuard) Check(ctx context.Context, incoming int64) (int64, error) {
	used, err := q.Usage(ctx)
	if err != nil {
		return 0, err
	}
	if used+incoming > q.quota {
		return used, newError(KindQuotaExceeded, fmt.Sprintf(
			"storage quota exceeded: %s in use, %s requested, limit %s",
			humanize.IBytes(uint64(used)), humanize.IBytes(uint64(max(incoming, 0))), humanize.IBytes(uint64(q.quota)),
		), nil)
	}
	return used, nil
}
