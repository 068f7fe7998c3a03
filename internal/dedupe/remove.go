package dedupe

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fpang/caption-studio/internal/status"
	"github.com/fpang/caption-studio/internal/store"
)

// RecordDeleter removes image records. store.ImageStore satisfies it.
type RecordDeleter interface {
	DeleteImage(ctx context.Context, projectID, imageID string) error
}

// BlobRemover removes stored bytes. blobstore.Store satisfies it.
type BlobRemover interface {
	Remove(ctx context.Context, keys []string) error
}

// Remover deletes every member but the first of each duplicate group.
type Remover struct {
	records RecordDeleter
	blobs   BlobRemover
}

// NewRemover returns a Remover.
func NewRemover(records RecordDeleter, blobs BlobRemover) *Remover {
	return &Remover{records: records, blobs: blobs}
}

// RemoveDuplicates keeps the first member of each group and deletes the
// rest, record first and then blob, so a failure never leaves a record
// pointing at missing bytes. It stops at the first failure; deletions
// already made stay. The removed records are returned in deletion order.
func (r *Remover) RemoveDuplicates(ctx context.Context, groups [][]*store.ImageRecord) ([]*store.ImageRecord, error) {
	var removed []*store.ImageRecord
	for _, g := range groups {
		if len(g) < 2 {
			continue
		}
		for _, rec := range g[1:] {
			if err := r.records.DeleteImage(ctx, rec.ProjectID, rec.ID); err != nil {
				return removed, status.IO("duplicates", fmt.Errorf("delete record %s: %w", rec.OriginalName, err))
			}
			if err := r.blobs.Remove(ctx, []string{rec.StorageKey}); err != nil {
				return removed, status.IO("duplicates", fmt.Errorf("delete file %s: %w", rec.OriginalName, err))
			}
			removed = append(removed, rec)
			log.Debug().
				Str("imageId", rec.ID).
				Str("kept", g[0].ID).
				Msg("Removed duplicate image")
		}
	}

	if len(removed) == 0 {
		return nil, status.NoOpf("duplicates", "No duplicates found")
	}
	log.Info().Int("removed", len(removed)).Msg("Duplicates removed")
	return removed, nil
}

// Summary returns the status line after a removal.
func Summary(removed []*store.ImageRecord) string {
	return fmt.Sprintf("Deleted %d duplicate(s)", len(removed))
}
