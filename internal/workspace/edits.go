package workspace

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/caption-studio/internal/dedupe"
	"github.com/fpang/caption-studio/internal/export"
	"github.com/fpang/caption-studio/internal/metrics"
	"github.com/fpang/caption-studio/internal/rename"
	"github.com/fpang/caption-studio/internal/status"
	"github.com/fpang/caption-studio/internal/store"
)

// selectImages returns the project's records, optionally restricted to ids
// (in project order). Bulk edits call it after flushing pending caption
// saves so they start from the stored text.
func (w *Workspace) selectImages(ctx context.Context, projectID string, ids []string) ([]*store.ImageRecord, error) {
	if err := w.autosave.Flush(ctx); err != nil {
		return nil, status.IO("caption", err)
	}
	recs, err := w.Images(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return recs, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := recs[:0:0]
	for _, rec := range recs {
		if want[rec.ID] {
			out = append(out, rec)
		}
	}
	return out, nil
}

// AddPrefix prepends prefix to the captions of the selected images (all
// images when ids is empty).
func (w *Workspace) AddPrefix(ctx context.Context, projectID string, ids []string, prefix string, skipExisting bool) (int, error) {
	recs, err := w.selectImages(ctx, projectID, ids)
	if err != nil {
		return 0, err
	}
	return w.editor.AddPrefix(ctx, recs, prefix, skipExisting)
}

// SearchReplace replaces find with replace in the selected captions.
func (w *Workspace) SearchReplace(ctx context.Context, projectID string, ids []string, find, replace string) (int, error) {
	recs, err := w.selectImages(ctx, projectID, ids)
	if err != nil {
		return 0, err
	}
	return w.editor.SearchReplace(ctx, recs, find, replace)
}

// InsertToken appends token to the selected captions and returns the
// updated records.
func (w *Workspace) InsertToken(ctx context.Context, projectID string, ids []string, token string) ([]*store.ImageRecord, error) {
	if len(ids) == 0 {
		return nil, status.UserInputf("token", "Select card(s) or click a caption first.")
	}
	recs, err := w.selectImages(ctx, projectID, ids)
	if err != nil {
		return nil, err
	}
	if _, err := w.editor.InsertToken(ctx, recs, token); err != nil {
		return nil, err
	}
	return recs, nil
}

// --- Duplicates ---

// FindDuplicates groups a project's images by strategy. No duplicates is
// a NoOp status.
func (w *Workspace) FindDuplicates(ctx context.Context, projectID string, strategy dedupe.Strategy) ([][]*store.ImageRecord, error) {
	recs, err := w.Images(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sc := dedupe.NewScanner(w.blobs, w.store)
	sc.Strategy = strategy
	return sc.FindGroups(ctx, recs)
}

// RemoveDuplicates finds the groups again and deletes every member but the
// first. Removed records are returned even when a deletion fails midway.
func (w *Workspace) RemoveDuplicates(ctx context.Context, projectID string, strategy dedupe.Strategy) ([]*store.ImageRecord, error) {
	start := time.Now()
	groups, err := w.FindDuplicates(ctx, projectID, strategy)
	if err != nil {
		return nil, err
	}
	removed, err := dedupe.NewRemover(w.store, w.blobs).RemoveDuplicates(ctx, groups)
	for _, rec := range removed {
		w.autosave.Cancel(projectID, rec.ID)
	}
	metrics.Op("remove-duplicates").
		Since("LatencyMs", start).
		Metric("ImagesDeleted", float64(len(removed)), metrics.UnitCount).
		Property("projectId", projectID).
		Property("strategy", strategy.String()).
		Flush()
	return removed, err
}

// --- Rename ---

// Rename renumbers every image of a project as <base>_<NNN><ext>. With
// dryRun set only the plan is returned.
func (w *Workspace) Rename(ctx context.Context, projectID, baseName string, order rename.Order, dryRun bool) ([]rename.Rename, rename.Result, error) {
	recs, err := w.Images(ctx, projectID)
	if err != nil {
		return nil, rename.Result{}, err
	}
	plan, err := rename.Plan(recs, baseName, order)
	if err != nil {
		return nil, rename.Result{}, err
	}
	if dryRun {
		return plan, rename.Result{}, nil
	}
	res, err := rename.Apply(ctx, plan, w.blobs, w.store)
	if err != nil {
		log.Error().Err(err).Str("projectId", projectID).Int("renamed", res.Renamed).Msg("Rename stopped")
	}
	return plan, res, err
}

// --- Export ---

// Export writes a ZIP of the project's images and captions to out.
func (w *Workspace) Export(ctx context.Context, out io.Writer, projectID string, opts export.Options) (export.Summary, error) {
	start := time.Now()
	recs, err := w.selectImages(ctx, projectID, nil)
	if err != nil {
		return export.Summary{}, err
	}
	sum, err := export.Write(ctx, out, recs, w.blobs, opts)
	if err != nil {
		return sum, err
	}
	metrics.Op("export").
		Since("LatencyMs", start).
		Metric("ImagesExported", float64(sum.Images), metrics.UnitCount).
		Metric("CaptionsExported", float64(sum.Captions), metrics.UnitCount).
		Property("projectId", projectID).
		Flush()
	return sum, nil
}

// --- Tokens ---

// Tokens lists a project's tokens.
func (w *Workspace) Tokens(ctx context.Context, projectID string) ([]string, error) {
	if _, err := w.Project(ctx, projectID); err != nil {
		return nil, err
	}
	return w.tokens.List(ctx, projectID)
}

// AddTokens parses input and stores the new values.
func (w *Workspace) AddTokens(ctx context.Context, projectID, input string) ([]string, error) {
	if _, err := w.Project(ctx, projectID); err != nil {
		return nil, err
	}
	return w.tokens.Add(ctx, projectID, input)
}

// DeleteToken removes one token.
func (w *Workspace) DeleteToken(ctx context.Context, projectID, value string) error {
	if _, err := w.Project(ctx, projectID); err != nil {
		return err
	}
	if err := w.tokens.Delete(ctx, projectID, value); err != nil {
		return err
	}
	log.Info().Str("projectId", projectID).Str("token", value).Msg("Token deleted")
	return nil
}
