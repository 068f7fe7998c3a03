// Package workspace is the application layer shared by the HTTP API and the
// CLI. It owns the record and blob stores, the per-project caption ledgers
// and every editing service, and exposes one method per user operation.
//
// Methods return status errors (see package status) so callers can tell
// user mistakes and no-ops from storage failures.
package workspace

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/caption-studio/internal/blobstore"
	"github.com/fpang/caption-studio/internal/captionedit"
	"github.com/fpang/caption-studio/internal/ingest"
	"github.com/fpang/caption-studio/internal/ledger"
	"github.com/fpang/caption-studio/internal/metrics"
	"github.com/fpang/caption-studio/internal/status"
	"github.com/fpang/caption-studio/internal/store"
	"github.com/fpang/caption-studio/internal/tokens"
)

// blobRemoveChunk bounds the number of keys passed to one blob Remove call
// when a project is deleted.
const blobRemoveChunk = 100

// Workspace serves every caption-studio operation.
type Workspace struct {
	store   store.Store
	blobs   blobstore.Store
	presign blobstore.Presigner

	ledgers  *ledger.Registry
	pipeline *ingest.Pipeline
	editor   *captionedit.Editor
	autosave *captionedit.Autosaver
	tokens   *tokens.Service

	presignExpiry time.Duration
	newID         func() string
	now           func() time.Time
}

// Options configures New. Zero values select defaults.
type Options struct {
	// Transformer rewrites images before storage, typically a
	// filehandler.Downscaler.
	Transformer ingest.Transformer

	// MaxUploadBytes bounds a single image. Zero means
	// ingest.DefaultMaxUploadBytes.
	MaxUploadBytes int64

	// AutosaveDelay is the idle time before a caption edit is written.
	// Zero means captionedit.DefaultAutosaveDelay.
	AutosaveDelay time.Duration

	// Presigner, when set, lets ImageURL hand out direct download links.
	Presigner     blobstore.Presigner
	PresignExpiry time.Duration

	// OnAutosaveError receives failures of background caption saves.
	OnAutosaveError func(projectID, imageID string, err error)

	// IDGenerator and Clock are test seams.
	IDGenerator func() string
	Clock       func() time.Time
}

// New returns a Workspace on the given stores.
func New(st store.Store, blobs blobstore.Store, opts Options) *Workspace {
	w := &Workspace{
		store:         st,
		blobs:         blobs,
		presign:       opts.Presigner,
		ledgers:       ledger.NewRegistry(),
		editor:        captionedit.NewEditor(st),
		tokens:        tokens.NewService(st),
		presignExpiry: opts.PresignExpiry,
		newID:         opts.IDGenerator,
		now:           opts.Clock,
	}
	if w.newID == nil {
		w.newID = uuid.NewString
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.presignExpiry <= 0 {
		w.presignExpiry = 15 * time.Minute
	}

	pipeOpts := []ingest.Option{ingest.WithIDGenerator(w.newID), ingest.WithClock(w.now)}
	if opts.Transformer != nil {
		pipeOpts = append(pipeOpts, ingest.WithTransformer(opts.Transformer))
	}
	if opts.MaxUploadBytes > 0 {
		pipeOpts = append(pipeOpts, ingest.WithMaxUploadBytes(opts.MaxUploadBytes))
	}
	w.pipeline = ingest.New(st, blobs, w.ledgers, pipeOpts...)

	var saveOpts []captionedit.AutosaveOption
	if opts.AutosaveDelay > 0 {
		saveOpts = append(saveOpts, captionedit.WithDelay(opts.AutosaveDelay))
	}
	if opts.OnAutosaveError != nil {
		saveOpts = append(saveOpts, captionedit.WithErrorHandler(opts.OnAutosaveError))
	}
	w.autosave = captionedit.NewAutosaver(st, saveOpts...)
	return w
}

// Close writes pending caption edits and stops the autosaver.
func (w *Workspace) Close(ctx context.Context) error {
	err := w.autosave.Flush(ctx)
	w.autosave.Stop()
	return err
}

// --- Projects ---

// CreateProject stores a new project named name (trimmed, required).
func (w *Workspace) CreateProject(ctx context.Context, name string) (*store.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, status.UserInputf("project", "Project name is required")
	}
	p := &store.Project{ID: w.newID(), Name: name, CreatedAt: w.now().UnixMilli()}
	if err := w.store.PutProject(ctx, p); err != nil {
		return nil, status.IO("project", fmt.Errorf("create project: %w", err))
	}
	log.Info().Str("projectId", p.ID).Str("name", p.Name).Msg("Project created")
	return p, nil
}

// ListProjects returns every project, newest first.
func (w *Workspace) ListProjects(ctx context.Context) ([]*store.Project, error) {
	ps, err := w.store.ListProjects(ctx)
	if err != nil {
		return nil, status.IO("project", fmt.Errorf("list projects: %w", err))
	}
	return ps, nil
}

// Project returns one project or a NotFound status.
func (w *Workspace) Project(ctx context.Context, projectID string) (*store.Project, error) {
	if projectID == "" {
		return nil, status.UserInputf("project", "Select a project first")
	}
	p, err := w.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, status.IO("project", fmt.Errorf("get project: %w", err))
	}
	if p == nil {
		return nil, status.NotFoundf("project", "Project not found")
	}
	return p, nil
}

// DeleteProject removes every blob (in chunks), every image record, every
// token and finally the project itself, then forgets its pending captions.
// It stops at the first failure.
func (w *Workspace) DeleteProject(ctx context.Context, projectID string) error {
	start := time.Now()
	if _, err := w.Project(ctx, projectID); err != nil {
		return err
	}
	if err := w.autosave.Flush(ctx); err != nil {
		log.Warn().Err(err).Msg("Pending caption saves failed before project delete")
	}

	recs, err := w.store.ListImages(ctx, projectID)
	if err != nil {
		return status.IO("project", fmt.Errorf("list images: %w", err))
	}

	keys := make([]string, 0, len(recs))
	for _, rec := range recs {
		keys = append(keys, rec.StorageKey)
	}
	for i := 0; i < len(keys); i += blobRemoveChunk {
		chunk := keys[i:min(i+blobRemoveChunk, len(keys))]
		if err := w.blobs.Remove(ctx, chunk); err != nil {
			return status.IO("project", fmt.Errorf("remove files: %w", err))
		}
	}
	for _, rec := range recs {
		if err := w.store.DeleteImage(ctx, projectID, rec.ID); err != nil {
			return status.IO("project", fmt.Errorf("delete image %s: %w", rec.OriginalName, err))
		}
	}
	if err := w.store.DeleteTokens(ctx, projectID); err != nil {
		return status.IO("project", fmt.Errorf("delete tokens: %w", err))
	}
	if err := w.store.DeleteProject(ctx, projectID); err != nil {
		return status.IO("project", fmt.Errorf("delete project: %w", err))
	}
	w.ledgers.Drop(projectID)

	metrics.Op("delete-project").
		Since("LatencyMs", start).
		Metric("ImagesDeleted", float64(len(recs)), metrics.UnitCount).
		Property("projectId", projectID).
		Flush()
	log.Info().Str("projectId", projectID).Int("images", len(recs)).Msg("Project deleted")
	return nil
}

// --- Images ---

// Images returns a project's image records, oldest first.
func (w *Workspace) Images(ctx context.Context, projectID string) ([]*store.ImageRecord, error) {
	if _, err := w.Project(ctx, projectID); err != nil {
		return nil, err
	}
	recs, err := w.store.ListImages(ctx, projectID)
	if err != nil {
		return nil, status.IO("images", fmt.Errorf("list images: %w", err))
	}
	return recs, nil
}

// Image returns one image record or a NotFound status.
func (w *Workspace) Image(ctx context.Context, projectID, imageID string) (*store.ImageRecord, error) {
	rec, err := w.store.GetImage(ctx, projectID, imageID)
	if err != nil {
		return nil, status.IO("images", fmt.Errorf("get image: %w", err))
	}
	if rec == nil {
		return nil, status.NotFoundf("images", "Image not found")
	}
	return rec, nil
}

// Upload ingests batch into a project. On a partial failure the returned
// result describes the work done before the failing item.
func (w *Workspace) Upload(ctx context.Context, projectID string, batch []ingest.UploadItem) (*ingest.Result, error) {
	start := time.Now()
	existing, err := w.Images(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := w.autosave.Flush(ctx); err != nil {
		log.Warn().Err(err).Msg("Pending caption saves failed before upload")
	}

	res, err := w.pipeline.Ingest(ctx, projectID, batch, existing)
	if res != nil {
		metrics.Op("upload").
			Since("LatencyMs", start).
			Metric("ImagesUploaded", float64(len(res.Created)), metrics.UnitCount).
			Metric("CaptionsApplied", float64(res.AppliedCaptions), metrics.UnitCount).
			Metric("CaptionsStaged", float64(len(res.Staged)), metrics.UnitCount).
			Metric("FilesSkipped", float64(len(res.Skipped)), metrics.UnitCount).
			Property("projectId", projectID).
			Flush()
	}
	return res, err
}

// Pending returns captions waiting for their image, sorted by key.
func (w *Workspace) Pending(ctx context.Context, projectID string) ([]ledger.Pending, error) {
	if _, err := w.Project(ctx, projectID); err != nil {
		return nil, err
	}
	return w.ledgers.For(projectID).Snapshot(), nil
}

// ClearPending drops every caption waiting for its image.
func (w *Workspace) ClearPending(ctx context.Context, projectID string) (int, error) {
	if _, err := w.Project(ctx, projectID); err != nil {
		return 0, err
	}
	l := w.ledgers.For(projectID)
	n := l.Len()
	l.Clear()
	return n, nil
}

// SetCaption replaces one caption. Unless immediate is set the write is
// debounced through the autosaver and only the record's existence is
// checked now.
func (w *Workspace) SetCaption(ctx context.Context, projectID, imageID, text string, immediate bool) error {
	if _, err := w.Image(ctx, projectID, imageID); err != nil {
		return err
	}
	if !immediate {
		w.autosave.Schedule(projectID, imageID, text)
		return nil
	}
	if err := w.store.UpdateCaption(ctx, projectID, imageID, text); err != nil {
		return status.IO("caption", fmt.Errorf("save caption: %w", err))
	}
	return nil
}

// FlushCaptions writes every debounced caption edit now.
func (w *Workspace) FlushCaptions(ctx context.Context) error {
	if err := w.autosave.Flush(ctx); err != nil {
		return status.IO("caption", err)
	}
	return nil
}

// DeleteImage removes one image record and then its blob.
func (w *Workspace) DeleteImage(ctx context.Context, projectID, imageID string) error {
	rec, err := w.Image(ctx, projectID, imageID)
	if err != nil {
		return err
	}
	w.autosave.Cancel(projectID, imageID)
	if err := w.store.DeleteImage(ctx, projectID, imageID); err != nil {
		return status.IO("images", fmt.Errorf("delete record %s: %w", rec.OriginalName, err))
	}
	if err := w.blobs.Remove(ctx, []string{rec.StorageKey}); err != nil {
		return status.IO("images", fmt.Errorf("delete file %s: %w", rec.OriginalName, err))
	}
	log.Info().Str("imageId", imageID).Msg("Image deleted")
	return nil
}

// OpenImage opens the stored bytes of one image.
func (w *Workspace) OpenImage(ctx context.Context, projectID, imageID string) (*store.ImageRecord, io.ReadCloser, error) {
	rec, err := w.Image(ctx, projectID, imageID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := w.blobs.Get(ctx, rec.StorageKey)
	if err != nil {
		return nil, nil, status.IO("images", fmt.Errorf("open %s: %w", rec.OriginalName, err))
	}
	return rec, rc, nil
}

// ImageURL returns a pre-signed download URL for one image. ok is false
// when the blob store cannot presign; callers then stream via OpenImage.
func (w *Workspace) ImageURL(ctx context.Context, projectID, imageID string) (url string, ok bool, err error) {
	if w.presign == nil {
		return "", false, nil
	}
	rec, err := w.Image(ctx, projectID, imageID)
	if err != nil {
		return "", false, err
	}
	url, err = w.presign.PresignGet(ctx, rec.StorageKey, w.presignExpiry)
	if err != nil {
		return "", false, status.IO("images", fmt.Errorf("presign %s: %w", rec.OriginalName, err))
	}
	return url, true, nil
}
