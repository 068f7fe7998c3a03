// Package ingest turns a batch of uploaded files into stored images with
// their captions attached.
//
// A batch may mix images and .txt caption files in any order. Captions are
// matched to images by NameKey: against records that already exist, against
// images created by the same batch, or, failing both, staged in the
// project's ledger until a matching image arrives in a later batch.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/caption-studio/internal/blobstore"
	"github.com/fpang/caption-studio/internal/filehandler"
	"github.com/fpang/caption-studio/internal/ledger"
	"github.com/fpang/caption-studio/internal/namekey"
	"github.com/fpang/caption-studio/internal/status"
	"github.com/fpang/caption-studio/internal/store"
)

// DefaultMaxUploadBytes bounds a single image before transformation.
const DefaultMaxUploadBytes = 50 * 1024 * 1024

// MaxCaptionBytes bounds a single caption file.
const MaxCaptionBytes = 1 << 20

// Transformer rewrites an image before it is stored, typically to downscale
// it. Implementations return the input unchanged when nothing needs doing.
type Transformer interface {
	Transform(ctx context.Context, img filehandler.Image) (filehandler.Image, error)
}

// Skip records a file that was not ingested and why.
type Skip struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// Result describes what one Ingest call did.
type Result struct {
	// Created lists new image records in batch order.
	Created []*store.ImageRecord `json:"created"`

	// Updated lists pre-existing records whose caption was replaced.
	Updated []*store.ImageRecord `json:"updated"`

	// AppliedCaptions counts caption applications, to new and existing images.
	AppliedCaptions int `json:"appliedCaptions"`

	// Staged lists NameKeys of captions left pending in the ledger.
	Staged []string `json:"staged"`

	Skipped []Skip `json:"skipped"`
}

// Summary returns the status line shown after an upload.
func (r *Result) Summary() string {
	return fmt.Sprintf("Uploaded %d image(s) • Applied %d caption(s)", len(r.Created), r.AppliedCaptions)
}

func (r *Result) markUpdated(rec *store.ImageRecord) {
	for _, u := range r.Updated {
		if u == rec {
			return
		}
	}
	r.Updated = append(r.Updated, rec)
}

// BatchError reports the item a batch stopped at. Work done on earlier
// items stays committed; later items were not attempted.
type BatchError struct {
	Index    int // zero-based position in the submitted batch
	Filename string
	Err      error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("item %d (%s): %v", e.Index+1, e.Filename, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// Pipeline ingests batches for any number of projects. One batch runs at a
// time; concurrent calls queue on an internal mutex.
type Pipeline struct {
	mu sync.Mutex

	images    store.ImageStore
	blobs     blobstore.Store
	ledgers   *ledger.Registry
	transform Transformer

	maxUploadBytes int64
	newID          func() string
	now            func() time.Time

	// lastCreated keeps CreatedAt strictly increasing so batch order
	// survives stores that sort by it.
	lastCreated int64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTransformer sets the image transform hook.
func WithTransformer(t Transformer) Option {
	return func(p *Pipeline) { p.transform = t }
}

// WithMaxUploadBytes overrides DefaultMaxUploadBytes. n <= 0 disables the limit.
func WithMaxUploadBytes(n int64) Option {
	return func(p *Pipeline) { p.maxUploadBytes = n }
}

// WithIDGenerator overrides UUID generation for new records.
func WithIDGenerator(fn func() string) Option {
	return func(p *Pipeline) { p.newID = fn }
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(fn func() time.Time) Option {
	return func(p *Pipeline) { p.now = fn }
}

// New returns a pipeline writing records to images and bytes to blobs.
// Pending captions are kept in ledgers, one per project.
func New(images store.ImageStore, blobs blobstore.Store, ledgers *ledger.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{
		images:         images,
		blobs:          blobs,
		ledgers:        ledgers,
		maxUploadBytes: DefaultMaxUploadBytes,
		newID:          uuid.NewString,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type indexedItem struct {
	index int
	item  UploadItem
}

// Ingest processes batch for projectID. existing holds the project's current
// records; captions are matched against them first, and when several share a
// NameKey the earliest in existing wins. Records in existing that receive a
// caption are updated in place.
//
// Captions are handled before images regardless of batch order. Unsupported
// and oversized files are skipped and reported in the Result. A storage
// failure stops the batch and returns the partial Result with a *BatchError.
func (p *Pipeline) Ingest(ctx context.Context, projectID string, batch []UploadItem, existing []*store.ImageRecord) (*Result, error) {
	if projectID == "" {
		return nil, status.UserInputf("ingest", "Select a project first")
	}
	if len(batch) == 0 {
		return nil, status.UserInputf("ingest", "No files to upload")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pending := p.ledgers.For(projectID)
	res := &Result{}

	byKey := make(map[string]*store.ImageRecord, len(existing))
	for _, rec := range existing {
		key := namekey.Derive(rec.OriginalName)
		if _, ok := byKey[key]; !ok {
			byKey[key] = rec
		}
	}

	var captions, images []indexedItem
	for i, it := range batch {
		switch filehandler.Classify(it.Filename, it.MIMEType) {
		case filehandler.KindCaption:
			captions = append(captions, indexedItem{i, it})
		case filehandler.KindImage:
			images = append(images, indexedItem{i, it})
		default:
			res.Skipped = append(res.Skipped, Skip{Filename: it.Filename, Reason: "Skipped unsupported file"})
		}
	}

	log.Debug().
		Str("projectId", projectID).
		Int("captions", len(captions)).
		Int("images", len(images)).
		Int("skipped", len(res.Skipped)).
		Int("existing", len(existing)).
		Msg("Ingest batch partitioned")

	for _, c := range captions {
		if err := ctx.Err(); err != nil {
			return res, &BatchError{Index: c.index, Filename: c.item.Filename, Err: err}
		}
		if err := p.ingestCaption(ctx, projectID, c.item, byKey, pending, res); err != nil {
			return res, &BatchError{Index: c.index, Filename: c.item.Filename, Err: err}
		}
	}

	for _, im := range images {
		if err := ctx.Err(); err != nil {
			return res, &BatchError{Index: im.index, Filename: im.item.Filename, Err: err}
		}
		if err := p.ingestImage(ctx, projectID, im.item, byKey, pending, res); err != nil {
			return res, &BatchError{Index: im.index, Filename: im.item.Filename, Err: err}
		}
	}

	log.Info().
		Str("projectId", projectID).
		Int("created", len(res.Created)).
		Int("updated", len(res.Updated)).
		Int("applied", res.AppliedCaptions).
		Int("staged", len(res.Staged)).
		Int("skipped", len(res.Skipped)).
		Msg("Ingest batch complete")

	return res, nil
}

func (p *Pipeline) ingestCaption(ctx context.Context, projectID string, it UploadItem, byKey map[string]*store.ImageRecord, pending *ledger.Ledger, res *Result) error {
	if it.Size > MaxCaptionBytes {
		res.Skipped = append(res.Skipped, Skip{Filename: it.Filename, Reason: "Caption file too large"})
		return nil
	}
	data, err := it.readAll(MaxCaptionBytes)
	if err != nil {
		return status.IO("ingest", fmt.Errorf("read caption: %w", err))
	}
	if len(data) > MaxCaptionBytes {
		res.Skipped = append(res.Skipped, Skip{Filename: it.Filename, Reason: "Caption file too large"})
		return nil
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		res.Skipped = append(res.Skipped, Skip{Filename: it.Filename, Reason: "Empty caption file"})
		return nil
	}

	key := namekey.Derive(it.Filename)
	rec, ok := byKey[key]
	if !ok {
		if pending.Stage(key, text) {
			log.Debug().Str("key", key).Msg("Replaced pending caption")
		}
		res.Staged = append(res.Staged, key)
		return nil
	}

	if err := p.images.UpdateCaption(ctx, projectID, rec.ID, text); err != nil {
		return status.IO("ingest", err)
	}
	rec.Caption = text
	res.AppliedCaptions++
	res.markUpdated(rec)
	return nil
}

func (p *Pipeline) ingestImage(ctx context.Context, projectID string, it UploadItem, byKey map[string]*store.ImageRecord, pending *ledger.Ledger, res *Result) error {
	if p.maxUploadBytes > 0 && it.Size > p.maxUploadBytes {
		res.Skipped = append(res.Skipped, Skip{Filename: it.Filename, Reason: "File too large"})
		return nil
	}

	data, err := it.readAll(p.maxUploadBytes)
	if err != nil {
		return status.IO("ingest", fmt.Errorf("read image: %w", err))
	}
	if p.maxUploadBytes > 0 && int64(len(data)) > p.maxUploadBytes {
		res.Skipped = append(res.Skipped, Skip{Filename: it.Filename, Reason: "File too large"})
		return nil
	}
	if len(data) == 0 {
		res.Skipped = append(res.Skipped, Skip{Filename: it.Filename, Reason: "Empty file"})
		return nil
	}

	capturedAt := filehandler.CaptureTime(data)

	img := filehandler.Image{Name: it.Filename, MIMEType: it.MIMEType, Data: data}
	if p.transform != nil {
		img, err = p.transform.Transform(ctx, img)
		if err != nil {
			return status.IO("ingest", fmt.Errorf("transform: %w", err))
		}
	}

	id := p.newID()
	storageKey := blobstore.ImageKey(projectID, id, img.Name)
	if err := p.blobs.Put(ctx, storageKey, bytes.NewReader(img.Data), int64(len(img.Data)), img.MIMEType); err != nil {
		return status.IO("ingest", err)
	}

	key := namekey.Derive(it.Filename)
	caption, hadCaption := pending.Take(key)

	rec := &store.ImageRecord{
		ID:           id,
		ProjectID:    projectID,
		OriginalName: img.Name,
		StorageKey:   storageKey,
		MIMEType:     img.MIMEType,
		Size:         int64(len(img.Data)),
		Caption:      caption,
		CreatedAt:    p.nextCreatedAt(),
		CapturedAt:   capturedAt,
	}
	if err := p.images.PutImage(ctx, rec); err != nil {
		if hadCaption {
			pending.Stage(key, caption)
		}
		return status.IO("ingest", err)
	}

	res.Created = append(res.Created, rec)
	if hadCaption {
		res.AppliedCaptions++
	}
	if _, ok := byKey[key]; !ok {
		byKey[key] = rec
	}
	return nil
}

func (p *Pipeline) nextCreatedAt() int64 {
	now := p.now().UnixMilli()
	if now <= p.lastCreated {
		now = p.lastCreated + 1
	}
	p.lastCreated = now
	return now
}
