// Package rename gives every image of a project a sequential name such as
// shot_001.jpg, shot_002.png.
//
// Plan is pure: it decides the new names without touching storage. Apply
// moves each blob and then updates its record, stopping at the first
// failure. Renames made before a failure stay in place.
package rename

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/caption-studio/internal/blobstore"
	"github.com/fpang/caption-studio/internal/namekey"
	"github.com/fpang/caption-studio/internal/status"
	"github.com/fpang/caption-studio/internal/store"
)

// Order selects how records are numbered.
type Order int

const (
	ByCreatedAt Order = iota
	ByCapturedAt
	ByOriginalName
)

// ParseOrder maps "created" (or ""), "captured" and "name" to an Order.
func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "created":
		return ByCreatedAt, nil
	case "captured":
		return ByCapturedAt, nil
	case "name":
		return ByOriginalName, nil
	default:
		return ByCreatedAt, status.UserInputf("rename", "Unknown rename order %q", s)
	}
}

// Rename is one planned change.
type Rename struct {
	Record  *store.ImageRecord `json:"-"`
	ImageID string             `json:"imageId"`
	OldName string             `json:"oldName"`
	NewName string             `json:"newName"`
	OldKey  string             `json:"oldKey"`
	NewKey  string             `json:"newKey"`
}

// Changed reports whether applying r moves anything.
func (r Rename) Changed() bool {
	return r.OldKey != r.NewKey
}

// Plan numbers records in the given order starting at 1. The counter is
// zero-padded to max(3, digits(len(records))). Each new name keeps the
// lowercased original extension, or .jpg when there is none. The new key
// sits in the same directory as the old one.
func Plan(records []*store.ImageRecord, baseName string, order Order) ([]Rename, error) {
	baseName = strings.TrimSpace(baseName)
	if baseName == "" {
		return nil, status.UserInputf("rename", "Base name is required")
	}
	if strings.ContainsAny(baseName, `/\`) {
		return nil, status.UserInputf("rename", "Base name must not contain path separators")
	}
	if len(records) == 0 {
		return nil, status.UserInputf("rename", "No files to rename")
	}

	ordered := make([]*store.ImageRecord, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, less(ordered, order))

	width := max(3, len(strconv.Itoa(len(ordered))))
	plan := make([]Rename, len(ordered))
	for i, rec := range ordered {
		ext := strings.ToLower(namekey.Ext(rec.OriginalName))
		if ext == "" {
			ext = ".jpg"
		}
		newName := fmt.Sprintf("%s_%0*d%s", baseName, width, i+1, ext)
		plan[i] = Rename{
			Record:  rec,
			ImageID: rec.ID,
			OldName: rec.OriginalName,
			NewName: newName,
			OldKey:  rec.StorageKey,
			NewKey:  blobstore.Sibling(rec.StorageKey, newName),
		}
	}
	return plan, nil
}

func less(recs []*store.ImageRecord, order Order) func(i, j int) bool {
	switch order {
	case ByCapturedAt:
		// Records without a capture time sort after those with one, by
		// creation time among themselves.
		return func(i, j int) bool {
			a, b := recs[i], recs[j]
			switch {
			case a.CapturedAt == 0 && b.CapturedAt == 0:
				return a.CreatedAt < b.CreatedAt
			case a.CapturedAt == 0:
				return false
			case b.CapturedAt == 0:
				return true
			}
			return a.CapturedAt < b.CapturedAt
		}
	case ByOriginalName:
		return func(i, j int) bool {
			return strings.ToLower(recs[i].OriginalName) < strings.ToLower(recs[j].OriginalName)
		}
	default:
		return func(i, j int) bool {
			return recs[i].CreatedAt < recs[j].CreatedAt
		}
	}
}

// Mover relocates blobs. blobstore.Store satisfies it.
type Mover interface {
	Move(ctx context.Context, from, to string) error
}

// LocationUpdater rewrites a record's name and key. store.ImageStore
// satisfies it.
type LocationUpdater interface {
	UpdateLocation(ctx context.Context, projectID, imageID, name, storageKey string) error
}

// ApplyError reports the plan entry Apply stopped at.
type ApplyError struct {
	Position int // 1-based index into the plan
	Total    int
	Name     string // old name of the failing entry
	Err      error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("rename %d of %d (%s): %v", e.Position, e.Total, e.Name, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

// Result summarizes an Apply.
type Result struct {
	Renamed int `json:"renamed"`
	Skipped int `json:"skipped"` // entries whose key was already correct
}

// Summary returns the status line after a rename.
func (r Result) Summary() string {
	return fmt.Sprintf("Renamed %d file(s)", r.Renamed)
}

// Apply executes plan in order. For each changed entry the blob is moved,
// then the record is updated, then the in-memory Record is mutated.
//
// When an entry's new key is still occupied by a later entry's old key,
// that later blob is first parked under a temporary key so it is not
// overwritten. The record is updated to the temporary key too, so a failure
// never leaves a record pointing at nothing.
func Apply(ctx context.Context, plan []Rename, mover Mover, records LocationUpdater) (Result, error) {
	var res Result

	// Keys still held by entries that have not moved yet.
	holder := make(map[string]int, len(plan))
	for i, r := range plan {
		if r.Changed() {
			holder[r.OldKey] = i
		}
	}

	for i := range plan {
		r := &plan[i]
		if !r.Changed() {
			res.Skipped++
			continue
		}

		fail := func(msg string, err error) (Result, error) {
			return res, &ApplyError{
				Position: i + 1,
				Total:    len(plan),
				Name:     r.OldName,
				Err:      status.IO("rename", fmt.Errorf("%s for %s: %w", msg, r.OldName, err)),
			}
		}

		if j, ok := holder[r.NewKey]; ok && j != i {
			if err := park(ctx, &plan[j], mover, records); err != nil {
				return fail("Rename failed", err)
			}
			delete(holder, r.NewKey)
			holder[plan[j].OldKey] = j
		}

		from := r.Record.StorageKey
		if err := mover.Move(ctx, from, r.NewKey); err != nil {
			return fail("Rename failed", err)
		}
		delete(holder, from)

		if err := records.UpdateLocation(ctx, r.Record.ProjectID, r.Record.ID, r.NewName, r.NewKey); err != nil {
			return fail("DB update failed", err)
		}
		r.Record.OriginalName = r.NewName
		r.Record.StorageKey = r.NewKey
		res.Renamed++
	}

	log.Info().Int("renamed", res.Renamed).Int("unchanged", res.Skipped).Msg("Rename complete")
	return res, nil
}

// park moves r's blob to a temporary sibling key and points its record there.
// r.OldKey is updated so later bookkeeping sees the parked location.
func park(ctx context.Context, r *Rename, mover Mover, records LocationUpdater) error {
	tmp := blobstore.Sibling(r.OldKey, ".rename-"+r.Record.ID+"-"+r.NewName)
	if err := mover.Move(ctx, r.OldKey, tmp); err != nil {
		return fmt.Errorf("park %s: %w", r.OldName, err)
	}
	if err := records.UpdateLocation(ctx, r.Record.ProjectID, r.Record.ID, r.Record.OriginalName, tmp); err != nil {
		return fmt.Errorf("park %s: %w", r.OldName, err)
	}
	r.Record.StorageKey = tmp
	r.OldKey = tmp
	log.Debug().Str("imageId", r.Record.ID).Str("tmp", tmp).Msg("Parked blob to free its key")
	return nil
}
