// Package captionedit applies bulk edits to the captions of a project:
// prefixing a trigger word, search and replace, and token insertion.
//
// Edits are sequential and fail-fast. Each record is persisted before its
// in-memory caption is changed, so the records passed in always match what
// was stored, even when an edit stops part way.
package captionedit

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/fpang/caption-studio/internal/status"
	"github.com/fpang/caption-studio/internal/store"
)

// CaptionUpdater persists one caption. store.ImageStore satisfies it.
type CaptionUpdater interface {
	UpdateCaption(ctx context.Context, projectID, imageID, caption string) error
}

// Editor runs bulk caption edits against a record store.
type Editor struct {
	records CaptionUpdater
}

// NewEditor returns an Editor that persists through records.
func NewEditor(records CaptionUpdater) *Editor {
	return &Editor{records: records}
}

// AddPrefix prepends prefix and a space to every caption, or sets the
// caption to prefix when it is empty. The result is trimmed. With
// skipExisting, captions that already start with prefix are left alone so a
// trigger word can be applied repeatedly. It returns the number of captions
// changed.
func (e *Editor) AddPrefix(ctx context.Context, records []*store.ImageRecord, prefix string, skipExisting bool) (int, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return 0, status.UserInputf("prefix", "Enter a prefix")
	}
	if len(records) == 0 {
		return 0, status.UserInputf("prefix", "No images to update")
	}

	updated := 0
	for _, rec := range records {
		if skipExisting && strings.HasPrefix(strings.TrimSpace(rec.Caption), prefix) {
			continue
		}
		next := prefix
		if rec.Caption != "" {
			next = strings.TrimSpace(prefix + " " + rec.Caption)
		}
		if err := e.save(ctx, "prefix", rec, next); err != nil {
			return updated, err
		}
		updated++
	}

	if updated == 0 {
		return 0, status.NoOpf("prefix", "All captions already start with %q", prefix)
	}
	log.Info().Str("prefix", prefix).Int("updated", updated).Msg("Prefix added")
	return updated, nil
}

// SearchReplace replaces every occurrence of find with replace. Only
// captions that contain find are persisted. It returns the number changed.
func (e *Editor) SearchReplace(ctx context.Context, records []*store.ImageRecord, find, replace string) (int, error) {
	if find == "" {
		return 0, status.UserInputf("replace", "Enter text to find")
	}

	updated := 0
	for _, rec := range records {
		if !strings.Contains(rec.Caption, find) {
			continue
		}
		if err := e.save(ctx, "replace", rec, strings.ReplaceAll(rec.Caption, find, replace)); err != nil {
			return updated, err
		}
		updated++
	}

	if updated == 0 {
		return 0, status.NoOpf("replace", "No captions matched.")
	}
	log.Info().Int("updated", updated).Msg("Search and replace complete")
	return updated, nil
}

// InsertToken appends token to the end of each caption. It returns the
// number of captions changed.
func (e *Editor) InsertToken(ctx context.Context, records []*store.ImageRecord, token string) (int, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, status.UserInputf("token", "Empty token")
	}
	if len(records) == 0 {
		return 0, status.UserInputf("token", "Select card(s) or click a caption first.")
	}

	for i, rec := range records {
		next, _ := Insert(rec.Caption, token, len(rec.Caption), len(rec.Caption))
		if err := e.save(ctx, "token", rec, next); err != nil {
			return i, err
		}
	}
	return len(records), nil
}

func (e *Editor) save(ctx context.Context, op string, rec *store.ImageRecord, caption string) error {
	if err := e.records.UpdateCaption(ctx, rec.ProjectID, rec.ID, caption); err != nil {
		return status.IO(op, fmt.Errorf("Error updating captions: %s: %w", rec.OriginalName, err))
	}
	rec.Caption = caption
	return nil
}

// Insert puts token into text in place of the byte range [start, end). A
// space is added before the token unless it lands at the start or after
// whitespace, and after it unless it lands at the end or before whitespace.
// Out-of-range bounds are clamped. It returns the new text and the caret
// position after the token and any space added after it.
func Insert(text, token string, start, end int) (string, int) {
	start = min(max(start, 0), len(text))
	end = min(max(end, start), len(text))

	before, after := text[:start], text[end:]
	var b strings.Builder
	b.WriteString(before)
	if r, _ := utf8.DecodeLastRuneInString(before); before != "" && !unicode.IsSpace(r) {
		b.WriteByte(' ')
	}
	b.WriteString(token)
	if r, _ := utf8.DecodeRuneInString(after); after != "" && !unicode.IsSpace(r) {
		b.WriteByte(' ')
	}
	caret := b.Len()
	b.WriteString(after)
	return b.String(), caret
}
