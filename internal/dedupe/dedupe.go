// Package dedupe finds and removes duplicate images within a project.
//
// Two strategies exist. ByContent compares SHA-1 digests of the stored
// bytes and is exact. ByNameAndSize compares a normalized file name plus
// byte size without reading content; it is a heuristic that merges
// "cat (1).jpg" with "cat.jpg" and may over- or under-merge.
package dedupe

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/fpang/caption-studio/internal/digest"
	"github.com/fpang/caption-studio/internal/namekey"
	"github.com/fpang/caption-studio/internal/status"
	"github.com/fpang/caption-studio/internal/store"
)

// Strategy selects how records are compared.
type Strategy int

const (
	ByContent Strategy = iota
	ByNameAndSize
)

func (s Strategy) String() string {
	if s == ByNameAndSize {
		return "name"
	}
	return "content"
}

// ParseStrategy maps "content" (or "") and "name" to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "content":
		return ByContent, nil
	case "name":
		return ByNameAndSize, nil
	default:
		return ByContent, status.UserInputf("duplicates", "Unknown duplicate strategy %q", s)
	}
}

// Fetcher opens stored image bytes. blobstore.Store satisfies it.
type Fetcher interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// DigestSaver persists computed digests. store.ImageStore satisfies it.
type DigestSaver interface {
	SetDigest(ctx context.Context, projectID, imageID, digest string) error
}

// Scanner groups duplicate records.
type Scanner struct {
	Strategy Strategy

	fetch Fetcher
	saver DigestSaver
}

// NewScanner returns a content scanner. saver may be nil, in which case
// digests are cached on the in-memory records only.
func NewScanner(fetch Fetcher, saver DigestSaver) *Scanner {
	return &Scanner{Strategy: ByContent, fetch: fetch, saver: saver}
}

// FindGroups returns groups of two or more records considered identical.
// Groups are ordered by first appearance in records and members keep input
// order, so the first member of each group is the one to keep.
//
// A scan with nothing to report returns a NoOp status error alongside an
// empty result.
func (s *Scanner) FindGroups(ctx context.Context, records []*store.ImageRecord) ([][]*store.ImageRecord, error) {
	if len(records) < 2 {
		return nil, status.NoOpf("duplicates", "Not enough images to compare")
	}

	var order []string
	buckets := make(map[string][]*store.ImageRecord)
	for _, rec := range records {
		key, err := s.groupKey(ctx, rec)
		if err != nil {
			return nil, err
		}
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], rec)
	}

	var groups [][]*store.ImageRecord
	for _, key := range order {
		if g := buckets[key]; len(g) > 1 {
			groups = append(groups, g)
		}
	}

	groupCount, dupes := Stats(groups)
	log.Info().
		Str("strategy", s.Strategy.String()).
		Int("records", len(records)).
		Int("groups", groupCount).
		Int("duplicates", dupes).
		Msg("Duplicate scan complete")

	if len(groups) == 0 {
		return nil, status.NoOpf("duplicates", "No duplicates found")
	}
	return groups, nil
}

func (s *Scanner) groupKey(ctx context.Context, rec *store.ImageRecord) (string, error) {
	if s.Strategy == ByNameAndSize {
		return namekey.DuplicateKey(rec.OriginalName) + "\x00" + strconv.FormatInt(rec.Size, 10), nil
	}

	if digest.Valid(rec.ContentDigest) {
		return rec.ContentDigest, nil
	}
	sum, err := s.digestOf(ctx, rec)
	if err != nil {
		return "", status.IO("duplicates", fmt.Errorf("hash %s: %w", rec.OriginalName, err))
	}
	rec.ContentDigest = sum

	if s.saver != nil {
		if err := s.saver.SetDigest(ctx, rec.ProjectID, rec.ID, sum); err != nil {
			log.Warn().Err(err).Str("imageId", rec.ID).Msg("Failed to cache content digest")
		}
	}
	return sum, nil
}

func (s *Scanner) digestOf(ctx context.Context, rec *store.ImageRecord) (string, error) {
	rc, err := s.fetch.Get(ctx, rec.StorageKey)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return digest.Reader(rc)
}

// Stats returns the number of groups and the number of records that would
// be removed (every member but the first).
func Stats(groups [][]*store.ImageRecord) (groupCount, duplicates int) {
	for _, g := range groups {
		if len(g) > 1 {
			groupCount++
			duplicates += len(g) - 1
		}
	}
	return groupCount, duplicates
}

// Describe returns the confirmation line shown before removal.
func Describe(groups [][]*store.ImageRecord) string {
	n, d := Stats(groups)
	return fmt.Sprintf("Found %d duplicate file(s) across %d group(s)", d, n)
}
