// Package export writes a project's images and captions to a ZIP archive.
//
// The Flat layout puts every image at the archive root next to a
// <base>.txt caption, written only when the caption is non-empty. The Split
// layout mirrors a training-set folder structure with images/ and captions/
// directories and always writes a caption file, empty or not.
package export

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/fpang/caption-studio/internal/filehandler"
	"github.com/fpang/caption-studio/internal/namekey"
	"github.com/fpang/caption-studio/internal/status"
	"github.com/fpang/caption-studio/internal/store"
)

// zipMethodZstd is the ZIP compression method ID for Zstandard (APPNOTE 6.3.7).
const zipMethodZstd uint16 = 93

// zstdLevel maps to SpeedBestCompression in klauspost/compress.
const zstdLevel = 12

// Layout selects the archive structure.
type Layout int

const (
	Flat Layout = iota
	Split
)

// ParseLayout maps "flat" (or "") and "split" to a Layout.
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "", "flat":
		return Flat, nil
	case "split":
		return Split, nil
	default:
		return Flat, status.UserInputf("export", "Unknown export layout %q", s)
	}
}

// Compression selects the per-entry ZIP method.
type Compression int

const (
	Deflate Compression = iota
	// Zstd produces smaller archives, but not every unzip tool reads it.
	Zstd
)

// ParseCompression maps "deflate" (or "") and "zstd" to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "deflate":
		return Deflate, nil
	case "zstd":
		return Zstd, nil
	default:
		return Deflate, status.UserInputf("export", "Unknown compression %q", s)
	}
}

func (c Compression) method() uint16 {
	if c == Zstd {
		return zipMethodZstd
	}
	return zip.Deflate
}

// Options configures Write.
type Options struct {
	Layout      Layout
	Compression Compression
}

// Fetcher opens stored image bytes. blobstore.Store satisfies it.
type Fetcher interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Summary counts the entries written.
type Summary struct {
	Images   int `json:"images"`
	Captions int `json:"captions"`
}

// ArchiveName returns the download file name for a project export.
func ArchiveName(projectID string) string {
	return fmt.Sprintf("project-%s.zip", projectID)
}

// Write streams records into a ZIP on w in the given order. Any fetch or
// write failure aborts the export; w then holds a truncated archive.
func Write(ctx context.Context, w io.Writer, records []*store.ImageRecord, fetch Fetcher, opts Options) (Summary, error) {
	var sum Summary
	if len(records) == 0 {
		return sum, status.UserInputf("export", "No images to download")
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})
	zw.RegisterCompressor(zipMethodZstd, func(out io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(zstdLevel)))
	})

	names := newNameResolver(opts.Layout)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		imgName, capName := names.claim(entryName(rec))
		modified := time.UnixMilli(rec.CreatedAt)

		if err := copyImage(ctx, zw, fetch, rec, imgName, modified, opts.Compression); err != nil {
			return sum, status.IO("export", err)
		}
		sum.Images++

		caption := strings.TrimSpace(rec.Caption)
		if caption == "" && opts.Layout == Flat {
			continue
		}
		if err := writeEntry(zw, capName, modified, opts.Compression, strings.NewReader(caption)); err != nil {
			return sum, status.IO("export", fmt.Errorf("write caption for %s: %w", rec.OriginalName, err))
		}
		sum.Captions++
	}

	if err := zw.Close(); err != nil {
		return sum, status.IO("export", fmt.Errorf("close ZIP writer: %w", err))
	}

	log.Info().
		Int("images", sum.Images).
		Int("captions", sum.Captions).
		Msg("Export archive written")
	return sum, nil
}

// entryName is the image's file name inside the archive.
func entryName(rec *store.ImageRecord) string {
	if rec.OriginalName != "" {
		return rec.OriginalName
	}
	return rec.StorageKey[strings.LastIndexByte(rec.StorageKey, '/')+1:]
}

func copyImage(ctx context.Context, zw *zip.Writer, fetch Fetcher, rec *store.ImageRecord, name string, modified time.Time, c Compression) error {
	rc, err := fetch.Get(ctx, rec.StorageKey)
	if err != nil {
		return fmt.Errorf("download %s: %w", rec.OriginalName, err)
	}
	defer rc.Close()
	if err := writeEntry(zw, name, modified, c, rc); err != nil {
		return fmt.Errorf("write %s: %w", rec.OriginalName, err)
	}
	return nil
}

func writeEntry(zw *zip.Writer, name string, modified time.Time, c Compression, r io.Reader) error {
	header := &zip.FileHeader{
		Name:     name,
		Method:   c.method(),
		Modified: modified,
	}
	ew, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(ew, r)
	return err
}

// nameResolver hands out unique entry names. Each image claims its caption
// name at the same time, so a renamed image "cat - dup1.png" is always paired
// with "cat - dup1.txt". Names are compared case-insensitively since most
// extraction targets are case-insensitive filesystems.
type nameResolver struct {
	imageDir, captionDir string
	claimed              map[string]bool
}

func newNameResolver(l Layout) *nameResolver {
	r := &nameResolver{claimed: make(map[string]bool)}
	if l == Split {
		r.imageDir, r.captionDir = "images/", "captions/"
	}
	return r
}

func (r *nameResolver) claim(filename string) (image, caption string) {
	stem, ext := namekey.Stem(filename), namekey.Ext(filename)
	candidate := stem
	for n := 1; ; n++ {
		image = r.imageDir + candidate + ext
		caption = r.captionDir + candidate + filehandler.CaptionExtension
		if !r.claimed[strings.ToLower(image)] && !r.claimed[strings.ToLower(caption)] {
			break
		}
		candidate = fmt.Sprintf("%s - dup%d", stem, n)
	}
	r.claimed[strings.ToLower(image)] = true
	r.claimed[strings.ToLower(caption)] = true
	return image, caption
}
