package filehandler

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// ImageMetadata contains the EXIF fields the dataset tools care about.
//
// Extraction uses evanoberholster/imagemeta, which handles JPEG, HEIC, TIFF
// and degrades gracefully on PNG/WebP. Only the metadata block is read, not
// the full pixel data.
type ImageMetadata struct {
	// DateTaken is the capture time (with timezone if OffsetTimeOriginal exists).
	DateTaken time.Time
	HasDate   bool

	CameraMake  string
	CameraModel string
}

// ExtractImageMetadata reads EXIF metadata from r.
func ExtractImageMetadata(r io.ReadSeeker) (*ImageMetadata, error) {
	exifData, err := imagemeta.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF metadata: %w", err)
	}

	metadata := &ImageMetadata{}

	// Priority: DateTimeOriginal > CreateDate > ModifyDate
	if t := exifData.DateTimeOriginal(); !t.IsZero() {
		metadata.DateTaken = t
		metadata.HasDate = true
	} else if t := exifData.CreateDate(); !t.IsZero() {
		metadata.DateTaken = t
		metadata.HasDate = true
	} else if t := exifData.ModifyDate(); !t.IsZero() {
		metadata.DateTaken = t
		metadata.HasDate = true
	}

	metadata.CameraMake = strings.TrimSpace(exifData.Make)
	metadata.CameraModel = strings.TrimSpace(exifData.Model)

	return metadata, nil
}

// CaptureTime returns the EXIF capture time of an encoded image in Unix
// milliseconds, or 0 when the image carries none.
func CaptureTime(data []byte) int64 {
	meta, err := ExtractImageMetadata(bytes.NewReader(data))
	if err != nil {
		log.Debug().Err(err).Msg("No EXIF capture time")
		return 0
	}
	if !meta.HasDate {
		return 0
	}
	return meta.DateTaken.UnixMilli()
}
