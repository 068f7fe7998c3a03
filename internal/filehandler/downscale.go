package filehandler

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"path/filepath"
	"strings"

	// Decoders registered for image.Decode.
	_ "image/gif"
	_ "image/png"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultMaxDimension is the longest edge kept for stored images.
	DefaultMaxDimension = 2000

	// DefaultMaxBytes is the size an encoded image must stay under.
	DefaultMaxBytes = 9 * 1024 * 1024

	// DefaultMaxPixels bounds the decoded size of an image. A few hundred
	// bytes of PNG header can claim gigabytes of pixels.
	DefaultMaxPixels = 100_000_000
)

// DefaultQualities is the JPEG quality ladder tried from best to worst.
var DefaultQualities = []int{90, 80, 70, 60}

// Image is an encoded image in flight between upload and storage.
type Image struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Downscaler shrinks oversized images and re-encodes them as JPEG.
//
// Images that fit within MaxDimension and MaxBytes pass through untouched,
// as do formats the standard and x/image decoders cannot read (HEIC) and
// images whose header declares more than MaxPixels pixels.
type Downscaler struct {
	MaxDimension int
	MaxBytes     int
	MaxPixels    int64 // 0 means DefaultMaxPixels
	Qualities    []int
}

// NewDownscaler returns a Downscaler with the default limits.
func NewDownscaler() *Downscaler {
	return &Downscaler{
		MaxDimension: DefaultMaxDimension,
		MaxBytes:     DefaultMaxBytes,
		MaxPixels:    DefaultMaxPixels,
		Qualities:    DefaultQualities,
	}
}

// Transform returns img unchanged or a resized JPEG named <stem>.jpg.
func (d *Downscaler) Transform(ctx context.Context, img Image) (Image, error) {
	if err := ctx.Err(); err != nil {
		return img, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		log.Debug().Err(err).Str("name", img.Name).Msg("Image not decodable, storing original")
		return img, nil
	}
	maxPixels := d.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		log.Warn().
			Str("name", img.Name).
			Int("width", cfg.Width).
			Int("height", cfg.Height).
			Int64("max_pixels", maxPixels).
			Msg("Image too large to decode, storing original")
		return img, nil
	}

	src, format, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		log.Debug().Err(err).Str("name", img.Name).Msg("Image not decodable, storing original")
		return img, nil
	}

	bounds := src.Bounds()
	w, h := scaledDimensions(bounds.Dx(), bounds.Dy(), d.MaxDimension)
	needsResize := w != bounds.Dx() || h != bounds.Dy()
	if !needsResize && (d.MaxBytes <= 0 || len(img.Data) < d.MaxBytes) {
		return img, nil
	}

	var out image.Image = src
	if needsResize {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		out = dst
	}

	data, quality, err := d.encode(out)
	if err != nil {
		return img, fmt.Errorf("encode %s: %w", img.Name, err)
	}

	log.Debug().
		Str("name", img.Name).
		Str("source_format", format).
		Int("orig_width", bounds.Dx()).
		Int("orig_height", bounds.Dy()).
		Int("new_width", w).
		Int("new_height", h).
		Int("quality", quality).
		Int("orig_size", len(img.Data)).
		Int("new_size", len(data)).
		Msg("Image downscaled")

	return Image{
		Name:     jpegName(img.Name),
		MIMEType: "image/jpeg",
		Data:     data,
	}, nil
}

// encode walks the quality ladder and returns the first encoding under
// MaxBytes, or the lowest-quality encoding if none fits.
func (d *Downscaler) encode(img image.Image) ([]byte, int, error) {
	qualities := d.Qualities
	if len(qualities) == 0 {
		qualities = DefaultQualities
	}
	var buf bytes.Buffer
	for _, q := range qualities {
		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
			return nil, 0, err
		}
		if d.MaxBytes <= 0 || buf.Len() < d.MaxBytes {
			return buf.Bytes(), q, nil
		}
	}
	return buf.Bytes(), qualities[len(qualities)-1], nil
}

// scaledDimensions fits width×height within maxDimension, keeping aspect.
func scaledDimensions(width, height, maxDimension int) (int, int) {
	if maxDimension <= 0 || (width <= maxDimension && height <= maxDimension) {
		return width, height
	}

	if width > height {
		newHeight := int(float64(height)*float64(maxDimension)/float64(width) + 0.5)
		return maxDimension, max(newHeight, 1)
	}

	newWidth := int(float64(width)*float64(maxDimension)/float64(height) + 0.5)
	return max(newWidth, 1), maxDimension
}

// jpegName swaps the final extension for .jpg, adding one if absent.
func jpegName(name string) string {
	ext := filepath.Ext(name)
	if ext == "" || ext == name {
		return name + ".jpg"
	}
	return strings.TrimSuffix(name, ext) + ".jpg"
}
