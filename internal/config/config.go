// Package config holds runtime settings for the caption-studio binaries:
// defaults, CAPTION_* environment overrides, flag bindings and validation.
package config

import (
	"errors"
	"fmt"
	"time"
)

// RecordBackend selects where image records, projects and tokens live.
type RecordBackend string

const (
	RecordsMemory RecordBackend = "memory" // lost on exit (default)
	RecordsDynamo RecordBackend = "dynamo" // single DynamoDB table
)

// BlobBackend selects where image bytes live.
type BlobBackend string

const (
	BlobsMemory BlobBackend = "memory"
	BlobsDir    BlobBackend = "dir" // local directory (default)
	BlobsS3     BlobBackend = "s3"
)

// Config holds all runtime settings.
type Config struct {
	// HTTP server.
	Addr         string        // Default: ":8080".
	ReadTimeout  time.Duration // Default: 60s.
	WriteTimeout time.Duration // Default: 5m, exports stream large archives.

	// Storage.
	Records RecordBackend
	Blobs   BlobBackend
	DataDir string // Root for BlobsDir. Default: "caption-data".
	Bucket  string // Required for BlobsS3.
	Table   string // Required for RecordsDynamo.

	// Ingestion.
	MaxUploadBytes int64 // Default: 50 MB.
	Downscale      bool  // Default: true.
	MaxDimension   int   // Default: 2000 px.

	// Editing and export.
	AutosaveDelay time.Duration // Default: 600ms.
	PresignExpiry time.Duration // Default: 15m.
	ExportLayout  string        // "flat" (default) or "split".

	// Origin verification for the API behind CloudFront. The secret is
	// read from SSM at OriginSecretParam when not set directly.
	OriginVerifySecret string
	OriginSecretParam  string
}

// Default returns a Config suited for a local single-user run.
func Default() Config {
	return Config{
		Addr:           ":8080",
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   5 * time.Minute,
		Records:        RecordsMemory,
		Blobs:          BlobsDir,
		DataDir:        "caption-data",
		MaxUploadBytes: 50 << 20,
		Downscale:      true,
		MaxDimension:   2000,
		AutosaveDelay:  600 * time.Millisecond,
		PresignExpiry:  15 * time.Minute,
		ExportLayout:   "flat",
	}
}

// Validate checks enum fields and the settings each backend requires.
func (c *Config) Validate() error {
	switch c.Records {
	case RecordsMemory:
	case RecordsDynamo:
		if c.Table == "" {
			return errors.New("dynamo record store needs a table (CAPTION_TABLE)")
		}
	default:
		return fmt.Errorf("invalid record store %q (use 'memory' or 'dynamo')", c.Records)
	}

	switch c.Blobs {
	case BlobsMemory:
	case BlobsDir:
		if c.DataDir == "" {
			return errors.New("dir blob store needs a data directory (CAPTION_DATA_DIR)")
		}
	case BlobsS3:
		if c.Bucket == "" {
			return errors.New("s3 blob store needs a bucket (CAPTION_BUCKET)")
		}
	default:
		return fmt.Errorf("invalid blob store %q (use 'memory', 'dir' or 's3')", c.Blobs)
	}

	switch c.ExportLayout {
	case "flat", "split":
	default:
		return fmt.Errorf("invalid export layout %q (use 'flat' or 'split')", c.ExportLayout)
	}

	if c.MaxUploadBytes <= 0 {
		return errors.New("max upload size must be positive")
	}
	if c.Downscale && c.MaxDimension <= 0 {
		return errors.New("max dimension must be positive when downscaling")
	}
	if c.AutosaveDelay < 0 {
		return errors.New("autosave delay must not be negative")
	}
	return nil
}

// UsesAWS reports whether any backend needs AWS credentials.
func (c *Config) UsesAWS() bool {
	return c.Records == RecordsDynamo || c.Blobs == BlobsS3
}
