package config

import (
	"github.com/spf13/pflag"
)

// BindStorageFlags registers the storage settings on fs, using the current
// values of c as defaults so environment overrides show up in --help.
func (c *Config) BindStorageFlags(fs *pflag.FlagSet) {
	fs.StringVar((*string)(&c.Records), "records", string(c.Records), "record store: memory or dynamo")
	fs.StringVar((*string)(&c.Blobs), "blobs", string(c.Blobs), "blob store: memory, dir or s3")
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "directory for the dir blob store")
	fs.StringVar(&c.Bucket, "bucket", c.Bucket, "S3 bucket for the s3 blob store")
	fs.StringVar(&c.Table, "table", c.Table, "DynamoDB table for the dynamo record store")
}

// BindServerFlags registers the HTTP and editing settings on fs.
func (c *Config) BindServerFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", c.Addr, "listen address")
	fs.DurationVar(&c.AutosaveDelay, "autosave-delay", c.AutosaveDelay, "idle time before a caption edit is saved")
	fs.DurationVar(&c.PresignExpiry, "presign-expiry", c.PresignExpiry, "lifetime of pre-signed image URLs")
}

// BindIngestFlags registers the ingestion settings on fs.
func (c *Config) BindIngestFlags(fs *pflag.FlagSet) {
	fs.Int64Var(&c.MaxUploadBytes, "max-upload-bytes", c.MaxUploadBytes, "largest accepted image in bytes")
	fs.BoolVar(&c.Downscale, "downscale", c.Downscale, "downscale images larger than --max-dimension")
	fs.IntVar(&c.MaxDimension, "max-dimension", c.MaxDimension, "longest image side after downscaling")
}
