package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefault_Valid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if c.UsesAWS() {
		t.Error("Default() should not need AWS")
	}
	if c.AutosaveDelay != 600*time.Millisecond || c.MaxDimension != 2000 || c.MaxUploadBytes != 50<<20 {
		t.Errorf("Default() = %+v", c)
	}
}

func TestFromEnv(t *testing.T) {
	c, err := FromEnv(env(map[string]string{
		EnvRecordStore:   "dynamo",
		EnvTable:         "captions",
		EnvBlobStore:     "s3",
		EnvBucket:        "media",
		EnvMaxUploadMB:   "10",
		EnvDownscale:     "false",
		EnvAutosaveDelay: "1.5s",
		EnvExportLayout:  "split",
	}))
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if c.Records != RecordsDynamo || c.Table != "captions" || c.Blobs != BlobsS3 || c.Bucket != "media" {
		t.Errorf("storage = %+v", c)
	}
	if c.MaxUploadBytes != 10<<20 || c.Downscale || c.AutosaveDelay != 1500*time.Millisecond || c.ExportLayout != "split" {
		t.Errorf("tuning = %+v", c)
	}
	if c.Addr != ":8080" {
		t.Errorf("Addr = %q, want default kept", c.Addr)
	}
	if err := c.Validate(); err != nil || !c.UsesAWS() {
		t.Errorf("Validate() = %v, UsesAWS() = %v", err, c.UsesAWS())
	}
}

func TestFromEnv_ParseErrors(t *testing.T) {
	for _, name := range []string{EnvMaxUploadMB, EnvDownscale, EnvMaxDimension, EnvAutosaveDelay, EnvPresignExpiry} {
		_, err := FromEnv(env(map[string]string{name: "not-a-value"}))
		if err == nil || !strings.Contains(err.Error(), name) {
			t.Errorf("FromEnv(%s=bad) error = %v, want one naming the variable", name, err)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"dynamo without table", func(c *Config) { c.Records = RecordsDynamo }, "table"},
		{"s3 without bucket", func(c *Config) { c.Blobs = BlobsS3 }, "bucket"},
		{"dir without data dir", func(c *Config) { c.DataDir = "" }, "data directory"},
		{"unknown records", func(c *Config) { c.Records = "sqlite" }, "record store"},
		{"unknown blobs", func(c *Config) { c.Blobs = "ftp" }, "blob store"},
		{"bad layout", func(c *Config) { c.ExportLayout = "tree" }, "layout"},
		{"zero upload size", func(c *Config) { c.MaxUploadBytes = 0 }, "upload"},
		{"zero dimension", func(c *Config) { c.MaxDimension = 0 }, "dimension"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestBindFlags(t *testing.T) {
	c := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.BindStorageFlags(fs)
	c.BindServerFlags(fs)
	c.BindIngestFlags(fs)

	if err := fs.Parse([]string{"--blobs=memory", "--addr=:9000", "--downscale=false", "--autosave-delay=2s"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if c.Blobs != BlobsMemory || c.Addr != ":9000" || c.Downscale || c.AutosaveDelay != 2*time.Second {
		t.Errorf("flags not applied: %+v", c)
	}
}
