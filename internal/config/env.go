package config

import (
	"fmt"
	"strconv"
	"time"
)

// Environment variable names.
const (
	EnvAddr               = "CAPTION_ADDR"
	EnvRecordStore        = "CAPTION_RECORD_STORE"
	EnvBlobStore          = "CAPTION_BLOB_STORE"
	EnvDataDir            = "CAPTION_DATA_DIR"
	EnvBucket             = "CAPTION_BUCKET"
	EnvTable              = "CAPTION_TABLE"
	EnvMaxUploadMB        = "CAPTION_MAX_UPLOAD_MB"
	EnvDownscale          = "CAPTION_DOWNSCALE"
	EnvMaxDimension       = "CAPTION_MAX_DIMENSION"
	EnvAutosaveDelay      = "CAPTION_AUTOSAVE_DELAY"
	EnvPresignExpiry      = "CAPTION_PRESIGN_EXPIRY"
	EnvExportLayout       = "CAPTION_EXPORT_LAYOUT"
	EnvOriginVerifySecret = "CAPTION_ORIGIN_VERIFY_SECRET"
	EnvOriginSecretParam  = "CAPTION_ORIGIN_SECRET_PARAM"
)

// FromEnv returns Default overlaid with every CAPTION_* variable that
// getenv reports as non-empty. Pass os.Getenv in production.
func FromEnv(getenv func(string) string) (Config, error) {
	c := Default()
	var err error

	str := func(name string, dst *string) {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v := getenv(name); v != "" && err == nil {
			d, perr := time.ParseDuration(v)
			if perr != nil {
				err = fmt.Errorf("%s: %w", name, perr)
				return
			}
			*dst = d
		}
	}

	str(EnvAddr, &c.Addr)
	if v := getenv(EnvRecordStore); v != "" {
		c.Records = RecordBackend(v)
	}
	if v := getenv(EnvBlobStore); v != "" {
		c.Blobs = BlobBackend(v)
	}
	str(EnvDataDir, &c.DataDir)
	str(EnvBucket, &c.Bucket)
	str(EnvTable, &c.Table)
	str(EnvExportLayout, &c.ExportLayout)
	str(EnvOriginVerifySecret, &c.OriginVerifySecret)
	str(EnvOriginSecretParam, &c.OriginSecretParam)

	if v := getenv(EnvMaxUploadMB); v != "" {
		mb, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			return c, fmt.Errorf("%s: %w", EnvMaxUploadMB, perr)
		}
		c.MaxUploadBytes = mb << 20
	}
	if v := getenv(EnvDownscale); v != "" {
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			return c, fmt.Errorf("%s: %w", EnvDownscale, perr)
		}
		c.Downscale = b
	}
	if v := getenv(EnvMaxDimension); v != "" {
		n, perr := strconv.Atoi(v)
		if perr != nil {
			return c, fmt.Errorf("%s: %w", EnvMaxDimension, perr)
		}
		c.MaxDimension = n
	}
	dur(EnvAutosaveDelay, &c.AutosaveDelay)
	dur(EnvPresignExpiry, &c.PresignExpiry)
	return c, err
}
