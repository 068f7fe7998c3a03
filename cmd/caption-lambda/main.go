// Command caption-lambda runs the caption-studio API on AWS Lambda behind
// API Gateway (HTTP API, payload v2) and CloudFront.
//
// Expected environment:
//
//	CAPTION_RECORD_STORE=dynamo   CAPTION_TABLE=<table>
//	CAPTION_BLOB_STORE=s3         CAPTION_BUCKET=<bucket>
//	CAPTION_ORIGIN_SECRET_PARAM=<ssm parameter>  (or CAPTION_ORIGIN_VERIFY_SECRET)
//	CAPTION_LOG_FORMAT=json
package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/caption-studio/internal/api"
	"github.com/fpang/caption-studio/internal/boot"
	"github.com/fpang/caption-studio/internal/config"
	"github.com/fpang/caption-studio/internal/export"
	"github.com/fpang/caption-studio/internal/logging"
)

// commitHash is set at build time with -ldflags "-X main.commitHash=...".
var commitHash string

func main() {
	initStart := time.Now()
	logging.Init()

	cfg, err := config.FromEnv(os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid environment configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.Records == config.RecordsMemory || cfg.Blobs != config.BlobsS3 {
		log.Warn().
			Str("records", string(cfg.Records)).
			Str("blobs", string(cfg.Blobs)).
			Msg("Non-durable storage on Lambda; data is lost when the instance recycles")
	}

	ctx := context.Background()
	backends, err := boot.Open(ctx, &cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	if backends.AWS != nil {
		if err := boot.LoadOriginSecret(ctx, ssm.NewFromConfig(*backends.AWS), &cfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to load origin secret")
		}
	}
	if cfg.OriginVerifySecret == "" {
		log.Warn().Msg("Origin secret not set, origin verification disabled")
	}
	layout, err := export.ParseLayout(cfg.ExportLayout)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid export layout")
	}

	ws := boot.NewWorkspace(&cfg, backends)

	// Debounced saves would be lost when the instance freezes between
	// invocations, so caption edits are written as they arrive.
	handler := api.New(ws, api.Options{
		OriginVerifySecret: cfg.OriginVerifySecret,
		ExportLayout:       layout,
		ImmediateCaptions:  true,
	})

	boot.StartupLog("caption-lambda", initStart, &cfg).CommitHash(commitHash).Log()

	adapter := httpadapter.NewV2(handler)
	lambda.Start(adapter.ProxyWithContext)
}
