// Package boot holds the startup logic shared by the caption-studio
// binaries: AWS config, the configured record and blob backends, the
// origin-verify secret fetch from SSM and the startup log line.
//
// Every binary's main is a short composition of these helpers.
package boot

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/caption-studio/internal/blobstore"
	"github.com/fpang/caption-studio/internal/config"
	"github.com/fpang/caption-studio/internal/filehandler"
	"github.com/fpang/caption-studio/internal/logging"
	"github.com/fpang/caption-studio/internal/store"
	"github.com/fpang/caption-studio/internal/workspace"
)

// SSMAPI is the subset of the SSM client used to read secrets.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, opts ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

var _ SSMAPI = (*ssm.Client)(nil)

// Backends are the opened storage backends.
type Backends struct {
	Records store.Store
	Blobs   blobstore.Store

	// Presigner is set for the s3 blob store only.
	Presigner blobstore.Presigner

	// AWS is loaded only when a backend or the origin secret needs it.
	AWS *aws.Config
}

// LoadAWS loads the default AWS config chain (env, shared config, role).
func LoadAWS(ctx context.Context) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return cfg, nil
}

// Open creates the backends cfg selects. cfg must have been validated.
func Open(ctx context.Context, cfg *config.Config) (*Backends, error) {
	b := &Backends{}
	if cfg.UsesAWS() || (cfg.OriginVerifySecret == "" && cfg.OriginSecretParam != "") {
		awsCfg, err := LoadAWS(ctx)
		if err != nil {
			return nil, err
		}
		b.AWS = &awsCfg
	}

	switch cfg.Records {
	case config.RecordsDynamo:
		b.Records = store.NewDynamoStore(dynamodb.NewFromConfig(*b.AWS), cfg.Table)
	default:
		b.Records = store.NewMemoryStore()
	}

	switch cfg.Blobs {
	case config.BlobsS3:
		client := s3.NewFromConfig(*b.AWS)
		s3Store := blobstore.NewS3Store(client, s3.NewPresignClient(client), cfg.Bucket)
		b.Blobs = s3Store
		b.Presigner = s3Store
	case config.BlobsDir:
		dir, err := blobstore.NewDirStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open data dir: %w", err)
		}
		b.Blobs = dir
	default:
		b.Blobs = blobstore.NewMemoryStore()
	}

	log.Debug().
		Str("records", string(cfg.Records)).
		Str("blobs", string(cfg.Blobs)).
		Msg("Storage backends opened")
	return b, nil
}

// LoadOriginSecret fills cfg.OriginVerifySecret from the SSM parameter
// cfg.OriginSecretParam when the secret is not already set. Without either
// the API runs without origin verification.
func LoadOriginSecret(ctx context.Context, client SSMAPI, cfg *config.Config) error {
	if cfg.OriginVerifySecret != "" || cfg.OriginSecretParam == "" {
		return nil
	}
	start := time.Now()
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(cfg.OriginSecretParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("read origin secret %s: %w", cfg.OriginSecretParam, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil || *out.Parameter.Value == "" {
		return fmt.Errorf("origin secret %s is empty", cfg.OriginSecretParam)
	}
	cfg.OriginVerifySecret = *out.Parameter.Value
	log.Debug().Str("param", cfg.OriginSecretParam).Dur("elapsed", time.Since(start)).Msg("Origin secret loaded from SSM")
	return nil
}

// NewWorkspace builds the workspace for cfg on b.
func NewWorkspace(cfg *config.Config, b *Backends) *workspace.Workspace {
	opts := workspace.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		AutosaveDelay:  cfg.AutosaveDelay,
		Presigner:      b.Presigner,
		PresignExpiry:  cfg.PresignExpiry,
		OnAutosaveError: func(projectID, imageID string, err error) {
			log.Error().Err(err).Str("projectId", projectID).Str("imageId", imageID).Msg("Autosave failed")
		},
	}
	if cfg.Downscale {
		d := filehandler.NewDownscaler()
		d.MaxDimension = cfg.MaxDimension
		opts.Transformer = d
	}
	return workspace.New(b.Records, b.Blobs, opts)
}

// StartupLog returns a startup logger pre-filled with the storage and
// feature settings of cfg.
func StartupLog(name string, initStart time.Time, cfg *config.Config) *logging.StartupLogger {
	l := logging.NewStartupLogger(name).
		InitDuration(time.Since(initStart)).
		Feature("downscale", cfg.Downscale).
		Feature("originVerify", cfg.OriginVerifySecret != "").
		Config("records", string(cfg.Records)).
		Config("blobs", string(cfg.Blobs)).
		Config("exportLayout", cfg.ExportLayout).
		Config("autosaveDelay", cfg.AutosaveDelay.String())
	if cfg.Records == config.RecordsDynamo {
		l.DynamoTable("records", cfg.Table)
	}
	switch cfg.Blobs {
	case config.BlobsS3:
		l.S3Bucket("images", cfg.Bucket)
	case config.BlobsDir:
		l.Dir("images", cfg.DataDir)
	}
	if cfg.OriginSecretParam != "" {
		l.SSMParam("originSecret", cfg.OriginSecretParam)
	}
	return l
}
