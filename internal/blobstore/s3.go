package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// projectTag is the URL-encoded S3 object tagging string for cost allocation.
const projectTag = "Project=caption-studio"

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, opts ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// PresignAPI is the subset of *s3.PresignClient used by S3Store.
type PresignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store implements Store and Presigner on a single bucket.
type S3Store struct {
	client  S3API
	presign PresignAPI
	bucket  string
}

var (
	_ Store      = (*S3Store)(nil)
	_ Presigner  = (*S3Store)(nil)
	_ S3API      = (*s3.Client)(nil)
	_ PresignAPI = (*s3.PresignClient)(nil)
)

// NewS3Store returns a store on bucket. presign may be nil, in which case
// PresignGet fails and callers fall back to streaming through Get.
func NewS3Store(client S3API, presign PresignAPI, bucket string) *S3Store {
	return &S3Store{client: client, presign: presign, bucket: bucket}
}

// Bucket returns the bucket name.
func (s *S3Store) Bucket() string { return s.bucket }

func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	tagging := projectTag
	in := &s3.PutObjectInput{
		Bucket:  &s.bucket,
		Key:     &key,
		Body:    r,
		Tagging: &tagging,
	}
	if contentType != "" {
		in.ContentType = &contentType
	}
	if size >= 0 {
		in.ContentLength = &size
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("S3 PutObject %s: %w", key, err)
	}
	log.Debug().Str("bucket", s.bucket).Str("key", key).Int64("size", size).Msg("Uploaded to S3")
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket, Key: &key,
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("S3 GetObject %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("S3 GetObject %s: %w", key, err)
	}
	return result.Body, nil
}

// Move copies the object to its new key and then deletes the original.
// A failed delete leaves both copies; the error is returned so the caller
// does not update its record.
func (s *S3Store) Move(ctx context.Context, from, to string) error {
	if err := ValidateKey(to); err != nil {
		return err
	}
	source := copySource(s.bucket, from)
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     &s.bucket,
		Key:        &to,
		CopySource: &source,
	})
	if err != nil {
		if isNoSuchKey(err) {
			return fmt.Errorf("S3 CopyObject %s: %w", from, ErrNotFound)
		}
		return fmt.Errorf("S3 CopyObject %s -> %s: %w", from, to, err)
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket, Key: &from,
	}); err != nil {
		return fmt.Errorf("S3 DeleteObject %s after copy: %w", from, err)
	}
	log.Debug().Str("from", from).Str("to", to).Msg("Moved S3 object")
	return nil
}

// removeConcurrency bounds parallel DeleteObject calls in Remove.
const removeConcurrency = 8

// Remove deletes keys with a bounded number of parallel DeleteObject calls.
// S3 DeleteObject succeeds for missing keys. The first failure cancels the
// remaining deletes.
func (s *S3Store) Remove(ctx context.Context, keys []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(removeConcurrency)
	for _, key := range keys {
		g.Go(func() error {
			if _, err := s.client.DeleteObject(gctx, &s3.DeleteObjectInput{
				Bucket: &s.bucket, Key: &key,
			}); err != nil {
				return fmt.Errorf("S3 DeleteObject %s: %w", key, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if len(keys) > 0 {
		log.Debug().Int("count", len(keys)).Msg("Removed S3 objects")
	}
	return nil
}

// PresignGet creates a pre-signed GET URL for key.
func (s *S3Store) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if s.presign == nil {
		return "", errors.New("presign: no presign client configured")
	}
	result, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket, Key: &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign GetObject: %w", err)
	}
	return result.URL, nil
}

// copySource builds the URL-encoded "bucket/key" CopySource value.
func copySource(bucket, key string) string {
	segs := strings.Split(key, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return bucket + "/" + strings.Join(segs, "/")
}

func isNoSuchKey(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
