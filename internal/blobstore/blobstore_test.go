package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 is an in-memory S3API for one bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	tags    map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), tags: make(map[string]string)}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = data
	if in.Tagging != nil {
		f.tags[*in.Key] = *in.Tagging
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, srcKey, _ := strings.Cut(*in.CopySource, "/")
	srcKey = strings.ReplaceAll(srcKey, "%20", " ")
	data, ok := f.objects[srcKey]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	f.objects[*in.Key] = data
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

type fakePresign struct{}

func (fakePresign) PresignGetObject(_ context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var o s3.PresignOptions
	for _, fn := range opts {
		fn(&o)
	}
	return &v4.PresignedHTTPRequest{
		URL: "https://" + *in.Bucket + ".example/" + *in.Key + "?expires=" + o.Expires.String(),
	}, nil
}

// exerciseStore runs the shared Store contract against any implementation.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	key := "projects/p1/abc-cat photo.jpg"

	if err := s.Put(ctx, key, strings.NewReader("jpeg-bytes"), 10, "image/jpeg"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	rc, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "jpeg-bytes" {
		t.Errorf("Get() = %q, want %q", data, "jpeg-bytes")
	}

	moved := Sibling(key, "abc-set_001.jpg")
	if err := s.Move(ctx, key, moved); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(old key) error = %v, want ErrNotFound", err)
	}
	if rc, err := s.Get(ctx, moved); err != nil {
		t.Errorf("Get(new key) error = %v", err)
	} else {
		rc.Close()
	}

	if err := s.Move(ctx, "projects/p1/missing.jpg", "projects/p1/other.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Move(missing) error = %v, want ErrNotFound", err)
	}

	if err := s.Remove(ctx, []string{moved, "projects/p1/never-existed.jpg"}); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := s.Get(ctx, moved); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Remove error = %v, want ErrNotFound", err)
	}

	if err := s.Put(ctx, "../escape.jpg", strings.NewReader("x"), 1, ""); err == nil {
		t.Error("Put() accepted a key escaping the root")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestDirStore(t *testing.T) {
	s, err := NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore() error = %v", err)
	}
	exerciseStore(t, s)
}

func TestS3Store(t *testing.T) {
	fake := newFakeS3()
	s := NewS3Store(fake, fakePresign{}, "media")
	exerciseStore(t, s)

	ctx := context.Background()
	_ = s.Put(ctx, "projects/p/x.jpg", strings.NewReader("x"), 1, "image/jpeg")
	if fake.tags["projects/p/x.jpg"] != projectTag {
		t.Errorf("object tagging = %q, want %q", fake.tags["projects/p/x.jpg"], projectTag)
	}

	url, err := s.PresignGet(ctx, "projects/p/x.jpg", 15*time.Minute)
	if err != nil {
		t.Fatalf("PresignGet() error = %v", err)
	}
	if !strings.Contains(url, "media.example/projects/p/x.jpg") || !strings.Contains(url, "15m0s") {
		t.Errorf("PresignGet() = %s, missing bucket, key or expiry", url)
	}
}

func TestS3Store_PresignWithoutClient(t *testing.T) {
	s := NewS3Store(newFakeS3(), nil, "media")
	if _, err := s.PresignGet(context.Background(), "k", time.Minute); err == nil {
		t.Error("PresignGet() without client succeeded")
	}
}

func TestMemoryStore_FailPut(t *testing.T) {
	s := NewMemoryStore()
	s.FailPut = func(key string) error {
		if strings.HasSuffix(key, "bad.jpg") {
			return errors.New("quota exceeded")
		}
		return nil
	}
	ctx := context.Background()
	if err := s.Put(ctx, "p/good.jpg", strings.NewReader("x"), 1, ""); err != nil {
		t.Errorf("Put(good) error = %v", err)
	}
	if err := s.Put(ctx, "p/bad.jpg", strings.NewReader("x"), 1, ""); err == nil {
		t.Error("Put(bad) succeeded despite injected fault")
	}
	if keys := s.Keys("p/"); len(keys) != 1 || keys[0] != "p/good.jpg" {
		t.Errorf("Keys() = %v, want [p/good.jpg]", keys)
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"projects/p/a.jpg", false},
		{"a.jpg", false},
		{"", true},
		{"/abs/a.jpg", true},
		{"projects/../a.jpg", true},
		{"projects//a.jpg", true},
		{`projects\a.jpg`, true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if err := ValidateKey(tt.key); (err != nil) != tt.wantErr {
				t.Errorf("ValidateKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestKeyHelpers(t *testing.T) {
	if got := ImageKey("p1", "u1", "cat.jpg"); got != "projects/p1/u1-cat.jpg" {
		t.Errorf("ImageKey() = %s", got)
	}
	if got := Sibling("projects/p1/u1-cat.jpg", "u1-shot_001.jpg"); got != "projects/p1/u1-shot_001.jpg" {
		t.Errorf("Sibling() = %s", got)
	}
	if got := Sibling("cat.jpg", "dog.jpg"); got != "dog.jpg" {
		t.Errorf("Sibling(no dir) = %s", got)
	}
	if got := copySource("b", "projects/p/cat photo.jpg"); got != "b/projects/p/cat%20photo.jpg" {
		t.Errorf("copySource() = %s", got)
	}
}
