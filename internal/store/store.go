// Package store provides durable storage for caption projects, their image
// records and their reusable tokens.
//
// Two implementations exist: MemoryStore for local runs and tests, and
// DynamoStore, a single-table DynamoDB design where every item of a project
// shares the partition key PROJECT#{projectId}. Sort keys distinguish item
// types: META for the project itself, IMAGE#{imageId} and TOKEN#{value}.
//
// All Get methods return (nil, nil) when the requested record does not exist.
// All Put methods perform full-item replacement (upsert semantics). Update
// methods on missing records return ErrNotFound.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by update methods when the target record is missing.
var ErrNotFound = errors.New("record not found")

// ProjectStore persists projects.
type ProjectStore interface {
	// PutProject creates or replaces a project.
	PutProject(ctx context.Context, p *Project) error

	// GetProject retrieves a project by ID. Returns nil, nil if not found.
	GetProject(ctx context.Context, projectID string) (*Project, error)

	// ListProjects returns all projects, newest first.
	ListProjects(ctx context.Context) ([]*Project, error)

	// DeleteProject removes the project record only. Images and tokens
	// must be removed by the caller first.
	DeleteProject(ctx context.Context, projectID string) error
}

// ImageStore persists image records.
type ImageStore interface {
	// PutImage creates or replaces an image record.
	PutImage(ctx context.Context, rec *ImageRecord) error

	// GetImage retrieves an image record. Returns nil, nil if not found.
	GetImage(ctx context.Context, projectID, imageID string) (*ImageRecord, error)

	// ListImages returns every image of a project, oldest first.
	ListImages(ctx context.Context, projectID string) ([]*ImageRecord, error)

	// UpdateCaption replaces the caption of one image.
	UpdateCaption(ctx context.Context, projectID, imageID, caption string) error

	// UpdateLocation sets a new display name and storage key for one image.
	UpdateLocation(ctx context.Context, projectID, imageID, name, storageKey string) error

	// SetDigest caches the content digest of one image.
	SetDigest(ctx context.Context, projectID, imageID, digest string) error

	// DeleteImage removes one image record.
	DeleteImage(ctx context.Context, projectID, imageID string) error
}

// TokenStore persists the reusable caption tokens of each project.
type TokenStore interface {
	// PutTokens adds values to a project's token set; existing values are
	// left untouched.
	PutTokens(ctx context.Context, projectID string, values []string) error

	// ListTokens returns a project's tokens sorted ascending.
	ListTokens(ctx context.Context, projectID string) ([]string, error)

	// DeleteToken removes one token. Deleting a missing token is not an error.
	DeleteToken(ctx context.Context, projectID, value string) error

	// DeleteTokens removes every token of a project.
	DeleteTokens(ctx context.Context, projectID string) error
}

// Store is the full persistence surface used by the workspace.
type Store interface {
	ProjectStore
	ImageStore
	TokenStore
}

// --- Domain types ---
//
// ID and ProjectID are derived from PK/SK on read and excluded from DynamoDB
// attributes on write (via dynamodbav:"-").

// Project is a named collection of images (DynamoDB SK = META).
type Project struct {
	ID        string `json:"id" dynamodbav:"-"`
	Name      string `json:"name" dynamodbav:"name"`
	CreatedAt int64  `json:"createdAt" dynamodbav:"createdAt"`
}

// ImageRecord is one ingested image and its caption
// (DynamoDB SK = IMAGE#{imageId}).
type ImageRecord struct {
	ID            string `json:"id" dynamodbav:"-"`
	ProjectID     string `json:"projectId" dynamodbav:"-"`
	OriginalName  string `json:"originalName" dynamodbav:"originalName"`
	StorageKey    string `json:"storageKey" dynamodbav:"storageKey"`
	MIMEType      string `json:"mimeType" dynamodbav:"mimeType"`
	Size          int64  `json:"size" dynamodbav:"size"`
	Caption       string `json:"caption" dynamodbav:"caption"`
	ContentDigest string `json:"contentDigest,omitempty" dynamodbav:"contentDigest,omitempty"`

	// CreatedAt is Unix milliseconds at ingestion.
	CreatedAt int64 `json:"createdAt" dynamodbav:"createdAt"`

	// CapturedAt is Unix milliseconds from EXIF, 0 when unknown.
	CapturedAt int64 `json:"capturedAt,omitempty" dynamodbav:"capturedAt,omitempty"`
}

// Clone returns a copy of the record.
func (r *ImageRecord) Clone() *ImageRecord {
	c := *r
	return &c
}
