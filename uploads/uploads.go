// Package uploads provides the file-upload initiation capability consumed by
// the upload_file action handler.
package uploads

import (
	"context"
	"time"
)

// Request describes the file a user wants to upload.
type Request struct {
	FileName       string
	ContentType    string
	Size           int64
	OrganizationID string
	UserID         string
}

// Grant is the initiated upload: the caller PUTs the file bytes to UploadURL
// before ExpiresAt.
type Grant struct {
	FileID    string
	Bucket    string
	Key       string
	UploadURL string
	ExpiresAt time.Time
}

// Initiator initiates uploads against some object store.
type Initiator interface {
	InitiateUpload(ctx context.Context, req Request) (Grant, error)
}

// InitiatorFunc adapts a function to the Initiator interface.
type InitiatorFunc func(ctx context.Context, req Request) (Grant, error)

func (f InitiatorFunc) InitiateUpload(ctx context.Context, req Request) (Grant, error) {
	return f(ctx, req)
}
