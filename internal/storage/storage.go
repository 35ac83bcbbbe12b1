package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Role identifies which asset of a job an object key refers to.
type Role string

const (
	RoleOriginal  Role = "original"
	RoleGenerated Role = "generated"
	RolePreview   Role = "preview"
	RoleFinal     Role = "final"
)

// ErrObjectNotFound is returned by Get/Stream when the key does not exist.
var ErrObjectNotFound = errors.New("storage: object not found")

// ObjectKey builds the canonical key for a job asset. All drivers share this
// layout so a job's assets stay co-located under its id.
func ObjectKey(jobID string, role Role) string {
	ext := "png"
	if role == RoleOriginal {
		ext = "jpg"
	}
	return fmt.Sprintf("%s/%s.%s", jobID, role, ext)
}

// ArtifactStore is the durable blob store for job assets. Writes overwrite:
// two pipelines racing on the same job converge on whichever write lands
// last, which matches the job record's last-write-wins semantics.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Stream(ctx context.Context, key string) (io.ReadCloser, error)
}
