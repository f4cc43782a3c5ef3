// Package contentstore adapts content-addressed blob storage. It carries no business logic.
package contentstore

import (
	"context"

	"lottery/internal/models"
)

// Store uploads blobs and returns their content identifiers. Put either returns a
// valid identifier or an error, never a partial result.
type Store interface {
	Put(ctx context.Context, data []byte) (models.ContentID, error)
	// Mount makes an uploaded blob visible under path; optional for correctness.
	Mount(ctx context.Context, id models.ContentID, path string) error
}
