package ports

import (
	"context"
	"io"

	"intradaySync/internal/domain"
)

// BlobStore is the remote storage collaborator: named objects inside folders.
type BlobStore interface {
	// Ping proves the session is usable against folder.
	Ping(ctx context.Context, folder string) error

	// Find lists non-trashed blobs named exactly name whose parent is folder.
	Find(ctx context.Context, folder, name string) ([]domain.BlobRef, error)

	// Download streams the full content of blob id into w.
	Download(ctx context.Context, id string, w io.Writer) error

	// Create stores a new blob in folder and returns its id.
	Create(ctx context.Context, folder, name string, content io.Reader) (string, error)

	// Update replaces the content of an existing blob, keeping its id.
	Update(ctx context.Context, id string, content io.Reader) error
}
