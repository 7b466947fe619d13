package core

import "context"

// Store is the document operation surface shared by repositories and the
// Service.
type Store interface {
	// Create stores a new document. An empty id asks the store to generate
	// one. Fails with ErrConflict if the id is already live.
	Create(ctx context.Context, body Value, id string) (string, Revision, error)

	// Get returns the live document for id, or ErrNotFound.
	Get(ctx context.Context, id string) (Document, error)

	// Update replaces the body of id. rev must be the current revision.
	Update(ctx context.Context, id string, rev Revision, body Value) (Revision, error)

	// Delete writes a tombstone for id. rev must be the current revision.
	Delete(ctx context.Context, id string, rev Revision) error

	// List returns live documents sorted by id.
	List(ctx context.Context, opts ListOptions) ([]Document, error)
}

// Repository defines the contract for a storage backend.
type Repository interface {
	Store

	// Info summarizes the repository.
	Info(ctx context.Context) (Info, error)

	// Initialize ensures the underlying storage is ready and recovered.
	Initialize(ctx context.Context) error

	// Close releases the repository. Further calls fail with ErrClosed.
	Close() error
}

// Watchable is implemented by repositories that publish committed changes.
type Watchable interface {
	Watch(ctx context.Context, pattern string) (<-chan Event, error)
}

// Refreshable is implemented by repositories that can catch up with writes
// made by another process.
type Refreshable interface {
	Refresh(ctx context.Context) error
}

// Checkpointer is implemented by repositories that can persist a derived
// index snapshot.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}
