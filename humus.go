package humus

import (
	"context"
	"log/slog"

	"github.com/aretw0/humus/internal/platform"
	"github.com/aretw0/humus/pkg/core"
	"github.com/aretw0/humus/pkg/typed"
)

// Version exposes the version of the library.
// See version.go for the implementation using go:embed.

// ConfigFileName is the config file looked up next to a store.
const ConfigFileName = platform.ConfigFileName

// --- Types ---

// DocumentModel is a public alias for the typed document model.
type DocumentModel[T any] = typed.DocumentModel[T]

// TypedRepository is a public alias for the typed repository.
type TypedRepository[T any] = typed.Repository[T]

// Registry shares open stores within a process.
type Registry = platform.Registry

// Handle is one reference to a store opened through a Registry.
type Handle = platform.Handle

// FileConfig mirrors the humus.yaml config file.
type FileConfig = platform.FileConfig

// --- Configuration ---

// Option defines a functional option for configuring humus.
type Option = platform.Option

// WithMustExist ensures the store directory must already exist.
func WithMustExist(must bool) Option {
	return platform.WithMustExist(must)
}

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithRepository allows injecting a custom storage adapter.
func WithRepository(repo core.Repository) Option {
	return platform.WithRepository(repo)
}

// WithAdapter allows specifying the storage adapter to use by name.
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithSystemDir allows specifying the directory that holds derived state
// (e.g. ".humus").
func WithSystemDir(name string) Option {
	return platform.WithSystemDir(name)
}

// WithEventBuffer allows specifying the buffer of each Watch subscription.
func WithEventBuffer(size int) Option {
	return platform.WithEventBuffer(size)
}

// WithErrorHandler registers a callback for background errors.
func WithErrorHandler(fn func(error)) Option {
	return platform.WithErrorHandler(fn)
}

// WithReadOnly opens the store without write access.
func WithReadOnly(enabled bool) Option {
	return platform.WithReadOnly(enabled)
}

// WithFollow keeps a read-only store in step with the writing process.
func WithFollow(enabled bool) Option {
	return platform.WithFollow(enabled)
}

// WithSync selects the durability of appends: "always" or "none".
func WithSync(mode string) Option {
	return platform.WithSync(mode)
}

// WithSnapshot enables or disables the index snapshot.
func WithSnapshot(enabled bool) Option {
	return platform.WithSnapshot(enabled)
}

// --- Factory ---

// New opens the store at path and returns a Service over it.
func New(path string, opts ...Option) (*core.Service, error) {
	return platform.New(path, opts...)
}

// NewContext is New with a caller-supplied context for recovery.
func NewContext(ctx context.Context, path string, opts ...Option) (*core.Service, error) {
	return platform.NewContext(ctx, path, opts...)
}

// Init opens a repository explicitly.
func Init(path string, opts ...Option) (core.Repository, error) {
	return platform.Init(path, opts...)
}

// NewRegistry returns an empty store registry.
func NewRegistry() *Registry {
	return platform.NewRegistry()
}

// LoadConfig reads a humus.yaml config file.
func LoadConfig(path string) (*FileConfig, error) {
	return platform.LoadConfig(path)
}

// FindRoot looks upwards from startDir for a store root.
func FindRoot(startDir string) (string, error) {
	return platform.FindRoot(startDir)
}

// --- Typed Factories ---

// NewTypedRepository creates a type-safe wrapper around a store.
func NewTypedRepository[T any](store core.Store) *typed.Repository[T] {
	return typed.NewRepository[T](store)
}

// OpenTypedRepository simplifies creating a TypedRepository from a path.
// The Service is returned so the caller can close it.
func OpenTypedRepository[T any](path string, opts ...Option) (*typed.Repository[T], *core.Service, error) {
	svc, err := New(path, opts...)
	if err != nil {
		return nil, nil, err
	}
	return typed.NewRepository[T](svc), svc, nil
}
