package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// DefaultEventBuffer is the Watch buffer used when none is configured.
const DefaultEventBuffer = 100

// Service handles the business logic for documents.
type Service struct {
	repo            Repository
	logger          *slog.Logger
	eventBufferSize int
	mu              sync.RWMutex
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithEventBufferSize sets the buffer of channels returned by Watch.
func WithEventBufferSize(size int) ServiceOption {
	return func(s *Service) {
		if size > 0 {
			s.eventBufferSize = size
		}
	}
}

// WithServiceLogger sets the logger used by the Service.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a new Service.
func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{
		repo:            repo,
		logger:          slog.New(slog.DiscardHandler),
		eventBufferSize: DefaultEventBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Repository exposes the underlying repository.
func (s *Service) Repository() Repository {
	return s.repo
}

// Create validates and stores a new document.
func (s *Service) Create(ctx context.Context, body Value, id string) (string, Revision, error) {
	if id != "" {
		if err := ValidateID(id); err != nil {
			return "", Revision{}, err
		}
	}
	body, err := ValidateBody(body)
	if err != nil {
		return "", Revision{}, err
	}
	return s.repo.Create(ctx, body, id)
}

// Get retrieves a document.
func (s *Service) Get(ctx context.Context, id string) (Document, error) {
	if err := ValidateID(id); err != nil {
		return Document{}, err
	}
	return s.repo.Get(ctx, id)
}

// Update replaces a document body under optimistic concurrency control.
func (s *Service) Update(ctx context.Context, id string, rev Revision, body Value) (Revision, error) {
	if err := ValidateID(id); err != nil {
		return Revision{}, err
	}
	body, err := ValidateBody(body)
	if err != nil {
		return Revision{}, err
	}
	return s.repo.Update(ctx, id, rev, body)
}

// Delete tombstones a document.
func (s *Service) Delete(ctx context.Context, id string, rev Revision) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id, rev)
}

// List retrieves live documents.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Document, error) {
	return s.repo.List(ctx, opts)
}

// Info summarizes the underlying repository.
func (s *Service) Info(ctx context.Context) (Info, error) {
	return s.repo.Info(ctx)
}

// Checkpoint persists the index snapshot if the repository supports it.
func (s *Service) Checkpoint(ctx context.Context) error {
	c, ok := s.repo.(Checkpointer)
	if !ok {
		return errors.New("repository does not support checkpoints")
	}
	return c.Checkpoint(ctx)
}

// Refresh catches up with external writes if the repository supports it.
func (s *Service) Refresh(ctx context.Context) error {
	r, ok := s.repo.(Refreshable)
	if !ok {
		return errors.New("repository does not support refresh")
	}
	return r.Refresh(ctx)
}

// Close closes the underlying repository.
func (s *Service) Close() error {
	return s.repo.Close()
}

// Watch observes changes in the repository if supported.
// The returned channel is decoupled from the repository by its own buffer,
// so a slow consumer never stalls the publisher.
func (s *Service) Watch(ctx context.Context, pattern string) (<-chan Event, error) {
	w, ok := s.repo.(Watchable)
	if !ok {
		return nil, errors.New("repository does not support watching")
	}
	upstream, err := w.Watch(ctx, pattern)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	size := s.eventBufferSize
	s.mu.RUnlock()

	out := make(chan Event, size)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-upstream:
				if !ok {
					return
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

var _ Store = (*Service)(nil)
