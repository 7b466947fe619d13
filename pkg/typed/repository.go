package typed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/humus/pkg/core"
)

// DocumentModel is a typed view of a document body.
type DocumentModel[T any] struct {
	ID    string
	Rev   core.Revision
	Data  T
	Saver Saver[T] // Active Record reference
}

// Saver persists a DocumentModel.
type Saver[T any] interface {
	Save(ctx context.Context, doc *DocumentModel[T]) error
}

// Save persists the document using the attached saver. A document without
// a revision is created, otherwise it is updated; doc.Rev is advanced on
// success.
func (d *DocumentModel[T]) Save(ctx context.Context) error {
	if d.Saver == nil {
		return fmt.Errorf("document is detached (missing Saver)")
	}
	return d.Saver.Save(ctx, d)
}

// Repository wraps a core.Store to provide type-safe access. Both
// *core.Service and repositories satisfy core.Store.
type Repository[T any] struct {
	store core.Store
}

// NewRepository creates a new type-safe wrapper around an existing store.
func NewRepository[T any](store core.Store) *Repository[T] {
	return &Repository[T]{store: store}
}

// Create stores data under id, or under a generated id when id is empty.
func (r *Repository[T]) Create(ctx context.Context, id string, data T) (*DocumentModel[T], error) {
	body, err := toValue(data)
	if err != nil {
		return nil, err
	}
	id, rev, err := r.store.Create(ctx, body, id)
	if err != nil {
		return nil, err
	}
	return &DocumentModel[T]{ID: id, Rev: rev, Data: data, Saver: r}, nil
}

// Get retrieves a document and decodes its body into T.
func (r *Repository[T]) Get(ctx context.Context, id string) (*DocumentModel[T], error) {
	doc, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return fromCore(doc, r)
}

// Update replaces the body of doc under optimistic concurrency control and
// advances doc.Rev.
func (r *Repository[T]) Update(ctx context.Context, doc *DocumentModel[T]) error {
	body, err := toValue(doc.Data)
	if err != nil {
		return err
	}
	rev, err := r.store.Update(ctx, doc.ID, doc.Rev, body)
	if err != nil {
		return err
	}
	doc.Rev = rev
	return nil
}

// Save creates doc when it has no revision yet and updates it otherwise.
func (r *Repository[T]) Save(ctx context.Context, doc *DocumentModel[T]) error {
	if doc.Saver == nil {
		doc.Saver = r
	}
	if !doc.Rev.IsZero() {
		return r.Update(ctx, doc)
	}

	created, err := r.Create(ctx, doc.ID, doc.Data)
	if err != nil {
		return err
	}
	doc.ID, doc.Rev = created.ID, created.Rev
	return nil
}

// Delete tombstones the document at id.
func (r *Repository[T]) Delete(ctx context.Context, id string, rev core.Revision) error {
	return r.store.Delete(ctx, id, rev)
}

// List returns the documents whose id matches pattern, decoded into T.
func (r *Repository[T]) List(ctx context.Context, pattern string) ([]*DocumentModel[T], error) {
	docs, err := r.store.List(ctx, core.ListOptions{Pattern: pattern, IncludeDocs: true})
	if err != nil {
		return nil, err
	}

	result := make([]*DocumentModel[T], 0, len(docs))
	for _, d := range docs {
		model, err := fromCore(d, r)
		if err != nil {
			return nil, fmt.Errorf("failed to process document %s: %w", d.ID, err)
		}
		result = append(result, model)
	}
	return result, nil
}

// Watch observes changes if the underlying store supports it.
func (r *Repository[T]) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	w, ok := r.store.(core.Watchable)
	if !ok {
		return nil, errors.New("store does not support watching")
	}
	return w.Watch(ctx, pattern)
}

func toValue[T any](data T) (core.Value, error) {
	body, err := core.FromAny(data)
	if err != nil {
		return core.Value{}, fmt.Errorf("failed to convert typed data: %w", err)
	}
	return body, nil
}

func fromCore[T any](doc core.Document, saver Saver[T]) (*DocumentModel[T], error) {
	raw, err := json.Marshal(doc.Body)
	if err != nil {
		return nil, fmt.Errorf("body marshal failed: %w", err)
	}

	var data T
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("unmarshal to target type failed: %w", err)
	}

	return &DocumentModel[T]{
		ID:    doc.ID,
		Rev:   doc.Rev,
		Data:  data,
		Saver: saver,
	}, nil
}
