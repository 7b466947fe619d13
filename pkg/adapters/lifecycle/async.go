package lifecycle

import (
	"context"

	"github.com/aretw0/humus/pkg/core"
)

// Created is the result of an asynchronous Create.
type Created struct {
	ID  string
	Rev core.Revision
}

// Async runs store operations in the background and hands back futures.
type Async struct {
	store core.Store
}

// NewAsync wraps store.
func NewAsync(store core.Store) *Async {
	return &Async{store: store}
}

func (a *Async) Create(ctx context.Context, body core.Value, id string) *Future[Created] {
	return Go(ctx, func(ctx context.Context) (Created, error) {
		id, rev, err := a.store.Create(ctx, body, id)
		return Created{ID: id, Rev: rev}, err
	})
}

func (a *Async) Get(ctx context.Context, id string) *Future[core.Document] {
	return Go(ctx, func(ctx context.Context) (core.Document, error) {
		return a.store.Get(ctx, id)
	})
}

func (a *Async) Update(ctx context.Context, id string, rev core.Revision, body core.Value) *Future[core.Revision] {
	return Go(ctx, func(ctx context.Context) (core.Revision, error) {
		return a.store.Update(ctx, id, rev, body)
	})
}

func (a *Async) Delete(ctx context.Context, id string, rev core.Revision) *Future[struct{}] {
	return Go(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.store.Delete(ctx, id, rev)
	})
}

func (a *Async) List(ctx context.Context, opts core.ListOptions) *Future[[]core.Document] {
	return Go(ctx, func(ctx context.Context) ([]core.Document, error) {
		return a.store.List(ctx, opts)
	})
}
