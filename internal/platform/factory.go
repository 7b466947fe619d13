package platform

import (
	"context"

	"github.com/aretw0/humus/pkg/core"
)

// New opens the store at uri and wraps it in a core.Service.
//
//	svc, err := humus.New("./data", humus.WithSync("none"))
func New(uri string, opts ...Option) (*core.Service, error) {
	return NewContext(context.Background(), uri, opts...)
}

// NewContext is New with a caller-supplied context for recovery.
func NewContext(ctx context.Context, uri string, opts ...Option) (*core.Service, error) {
	repo, err := InitContext(ctx, uri, opts...)
	if err != nil {
		return nil, err
	}
	return newService(repo, applyOptions(opts)), nil
}

func newService(repo core.Repository, o *options) *core.Service {
	svcOpts := []core.ServiceOption{core.WithServiceLogger(o.logger)}
	if size, ok := o.config["event_buffer"].(int); ok {
		svcOpts = append(svcOpts, core.WithEventBufferSize(size))
	}
	return core.NewService(repo, svcOpts...)
}
