package platform

import (
	"log/slog"

	"github.com/aretw0/humus/pkg/core"
)

// options holds the internal configuration for a humus store.
type options struct {
	repository core.Repository
	logger     *slog.Logger
	adapter    string
	config     map[string]interface{}
}

// Option defines a functional option for configuring humus.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		repository: nil,
		logger:     nil,
		adapter:    "fs",
		config:     make(map[string]interface{}),
	}
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithMustExist ensures the store directory must already exist.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.config["must_exist"] = must
	}
}

// WithLogger sets the logger for the service and the adapter.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRepository allows injecting a custom storage adapter (e.g. a mock).
// If provided, the default filesystem adapter will be skipped.
func WithRepository(repo core.Repository) Option {
	return func(o *options) {
		o.repository = repo
	}
}

// WithAdapter allows specifying the storage adapter to use by name (e.g. "fs").
// Defaults to "fs".
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithSystemDir sets the directory, relative to the store, that holds
// derived state. Defaults to ".humus".
func WithSystemDir(name string) Option {
	return func(o *options) {
		o.config["system_dir"] = name
	}
}

// WithEventBuffer sets the buffer of each Watch subscription.
// Zero means default (100).
func WithEventBuffer(size int) Option {
	return func(o *options) {
		o.config["event_buffer"] = size
	}
}

// WithErrorHandler registers a callback for errors raised by background
// work such as the log follower. Without it they are logged.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.config["error_handler"] = fn
	}
}

// WithReadOnly enables read-only mode.
// In this mode:
// 1. Create, Update and Delete return ErrReadOnly.
// 2. The directory and the log must already exist.
// 3. A torn tail is left untouched and no snapshot is written.
func WithReadOnly(enabled bool) Option {
	return func(o *options) {
		o.config["read_only"] = enabled
	}
}

// WithFollow keeps a read-only store in step with the process writing the
// log. It has no effect on writable stores.
func WithFollow(enabled bool) Option {
	return func(o *options) {
		o.config["follow"] = enabled
	}
}

// WithSync selects when appends are flushed to stable storage:
// "always" (default) fsyncs every record, "none" leaves it to the OS.
func WithSync(mode string) Option {
	return func(o *options) {
		o.config["sync"] = mode
	}
}

// WithSnapshot enables or disables the index snapshot written on Close and
// Checkpoint. Enabled by default.
func WithSnapshot(enabled bool) Option {
	return func(o *options) {
		o.config["snapshot"] = enabled
	}
}
