package platform

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aretw0/humus/pkg/adapters/fs"
	"github.com/aretw0/humus/pkg/core"
)

// Init opens (and creates, unless told otherwise) a store based on the
// provided configuration. The 'uri' argument is adapter-specific (a
// directory for 'fs').
//
// It returns the recovered core.Repository.
func Init(uri string, opts ...Option) (core.Repository, error) {
	return InitContext(context.Background(), uri, opts...)
}

// InitContext is Init with a caller-supplied context for recovery.
func InitContext(ctx context.Context, uri string, opts ...Option) (core.Repository, error) {
	o := applyOptions(opts)

	// 1. Check for injected repository
	if o.repository != nil {
		return o.repository, nil
	}

	// 2. Initialize based on Adapter
	var repo core.Repository
	var err error

	switch o.adapter {
	case "fs":
		repo, err = initFS(uri, o)
	default:
		return nil, fmt.Errorf("unknown adapter: %s", o.adapter)
	}

	if err != nil {
		return nil, err
	}

	// 3. Run Initialization
	if err := repo.Initialize(ctx); err != nil {
		return nil, err
	}

	return repo, nil
}

// ParseSyncMode maps the textual sync setting to fs.SyncMode.
func ParseSyncMode(s string) (fs.SyncMode, error) {
	switch s {
	case "", "always":
		return fs.SyncAlways, nil
	case "none":
		return fs.SyncNone, nil
	default:
		return fs.SyncAlways, fmt.Errorf("unknown sync mode %q (want always or none)", s)
	}
}

// initFS handles the initialization logic for the Filesystem adapter
func initFS(path string, o *options) (core.Repository, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	mustExist, _ := o.config["must_exist"].(bool)
	readOnly, _ := o.config["read_only"].(bool)
	follow, _ := o.config["follow"].(bool)
	systemDir, _ := o.config["system_dir"].(string)
	eventBuffer, _ := o.config["event_buffer"].(int)
	errorHandler, _ := o.config["error_handler"].(func(error))
	syncName, _ := o.config["sync"].(string)

	snapshot := true
	if val, ok := o.config["snapshot"].(bool); ok {
		snapshot = val
	}

	syncMode, err := ParseSyncMode(syncName)
	if err != nil {
		return nil, err
	}

	if follow && !readOnly && o.logger != nil {
		o.logger.Warn("follow requires read-only mode; ignoring", "path", abs)
	}

	repoConfig := fs.Config{
		Path:         abs,
		MustExist:    mustExist,
		ReadOnly:     readOnly,
		Follow:       follow && readOnly,
		SyncMode:     syncMode,
		SystemDir:    systemDir,
		NoSnapshot:   !snapshot,
		EventBuffer:  eventBuffer,
		Logger:       o.logger,
		ErrorHandler: errorHandler,
	}

	return fs.NewRepository(repoConfig), nil
}
