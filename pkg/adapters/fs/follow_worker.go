package fs

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/supervisor"
	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/fsnotify/fsnotify"
)

// followPollInterval bounds how long a missed fsnotify event can delay a
// refresh.
const followPollInterval = time.Second

type runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// followWorker tails the log of a read-only repository, indexing records
// appended by the writing process.
type followWorker struct {
	*worker.BaseWorker
	repo    *Repository
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
}

func newFollowWorker(repo *Repository) *followWorker {
	return &followWorker{
		BaseWorker: worker.NewBaseWorker("log-follower"),
		repo:       repo,
	}
}

func (w *followWorker) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := w.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("follower already started (status: %s)", status)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory: some platforms drop watches on files that are
	// truncated or replaced.
	if err := watcher.Add(w.repo.Path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.repo.Path, err)
	}

	w.watcher = watcher
	w.repo.setFollowerActive(true)

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.SetStatus(worker.StatusRunning)
	return w.StartFunc(runCtx, w.run)
}

func (w *followWorker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.StopRequested = true
		w.cancel()
	}

	return w.BaseWorker.Stop(ctx)
}

func (w *followWorker) State() worker.State {
	return w.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
		}
	})
}

func (w *followWorker) run(ctx context.Context) (err error) {
	logger := w.repo.logger
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("follower panic: %v", recovered)
			if logger.Enabled(ctx, slog.LevelDebug) {
				logger.Error("follower panic", "error", err, "stack", string(debug.Stack()))
			} else {
				logger.Error("follower panic", "error", err)
			}
		}
	}()
	defer w.repo.setFollowerActive(false)
	defer w.watcher.Close()

	// Catch up with anything written between Initialize and now.
	w.refresh(ctx)

	logPath := filepath.Clean(w.repo.LogPath())
	ticker := time.NewTicker(followPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != logPath {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.refresh(ctx)
			}

		case wErr, ok := <-w.watcher.Errors:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			w.repo.reportError(fmt.Errorf("fsnotify: %w", wErr))

		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *followWorker) refresh(ctx context.Context) {
	if err := w.repo.Refresh(ctx); err != nil && ctx.Err() == nil {
		w.repo.reportError(fmt.Errorf("follower refresh: %w", err))
	}
}

// startFollower runs the follower under a supervisor that restarts it if
// the watcher fails.
func (r *Repository) startFollower(ctx context.Context) error {
	spec := supervisor.Spec{
		Name: "log-follower",
		Type: string(worker.TypeGoroutine),
		Factory: func() (worker.Worker, error) {
			return newFollowWorker(r), nil
		},
		Backoff: supervisor.Backoff{
			InitialInterval: 50 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			Multiplier:      2,
			ResetDuration:   30 * time.Second,
			MaxRestarts:     10,
			MaxDuration:     time.Minute,
		},
		RestartPolicy: supervisor.RestartOnFailure,
	}

	sup := supervisor.New("humus-follower", supervisor.StrategyOneForOne, spec)
	// The follower outlives the Initialize call; Close stops it.
	if err := sup.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to start follower: %w", err)
	}

	r.mu.Lock()
	r.follower = sup
	r.mu.Unlock()
	return nil
}

func (r *Repository) stopFollower() {
	r.mu.Lock()
	sup := r.follower
	r.follower = nil
	r.mu.Unlock()
	if sup == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Stop(ctx); err != nil {
		r.logger.Warn("follower did not stop cleanly", "error", err)
	}
}

func (r *Repository) setFollowerActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.followerActive = active
}

func (r *Repository) reportError(err error) {
	if r.config.ErrorHandler != nil {
		r.config.ErrorHandler(err)
		return
	}
	r.logger.Error("background error", "error", err)
}
