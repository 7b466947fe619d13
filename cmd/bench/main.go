package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/humus"
	"github.com/aretw0/humus/pkg/core"
)

func main() {
	count := flag.Int("count", 10000, "Number of documents to create")
	workers := flag.Int("workers", 8, "Concurrent writers")
	syncMode := flag.String("sync", "none", "Append durability: always or none")
	keep := flag.Bool("keep", false, "Keep the benchmark store after running")
	flag.Parse()

	// 1. Setup Namespace
	benchDir, err := os.MkdirTemp("", "humus_bench_")
	if err != nil {
		panic(err)
	}
	defer func() {
		if !*keep {
			os.RemoveAll(benchDir)
		} else {
			fmt.Printf("Keeping bench dir: %s\n", benchDir)
		}
	}()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.TODO()

	service, err := humus.New(benchDir, humus.WithLogger(logger), humus.WithSync(*syncMode))
	if err != nil {
		panic(err)
	}

	// 2. Create
	fmt.Printf("Creating %d documents in %s (%d workers, sync=%s)...\n", *count, benchDir, *workers, *syncMode)
	ids := make([]string, *count)
	startCreate := time.Now()
	err = runParallel(ctx, *count, *workers, func(ctx context.Context, i int) error {
		body := core.Object(map[string]core.Value{
			"title": core.String(fmt.Sprintf("Document %d", i)),
			"n":     core.Int(int64(i)),
			"tags":  core.Array(core.String("benchmark"), core.String("test")),
		})
		id, _, err := service.Create(ctx, body, "")
		ids[i] = id
		return err
	})
	if err != nil {
		panic(err)
	}
	createDuration := time.Since(startCreate)

	// 3. Get
	startGet := time.Now()
	err = runParallel(ctx, *count, *workers, func(ctx context.Context, i int) error {
		_, err := service.Get(ctx, ids[i])
		return err
	})
	if err != nil {
		panic(err)
	}
	getDuration := time.Since(startGet)

	if err := service.Close(); err != nil {
		panic(err)
	}

	// 4. Reopen: full replay, then from the snapshot written by Close.
	replayDuration := timeOpen(benchDir, logger, humus.WithSnapshot(false))
	snapshotDuration := timeOpen(benchDir, logger)

	fmt.Printf("--------------------------------------------------\n")
	fmt.Printf("Benchmark Result (%d documents):\n", *count)
	fmt.Printf("  Create:          %v (%.0f ops/s)\n", createDuration, rate(*count, createDuration))
	fmt.Printf("  Get:             %v (%.0f ops/s)\n", getDuration, rate(*count, getDuration))
	fmt.Printf("  Open (replay):   %v\n", replayDuration)
	fmt.Printf("  Open (snapshot): %v\n", snapshotDuration)
	fmt.Printf("--------------------------------------------------\n")
}

// runParallel calls fn for 0..n-1 with at most workers calls in flight and
// stops at the first error.
func runParallel(ctx context.Context, n, workers int, fn func(ctx context.Context, i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i := 0; i < n; i++ {
		g.Go(func() error { return fn(ctx, i) })
	}
	return g.Wait()
}

func timeOpen(dir string, logger *slog.Logger, opts ...humus.Option) time.Duration {
	opts = append(opts, humus.WithLogger(logger), humus.WithMustExist(true), humus.WithReadOnly(true))
	start := time.Now()
	svc, err := humus.New(dir, opts...)
	if err != nil {
		panic(err)
	}
	elapsed := time.Since(start)
	if err := svc.Close(); err != nil {
		panic(err)
	}
	return elapsed
}

func rate(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}
