package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/humus"
	"github.com/aretw0/humus/pkg/core"
)

var (
	verbose    bool
	storeDir   string
	configPath string
	readOnly   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "humus",
	Short: "An embedded document store backed by an append-only log",
	Long: `humus stores schema-less JSON documents under string ids.
Every write is appended to a checksummed log and guarded by a revision token,
so a stale update is rejected instead of silently overwriting newer data.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
// Interrupts cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&storeDir, "dir", "C", "", "Store directory (default: nearest store root, else the working directory)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a humus.yaml config file")
	rootCmd.PersistentFlags().BoolVar(&readOnly, "read-only", false, "Open the store read-only")
}

// loadSettings resolves the store directory and the options that apply to
// it. Precedence: flags, then the config file, then discovery from the
// working directory.
func loadSettings(cmd *cobra.Command) (string, *humus.FileConfig, []humus.Option) {
	cfg := &humus.FileConfig{}
	if configPath != "" {
		loaded, err := humus.LoadConfig(configPath)
		if err != nil {
			fatal("Failed to load config", err)
		}
		cfg = loaded
	}

	dir := storeDir
	if dir == "" {
		dir = cfg.Dir
	}
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			fatal("Failed to get CWD", err)
		}
		dir = cwd
		if root, err := humus.FindRoot(cwd); err == nil {
			dir = root
		}
	}

	if configPath == "" {
		candidate := filepath.Join(dir, humus.ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			loaded, err := humus.LoadConfig(candidate)
			if err != nil {
				fatal("Failed to load config", err)
			}
			cfg = loaded
			slog.Debug("using config", "path", candidate)
		}
	}

	opts := append([]humus.Option{humus.WithLogger(slog.Default())}, cfg.Options()...)
	if cmd.Flags().Changed("read-only") {
		opts = append(opts, humus.WithReadOnly(readOnly))
	}
	return dir, cfg, opts
}

// openStore opens an existing store for a subcommand.
func openStore(cmd *cobra.Command, extra ...humus.Option) *core.Service {
	dir, _, opts := loadSettings(cmd)
	opts = append(opts, humus.WithMustExist(true))
	opts = append(opts, extra...)

	svc, err := humus.NewContext(cmd.Context(), dir, opts...)
	if err != nil {
		fatal("Failed to open store", err)
	}
	return svc
}

func closeStore(svc *core.Service) {
	if err := svc.Close(); err != nil {
		fatal("Failed to close store", err)
	}
}

// readBody parses a document body given inline, as @file, or as "-" for
// stdin. An empty argument is an empty object.
func readBody(arg string) core.Value {
	var data []byte
	var err error
	switch {
	case arg == "":
		return core.Object(nil)
	case arg == "-":
		data, err = io.ReadAll(os.Stdin)
	case strings.HasPrefix(arg, "@"):
		data, err = os.ReadFile(arg[1:])
	default:
		data = []byte(arg)
	}
	if err != nil {
		fatal("Failed to read body", err)
	}

	body, err := core.ParseJSON(data)
	if err != nil {
		fatal("Invalid JSON body", err)
	}
	return body
}

func parseRev(s string) core.Revision {
	if s == "" {
		fatal("Missing revision", errors.New("--rev is required"))
	}
	rev, err := core.ParseRevision(s)
	if err != nil {
		fatal("Invalid revision", err)
	}
	return rev
}
