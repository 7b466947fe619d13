package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aretw0/humus"
	"github.com/aretw0/humus/pkg/adapters/httpapi"
)

var (
	serveListen string
	serveFollow bool
)

const defaultListen = "127.0.0.1:5984"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the store over HTTP",
	Long: `Serve documents over HTTP until interrupted.
With --read-only --follow the server tracks writes made by another process.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		_, cfg, _ := loadSettings(cmd)
		addr := serveListen
		if !cmd.Flags().Changed("listen") && cfg.Listen != "" {
			addr = cfg.Listen
		}

		var extra []humus.Option
		if cmd.Flags().Changed("follow") {
			extra = append(extra, humus.WithFollow(serveFollow))
		}
		svc := openStore(cmd, extra...)
		defer closeStore(svc)

		logger := slog.Default()
		if err := httpapi.Serve(cmd.Context(), addr, httpapi.NewRouter(svc, logger), logger); err != nil {
			fatal("Server failed", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", defaultListen, "Address to listen on")
	serveCmd.Flags().BoolVar(&serveFollow, "follow", false, "Track writes by another process (read-only only)")
}
