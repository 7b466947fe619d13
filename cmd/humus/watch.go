package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/humus"
	"github.com/aretw0/humus/pkg/adapters/lifecycle"
	"github.com/aretw0/humus/pkg/core"
)

var (
	watchPattern string
	watchJSON    bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream committed changes",
	Long: `Print changes as they are committed, until interrupted.
Another process owns the log, so the store is opened read-only and followed.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		svc := openStore(cmd, humus.WithReadOnly(true), humus.WithFollow(true))
		defer closeStore(svc)

		source := lifecycle.NewSource(svc, watchPattern)
		if err := source.Start(cmd.Context()); err != nil {
			fatal("Failed to watch store", err)
		}

		encoder := json.NewEncoder(os.Stdout)
		for e := range source.Events() {
			ce, ok := e.(core.Event)
			if !watchJSON || !ok {
				fmt.Println(e)
				continue
			}
			if err := encoder.Encode(ce); err != nil {
				fatal("Failed to encode event", err)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchPattern, "pattern", "", "Glob on document ids")
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "Output one JSON object per event")
}
