package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Write the index snapshot",
	Long:  `Persist the in-memory index so the next open replays only newer records.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		svc := openStore(cmd)
		defer closeStore(svc)

		if err := svc.Checkpoint(cmd.Context()); err != nil {
			fatal("Failed to write checkpoint", err)
		}
		fmt.Println("Checkpoint written.")
	},
}

func init() {
	rootCmd.AddCommand(checkpointCmd)
}
