package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/humus"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a humus store",
	Long:  `Create the store directory and an empty log. Opening an existing store is harmless.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		dir, _, opts := loadSettings(cmd)

		svc, err := humus.NewContext(cmd.Context(), dir, opts...)
		if err != nil {
			fatal("Failed to initialize store", err)
		}
		closeStore(svc)

		fmt.Println("Initialized humus store in", dir)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
