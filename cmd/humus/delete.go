package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteRev string

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rev := parseRev(deleteRev)

		svc := openStore(cmd)
		defer closeStore(svc)

		if err := svc.Delete(cmd.Context(), args[0], rev); err != nil {
			fatal("Failed to delete document", err)
		}
		fmt.Printf("Document '%s' deleted.\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().StringVar(&deleteRev, "rev", "", "Current revision")
}
