package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	updateRev  string
	updateData string
)

var updateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Replace the body of a document",
	Long:  `Replace the body of a document. --rev must be its current revision.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rev := parseRev(updateRev)
		body := readBody(updateData)

		svc := openStore(cmd)
		defer closeStore(svc)

		next, err := svc.Update(cmd.Context(), args[0], rev, body)
		if err != nil {
			fatal("Failed to update document", err)
		}
		fmt.Printf("%s %s\n", args[0], next)
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().StringVar(&updateRev, "rev", "", "Current revision")
	updateCmd.Flags().StringVarP(&updateData, "data", "d", "", "New document body")
}
