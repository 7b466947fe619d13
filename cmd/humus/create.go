package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	createID   string
	createData string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a document",
	Long: `Create a document from a JSON object. Without --id an id is generated.
--data accepts inline JSON, @file, or - for stdin.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		body := readBody(createData)

		svc := openStore(cmd)
		defer closeStore(svc)

		id, rev, err := svc.Create(cmd.Context(), body, createID)
		if err != nil {
			fatal("Failed to create document", err)
		}
		fmt.Printf("%s %s\n", id, rev)
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().StringVar(&createID, "id", "", "Document id (generated when empty)")
	createCmd.Flags().StringVarP(&createData, "data", "d", "", "Document body")
}
