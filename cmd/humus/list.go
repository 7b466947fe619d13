package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/humus/pkg/core"
)

var (
	listPattern string
	listLimit   int
	listDocs    bool
	listJSON    bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List live documents",
	Long:  `List live documents sorted by id. --pattern filters ids with a glob such as "notes/**".`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		svc := openStore(cmd)
		defer closeStore(svc)

		docs, err := svc.List(cmd.Context(), core.ListOptions{
			Pattern:     listPattern,
			Limit:       listLimit,
			IncludeDocs: listDocs || listJSON,
		})
		if err != nil {
			fatal("Failed to list documents", err)
		}

		if listJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(docs); err != nil {
				fatal("Failed to encode JSON", err)
			}
			return
		}

		for _, doc := range docs {
			if !listDocs {
				fmt.Printf("%s %s\n", doc.ID, doc.Rev)
				continue
			}
			body, err := json.Marshal(doc.Body)
			if err != nil {
				fatal("Failed to encode body", err)
			}
			fmt.Printf("%s %s %s\n", doc.ID, doc.Rev, body)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listPattern, "pattern", "", "Glob on document ids")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of documents (0 = all)")
	listCmd.Flags().BoolVar(&listDocs, "docs", false, "Include document bodies")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
}
