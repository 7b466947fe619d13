package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/humus/pkg/core"
)

var getOutput string

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Read a document",
	Long:  `Read a document by its id. Outputs JSON by default, or YAML with -o yaml.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc := openStore(cmd)
		defer closeStore(svc)

		doc, err := svc.Get(cmd.Context(), args[0])
		if err != nil {
			fatal("Failed to read document", err)
		}

		if err := writeDocument(doc, getOutput); err != nil {
			fatal("Failed to encode document", err)
		}
	},
}

func writeDocument(doc core.Document, format string) error {
	switch format {
	case "json", "":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(doc)
	case "yaml":
		out := map[string]any{
			"_id":  doc.ID,
			"_rev": doc.Rev.String(),
		}
		for k, v := range doc.Body.Fields() {
			out[k] = v.Interface()
		}
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(out)
	default:
		return fmt.Errorf("unknown output format %q (want json or yaml)", format)
	}
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().StringVarP(&getOutput, "output", "o", "json", "Output format: json or yaml")
}
