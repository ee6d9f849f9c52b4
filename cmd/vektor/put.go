package main

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var putCmd = &cobra.Command{
	Use:   "put <vector>",
	Short: "Insert or replace a record",
	Long: `Insert or replace a record. The vector is a JSON array of numbers.

Without --id a random UUID is generated and printed in the result.

Examples:
  vektor put "[0.1, 0.2, 0.3]" --id doc1 --metadata '{"lang": "en"}'
  vektor put "[0.1, 0.2, 0.3]"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vec, err := parseVector(args[0])
		if err != nil {
			return err
		}

		metaStr, _ := cmd.Flags().GetString("metadata")
		meta, err := parseMetadata(metaStr)
		if err != nil {
			return err
		}

		id, _ := cmd.Flags().GetString("id")
		if id == "" {
			id = uuid.NewString()
		}

		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := db.Upsert(cmd.Context(), id, vec, meta)
		if err != nil {
			return err
		}

		return printJSON(res)
	},
}

func init() {
	rootCmd.AddCommand(putCmd)

	putCmd.Flags().String("id", "", "external id (default: generated UUID)")
	putCmd.Flags().String("metadata", "", "JSON object of metadata")
}
