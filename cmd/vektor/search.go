package main

import (
	"github.com/spf13/cobra"

	"github.com/vektordb/vektor"
)

var searchCmd = &cobra.Command{
	Use:   "search <vector>",
	Short: "Search for the nearest records",
	Long: `Search for the records most similar to the query vector, ranked by
descending cosine similarity.

With --filters the search becomes exact: only records whose metadata
contains every filter key with an equal value are considered.

Examples:
  vektor search "[0.1, 0.2, 0.3]" -k 5
  vektor search "[0.1, 0.2, 0.3]" --filters '{"lang": "en"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vec, err := parseVector(args[0])
		if err != nil {
			return err
		}

		k, _ := cmd.Flags().GetInt("top-k")
		breadth, _ := cmd.Flags().GetInt("search-breadth")
		filterStr, _ := cmd.Flags().GetString("filters")

		filters, err := parseMetadata(filterStr)
		if err != nil {
			return err
		}

		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		hits, err := db.Search(cmd.Context(), vec, k,
			vektor.WithFilters(filters),
			vektor.WithBreadth(breadth),
		)
		if err != nil {
			return err
		}

		return printJSON(hits)
	},
}

var recommendCmd = &cobra.Command{
	Use:   "recommend <id>",
	Short: "Find records similar to an existing record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, _ := cmd.Flags().GetInt("top-k")
		breadth, _ := cmd.Flags().GetInt("search-breadth")

		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		hits, err := db.Recommend(cmd.Context(), args[0], k,
			vektor.WithBreadth(breadth),
		)
		if err != nil {
			return err
		}

		return printJSON(hits)
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(recommendCmd)

	searchCmd.Flags().IntP("top-k", "k", 10, "number of results")
	searchCmd.Flags().Int("search-breadth", 0, "exploration breadth for this query (0 = default)")
	searchCmd.Flags().String("filters", "", "JSON object of exact-match metadata filters")

	recommendCmd.Flags().IntP("top-k", "k", 10, "number of results")
	recommendCmd.Flags().Int("search-breadth", 0, "exploration breadth for this query (0 = default)")
}
