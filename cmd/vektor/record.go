package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a stored record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		rec, err := db.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		return printJSON(rec)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		internalID, err := db.Delete(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Deleted %s (internal id %d)\n", args[0], internalID)
		return nil
	},
}

var similarityCmd = &cobra.Command{
	Use:   "similarity <id-a> <id-b>",
	Short: "Print the cosine similarity between two stored records",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		sim, err := db.Similarity(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}

		fmt.Printf("%.6f\n", sim)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print record and index occupancy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Stats(cmd.Context())
		if err != nil {
			return err
		}

		return printJSON(stats)
	},
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rebuild the index, reclaiming deleted-entry capacity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Compact(cmd.Context()); err != nil {
			return err
		}

		fmt.Println("Compaction completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(similarityCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(compactCmd)
}
