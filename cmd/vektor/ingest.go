package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vektordb/vektor"
	"github.com/vektordb/vektor/model"
)

const ingestBatchSize = 256

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Bulk-load records from JSON Lines files",
	Long: `Bulk-load records from one or more JSON Lines files. Each line is one
record:

  {"external_id": "doc1", "vector": [0.1, 0.2, 0.3], "metadata": {"lang": "en"}}

Files are processed concurrently; lines within a file are applied in order.
A record that fails validation is reported and skipped, it does not abort
the load.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		var loaded, failed atomic.Int64

		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(4)

		for _, path := range args {
			g.Go(func() error {
				n, f, err := ingestFile(ctx, db, path)
				loaded.Add(n)
				failed.Add(f)
				return err
			})
		}

		if err := g.Wait(); err != nil {
			return err
		}

		fmt.Printf("Loaded %d records (%d failed)\n", loaded.Load(), failed.Load())
		return nil
	},
}

func ingestFile(ctx context.Context, db *vektor.DB, path string) (loaded, failed int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	flush := func(batch []model.UpsertItem) {
		for _, res := range db.BatchUpsert(ctx, batch) {
			if res.Err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "%s: record %q: %v\n", path, res.ExternalID, res.Err)
				continue
			}
			loaded++
		}
	}

	batch := make([]model.UpsertItem, 0, ingestBatchSize)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return loaded, failed, err
		}
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var item model.UpsertItem
		if err := json.Unmarshal(scanner.Bytes(), &item); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s:%d: %v\n", path, line, err)
			continue
		}

		batch = append(batch, item)
		if len(batch) == ingestBatchSize {
			flush(batch)
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return loaded, failed, fmt.Errorf("read %s: %w", path, err)
	}

	if len(batch) > 0 {
		flush(batch)
	}

	return loaded, failed, nil
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
