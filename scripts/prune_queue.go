package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/KyPython/offline-media-sync/internal/database"
)

// Synced items keep their payload blob in SQLite until pruned, and
// those blobs count against the storage budget. Run this periodically
// to reclaim space once uploads have been confirmed remotely.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dbPath  = flag.String("db", "./data/queue.db", "path to sqlite db")
		keepFor = flag.Duration("keep", 7*24*time.Hour, "retention window for synced items")
		dryRun  = flag.Bool("dry-run", false, "report without deleting")
	)
	flag.Parse()

	db, err := database.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-*keepFor)

	if *dryRun {
		stats, err := db.Stats(ctx)
		if err != nil {
			return fmt.Errorf("read stats: %w", err)
		}
		usage, err := db.StorageUsage(ctx)
		if err != nil {
			return fmt.Errorf("read usage: %w", err)
		}
		fmt.Printf("synced=%d usage_bytes=%d cutoff=%s\n", stats.Synced, usage, cutoff.Format(time.RFC3339))
		return nil
	}

	pruned, err := db.PruneSyncedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}

	fmt.Printf("done: pruned=%d cutoff=%s\n", pruned, cutoff.Format(time.RFC3339))
	return nil
}
