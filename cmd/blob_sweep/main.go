package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"songshare/internal/blob"
	"songshare/internal/config"
	"songshare/internal/database"
	"songshare/internal/domain/song"
)

var dryRun bool

var rootCmd = &cobra.Command{
	Use:   "blob_sweep",
	Short: "Delete stored blobs that no song references.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		sweep(cmd.Context())
	},
}

func main() {
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report orphaned blobs without deleting them")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func sweep(ctx context.Context) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: .env not loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}

	store, err := blob.Open(ctx, cfg.Blob, cfg.MaxUploadSize)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	// Snapshot the references before walking the store. Anything uploaded
	// after this point is younger than the grace period.
	refs, err := song.NewRepository(db).BlobRefs(ctx)
	if err != nil {
		log.Fatalf("load blob refs failed: %v", err)
	}

	if dryRun {
		store = readOnly{store}
	}

	res, err := blob.Sweep(ctx, store, refs, cfg.SweepGrace, time.Now())
	if err != nil {
		log.Fatalf("blob sweep failed: %v", err)
	}

	log.Printf("blob sweep completed: dry_run=%t scanned=%d kept=%d young=%d deleted=%d failed=%d",
		dryRun, res.Scanned, res.Kept, res.Young, res.Deleted, res.Failed)
	if res.Failed > 0 {
		os.Exit(1)
	}
}

// readOnly turns Delete into a no-op so a dry run reports what would go.
type readOnly struct {
	blob.Store
}

func (readOnly) Delete(context.Context, string) error { return nil }
