package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/lvhr/airea/internal/config"
	"github.com/lvhr/airea/internal/index"
	"github.com/lvhr/airea/internal/snapshot"
	"github.com/lvhr/airea/internal/storage"
	"github.com/spf13/cobra"
)

// SnapshotCmd returns the snapshot command group
func SnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage the local knowledge-base snapshot",
	}

	cmd.AddCommand(snapshotFetchCmd())

	return cmd
}

// snapshotFetchCmd pre-warms the install path so a later serve can skip the
// fetch under the fetch_if_missing policy.
func snapshotFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch and install the configured snapshot without serving",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			manager, err := buildSnapshotManager(ctx, cfg)
			if err != nil {
				return err
			}

			if err := manager.Bootstrap(ctx); err != nil {
				return fmt.Errorf("snapshot install failed: %w", err)
			}

			generation := manager.Active()
			log.Printf("snapshot %s installed at %s (%d documents)",
				generation.Snapshot.ID, cfg.InstallPath,
				generation.Snapshot.Metadata.DocumentCount)
			return nil
		},
	}
}

func buildSnapshotManager(ctx context.Context, cfg *config.Config) (*snapshot.Manager, error) {
	var downloader snapshot.ObjectDownloader
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			UsePathStyle:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		downloader = s3Client
	}

	fetcher := snapshot.NewFetcher(snapshot.FetcherConfig{
		ScratchDir: cfg.ScratchDir,
		Token:      cfg.SnapshotToken,
	}, downloader)

	return snapshot.NewManager(snapshot.ManagerConfig{
		SourceURL:    cfg.SnapshotSourceURL,
		InstallPath:  cfg.InstallPath,
		Policy:       cfg.Policy(),
		FetchRetries: cfg.FetchRetries,
	}, fetcher, index.NewLoader()), nil
}
