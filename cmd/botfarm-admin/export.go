package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/prn-tf/botfarm/internal/app"
	"github.com/prn-tf/botfarm/internal/config"
	"github.com/prn-tf/botfarm/internal/export"
)

const exportLockTTL = 10 * time.Minute

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Upload a redacted snapshot of all users to S3",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, cfg *config.Config, a *app.App, logger zerolog.Logger) error {
			client, err := export.NewS3Client(ctx, cfg.Export)
			if err != nil {
				return err
			}

			exporter := export.NewExporter(a.UserService, client, cfg.Export.Bucket, cfg.Export.Prefix, logger).
				WithLock(a.Locker, exportLockTTL)

			res, err := exporter.Export(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
