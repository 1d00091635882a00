package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/app"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

func newIngestCmd() *cobra.Command {
	var (
		upload     bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Index PDF or TXT files",
		Long: `Index PDF or TXT files into the knowledge base.

With --upload each file is first copied into the upload directory, the way
the upload_and_index tool does it.

Examples:
  amanrag ingest report.pdf notes.txt
  amanrag ingest --upload ~/Downloads/paper.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			svc := app.NewService(cfg)

			var results []*app.UploadResult
			for _, path := range args {
				res, err := ingestOne(cmd, svc, path, upload)
				if err != nil {
					return err
				}
				results = append(results, res)
				if !jsonOutput {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %d chars  (job %s)\n",
						res.Status, res.Filename, res.Characters, res.JobID)
				}
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&upload, "upload", false, "Copy files into the upload directory before indexing")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	return cmd
}

func ingestOne(cmd *cobra.Command, svc *app.Service, path string, upload bool) (*app.UploadResult, error) {
	ctx := cmd.Context()
	if !upload {
		return svc.IndexFile(ctx, path)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, amerrors.NotFound(path, err)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	slog.Debug("ingest_upload", slog.String("path", path))
	return svc.UploadAndIndex(ctx, filepath.Base(path), f)
}
