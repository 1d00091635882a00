package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/app"
	"github.com/Aman-CERP/amanrag/internal/loader"
	"github.com/Aman-CERP/amanrag/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var skipExisting bool

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Index documents as they appear in a directory",
		Long: `Watch a directory and index every PDF or TXT file created or changed in it.

The directory defaults to the upload directory. Files already present are
indexed first unless --skip-existing is set; unchanged documents are skipped
by the engine.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dir := cfg.Paths.UploadDir
			if len(args) == 1 {
				dir = args[0]
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}

			w, err := watcher.NewHybridWatcher(watcher.Options{
				DebounceWindow: cfg.WatchDebounce(),
				Filter:         loader.Supported,
			})
			if err != nil {
				return err
			}
			inbox := watcher.NewInbox(w, app.NewService(cfg), loader.Supported,
				watcher.WithIndexExisting(!skipExisting),
				watcher.WithExcludeDirs(cfg.Paths.DataDir, cfg.Paths.WorkingDir))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			slog.Info("watch_started", slog.String("dir", dir), slog.String("type", w.WatcherType()))
			err = inbox.Run(ctx, dir)
			slog.Info("watch_stopped",
				slog.Int64("indexed", inbox.Indexed()),
				slog.Int64("failed", inbox.Failed()))
			return err
		},
	}

	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "Only index files that change after startup")
	return cmd
}
