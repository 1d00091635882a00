package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/app"
	"github.com/Aman-CERP/amanrag/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: `Run the MCP server. Tools: upload_and_index, query_rag, index_status.

stdout carries the protocol, so logs only go to the log file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if transport == "" {
				transport = cfg.Server.Transport
			}

			srv, err := mcp.NewServer(app.NewService(cfg), cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := srv.Serve(ctx, transport); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "Transport (stdio); defaults to server.transport")
	return cmd
}
