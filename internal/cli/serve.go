package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raaihank/scan-redactor/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(a *app) *cobra.Command {
	var (
		port  int
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the redaction HTTP API",
		Long: `Serve exposes POST /v1/redact for text and POST /v1/documents for
scanned documents, plus /health, /info and a WebSocket event feed.

Document support needs Tesseract; without it the server runs text-only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}

			svc, err := a.initializeServices(serviceSet{
				documents:           true,
				bestEffortDocuments: true,
				store:               true,
			})
			if err != nil {
				return err
			}
			defer svc.cleanup()

			deps := server.Deps{
				Engine:  svc.engine,
				Rules:   len(svc.engine.Catalog().Rules()),
				Version: Version,
			}
			// typed nils would make the optional endpoints look enabled
			if svc.documents != nil {
				deps.Documents = svc.documents
			}
			if svc.store != nil {
				deps.Audit = svc.store
			}

			srv, err := server.New(a.cfg, deps, a.log)
			if err != nil {
				return err
			}
			if watch {
				if err := srv.WatchPolicy(); err != nil {
					a.log.Warn("Config watching disabled", zap.Error(err))
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start(ctx)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			a.log.Info("Shutdown signal received")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				return err
			}
			return <-errCh
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on (default from config)")
	cmd.Flags().BoolVar(&watch, "watch", true, "reload the redaction policy when the config file changes")
	return cmd
}

func newHealthCommand(a *app) *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = fmt.Sprintf("http://localhost:%d/health", a.cfg.Server.Port)
			}

			client := &http.Client{Timeout: 5 * time.Second}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("health check failed: HTTP %d", resp.StatusCode)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Health check passed")
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "health endpoint (default: localhost on the configured port)")
	return cmd
}
