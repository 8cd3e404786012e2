package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bwupload/uploadserver"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP upload server",
		Long: `Starts the upload server.

POST /upload accepts one image as multipart/form-data. POST /upload/raw takes
the image itself as the body, named by the File-Name header. Stored objects can be
read back from /objects/{original|processed}/{key}.`,
		Example: `  # Start server on the address from LISTEN_ADDR (default :8080)
  bwupload serve

  # Override the listen address
  bwupload serve --listen :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if listen != "" {
				a.cfg.Server.Listen = listen
			}
			server := uploadserver.New(a.cfg.Server, a.svc, a.store, a.log)

			serverErr := make(chan error, 1)
			go func() {
				serverErr <- server.Run()
			}()

			select {
			case <-cmd.Context().Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ProcessTimeout+5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					a.log.Error("Server shutdown failed", zap.Error(err))
					return err
				}
				a.log.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Address to listen on (overrides LISTEN_ADDR)")

	return cmd
}
