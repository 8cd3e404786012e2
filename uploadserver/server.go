// Package uploadserver exposes the upload service over plain net/http.
package uploadserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"bwupload/config"
	"bwupload/storage"
)

// Server owns the listener. Handlers are stateless closures over their collaborators.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

func New(cfg config.ServerConfig, svc uploader, store storage.Store, log *zap.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Listen,
			Handler:           NewHandler(cfg, svc, store, log),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// NewHandler builds the routed and wrapped handler tree.
func NewHandler(cfg config.ServerConfig, svc uploader, store storage.Store, log *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", uploadHandler(svc, cfg.MaxUploadBytes))
	mux.HandleFunc("/upload/raw", rawUploadHandler(svc, cfg.MaxUploadBytes))
	mux.HandleFunc("/objects/", objectsHandler(store, log))
	mux.HandleFunc("/debug/list", debugList(store, log))
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/health/", healthHandler)

	return Chain(corsMiddleware, logMiddleware(log))(mux)
}

// Run blocks until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.log.Info("Upload server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down upload server")
	return s.httpServer.Shutdown(ctx)
}
