package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// newPreviewMux wires the preview endpoints:
//
//	/ws       preview WebSocket
//	/healthz  liveness probe
func newPreviewMux(s *PreviewServer) *http.ServeMux {
	mux := http.NewServeMux()
	s.Register(mux, "/ws")
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintf(w, "ok clients=%d\n", s.Hub().Clients())
	})
	return mux
}

// runPreviewServer serves handler on port and shuts down gracefully when ctx
// is canceled.
func runPreviewServer(ctx context.Context, port int, handler http.Handler, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("preview listen: %w", err)
	}
	return servePreview(ctx, ln, handler, logger)
}

func servePreview(ctx context.Context, ln net.Listener, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("preview server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("preview server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("preview server shutdown: %w", err)
		}
		<-errCh
		logger.Info("preview server stopped")
		return nil

	case err := <-errCh:
		return err
	}
}
