package httpapi

import (
	"context"
	"net"
	"net/http"
	"time"

	"pkt.systems/pslog"
)

const shutdownTimeout = 5 * time.Second

// ListenAndServe starts an HTTP server and shuts it down on context cancellation.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return Serve(ctx, lis, handler)
}

// Serve serves handler on lis until ctx is done.
func Serve(ctx context.Context, lis net.Listener, handler http.Handler) error {
	logger := pslog.Ctx(ctx)
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          pslog.LogLoggerWithLevel(logger, pslog.ErrorLevel),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}
	logger.Info("http listening", "addr", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
