package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMux returns the HTTP handler with all routes.
func NewMux(deps Deps) http.Handler {
	corsCfg := loadCORSConfig()
	handlers := NewHandlers(deps)

	mux := http.NewServeMux()

	// Metrics endpoint
	mux.Handle("GET /metrics", promhttp.Handler())

	// Health and readiness endpoints
	mux.HandleFunc("GET /healthz", handlers.HandleHealthz)
	mux.HandleFunc("GET /readyz", handlers.HandleReadyz)

	// Translation proxy
	mux.HandleFunc("POST /api/txt-to-img", handlers.HandleTextToImage)
	mux.HandleFunc("POST /api/img-to-txt", handlers.HandleImageToText)
	mux.HandleFunc("GET /api/keyboard-lsc", handlers.HandleKeyboard)

	// Realtime channel
	if deps.Hub != nil {
		mux.HandleFunc("GET /socket", deps.Hub.ServeWS)
	}

	// Pages and client bundle
	mux.HandleFunc("GET /{$}", handlers.HandleIndex)
	mux.HandleFunc("GET /chat", handlers.HandleChatPage)
	mux.Handle("GET /", handlers.staticHandler())

	return withCORSConfig(withRequestContext(mux), corsCfg)
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, deps Deps, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		slog.Error("http listen error", slog.String("addr", addr), slog.Any("err", err))
		return err
	}
	return Serve(ctx, deps, ln)
}

// Serve runs the HTTP server on ln until ctx is cancelled.
func Serve(ctx context.Context, deps Deps, ln net.Listener) error {
	srv := &http.Server{
		Handler:      NewMux(deps),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Shutdown goroutine
	go func() {
		<-ctx.Done()
		// Use WithoutCancel to inherit context values but allow shutdown to complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
		// Hijacked websocket connections are not tracked by Shutdown.
		if deps.Hub != nil {
			deps.Hub.Close()
		}
	}()

	slog.Info("http server listening", slog.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
