package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/edenschool/examparse/pkg/health"
	"github.com/edenschool/examparse/pkg/middleware"
)

const (
	readyTimeout    = 3 * time.Second
	shutdownTimeout = 5 * time.Second
)

// NewMux routes /metrics and, when checker is non-nil, /livez and /readyz.
func NewMux(checker *health.Checker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())
	if checker != nil {
		mux.Handle("GET /livez", checker.LiveHandler())
		mux.Handle("GET /readyz", middleware.Timeout(readyTimeout)(checker.ReadyHandler()))
	}
	return mux
}

// StartServer serves NewMux on port in the background. The returned func
// stops it, waiting at most five seconds for in-flight scrapes.
func StartServer(port int, checker *health.Checker) (shutdown func(context.Context) error) {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      NewMux(checker),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		return server.Shutdown(ctx)
	}
}
