package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/photo-rater/internal/controller"
	"github.com/Brownie44l1/photo-rater/internal/envconfig"
	"github.com/Brownie44l1/photo-rater/internal/handlers"
	"github.com/Brownie44l1/photo-rater/internal/registry"
)

const shutdownTimeout = 10 * time.Second

// RunServer loads both backends in the background and serves HTTP until
// interrupted.
func RunServer(cmd *cobra.Command, _ []string) error {
	cfg, err := modelConfig()
	if err != nil {
		return err
	}
	preferred, err := preferredBackend("")
	if err != nil {
		return err
	}

	if envconfig.LogLevel() > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := registry.New(cfg, preferred)
	reg.Start()
	defer shutdownRuntime()
	defer func() {
		if err := reg.Close(); err != nil {
			slog.Warn("failed to release models", "error", err)
		}
	}()

	h := handlers.NewHandler(controller.New(reg), reg)
	srv := &http.Server{
		Addr:    envconfig.Host(),
		Handler: handlers.NewRouter(h, envconfig.AllowedOrigins()),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr, "model", cfg.ModelPath(), "preferred", preferred)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
