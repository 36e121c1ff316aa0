package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/local/imgconvert/internal/config"
	"github.com/local/imgconvert/internal/limiter"
	"github.com/local/imgconvert/internal/metrics"
	"github.com/local/imgconvert/internal/pipeline"
	"github.com/local/imgconvert/internal/statuscheck"
	"github.com/local/imgconvert/internal/store"
	"github.com/local/imgconvert/internal/web"
	"github.com/local/imgconvert/internal/workspace"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the conversion HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, c config.Config) error {
	if serveAddr != "" {
		c.Server.Addr = serveAddr
	}
	metrics.Init()

	builder, s3, err := pipeline.FromConfig(ctx, c)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	ws, err := workspace.New(c.Storage.WorkspaceDir, c.Storage.CleanupMaxAge)
	if err != nil {
		return err
	}
	go ws.Run(ctx, c.Storage.CleanupInterval)

	checks := statuscheck.Options{RembgBinary: c.Rembg.Binary}
	if s3 != nil {
		checks.S3 = s3
	}

	var status store.StatusStore = store.NewMemoryStatus()
	if c.Redis.URL != "" {
		rs, err := store.NewRedisStatus(c.Redis.URL, c.Redis.StatusTTL)
		if err != nil {
			return fmt.Errorf("init redis status store: %w", err)
		}
		defer rs.Close()
		status = rs
		checks.Redis = rs
	}

	lim, err := limiter.New(limiter.Options{RedisURL: c.Redis.URL, MaxInflight: c.Server.MaxConcurrentUploads})
	if err != nil {
		return fmt.Errorf("init limiter: %w", err)
	}
	defer lim.Close()

	srv := web.New(web.Options{
		Builder:     builder,
		Workspace:   ws,
		Status:      status,
		Limiter:     lim,
		Checker:     statuscheck.New(checks),
		MaxUploadMB: c.Server.MaxUploadMB,
	})
	httpSrv := &http.Server{Addr: c.Server.Addr, Handler: srv.Routes()}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Server.Addr).Str("workspace", ws.Root()).Msg("HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("shutdown complete")
	return nil
}
