package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/set-night/mindcanvas/internal/config"
	"github.com/set-night/mindcanvas/internal/handler"
	"github.com/set-night/mindcanvas/internal/middleware"
	"github.com/set-night/mindcanvas/internal/router"
	"github.com/set-night/mindcanvas/internal/telegram"
)

func newServeCmd(cfg func() *config.Config) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the Telegram bot and background cleanup",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			if addr != "" {
				c.HTTPAddr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withRuntime(ctx, c, func(rt *runtime) error {
				return serve(ctx, rt)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address, overrides HTTP_ADDR")
	return cmd
}

func serve(ctx context.Context, rt *runtime) error {
	if rt.cfg.SlogLevel() > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	if !rt.client.IsConfigured() {
		slog.Warn("LLM_API_KEY is not set, generations will fail")
	}

	limiter := middleware.NewLimiter(rt.cfg.RateLimitPerMinute)
	h := handler.New(handler.Deps{
		App:          rt.app,
		Orchestrator: rt.orchestrator,
		Hub:          rt.hub,
		Catalog:      rt.catalog,
		Cfg:          rt.cfg,
	})
	srv := &http.Server{
		Addr:              rt.cfg.HTTPAddr,
		Handler:           router.New(h, rt.app, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if rt.cfg.BotToken != "" {
		b, err := telegram.New(telegram.Deps{
			Cfg:          rt.cfg,
			App:          rt.app,
			Orchestrator: rt.orchestrator,
			Limiter:      limiter,
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			return b.Start(ctx)
		})
	}

	g.Go(func() error {
		cleanup(ctx, rt, limiter)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped gracefully")
	return nil
}

// cleanup periodically forgets finished streams, expired stream records,
// idle workspaces and idle rate limit buckets.
func cleanup(ctx context.Context, rt *runtime, limiter *middleware.Limiter) {
	ticker := time.NewTicker(config.StaleStreamCleanup)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := rt.app.PruneStreams(ctx, rt.cfg.StreamRetention)
			if err != nil {
				slog.Error("prune stream records", "error", err)
			}
			streams := rt.hub.Prune(config.StreamReplayWindow)
			workspaces := rt.app.EvictIdle(rt.cfg.WorkspaceIdleTimeout)
			visitors := limiter.Prune(config.StaleStreamCleanup)
			if n > 0 || streams > 0 || workspaces > 0 {
				slog.Debug("cleanup done", "records", n, "streams", streams, "workspaces", workspaces, "visitors", visitors)
			}
		}
	}
}
