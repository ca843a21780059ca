package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/set-night/mindcanvas/internal/config"
	"github.com/set-night/mindcanvas/internal/llm"
	"github.com/set-night/mindcanvas/internal/orchestrator"
	"github.com/set-night/mindcanvas/internal/repository"
	"github.com/set-night/mindcanvas/internal/service"
	"github.com/set-night/mindcanvas/internal/streamhub"
)

// runtime is the wired application shared by serve and the client commands.
type runtime struct {
	cfg          *config.Config
	store        repository.Store
	app          *service.App
	client       *llm.Client
	catalog      *llm.Catalog
	hub          *streamhub.Hub
	orchestrator *orchestrator.Orchestrator
}

func openRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	if cfg == nil {
		return nil, errors.New("config not loaded")
	}
	url, err := cfg.StorageURL()
	if err != nil {
		return nil, err
	}
	store, err := repository.Open(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	catalog, err := llm.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		store.Close()
		return nil, err
	}
	client := llm.NewClient(cfg.LLMAPIKey, cfg.LLMBaseURL)

	app := service.NewApp(service.AppDeps{
		Store:                store,
		Titles:               llm.NewTitleGenerator(client, catalog),
		MaxStreamsPerSession: cfg.MaxStreamsPerSession,
		MaxWorkspaces:        cfg.MaxWorkspaces,
	})
	if err := app.Load(ctx); err != nil {
		app.Close()
		store.Close()
		return nil, fmt.Errorf("load identity: %w", err)
	}

	hub := streamhub.New()
	orch := orchestrator.New(orchestrator.Options{
		Model:   client,
		Catalog: catalog,
		Hub:     hub,
		Weather: orchestrator.NewWeatherClient(cfg.WeatherBaseURL),
		Entitlements: orchestrator.Entitlements{
			MaxMessagesPerDay: cfg.MaxMessagesPerDay,
			AvailableModels:   cfg.AvailableModels,
		},
		DefaultModel:  cfg.ChatModel,
		DeltaInterval: cfg.DeltaFlushInterval,
	})

	return &runtime{
		cfg:          cfg,
		store:        store,
		app:          app,
		client:       client,
		catalog:      catalog,
		hub:          hub,
		orchestrator: orch,
	}, nil
}

// Close drains pending writes before closing storage.
func (r *runtime) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := r.app.Flush(ctx); err != nil {
		slog.Warn("flush on close", "error", err)
	}
	r.app.Close()
	if err := r.store.Close(); err != nil {
		slog.Warn("close storage", "error", err)
	}
}

// current returns the workspace of the signed-in identity.
func (r *runtime) current(ctx context.Context) (*service.Workspace, error) {
	ws, err := r.app.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: run `mindcanvas login <did>` first", err)
	}
	return ws, nil
}

// withRuntime opens the runtime for the duration of fn.
func withRuntime(ctx context.Context, cfg *config.Config, fn func(*runtime) error) error {
	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}
