package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/mcctrack/internal/clock"
	"github.com/ent0n29/mcctrack/internal/config"
	"github.com/ent0n29/mcctrack/internal/consensus"
	"github.com/ent0n29/mcctrack/internal/httpapi"
	"github.com/ent0n29/mcctrack/internal/lifecycle"
	"github.com/ent0n29/mcctrack/internal/observability"
	"github.com/ent0n29/mcctrack/internal/persistence"
	"github.com/ent0n29/mcctrack/internal/prediction"
	"github.com/ent0n29/mcctrack/internal/session"
)

type ProviderInfo struct {
	Location    string
	Prediction  string
	Persistence string
}

type BuildResult struct {
	Config          config.Config
	API             *httpapi.Server
	Sessions        *session.Manager
	Client          *prediction.Client
	Lifecycle       *lifecycle.Coordinator
	LifecycleSource *lifecycle.ChannelSource
	Metrics         *observability.Metrics
	Providers       ProviderInfo

	// Cleanup should be called on shutdown to stop the sampling loop and
	// release the persistence backend.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	clk := clock.Real{}

	store, err := persistence.NewStore(ctx, cfg.PersistenceURL)
	if err != nil {
		return nil, fmt.Errorf("persistence store init failed: %w", err)
	}

	providers, err := resolveProviders(cfg, clk)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	trackingCfg := cfg.Tracking()
	client := prediction.NewClient(providers.service, prediction.ClientOptions{
		SearchRadiusMeters: cfg.PredictionRadiusMeters,
		RetryCapacity:      trackingCfg.RetryCapacity(),
		DrainBackoffBase:   cfg.RetryBackoffBase,
		DrainBackoffCap:    cfg.RetryBackoffCap,
		Clock:              clk,
		Metrics:            metrics,
	})

	sessions := session.NewManager(session.Deps{
		Provider: providers.location,
		Client:   client,
		Store:    store,
		Engine:   consensus.NewEngine(clk),
		Clock:    clk,
		Metrics:  metrics,
	})

	source := lifecycle.NewChannelSource(16)
	coordinator := lifecycle.NewCoordinator(sessions)

	api := httpapi.New(cfg, sessions, client, source, metrics, persistence.Mode(store))

	cleanup := func() error {
		var errs []string
		sessions.Close()
		if err := store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:          cfg,
		API:             api,
		Sessions:        sessions,
		Client:          client,
		Lifecycle:       coordinator,
		LifecycleSource: source,
		Metrics:         metrics,
		Providers: ProviderInfo{
			Location:    providers.locationDetail,
			Prediction:  providers.serviceDetail,
			Persistence: persistence.Mode(store),
		},
		Cleanup: cleanup,
	}, nil
}
