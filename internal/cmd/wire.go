package cmd

import (
	"fmt"
	"sync"

	"github.com/taskloom/taskloom/internal/cache"
	"github.com/taskloom/taskloom/internal/config"
	"github.com/taskloom/taskloom/internal/event"
	"github.com/taskloom/taskloom/internal/ledger"
	"github.com/taskloom/taskloom/internal/logging"
	"github.com/taskloom/taskloom/internal/orchestrator"
	"github.com/taskloom/taskloom/internal/provider"
	"github.com/taskloom/taskloom/internal/task"
)

// runtime bundles everything a command needs to drive the orchestrator.
type runtime struct {
	cfg      *config.Config
	log      *logging.Logger
	bus      *event.Bus
	store    *ledger.Store
	notifier orchestrator.Notifier
	engine   *orchestrator.Engine
}

// buildRuntime loads configuration and wires the full stack: logger,
// event bus, ledger store, result cache, per-tier endpoint chains, and
// the engine. Call close when done to flush the log file.
func buildRuntime(quiet bool) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return buildRuntimeFromConfig(cfg, quiet)
}

func buildRuntimeFromConfig(cfg *config.Config, quiet bool) (*runtime, error) {
	log := logging.NopLogger()
	if cfg.Logging.Enabled {
		l, err := logging.NewLogger(cfg.Logging.ResolveDir(), cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("open log: %w", err)
		}
		log = l
	}

	notifier := orchestrator.NopNotifier()
	if !quiet {
		notifier = orchestrator.ConsoleNotifier()
	}

	// Endpoint chains report fallback use through the bus; surface it the
	// same way the engine reports progress.
	bus := event.NewBus()
	bus.Subscribe(event.TypeFallbackUsed, func(ev event.Event) {
		if fb, ok := ev.(event.FallbackUsedEvent); ok {
			notifier.Notify(fmt.Sprintf("fallback used: %s (position %d)", fb.Endpoint, fb.Position), -1)
		}
	})

	store, err := ledger.NewStore(cfg.Ledger.ResolveDir())
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	resultCache := cache.New(cache.Config{
		Enabled:  cfg.Cache.Enabled,
		TTL:      cfg.Cache.TTL(),
		Capacity: cfg.Cache.Capacity,
	})

	resolver := newTierResolver(cfg, bus, log)

	plannerEndpoint, err := resolver(task.NormalizeTier(cfg.Orchestrator.PlannerTier))
	if err != nil {
		return nil, fmt.Errorf("planner endpoint: %w", err)
	}
	planner := orchestrator.NewLLMPlanner(plannerEndpoint)

	engine := orchestrator.NewEngine(planner, resolver, resultCache, store, notifier, log, orchestrator.Config{
		MaxParallel: cfg.Orchestrator.MaxParallel,
		ReviewTier:  task.NormalizeTier(cfg.Orchestrator.ReviewTier),
	})

	return &runtime{
		cfg:      cfg,
		log:      log,
		bus:      bus,
		store:    store,
		notifier: notifier,
		engine:   engine,
	}, nil
}

func (rt *runtime) close() {
	_ = rt.log.Close()
}

// newTierResolver builds endpoint chains on demand, one per tier, from
// the configured primary and fallback endpoints.
func newTierResolver(cfg *config.Config, bus *event.Bus, log *logging.Logger) orchestrator.TierResolver {
	var mu sync.Mutex
	chains := make(map[task.Tier]provider.Endpoint)

	retry := provider.RetryConfig{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay(),
		MaxDelay:   cfg.Retry.MaxDelay(),
		Multiplier: cfg.Retry.Multiplier,
	}

	return func(tier task.Tier) (provider.Endpoint, error) {
		mu.Lock()
		defer mu.Unlock()

		if chain, ok := chains[tier]; ok {
			return chain, nil
		}

		specs := endpointSpecs(cfg.Endpoints.ForTier(string(tier)))
		if len(specs) == 0 {
			return nil, fmt.Errorf("no endpoints configured for tier %q", tier)
		}
		chain, err := provider.NewChainFromSpecs(specs, retry, provider.WithEventBus(bus), provider.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("build %s tier chain: %w", tier, err)
		}
		chains[tier] = chain
		return chain, nil
	}
}

func endpointSpecs(tc config.TierConfig) []provider.EndpointSpec {
	var specs []provider.EndpointSpec
	for _, ec := range tc.All() {
		specs = append(specs, provider.EndpointSpec{
			Provider: ec.Provider,
			Model:    ec.Model,
			BaseURL:  ec.BaseURL,
			APIKey:   ec.APIKey(),
			Timeout:  ec.Timeout(),
		})
	}
	return specs
}
