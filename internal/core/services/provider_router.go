package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okapihq/okapi/internal/core/domain"
	"github.com/okapihq/okapi/internal/core/ports"
)

// RouterConfig tunes provider selection. Priority lists provider ids in
// preferred order; unlisted providers sort after listed ones, by id.
type RouterConfig struct {
	Priority []string
}

// ProviderRouter is the registry of backend adapters. Given a request
// it produces a response from some healthy adapter, transparently
// failing over when attempts fail. The registry and the health cache
// are the only state shared across conversations.
type ProviderRouter struct {
	logger *slog.Logger

	mu       sync.RWMutex
	adapters map[string]ports.BackendAdapter
	health   map[string]domain.ProviderHealth
	rank     map[string]int
}

func NewProviderRouter(logger *slog.Logger, cfg RouterConfig) *ProviderRouter {
	rank := make(map[string]int, len(cfg.Priority))
	for i, id := range cfg.Priority {
		rank[id] = i
	}
	return &ProviderRouter{
		logger:   logger,
		adapters: make(map[string]ports.BackendAdapter),
		health:   make(map[string]domain.ProviderHealth),
		rank:     rank,
	}
}

// Register adds an adapter to the registry.
func (r *ProviderRouter) Register(adapter ports.BackendAdapter) error {
	id := adapter.ProviderID()
	if id == "" {
		return fmt.Errorf("adapter has empty provider id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("provider already registered: %s", id)
	}
	r.adapters[id] = adapter
	r.health[id] = domain.ProviderHealth{ProviderID: id, Status: domain.HealthUnknown}
	r.logger.Info("provider registered", "provider", id)
	return nil
}

// Unregister removes an adapter and drops its cached health.
func (r *ProviderRouter) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.adapters, id)
	delete(r.health, id)
	r.logger.Info("provider unregistered", "provider", id)
}

// Providers returns the registered provider ids, sorted.
func (r *ProviderRouter) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Generate produces a response. With an explicit providerID the call
// goes straight to that adapter; if it fails and other providers are
// registered the request is retried once through automatic selection
// excluding the failed id. With an empty providerID candidates are
// tried in priority order until one succeeds.
func (r *ProviderRouter) Generate(ctx context.Context, req domain.LLMRequest, providerID string) (domain.LLMResponse, error) {
	if providerID != "" {
		adapter, ok := r.adapter(providerID)
		if !ok {
			return domain.LLMResponse{}, &domain.AgentError{
				Kind:    domain.ErrorKindProvider,
				Message: fmt.Sprintf("provider not registered: %s", providerID),
			}
		}

		resp, err := r.attempt(ctx, adapter, req)
		if err == nil {
			return resp, nil
		}

		r.logger.Warn("explicit provider failed", "provider", providerID, "error", err)
		if r.registeredCount() > 1 {
			return r.generateAuto(ctx, req, map[string]bool{providerID: true}, err)
		}
		return domain.LLMResponse{}, err
	}

	return r.generateAuto(ctx, req, nil, nil)
}

func (r *ProviderRouter) generateAuto(ctx context.Context, req domain.LLMRequest, exclude map[string]bool, lastErr error) (domain.LLMResponse, error) {
	candidates := r.selectCandidates(req.Model, exclude)
	if len(candidates) == 0 {
		return domain.LLMResponse{}, domain.NewProviderError("", "no eligible provider for request", true, lastErr)
	}

	for _, adapter := range candidates {
		resp, err := r.attempt(ctx, adapter, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	return domain.LLMResponse{}, domain.NewProviderError("", "all candidate providers failed", true, lastErr)
}

// attempt runs one adapter call, updating the health cache on both
// outcomes. Any failure marks the provider DEGRADED.
func (r *ProviderRouter) attempt(ctx context.Context, adapter ports.BackendAdapter, req domain.LLMRequest) (domain.LLMResponse, error) {
	id := adapter.ProviderID()
	start := time.Now()
	resp, err := adapter.GenerateResponse(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		r.setHealth(domain.ProviderHealth{
			ProviderID:     id,
			Status:         domain.HealthDegraded,
			ResponseTimeMs: elapsed.Milliseconds(),
			Message:        err.Error(),
			LastCheck:      time.Now(),
		})
		r.logger.Warn("provider attempt failed",
			"provider", id, "retryable", domain.IsRetryable(err), "error", err)
		return domain.LLMResponse{}, err
	}

	r.setHealth(domain.ProviderHealth{
		ProviderID:     id,
		Status:         domain.HealthHealthy,
		ResponseTimeMs: elapsed.Milliseconds(),
		LastCheck:      time.Now(),
	})
	resp.Provider = id
	return resp, nil
}

// selectCandidates filters the registry to adapters that are not
// excluded, declare support for the model (or are unconstrained) and
// are not cached UNHEALTHY, sorted by configured priority then id.
func (r *ProviderRouter) selectCandidates(model string, exclude map[string]bool) []ports.BackendAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ports.BackendAdapter
	for id, adapter := range r.adapters {
		if exclude[id] {
			continue
		}
		if model != "" && !adapter.SupportsModel(model) {
			continue
		}
		if h, ok := r.health[id]; ok && h.Status == domain.HealthUnhealthy {
			continue
		}
		out = append(out, adapter)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].ProviderID(), out[j].ProviderID()
		ra, aok := r.rank[a]
		rb, bok := r.rank[b]
		switch {
		case aok && bok:
			return ra < rb
		case aok:
			return true
		case bok:
			return false
		default:
			return a < b
		}
	})
	return out
}

// CheckHealth probes one provider, measures latency and caches the
// result.
func (r *ProviderRouter) CheckHealth(ctx context.Context, id string) (domain.ProviderHealth, error) {
	adapter, ok := r.adapter(id)
	if !ok {
		return domain.ProviderHealth{}, fmt.Errorf("provider not registered: %s", id)
	}

	start := time.Now()
	h := adapter.CheckHealth(ctx)
	h.ProviderID = id
	if h.ResponseTimeMs == 0 {
		h.ResponseTimeMs = time.Since(start).Milliseconds()
	}
	h.LastCheck = time.Now()

	r.setHealth(h)
	return h, nil
}

// CheckAllHealth fans the probe out over the full registry.
func (r *ProviderRouter) CheckAllHealth(ctx context.Context) map[string]domain.ProviderHealth {
	ids := r.Providers()
	results := make(map[string]domain.ProviderHealth, len(ids))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			h, err := r.CheckHealth(gctx, id)
			if err != nil {
				return nil // unregistered between listing and probing
			}
			mu.Lock()
			results[id] = h
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Health returns the cached health for a provider.
func (r *ProviderRouter) Health(id string) (domain.ProviderHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.health[id]
	return h, ok
}

func (r *ProviderRouter) adapter(id string) (ports.BackendAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

func (r *ProviderRouter) registeredCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

func (r *ProviderRouter) setHealth(h domain.ProviderHealth) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, registered := r.adapters[h.ProviderID]; registered {
		r.health[h.ProviderID] = h
	}
}
