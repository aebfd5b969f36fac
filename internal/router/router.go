package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ppiankov/competia/internal/cache"
	"github.com/ppiankov/competia/internal/model"
)

// availabilityTTL bounds how long an availability probe result is reused,
// so staggered jobs don't re-probe providers on every call.
const availabilityTTL = 60 * time.Second

// nominal token counts used to compare provider cost under the auto policy.
const (
	nominalInputTokens  = 4000
	nominalOutputTokens = 1000
)

// Router routes generation requests to providers by task type.
type Router struct {
	providers map[string]Provider
	table     map[string]string // task type -> provider name
	fallback  bool
	threshold int // consecutive failures before the breaker trips
	pricing   *PriceTable
	avail     cache.Cache
	logger    *slog.Logger

	mu       sync.Mutex
	failures map[string]int
	tripped  map[string]bool
}

// New builds a router from configuration, constructing every enabled
// provider. A provider that fails construction (e.g. missing API key) is
// reported and skipped; absence of a backend is a configured state, not an
// accidental fallback.
func New(cfg *model.Config, logger *slog.Logger) (*Router, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pricing := NewPriceTable(cfg.Routing.Pricing)

	providers := make(map[string]Provider)
	if cfg.Providers.OpenAI.Enabled {
		p, err := NewOpenAIProvider(cfg.Providers.OpenAI, pricing)
		if err != nil {
			return nil, fmt.Errorf("openai provider: %w", err)
		}
		providers[p.Name()] = p
	}
	if cfg.Providers.Anthropic.Enabled {
		p, err := NewAnthropicProvider(cfg.Providers.Anthropic, pricing)
		if err != nil {
			return nil, fmt.Errorf("anthropic provider: %w", err)
		}
		providers[p.Name()] = p
	}
	if cfg.Providers.Ollama.Enabled {
		p, err := NewOllamaProvider(cfg.Providers.Ollama)
		if err != nil {
			return nil, fmt.Errorf("ollama provider: %w", err)
		}
		providers[p.Name()] = p
	}

	return NewWithProviders(providers, cfg.Routing, pricing, logger), nil
}

// NewWithProviders builds a router over pre-constructed providers.
func NewWithProviders(providers map[string]Provider, routing model.RoutingConfig, pricing *PriceTable, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if pricing == nil {
		pricing = NewPriceTable(routing.Pricing)
	}
	threshold := routing.BreakerThreshold
	if threshold <= 0 {
		threshold = 3
	}
	return &Router{
		providers: providers,
		table:     routing.TaskProviders,
		fallback:  routing.FallbackEnabled,
		threshold: threshold,
		pricing:   pricing,
		avail:     cache.NewMemoryCache(availabilityTTL, 5*time.Minute),
		logger:    logger,
		failures:  make(map[string]int),
		tripped:   make(map[string]bool),
	}
}

// Route sends the request to the provider configured for its task type,
// falling back to any other available provider when fallback is enabled.
// When no provider can serve the request, the response carries
// success=false and an explicit error; the router never returns empty
// content dressed up as a real response.
func (r *Router) Route(ctx context.Context, req Request) (*Response, error) {
	candidates := r.candidates(req.TaskType)

	var lastErr error
	for _, name := range candidates {
		p := r.providers[name]
		if r.isTripped(name) {
			continue
		}
		if !r.available(ctx, p) {
			continue
		}

		start := time.Now()
		gen, err := r.generate(ctx, p, req)
		latency := time.Since(start)
		if err != nil {
			lastErr = err
			r.recordFailure(name)
			r.logger.Warn("provider call failed",
				"provider", name, "task", req.TaskType, "latency", latency, "err", err)
			if !r.fallback {
				break
			}
			continue
		}

		r.recordSuccess(name)
		cost := p.EstimateCost(gen.Model, gen.InputTokens, gen.OutputTokens)
		r.logger.Debug("provider call succeeded",
			"provider", name, "model", gen.Model, "task", req.TaskType,
			"latency", latency, "cost_estimate", cost)
		return &Response{
			Content:      gen.Content,
			Provider:     name,
			Model:        gen.Model,
			InputTokens:  gen.InputTokens,
			OutputTokens: gen.OutputTokens,
			CostEstimate: cost,
			Success:      true,
		}, nil
	}

	// ErrNoProviderAvailable means no provider could even be attempted;
	// a provider that was called and failed surfaces its own error so
	// callers can retry transients.
	err := error(ErrNoProviderAvailable)
	if lastErr != nil {
		err = fmt.Errorf("all providers failed: %w", lastErr)
	}
	return &Response{Success: false, Error: err.Error()}, err
}

// candidates returns provider names in routing order: the configured
// provider for the task type first, then (when fallback is enabled) the
// rest. Unknown task types use the cost-preferring auto policy.
func (r *Router) candidates(taskType string) []string {
	var ordered []string
	seen := make(map[string]bool)

	if name, ok := r.table[taskType]; ok {
		if _, exists := r.providers[name]; exists {
			ordered = append(ordered, name)
			seen[name] = true
		}
	} else {
		// Auto policy: cheapest provider first for a nominal request.
		ordered = append(ordered, r.byCost()...)
		for _, n := range ordered {
			seen[n] = true
		}
	}

	if r.fallback || len(ordered) == 0 {
		rest := make([]string, 0, len(r.providers))
		for name := range r.providers {
			if !seen[name] {
				rest = append(rest, name)
			}
		}
		sort.Strings(rest) // deterministic fallback order
		if !r.fallback && len(ordered) == 0 {
			// No configured provider for this task and no auto match:
			// nothing to try.
			return nil
		}
		ordered = append(ordered, rest...)
	}

	return ordered
}

// byCost orders all providers by estimated cost for a nominal request.
func (r *Router) byCost() []string {
	type priced struct {
		name string
		cost float64
	}
	list := make([]priced, 0, len(r.providers))
	for name, p := range r.providers {
		list = append(list, priced{name, p.EstimateCost("", nominalInputTokens, nominalOutputTokens)})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].cost != list[j].cost {
			return list[i].cost < list[j].cost
		}
		return list[i].name < list[j].name
	})
	names := make([]string, len(list))
	for i, p := range list {
		names[i] = p.name
	}
	return names
}

func (r *Router) generate(ctx context.Context, p Provider, req Request) (*Generation, error) {
	if req.RequireJSON {
		return p.GenerateJSON(ctx, req)
	}
	return p.GenerateText(ctx, req)
}

// available checks provider availability through the TTL cache.
func (r *Router) available(ctx context.Context, p Provider) bool {
	key := cache.AvailabilityKey(p.Name())
	if v, ok := r.avail.Get(key); ok {
		return v[0] == '1'
	}
	ok := p.IsAvailable(ctx)
	val := []byte("0")
	if ok {
		val = []byte("1")
	}
	_ = r.avail.Set(key, val, availabilityTTL)
	return ok
}

func (r *Router) isTripped(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tripped[name]
}

// recordFailure counts consecutive failures and trips the breaker at the
// threshold; a tripped provider stays unavailable for the rest of the run.
func (r *Router) recordFailure(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[name]++
	if r.failures[name] >= r.threshold && !r.tripped[name] {
		r.tripped[name] = true
		r.logger.Warn("provider circuit breaker tripped", "provider", name, "failures", r.failures[name])
	}
}

func (r *Router) recordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[name] = 0
}

// ResetBreakers clears breaker state, typically between runs.
func (r *Router) ResetBreakers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = make(map[string]int)
	r.tripped = make(map[string]bool)
}

// Providers returns the configured provider names.
func (r *Router) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
