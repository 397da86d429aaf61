package enrich

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sledworks/catalog-cli/internal/cost"
	"github.com/sledworks/catalog-cli/internal/model"
	"github.com/sledworks/catalog-cli/internal/resilience"
	"github.com/sledworks/catalog-cli/pkg/anthropic"
)

// Config controls throttling, retry and accounting for provider calls.
type Config struct {
	Model       string
	MaxTokens   int64
	Temperature float64

	// MinInterval is the minimum spacing between wire calls. It is enforced
	// by one shared gate, so concurrent callers serialize on it.
	MinInterval time.Duration

	// MaxConcurrent caps in-flight calls. The gate still serializes actual
	// wire traffic below it.
	MaxConcurrent int

	// BatchSize caps how many requests go into one provider batch.
	BatchSize int

	Retry resilience.RetryConfig

	// Breaker stops wire calls after repeated transient failures so a
	// provider outage does not burn metered budget.
	Breaker resilience.BreakerConfig
}

// DefaultConfig returns production settings for the enrichment provider.
func DefaultConfig() Config {
	return Config{
		Model:         "claude-haiku-4-5-20251001",
		MaxTokens:     1024,
		Temperature:   0.0,
		MinInterval:   500 * time.Millisecond,
		MaxConcurrent: 4,
		BatchSize:     20,
		Retry:         resilience.DefaultRetryConfig(),
		Breaker:       resilience.DefaultBreakerConfig(),
	}
}

// Client throttles and retries calls to the enrichment provider and keeps a
// running token and cost total. Safe for concurrent use.
type Client struct {
	provider anthropic.Client
	cfg      Config
	gate     *rate.Limiter
	sem      chan struct{}
	breaker  *resilience.Breaker
	calc     *cost.Calculator

	mu    sync.Mutex
	usage model.TokenUsage
}

// NewClient wraps a provider client with rate limiting and accounting.
func NewClient(provider anthropic.Client, cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}

	gate := rate.NewLimiter(rate.Inf, 1)
	if cfg.MinInterval > 0 {
		gate = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	if cfg.Breaker.OnStateChange == nil {
		cfg.Breaker.OnStateChange = func(from, to resilience.BreakerState) {
			zap.L().Warn("enrich: provider breaker state change",
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}
	}
	return &Client{
		provider: provider,
		cfg:      cfg,
		gate:     gate,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		breaker:  resilience.NewBreaker(cfg.Breaker),
		calc:     cost.NewCalculator(cost.DefaultRates()),
	}
}

// Usage returns a copy of the accumulated token and cost totals.
func (c *Client) Usage() model.TokenUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Complete issues a single prompt through the shared gate with retry on
// transient failures.
func (c *Client) Complete(ctx context.Context, system, prompt string) (*anthropic.MessageResponse, error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "enrich: acquire slot")
	}
	defer func() { <-c.sem }()

	temp := c.cfg.Temperature
	req := anthropic.MessageRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		System:      []anthropic.SystemBlock{{Text: system}},
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	}

	cfg := c.cfg.Retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("enrichment", "complete")
	}
	resp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if err := c.gate.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "enrich: rate gate")
		}
		return resilience.BreakVal(ctx, c.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return c.provider.CreateMessage(ctx, req)
		})
	})
	if err != nil {
		return nil, err
	}

	c.record(resp.Usage, false)
	return resp, nil
}

// BatchItem is one independent request in a CompleteBatch call.
type BatchItem struct {
	ID     string
	System string
	Prompt string
}

// BatchOutcome carries the per-item result of a batch. Exactly one of
// Response and Err is set.
type BatchOutcome struct {
	Response *anthropic.MessageResponse
	Err      error
}

// CompleteBatch processes independent requests in provider batches of at
// most BatchSize. A failed batch call, or a batch whose results do not cover
// its items, degrades to individual calls for that chunk instead of losing
// it. The returned map always has one entry per input item.
func (c *Client) CompleteBatch(ctx context.Context, items []BatchItem) map[string]BatchOutcome {
	out := make(map[string]BatchOutcome, len(items))
	for start := 0; start < len(items); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		results, err := c.completeChunk(ctx, chunk)
		if err != nil {
			zap.L().Warn("enrich: batch call failed, falling back to individual calls",
				zap.Int("items", len(chunk)),
				zap.Error(err),
			)
			c.fallbackIndividually(ctx, chunk, out)
			continue
		}

		var missing []BatchItem
		for _, item := range chunk {
			resp, ok := results[item.ID]
			if !ok {
				missing = append(missing, item)
				continue
			}
			out[item.ID] = resp
		}
		if len(missing) > 0 {
			zap.L().Warn("enrich: batch results incomplete, retrying missing items individually",
				zap.Int("missing", len(missing)),
			)
			c.fallbackIndividually(ctx, missing, out)
		}
	}
	return out
}

func (c *Client) completeChunk(ctx context.Context, chunk []BatchItem) (map[string]BatchOutcome, error) {
	// Matching prompts share one system block, so warm the prompt cache with
	// a primer call and let every batch item read the cached prefix.
	shared := sharedSystem(chunk)
	var cachedSystem []anthropic.SystemBlock
	if shared != "" {
		cachedSystem = anthropic.BuildCachedSystemBlocks(shared)
		c.primeCache(ctx, cachedSystem, chunk[0].Prompt)
	}

	req := anthropic.BatchRequest{Requests: make([]anthropic.BatchRequestItem, 0, len(chunk))}
	temp := c.cfg.Temperature
	for _, item := range chunk {
		system := cachedSystem
		if system == nil {
			system = []anthropic.SystemBlock{{Text: item.System}}
		}
		req.Requests = append(req.Requests, anthropic.BatchRequestItem{
			CustomID: item.ID,
			Params: anthropic.MessageRequest{
				Model:       c.cfg.Model,
				MaxTokens:   c.cfg.MaxTokens,
				System:      system,
				Messages:    []anthropic.Message{{Role: "user", Content: item.Prompt}},
				Temperature: &temp,
			},
		})
	}

	if err := c.gate.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "enrich: rate gate")
	}
	batch, err := resilience.BreakVal(ctx, c.breaker, func(ctx context.Context) (*anthropic.BatchResponse, error) {
		return c.provider.CreateBatch(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	if _, err := anthropic.PollBatch(ctx, c.provider, batch.ID); err != nil {
		return nil, err
	}

	iter, err := c.provider.GetBatchResults(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	collected, err := anthropic.CollectBatchResultsDetailed(iter)
	if err != nil {
		return nil, err
	}

	out := make(map[string]BatchOutcome, len(chunk))
	for id, resp := range collected.Succeeded {
		c.record(resp.Usage, true)
		out[id] = BatchOutcome{Response: resp}
	}
	for _, f := range collected.Failures {
		out[f.CustomID] = BatchOutcome{Err: eris.Errorf("enrich: batch item %s: %s", f.CustomID, f.Type)}
	}
	return out, nil
}

// sharedSystem returns the system prompt common to every item in the
// chunk, or "" when prompts differ or the chunk is too small for caching
// to pay off.
func sharedSystem(chunk []BatchItem) string {
	if len(chunk) < 2 || chunk[0].System == "" {
		return ""
	}
	for _, item := range chunk[1:] {
		if item.System != chunk[0].System {
			return ""
		}
	}
	return chunk[0].System
}

// primeCache warms the prompt cache for the shared system blocks. Failures
// only cost the cache discount, so they are logged and ignored.
func (c *Client) primeCache(ctx context.Context, system []anthropic.SystemBlock, samplePrompt string) {
	if err := c.gate.Wait(ctx); err != nil {
		return
	}
	temp := c.cfg.Temperature
	resp, err := anthropic.PrimerRequest(ctx, c.provider, anthropic.MessageRequest{
		Model:       c.cfg.Model,
		MaxTokens:   1,
		System:      system,
		Messages:    []anthropic.Message{{Role: "user", Content: samplePrompt}},
		Temperature: &temp,
	})
	if err != nil {
		zap.L().Debug("enrich: cache primer failed", zap.Error(err))
		return
	}
	c.record(resp.Usage, false)
}

func (c *Client) fallbackIndividually(ctx context.Context, items []BatchItem, out map[string]BatchOutcome) {
	for _, item := range items {
		resp, err := c.Complete(ctx, item.System, item.Prompt)
		if err != nil {
			out[item.ID] = BatchOutcome{Err: err}
			continue
		}
		out[item.ID] = BatchOutcome{Response: resp}
	}
}

func (c *Client) record(u anthropic.TokenUsage, isBatch bool) {
	costUSD := c.calc.Call(c.cfg.Model, isBatch,
		int(u.InputTokens), int(u.OutputTokens),
		int(u.CacheCreationInputTokens), int(u.CacheReadInputTokens))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.usage.Add(model.TokenUsage{
		InputTokens:         int(u.InputTokens),
		OutputTokens:        int(u.OutputTokens),
		CacheCreationTokens: int(u.CacheCreationInputTokens),
		CacheReadTokens:     int(u.CacheReadInputTokens),
		Calls:               1,
		CostUSD:             costUSD,
	})
}
