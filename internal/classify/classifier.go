package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nikbrunner/gmark/internal/logger"
	"github.com/nikbrunner/gmark/internal/model"
)

// CacheStore persists classification results per URL.
type CacheStore interface {
	GetCache(ctx context.Context, url string, kind model.CacheKind) (model.CacheEntry, error)
	PutCache(ctx context.Context, url string, kind model.CacheKind, payload any, ttl time.Duration) error
}

// Classifier runs the confidence-gated strategy chain.
type Classifier struct {
	categories Categories
	patterns   *PatternMatcher
	strategies []Strategy
	cache      CacheStore
	cacheTTL   time.Duration
	log        logger.Logger
}

// Options configures a Classifier.
type Options struct {
	Categories Categories
	Strategies []Strategy // tried in order after the cache
	Cache      CacheStore // optional
	CacheTTL   time.Duration
	Logger     logger.Logger
}

// New creates a Classifier. With no strategies it runs the pattern matcher
// alone at the default 0.8 bar.
func New(opts Options) *Classifier {
	if opts.Categories == nil {
		opts.Categories = DefaultCategories()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}

	c := &Classifier{
		categories: opts.Categories,
		patterns:   NewPatternMatcher(opts.Categories),
		strategies: opts.Strategies,
		cache:      opts.Cache,
		cacheTTL:   opts.CacheTTL,
		log:        opts.Logger,
	}
	if len(c.strategies) == 0 {
		c.strategies = []Strategy{NewPatternStrategy(c.patterns, 0.8)}
	}
	return c
}

// Categories returns the category set in use.
func (c *Classifier) Categories() Categories {
	return c.categories
}

// Patterns returns the pattern matcher backing the chain.
func (c *Classifier) Patterns() *PatternMatcher {
	return c.patterns
}

// Classify never fails: the worst case is Other with confidence 0 and
// method error-fallback.
func (c *Classifier) Classify(ctx context.Context, item model.Item) (result model.Classification) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("classification panicked", logger.String("url", item.URL), logger.Any("panic", r))
			result = model.FallbackClassification()
		}
	}()

	if ctx.Err() != nil {
		return model.FallbackClassification()
	}

	if cached, ok := c.fromCache(ctx, item.URL); ok {
		return cached
	}

	result, ok := c.run(ctx, item)
	if !ok {
		return model.FallbackClassification()
	}

	c.toCache(ctx, item.URL, result)
	return result
}

// run folds over the strategies. The first success meeting its strategy's
// bar wins; otherwise the first success seen is returned.
func (c *Classifier) run(ctx context.Context, item model.Item) (model.Classification, bool) {
	var fallback *model.Classification

	for _, s := range c.strategies {
		out := c.runStrategy(ctx, s, item)
		switch out.Status {
		case StatusSuccess:
			if out.Result.Confidence >= s.MinConfidence() {
				return out.Result, true
			}
			if fallback == nil {
				r := out.Result
				fallback = &r
			}
		case StatusSkip:
			c.log.Debug("classification strategy skipped",
				logger.String("strategy", s.Name()), logger.String("reason", out.Reason))
		case StatusFail:
			c.log.Warn("classification strategy failed",
				logger.String("strategy", s.Name()), logger.Error(out.Err))
		}
	}

	if fallback == nil {
		return model.Classification{}, false
	}
	return *fallback, true
}

// runStrategy converts a panicking strategy into a failure.
func (c *Classifier) runStrategy(ctx context.Context, s Strategy, item model.Item) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = fail(fmt.Errorf("strategy %s panicked: %v", s.Name(), r))
		}
	}()
	return s.Classify(ctx, item)
}

func (c *Classifier) fromCache(ctx context.Context, url string) (model.Classification, bool) {
	if c.cache == nil || url == "" {
		return model.Classification{}, false
	}
	entry, err := c.cache.GetCache(ctx, url, model.CacheClassification)
	if err != nil {
		return model.Classification{}, false
	}
	var result model.Classification
	if err := json.Unmarshal(entry.Data, &result); err != nil {
		return model.Classification{}, false
	}
	return result, true
}

func (c *Classifier) toCache(ctx context.Context, url string, result model.Classification) {
	if c.cache == nil || url == "" {
		return
	}
	if err := c.cache.PutCache(ctx, url, model.CacheClassification, result, c.cacheTTL); err != nil {
		c.log.Warn("cache classification failed", logger.String("url", url), logger.Error(err))
	}
}
