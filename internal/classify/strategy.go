package classify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nikbrunner/gmark/internal/ai"
	"github.com/nikbrunner/gmark/internal/model"
)

// Status tags the outcome of one strategy.
type Status int

const (
	StatusSuccess Status = iota
	StatusSkip
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSkip:
		return "skip"
	default:
		return "fail"
	}
}

// Outcome is what a strategy produced for one item.
type Outcome struct {
	Status Status
	Result model.Classification
	Reason string // why the strategy skipped
	Err    error  // why the strategy failed
}

func success(r model.Classification) Outcome { return Outcome{Status: StatusSuccess, Result: r} }
func skip(reason string) Outcome            { return Outcome{Status: StatusSkip, Reason: reason} }
func fail(err error) Outcome                { return Outcome{Status: StatusFail, Err: err} }

// Strategy is one step of the classification chain.
type Strategy interface {
	Name() string
	// MinConfidence is the bar a successful result must meet to end the chain.
	MinConfidence() float64
	Classify(ctx context.Context, item model.Item) Outcome
}

// PatternStrategy wraps the pattern matcher. It always succeeds.
type PatternStrategy struct {
	matcher   *PatternMatcher
	threshold float64
}

func NewPatternStrategy(matcher *PatternMatcher, threshold float64) *PatternStrategy {
	return &PatternStrategy{matcher: matcher, threshold: threshold}
}

func (s *PatternStrategy) Name() string           { return model.MethodPatterns }
func (s *PatternStrategy) MinConfidence() float64 { return s.threshold }

func (s *PatternStrategy) Classify(_ context.Context, item model.Item) Outcome {
	return success(s.matcher.Classify(item))
}

// LocalModelStrategy asks the on-device language model, gated by its
// capability check and the daily token budget.
type LocalModelStrategy struct {
	model      ai.LanguageModel
	usage      *ai.UsageLimiter
	categories Categories
	timeout    time.Duration
}

// NewLocalModelStrategy creates the local model step. usage may be nil to
// disable budgeting.
func NewLocalModelStrategy(lm ai.LanguageModel, usage *ai.UsageLimiter, categories Categories, timeout time.Duration) *LocalModelStrategy {
	return &LocalModelStrategy{model: lm, usage: usage, categories: categories, timeout: timeout}
}

func (s *LocalModelStrategy) Name() string           { return model.MethodLocalModel }
func (s *LocalModelStrategy) MinConfidence() float64 { return 0 }

func (s *LocalModelStrategy) Classify(ctx context.Context, item model.Item) Outcome {
	if s.model == nil {
		return skip("no local model configured")
	}
	if !s.model.Available(ctx) {
		return skip("local model unavailable")
	}

	prompt := ai.BuildPrompt(item, s.categories.Names())
	required := ai.EstimateTokens(prompt)
	if s.usage != nil {
		ok, err := s.usage.CanConsume(ctx, required)
		if err != nil {
			return fail(fmt.Errorf("check token budget: %w", err))
		}
		if !ok {
			return skip("daily token budget exhausted")
		}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	answer, err := ai.PromptOnce(ctx, s.model, prompt)
	if s.usage != nil && (err == nil || answer != "") {
		// Best effort bookkeeping; a failed write must not fail the item.
		_, _ = s.usage.Consume(context.WithoutCancel(ctx), required+ai.EstimateTokens(answer))
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fail(fmt.Errorf("local model timed out: %w", err))
		}
		return fail(err)
	}

	result, err := ai.ParseResult(answer, s.categories.Names())
	if err != nil {
		return fail(err)
	}

	tags := capTags(result.Tags)
	if len(tags) == 0 {
		tags = GenerateTags(s.categories, item.URL, combinedText(item), result.Category)
	}

	return success(model.Classification{
		Category:   result.Category,
		Confidence: result.Confidence,
		Tags:       tags,
		Summary:    result.Summary,
		Method:     model.MethodLocalModel,
	})
}

func capTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	if len(tags) > maxTags {
		return tags[:maxTags]
	}
	return tags
}
