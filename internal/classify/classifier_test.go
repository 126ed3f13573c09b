package classify_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/nikbrunner/gmark/internal/ai"
	"github.com/nikbrunner/gmark/internal/classify"
	"github.com/nikbrunner/gmark/internal/model"
	"github.com/nikbrunner/gmark/internal/storage"
)

type fakeModel struct {
	available bool
	answer    string
	err       error
	prompts   int
	destroyed int
}

func (f *fakeModel) Available(context.Context) bool { return f.available }

func (f *fakeModel) NewSession(context.Context) (ai.Session, error) {
	return &fakeSession{m: f}, nil
}

type fakeSession struct{ m *fakeModel }

func (s *fakeSession) Prompt(context.Context, string) (string, error) {
	s.m.prompts++
	return s.m.answer, s.m.err
}

func (s *fakeSession) Destroy() error {
	s.m.destroyed++
	return nil
}

type panicStrategy struct{}

func (panicStrategy) Name() string           { return "panic" }
func (panicStrategy) MinConfidence() float64 { return 0 }
func (panicStrategy) Classify(context.Context, model.Item) classify.Outcome {
	panic("boom")
}

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "gmark.db"))
	assert.NilError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newClassifier(lm ai.LanguageModel, usage *ai.UsageLimiter, cache classify.CacheStore) *classify.Classifier {
	cats := classify.DefaultCategories()
	return classify.New(classify.Options{
		Categories: cats,
		Strategies: []classify.Strategy{
			classify.NewPatternStrategy(classify.NewPatternMatcher(cats), 0.8),
			classify.NewLocalModelStrategy(lm, usage, cats, time.Second),
		},
		Cache: cache,
	})
}

var (
	confidentItem = model.Item{Title: "GitHub code programming", Description: "npm code", URL: "https://github.com/a/b"}
	vagueItem     = model.Item{Title: "A blog", URL: "https://example.org/x"}
)

func TestClassifier_HighConfidenceShortCircuits(t *testing.T) {
	lm := &fakeModel{available: true, answer: `{"category":"News","confidence":1}`}
	got := newClassifier(lm, nil, nil).Classify(context.Background(), confidentItem)

	assert.Equal(t, got.Category, "Development")
	assert.Equal(t, got.Method, model.MethodPatterns)
	assert.Assert(t, got.Confidence >= 0.8)
	assert.Equal(t, lm.prompts, 0)
}

func TestClassifier_LowConfidenceUsesLocalModel(t *testing.T) {
	lm := &fakeModel{available: true, answer: `{"category":"Education","confidence":0.75,"summary":"A course"}`}
	got := newClassifier(lm, nil, nil).Classify(context.Background(), vagueItem)

	assert.Equal(t, got.Category, "Education")
	assert.Equal(t, got.Confidence, 0.75)
	assert.Equal(t, got.Summary, "A course")
	assert.Equal(t, got.Method, model.MethodLocalModel)
	assert.DeepEqual(t, got.Tags, []string{"example"})
	assert.Equal(t, lm.destroyed, 1)
}

func TestClassifier_FallsBackToPatterns(t *testing.T) {
	tests := []struct {
		name string
		lm   ai.LanguageModel
	}{
		{"no model", nil},
		{"model unavailable", &fakeModel{available: false}},
		{"malformed answer", &fakeModel{available: true, answer: "not json"}},
		{"prompt error", &fakeModel{available: true, err: errors.New("boom")}},
		{"category outside enum", &fakeModel{available: true, answer: `{"category":"Cooking","confidence":0.9}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newClassifier(tt.lm, nil, nil).Classify(context.Background(), vagueItem)
			assert.Equal(t, got.Category, "News")
			assert.Equal(t, got.Confidence, 0.2)
			assert.Equal(t, got.Method, model.MethodPatterns)
		})
	}
}

func TestClassifier_TokenBudget(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	usage := ai.NewUsageLimiter(store)
	assert.NilError(t, usage.SetLimit(ctx, 10))

	lm := &fakeModel{available: true, answer: `{"category":"Education","confidence":0.9}`}
	got := newClassifier(lm, usage, nil).Classify(ctx, vagueItem)

	assert.Equal(t, got.Method, model.MethodPatterns)
	assert.Equal(t, lm.prompts, 0)

	assert.NilError(t, usage.SetLimit(ctx, 100000))
	got = newClassifier(lm, usage, nil).Classify(ctx, vagueItem)
	assert.Equal(t, got.Method, model.MethodLocalModel)

	u, err := usage.Usage(ctx)
	assert.NilError(t, err)
	assert.Assert(t, u.Used > 0)
}

func TestClassifier_NeverFails(t *testing.T) {
	only := classify.New(classify.Options{Strategies: []classify.Strategy{panicStrategy{}}})
	got := only.Classify(context.Background(), vagueItem)
	assert.DeepEqual(t, got, model.FallbackClassification())

	cats := classify.DefaultCategories()
	chain := classify.New(classify.Options{Strategies: []classify.Strategy{
		classify.NewPatternStrategy(classify.NewPatternMatcher(cats), 0.8),
		panicStrategy{},
	}})
	got = chain.Classify(context.Background(), vagueItem)
	assert.Equal(t, got.Category, "News")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got = chain.Classify(ctx, vagueItem)
	assert.Equal(t, got.Method, model.MethodErrorFallback)
	assert.Equal(t, got.Category, model.CategoryOther)
	assert.Equal(t, got.Confidence, 0.0)
}

func TestClassifier_Cache(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	lm := &fakeModel{available: true, answer: `{"category":"Education","confidence":0.6}`}
	first := newClassifier(lm, nil, store).Classify(ctx, vagueItem)
	assert.Equal(t, first.Category, "Education")

	lm.answer = `{"category":"Tools","confidence":0.6}`
	second := newClassifier(lm, nil, store).Classify(ctx, vagueItem)
	assert.DeepEqual(t, second, first)
	assert.Equal(t, lm.prompts, 1)

	entry, err := store.GetCache(ctx, vagueItem.URL, model.CacheClassification)
	assert.NilError(t, err)
	assert.Assert(t, entry.ExpiresAt.After(time.Now().Add(23*time.Hour)))
}

func TestClassifier_DefaultChainIsPatternsOnly(t *testing.T) {
	got := classify.New(classify.Options{}).Classify(context.Background(), vagueItem)
	assert.Equal(t, got.Category, "News")
	assert.Equal(t, got.Method, model.MethodPatterns)
}
