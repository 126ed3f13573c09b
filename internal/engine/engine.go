// Package engine is the process-wide context of gmark. It owns the store,
// the host bookmark tree and every maintenance service, and exposes the
// operations the command line and the JSON dispatcher call.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/nikbrunner/gmark/internal/ai"
	"github.com/nikbrunner/gmark/internal/classify"
	"github.com/nikbrunner/gmark/internal/duplicates"
	"github.com/nikbrunner/gmark/internal/guardian"
	"github.com/nikbrunner/gmark/internal/logger"
	"github.com/nikbrunner/gmark/internal/migrate"
	"github.com/nikbrunner/gmark/internal/model"
	"github.com/nikbrunner/gmark/internal/probe"
	"github.com/nikbrunner/gmark/internal/storage"
	"github.com/nikbrunner/gmark/internal/tree"
)

var (
	// ErrDuplicate is returned when a saved URL is already stored.
	ErrDuplicate = errors.New("bookmark already exists")
	// ErrMigrationRunning is returned when a second migration is requested
	// while one is in flight.
	ErrMigrationRunning = errors.New("a migration is already running")
)

// DuplicateError carries the stored bookmark a save collided with.
type DuplicateError struct {
	Existing model.Bookmark
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicate, e.Existing.URL)
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// Deps are the collaborators an Engine is assembled from. Tree and Prober
// are required; LocalModel may be nil.
type Deps struct {
	Store      *storage.Store
	Tree       tree.Tree
	Prober     migrate.Prober
	LocalModel ai.LanguageModel
	HTTPClient *http.Client
	Logger     logger.Logger
}

// Engine wires the maintenance services around one store.
type Engine struct {
	cfg   *storage.Config
	store *storage.Store
	tree  tree.Tree
	local ai.LanguageModel
	log   logger.Logger

	usage      *ai.UsageLimiter
	classifier *classify.Classifier
	providers  *ai.Manager
	duplicates *duplicates.Service
	guardian   *guardian.Guardian
	migrator   *migrate.Orchestrator

	migrating atomic.Bool
	closeOnce sync.Once
	closers   []func() error
}

// New assembles an Engine from already opened collaborators.
func New(cfg *storage.Config, deps Deps) (*Engine, error) {
	if cfg == nil {
		d := storage.DefaultConfig()
		cfg = &d
	}
	if deps.Store == nil || deps.Tree == nil || deps.Prober == nil {
		return nil, errors.New("engine: store, tree and prober are required")
	}
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}

	categories := classify.DefaultCategories()
	if cfg.CategoriesFile != "" {
		loaded, err := classify.LoadCategories(cfg.CategoriesFile)
		if err != nil {
			return nil, fmt.Errorf("loading categories: %w", err)
		}
		categories = loaded
	}

	e := &Engine{
		cfg:   cfg,
		store: deps.Store,
		tree:  deps.Tree,
		local: deps.LocalModel,
		log:   log,
	}
	e.usage = ai.NewUsageLimiter(deps.Store)

	strategies := []classify.Strategy{
		classify.NewPatternStrategy(classify.NewPatternMatcher(categories), cfg.Classification.ConfidenceThreshold),
	}
	if deps.LocalModel != nil {
		strategies = append(strategies,
			classify.NewLocalModelStrategy(deps.LocalModel, e.usage, categories, cfg.Classification.PromptTimeout))
	}
	e.classifier = classify.New(classify.Options{
		Categories: categories,
		Strategies: strategies,
		Cache:      deps.Store,
		CacheTTL:   cfg.Classification.CacheTTL,
		Logger:     log.With(logger.String("component", "classify")),
	})

	e.providers = ai.NewManager(deps.Store, deps.LocalModel, categories.Names(), deps.HTTPClient,
		log.With(logger.String("component", "ai")))

	e.duplicates = duplicates.NewService(deps.Store, cfg.Duplicates.Threshold,
		log.With(logger.String("component", "duplicates")))

	e.guardian = guardian.New(deps.Store, guardian.Options{
		Quota:             cfg.QuotaBytes,
		Interval:          cfg.Guardian.Interval,
		WarningRetention:  cfg.Guardian.WarningRetention,
		CriticalRetention: cfg.Guardian.CriticalRetention,
		Logger:            log.With(logger.String("component", "guardian")),
	})

	capability := migrate.CapabilityFunc(migrate.Always)
	if cfg.Migration.RequireModel {
		capability = migrate.ModelCapability(deps.LocalModel, cfg.LocalModel.URL, cfg.LocalModel.Model)
	}
	e.migrator = migrate.New(deps.Store, deps.Tree, deps.Prober, e.classifier, migrate.Options{
		ProbeTimeout:      cfg.Migration.ProbeTimeout,
		PaceInterval:      cfg.Migration.PaceInterval,
		MaxTextLength:     cfg.Migration.MaxTextLength,
		SummaryLength:     cfg.Classification.SummaryLength,
		UnreachableFolder: cfg.Migration.UnreachableFolder,
		ProtectedIDs:      cfg.Migration.ProtectedFolders,
		CleanupBatchSize:  cfg.Migration.CleanupBatchSize,
		KeepTitles:        cfg.Migration.KeepTitles,
		Capability:        capability,
		Detector:          e.duplicates,
		Logger:            log.With(logger.String("component", "migrate")),
	})

	return e, nil
}

// Open builds the production Engine described by cfg: a SQLite store, the
// Netscape bookmarks file as host tree, the HTTP prober and an Ollama model.
func Open(cfg *storage.Config, log logger.Logger) (*Engine, error) {
	if log == nil {
		log = logger.Nop()
	}

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	ft, err := tree.OpenFile(cfg.BookmarksFile)
	if err != nil {
		store.Close()
		return nil, err
	}

	httpClient := ai.NewHTTPClient()
	e, err := New(cfg, Deps{
		Store:      store,
		Tree:       ft,
		Prober:     probe.NewHTTP(cfg.Migration.ProbeTimeout, log.With(logger.String("component", "probe"))),
		LocalModel: ai.NewOllamaModel(cfg.LocalModel.URL, cfg.LocalModel.Model, httpClient),
		HTTPClient: httpClient,
		Logger:     log,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	e.closers = append(e.closers, store.Close)
	return e, nil
}

// Start loads persisted overrides and launches background maintenance: the
// storage guardian loop and a sweep of empty bucket folders.
func (e *Engine) Start(ctx context.Context) error {
	var threshold float64
	if err := e.store.SettingOr(ctx, model.SettingSimilarityThreshold, &threshold); err != nil {
		return fmt.Errorf("loading similarity threshold: %w", err)
	}
	if threshold > 0 {
		e.duplicates.SetThreshold(threshold)
	}

	e.guardian.Start(ctx)

	if _, err := e.migrator.CleanupEmptyFolders(ctx); err != nil {
		e.log.Warn("startup folder cleanup failed", logger.Error(err))
	}
	return nil
}

// Close stops background work and releases what Open acquired.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.guardian.Stop()
		for _, c := range e.closers {
			err = errors.Join(err, c())
		}
	})
	return err
}

func (e *Engine) Config() *storage.Config {
	return e.cfg
}

func (e *Engine) Categories() classify.Categories {
	return e.classifier.Categories()
}

// written notifies background maintenance that the store grew.
func (e *Engine) written() {
	e.guardian.Trigger()
}
