package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nikbrunner/gmark/internal/ai"
	"github.com/nikbrunner/gmark/internal/duplicates"
	"github.com/nikbrunner/gmark/internal/guardian"
	"github.com/nikbrunner/gmark/internal/logger"
	"github.com/nikbrunner/gmark/internal/migrate"
	"github.com/nikbrunner/gmark/internal/model"
	"github.com/nikbrunner/gmark/internal/storage"
)

// Classify runs the classification chain. It never fails.
func (e *Engine) Classify(ctx context.Context, item model.Item) model.Classification {
	return e.classifier.Classify(ctx, item)
}

// FindDuplicates lists stored bookmarks similar to item without recording
// anything.
func (e *Engine) FindDuplicates(ctx context.Context, item model.Item) ([]duplicates.Match, error) {
	candidate := model.Bookmark{
		URL:           item.URL,
		URLNormalized: model.NormalizeURL(item.URL),
		Title:         item.Title,
		Description:   item.Description,
	}
	return e.duplicates.Check(ctx, candidate)
}

// RunMigration starts a migration in the background. Only one may run at a
// time; the returned Run streams progress and yields the result.
func (e *Engine) RunMigration(ctx context.Context) (*migrate.Run, error) {
	if !e.migrating.CompareAndSwap(false, true) {
		return nil, ErrMigrationRunning
	}

	run := e.migrator.Start(ctx)
	go func() {
		<-run.Done()
		e.migrating.Store(false)
		e.written()
	}()
	return run, nil
}

func (e *Engine) MigrationStatus(ctx context.Context) (migrate.Status, error) {
	return e.migrator.Status(ctx)
}

// ResetMigration clears the completion flag and checkpoint so the next run
// starts over.
func (e *Engine) ResetMigration(ctx context.Context) error {
	if e.migrating.Load() {
		return ErrMigrationRunning
	}
	return e.migrator.Reset(ctx)
}

// CleanupFolders removes empty bucket folders from the host tree.
func (e *Engine) CleanupFolders(ctx context.Context) (migrate.CleanupResult, error) {
	return e.migrator.CleanupEmptyFolders(ctx)
}

func (e *Engine) StorageStatus(ctx context.Context) (guardian.Status, error) {
	return e.guardian.Status(ctx)
}

// Optimize runs the cleanup tier matching current usage, or the critical tier
// when force is set.
func (e *Engine) Optimize(ctx context.Context, force bool) (guardian.Report, error) {
	if force {
		return e.guardian.Optimize(ctx, guardian.LevelCritical)
	}
	return e.guardian.OptimizeIfNeeded(ctx)
}

func (e *Engine) Statistics(ctx context.Context) (storage.Statistics, error) {
	return e.store.Statistics(ctx)
}

func (e *Engine) Export(ctx context.Context) (*storage.ExportDocument, error) {
	return e.store.Export(ctx)
}

// Import loads an export document. Nothing changes on a version mismatch.
func (e *Engine) Import(ctx context.Context, doc *storage.ExportDocument) (storage.ImportResult, error) {
	result, err := e.store.Import(ctx, doc)
	if err != nil {
		return result, err
	}
	e.log.Info("import finished",
		logger.Int("bookmarks", result.Bookmarks),
		logger.Int("duplicates", result.Duplicates),
		logger.Int("settings", result.Settings))
	e.written()
	return result, nil
}

// GetSetting returns the raw JSON value of a setting.
func (e *Engine) GetSetting(ctx context.Context, key string) (json.RawMessage, error) {
	setting, err := e.store.GetSettingRaw(ctx, key)
	if err != nil {
		return nil, err
	}
	return setting.Value, nil
}

// SetSetting stores a raw JSON value. Well-known keys are validated and take
// effect immediately.
func (e *Engine) SetSetting(ctx context.Context, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("setting %s: value is not valid JSON", key)
	}

	switch key {
	case model.SettingSimilarityThreshold:
		var threshold float64
		if err := json.Unmarshal(value, &threshold); err != nil || threshold <= 0 || threshold > 1 {
			return fmt.Errorf("setting %s: want a number in (0, 1]", key)
		}
		if err := e.store.SetSetting(ctx, key, value); err != nil {
			return err
		}
		e.duplicates.SetThreshold(threshold)
		return nil
	case model.SettingAIProvider:
		var name string
		if err := json.Unmarshal(value, &name); err != nil {
			return fmt.Errorf("setting %s: want a provider name", key)
		}
		return e.providers.SetActiveProvider(ctx, name)
	case model.SettingDailyTokenLimit:
		var limit int
		if err := json.Unmarshal(value, &limit); err != nil || limit <= 0 {
			return fmt.Errorf("setting %s: want a positive integer", key)
		}
		return e.usage.SetLimit(ctx, limit)
	case model.SettingAutoClassify, model.SettingAutoDetectDuplicates:
		var on bool
		if err := json.Unmarshal(value, &on); err != nil {
			return fmt.Errorf("setting %s: want true or false", key)
		}
	}

	return e.store.SetSetting(ctx, key, value)
}

// enabled reads a boolean setting that defaults to true.
func (e *Engine) enabled(ctx context.Context, key string) bool {
	on := true
	if err := e.store.SettingOr(ctx, key, &on); err != nil {
		e.log.Warn("reading setting failed", logger.String("key", key), logger.Error(err))
		return true
	}
	return on
}

// ProviderConfig is a provider's configuration as reported to callers.
type ProviderConfig struct {
	Provider string    `json:"provider"`
	Active   bool      `json:"active"`
	Config   ai.Config `json:"config"`
}

// GetProviderConfig returns the stored configuration of a provider, or of the
// active provider when name is empty. API keys are redacted.
func (e *Engine) GetProviderConfig(ctx context.Context, name string) (ProviderConfig, error) {
	active, err := e.providers.ActiveProvider(ctx)
	if err != nil {
		return ProviderConfig{}, err
	}
	if name == "" {
		name = active
	}

	cfg, err := e.providers.ProviderConfig(ctx, name)
	if err != nil {
		return ProviderConfig{}, err
	}
	if hosted, ok := cfg.(ai.HostedConfig); ok {
		cfg = hosted.Redacted()
	}
	return ProviderConfig{Provider: name, Active: name == active, Config: cfg}, nil
}

// SetProviderConfig validates and stores a provider configuration.
func (e *Engine) SetProviderConfig(ctx context.Context, name string, raw json.RawMessage) error {
	_, err := e.providers.SetProviderConfig(ctx, name, raw)
	return err
}

// UseProvider selects the active classification provider.
func (e *Engine) UseProvider(ctx context.Context, name string) error {
	return e.providers.SetActiveProvider(ctx, name)
}

func (e *Engine) CheckProviderAvailability(ctx context.Context, name string) ai.Availability {
	return e.providers.CheckAvailability(ctx, name)
}

func (e *Engine) ClassifyWithProvider(ctx context.Context, name string, item model.Item) ai.Outcome {
	return e.providers.ClassifyWithProvider(ctx, name, item)
}

// TokenUsage reports the local model token budget for today.
func (e *Engine) TokenUsage(ctx context.Context) (ai.Usage, error) {
	return e.usage.Usage(ctx)
}

func (e *Engine) PendingDuplicates(ctx context.Context) ([]model.DuplicateRecord, error) {
	return e.duplicates.Pending(ctx)
}

// FindAllDuplicates scans every stored pair at the current threshold.
func (e *Engine) FindAllDuplicates(ctx context.Context) ([]duplicates.Pair, error) {
	return e.duplicates.FindAll(ctx)
}

func (e *Engine) MergeDuplicates(ctx context.Context, primaryID, duplicateID string, choices duplicates.MergeChoices) (model.Bookmark, error) {
	merged, err := e.duplicates.Merge(ctx, primaryID, duplicateID, choices)
	if errors.Is(err, storage.ErrConflict) {
		return model.Bookmark{}, fmt.Errorf("merged URL belongs to another bookmark: %w", err)
	}
	return merged, err
}

func (e *Engine) IgnoreDuplicate(ctx context.Context, recordID string) error {
	return e.duplicates.Ignore(ctx, recordID)
}

// AutoMerge merges every stored pair at or above threshold, or the configured
// auto-merge threshold when threshold is zero.
func (e *Engine) AutoMerge(ctx context.Context, threshold float64) (duplicates.AutoMergeResult, error) {
	if threshold <= 0 {
		threshold = e.cfg.Duplicates.AutoMergeThreshold
	}
	return e.duplicates.AutoMergeAll(ctx, threshold)
}
