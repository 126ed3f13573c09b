// Package guardian keeps the local store under its size budget.
package guardian

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nikbrunner/gmark/internal/logger"
	"github.com/nikbrunner/gmark/internal/model"
	"github.com/nikbrunner/gmark/internal/storage"
)

// Level is the storage pressure derived from usage against quota.
type Level string

const (
	LevelOK       Level = "ok"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

const (
	WarningPercent  = 80.0
	CriticalPercent = 95.0

	DefaultWarningRetention  = 30 * 24 * time.Hour
	DefaultCriticalRetention = 7 * 24 * time.Hour
	DefaultInterval          = time.Hour
)

// LevelFor maps a usage percentage to a Level. Both thresholds are exclusive.
func LevelFor(percentage float64) Level {
	switch {
	case percentage > CriticalPercent:
		return LevelCritical
	case percentage > WarningPercent:
		return LevelWarning
	default:
		return LevelOK
	}
}

// Status is a snapshot of storage usage.
type Status struct {
	Usage      int64   `json:"usage"`
	Quota      int64   `json:"quota"`
	Percentage float64 `json:"percentage"`
	Level      Level   `json:"status"`
}

// Phase is what one cleanup phase removed or rewrote.
type Phase struct {
	Affected   int   `json:"affected"`
	FreedBytes int64 `json:"freedBytes"`
}

// Report summarizes an optimization pass. Byte counts are estimates.
type Report struct {
	Status     Status `json:"status"`
	Ran        bool   `json:"ran"`
	Cache      Phase  `json:"cache"`
	Duplicates Phase  `json:"duplicates"`
	Content    Phase  `json:"content"`
}

// FreedBytes is the estimated total freed by all phases.
func (r Report) FreedBytes() int64 {
	return r.Cache.FreedBytes + r.Duplicates.FreedBytes + r.Content.FreedBytes
}

// Store is the persistence the Guardian inspects and cleans.
type Store interface {
	Usage(ctx context.Context) (int64, error)
	ListCache(ctx context.Context) ([]model.CacheEntry, error)
	ListDuplicates(ctx context.Context) ([]model.DuplicateRecord, error)
	ListBookmarks(ctx context.Context) ([]model.Bookmark, error)
	UpdateBookmark(ctx context.Context, b model.Bookmark) error
	DeleteKeys(ctx context.Context, c storage.Collection, keys []string) (int, error)
}

type Options struct {
	Quota             int64
	Interval          time.Duration
	WarningRetention  time.Duration
	CriticalRetention time.Duration
	Logger            logger.Logger
	Now               func() time.Time
}

// Guardian monitors storage usage and runs tiered cleanup.
type Guardian struct {
	store             Store
	quota             int64
	interval          time.Duration
	warningRetention  time.Duration
	criticalRetention time.Duration
	log               logger.Logger
	now               func() time.Time

	trigger  chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	runMu    sync.Mutex
}

func New(store Store, opts Options) *Guardian {
	g := &Guardian{
		store:             store,
		quota:             opts.Quota,
		interval:          opts.Interval,
		warningRetention:  opts.WarningRetention,
		criticalRetention: opts.CriticalRetention,
		log:               opts.Logger,
		now:               opts.Now,
		trigger:           make(chan struct{}, 1),
		stopCh:            make(chan struct{}),
	}
	if g.interval <= 0 {
		g.interval = DefaultInterval
	}
	if g.warningRetention <= 0 {
		g.warningRetention = DefaultWarningRetention
	}
	if g.criticalRetention <= 0 {
		g.criticalRetention = DefaultCriticalRetention
	}
	if g.log == nil {
		g.log = logger.Nop()
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// Status measures current usage against the quota.
func (g *Guardian) Status(ctx context.Context) (Status, error) {
	usage, err := g.store.Usage(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("measuring storage usage: %w", err)
	}

	var percentage float64
	if g.quota > 0 {
		percentage = float64(usage) / float64(g.quota) * 100
	}
	return Status{
		Usage:      usage,
		Quota:      g.quota,
		Percentage: percentage,
		Level:      LevelFor(percentage),
	}, nil
}

// OptimizeIfNeeded runs the cleanup tier matching the current level. Nothing
// runs at LevelOK.
func (g *Guardian) OptimizeIfNeeded(ctx context.Context) (Report, error) {
	status, err := g.Status(ctx)
	if err != nil {
		return Report{}, err
	}
	return g.optimize(ctx, status)
}

// Optimize runs the cleanup tier for level regardless of current usage.
func (g *Guardian) Optimize(ctx context.Context, level Level) (Report, error) {
	status, err := g.Status(ctx)
	if err != nil {
		return Report{}, err
	}
	status.Level = level
	return g.optimize(ctx, status)
}

func (g *Guardian) optimize(ctx context.Context, status Status) (Report, error) {
	report := Report{Status: status}
	if status.Level == LevelOK {
		return report, nil
	}

	g.runMu.Lock()
	defer g.runMu.Unlock()

	retention := g.warningRetention
	if status.Level == LevelCritical {
		retention = g.criticalRetention
	}

	g.log.Warn("storage pressure, optimizing",
		logger.String("level", string(status.Level)),
		logger.Float64("percentage", status.Percentage))

	// phases touch disjoint collections
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		report.Cache, err = g.cleanupCache(egCtx)
		return err
	})
	eg.Go(func() error {
		var err error
		report.Duplicates, err = g.cleanupDuplicates(egCtx, retention)
		return err
	})
	if status.Level == LevelCritical {
		eg.Go(func() error {
			var err error
			report.Content, err = g.trimContent(egCtx)
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return report, err
	}

	report.Ran = true
	g.log.Info("storage optimized",
		logger.Int("cache_deleted", report.Cache.Affected),
		logger.Int("duplicates_deleted", report.Duplicates.Affected),
		logger.Int("bookmarks_trimmed", report.Content.Affected),
		logger.Int64("freed_bytes", report.FreedBytes()))
	return report, nil
}

// cleanupCache deletes expired cache entries.
func (g *Guardian) cleanupCache(ctx context.Context) (Phase, error) {
	entries, err := g.store.ListCache(ctx)
	if err != nil {
		return Phase{}, fmt.Errorf("listing cache: %w", err)
	}

	now := g.now()
	var keys []string
	var freed int64
	for _, e := range entries {
		if e.Expired(now) {
			keys = append(keys, e.URL)
			freed += encodedSize(e)
		}
	}

	deleted, err := g.store.DeleteKeys(ctx, storage.Cache, keys)
	if err != nil {
		return Phase{}, fmt.Errorf("deleting expired cache: %w", err)
	}
	return Phase{Affected: deleted, FreedBytes: freed}, nil
}

// cleanupDuplicates deletes resolved duplicate records older than retention.
// Pending records are never aged out.
func (g *Guardian) cleanupDuplicates(ctx context.Context, retention time.Duration) (Phase, error) {
	records, err := g.store.ListDuplicates(ctx)
	if err != nil {
		return Phase{}, fmt.Errorf("listing duplicates: %w", err)
	}

	cutoff := g.now().Add(-retention)
	var keys []string
	var freed int64
	for _, r := range records {
		if r.Status != model.DuplicatePending && r.DetectedAt.Before(cutoff) {
			keys = append(keys, r.ID)
			freed += encodedSize(r)
		}
	}

	deleted, err := g.store.DeleteKeys(ctx, storage.Duplicates, keys)
	if err != nil {
		return Phase{}, fmt.Errorf("deleting old duplicates: %w", err)
	}
	return Phase{Affected: deleted, FreedBytes: freed}, nil
}

func encodedSize(v any) int64 {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return int64(len(data))
}
