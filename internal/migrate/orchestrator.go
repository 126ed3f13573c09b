package migrate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/nikbrunner/gmark/internal/logger"
	"github.com/nikbrunner/gmark/internal/model"
	"github.com/nikbrunner/gmark/internal/storage"
	"github.com/nikbrunner/gmark/internal/tree"
)

const (
	DefaultProbeTimeout      = 5 * time.Second
	DefaultPaceInterval      = 200 * time.Millisecond
	DefaultMaxTextLength     = 5000
	DefaultSummaryLength     = 200
	DefaultUnreachableFolder = "Unreachable"
	DefaultCleanupBatchSize  = 50
)

type Options struct {
	ProbeTimeout      time.Duration
	PaceInterval      time.Duration
	MaxTextLength     int
	SummaryLength     int
	UnreachableFolder string
	// BucketParentID is where category and unreachable folders are created.
	BucketParentID   string
	ProtectedIDs     []string
	CleanupBatchSize int
	KeepTitles       bool
	Capability       CapabilityFunc
	Detector         Detector
	Logger           logger.Logger
}

// Orchestrator runs migrations. Runs are sequential; the caller must not start
// two at once.
type Orchestrator struct {
	store      Store
	tree       tree.Tree
	prober     Prober
	classifier Classifier
	opts       Options
	log        logger.Logger
}

func New(store Store, t tree.Tree, prober Prober, classifier Classifier, opts Options) *Orchestrator {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.PaceInterval < 0 {
		opts.PaceInterval = 0
	}
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = DefaultMaxTextLength
	}
	if opts.SummaryLength <= 0 {
		opts.SummaryLength = DefaultSummaryLength
	}
	if opts.UnreachableFolder == "" {
		opts.UnreachableFolder = DefaultUnreachableFolder
	}
	if opts.BucketParentID == "" {
		opts.BucketParentID = tree.OtherID
	}
	if opts.ProtectedIDs == nil {
		opts.ProtectedIDs = tree.ProtectedIDs
	}
	if opts.CleanupBatchSize <= 0 {
		opts.CleanupBatchSize = DefaultCleanupBatchSize
	}
	if opts.Capability == nil {
		opts.Capability = Always
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	return &Orchestrator{
		store:      store,
		tree:       t,
		prober:     prober,
		classifier: classifier,
		opts:       opts,
		log:        opts.Logger,
	}
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeUnreachable
	outcomeSkipped
	outcomeFailed
)

// runState is threaded through one run so counts never leak between runs.
type runState struct {
	state     State
	total     int
	processed int
	success   int
	failed    int
	unreach   int
	skipped   int

	checkpoint []string
	buckets    map[string]string
}

func (s *runState) progress() Progress {
	pct := 100
	if s.total > 0 {
		pct = int(math.Round(float64(s.processed) / float64(s.total) * 100))
	}
	return Progress{
		Processed:        s.processed,
		Total:            s.total,
		SuccessCount:     s.success,
		FailedCount:      s.failed,
		UnreachableCount: s.unreach,
		SkippedCount:     s.skipped,
		Percentage:       pct,
	}
}

func (s *runState) result(state State, msg string) Result {
	return Result{
		State:       state,
		Success:     s.success,
		Failed:      s.failed,
		Unreachable: s.unreach,
		Skipped:     s.skipped,
		Total:       s.total,
		Message:     msg,
	}
}

// Run migrates every unprocessed link in enumeration order. onProgress, when
// set, is called after each item.
func (o *Orchestrator) Run(ctx context.Context, onProgress func(Progress)) Result {
	rs := &runState{state: StateNotStarted, buckets: make(map[string]string)}

	rs.state = StateConfigurationCheck
	if err := o.checkConfiguration(); err != nil {
		res := rs.result(StateUnavailable, err.Error())
		res.Remediation = "Check the migration section of the config file."
		return res
	}

	rs.state = StateCapabilityCheck
	if err := o.opts.Capability(ctx); err != nil {
		o.log.Warn("migration unavailable", logger.Error(err))
		return unavailable(rs, err, StateUnavailable)
	}

	var complete bool
	if err := o.store.GetSetting(ctx, model.SettingMigrationComplete, &complete); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return rs.result(StateFailed, fmt.Sprintf("reading migration status: %v", err))
	}
	if complete {
		return rs.result(StateAlreadyComplete, "Migration already completed")
	}

	rs.state = StateEnumerating
	items, err := o.enumerate(ctx)
	if err != nil {
		return rs.result(StateFailed, fmt.Sprintf("reading bookmark tree: %v", err))
	}
	rs.checkpoint, err = o.loadCheckpoint(ctx)
	if err != nil {
		return rs.result(StateFailed, fmt.Sprintf("reading checkpoint: %v", err))
	}

	done := make(map[string]bool, len(rs.checkpoint))
	for _, u := range rs.checkpoint {
		done[u] = true
	}
	var pending []*tree.Node
	for _, item := range items {
		if !done[item.URL] {
			pending = append(pending, item)
		}
	}
	rs.total = len(items)
	rs.processed = rs.total - len(pending)

	o.log.Info("migration started",
		logger.Int("total", rs.total),
		logger.Int("remaining", len(pending)))

	rs.state = StateProcessing
	limiter := rate.NewLimiter(rate.Every(o.opts.PaceInterval), 1)

	for i, item := range pending {
		if err := limiter.Wait(ctx); err != nil {
			return paused(rs, "migration interrupted")
		}
		if err := o.opts.Capability(ctx); err != nil {
			o.log.Warn("classification capability lost, pausing", logger.Error(err))
			return unavailable(rs, err, StatePaused)
		}

		switch out, err := o.processItem(ctx, rs, item); out {
		case outcomeSuccess:
			rs.success++
		case outcomeUnreachable:
			rs.unreach++
		case outcomeSkipped:
			rs.skipped++
		default:
			rs.failed++
			o.log.Warn("migration item failed",
				logger.String("url", item.URL),
				logger.Error(err))
		}

		rs.checkpoint = append(rs.checkpoint, item.URL)
		if err := o.store.SetSetting(ctx, model.SettingMigrationProcessedURLs, rs.checkpoint); err != nil {
			return rs.result(StateFailed, fmt.Sprintf("writing checkpoint after %s: %v", item.URL, err))
		}
		rs.processed++

		o.log.Debug("migration item processed",
			logger.Int("item", i+1),
			logger.Int("remaining", len(pending)-i-1),
			logger.String("url", item.URL))
		if onProgress != nil {
			onProgress(rs.progress())
		}
	}

	rs.state = StateFinalizing
	if err := o.finalize(ctx); err != nil {
		return rs.result(StateFailed, fmt.Sprintf("finalizing migration: %v", err))
	}
	if _, err := o.CleanupEmptyFolders(ctx); err != nil {
		o.log.Warn("empty folder cleanup failed", logger.Error(err))
	}

	rs.state = StateComplete
	msg := "Migration completed"
	if rs.total == 0 {
		msg = "No bookmarks to migrate"
	}
	o.log.Info("migration completed",
		logger.Int("success", rs.success),
		logger.Int("failed", rs.failed),
		logger.Int("unreachable", rs.unreach),
		logger.Int("skipped", rs.skipped))
	return rs.result(StateComplete, msg)
}

func unavailable(rs *runState, err error, state State) Result {
	res := rs.result(state, err.Error())
	var ce *CapabilityError
	if errors.As(err, &ce) {
		res.Remediation = ce.Remediation
	}
	if state == StatePaused {
		res.Message = "Paused: " + res.Message + ". Progress is saved."
	}
	return res
}

func paused(rs *runState, msg string) Result {
	return rs.result(StatePaused, msg+". Progress is saved.")
}

func (o *Orchestrator) checkConfiguration() error {
	switch {
	case o.store == nil:
		return errors.New("no store configured")
	case o.tree == nil:
		return errors.New("no bookmark tree configured")
	case o.prober == nil:
		return errors.New("no reachability prober configured")
	case o.classifier == nil:
		return errors.New("no classifier configured")
	case o.opts.BucketParentID == tree.RootID:
		return errors.New("folders cannot be created at the tree root")
	}
	return nil
}

func (o *Orchestrator) enumerate(ctx context.Context) ([]*tree.Node, error) {
	roots, err := o.tree.GetTree(ctx)
	if err != nil {
		return nil, err
	}
	return tree.Flatten(roots), nil
}

func (o *Orchestrator) loadCheckpoint(ctx context.Context) ([]string, error) {
	var urls []string
	err := o.store.GetSetting(ctx, model.SettingMigrationProcessedURLs, &urls)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return urls, err
}

// finalize drops the checkpoint and records completion.
func (o *Orchestrator) finalize(ctx context.Context) error {
	if err := o.store.DeleteSetting(ctx, model.SettingMigrationProcessedURLs); err != nil {
		return err
	}
	if err := o.store.SetSetting(ctx, model.SettingMigrationComplete, true); err != nil {
		return err
	}
	return o.store.SetSetting(ctx, model.SettingMigrationDate, time.Now().UTC())
}

// Status reports the persisted checkpoint.
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	var st Status
	if err := o.store.GetSetting(ctx, model.SettingMigrationComplete, &st.Complete); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Status{}, err
	}

	var date time.Time
	err := o.store.GetSetting(ctx, model.SettingMigrationDate, &date)
	switch {
	case err == nil && !date.IsZero():
		st.CompletedAt = &date
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return Status{}, err
	}

	urls, err := o.loadCheckpoint(ctx)
	if err != nil {
		return Status{}, err
	}
	st.ProcessedCount = len(urls)
	return st, nil
}

// Reset clears the completion flag, date and checkpoint so the next run
// starts over.
func (o *Orchestrator) Reset(ctx context.Context) error {
	for _, key := range []string{
		model.SettingMigrationComplete,
		model.SettingMigrationDate,
		model.SettingMigrationProcessedURLs,
	} {
		if err := o.store.DeleteSetting(ctx, key); err != nil {
			return fmt.Errorf("clearing %s: %w", key, err)
		}
	}
	o.log.Info("migration reset")
	return nil
}
