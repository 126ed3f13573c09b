// Package migrate moves an external bookmark tree into the local store,
// classifying and filing every link. Runs are resumable from a per-item
// checkpoint kept in settings.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nikbrunner/gmark/internal/duplicates"
	"github.com/nikbrunner/gmark/internal/model"
)

// State is a step of a migration run.
type State string

const (
	StateNotStarted         State = "not-started"
	StateConfigurationCheck State = "configuration-check"
	StateCapabilityCheck    State = "capability-check"
	StateAlreadyComplete    State = "already-complete"
	StateEnumerating        State = "enumerating"
	StateProcessing         State = "processing"
	StateFinalizing         State = "finalizing"
	StateComplete           State = "complete"
	StatePaused             State = "paused"
	StateUnavailable        State = "unavailable"
	StateFailed             State = "failed"
)

// ErrCapabilityUnavailable is matched by every CapabilityError.
var ErrCapabilityUnavailable = errors.New("classification capability unavailable")

// CapabilityError explains why classification cannot run and how to fix it.
type CapabilityError struct {
	Reason      string
	Remediation string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCapabilityUnavailable, e.Reason)
}

func (e *CapabilityError) Is(target error) bool {
	return target == ErrCapabilityUnavailable
}

// CapabilityFunc reports whether classification can run. Failures should be
// a *CapabilityError.
type CapabilityFunc func(ctx context.Context) error

// Progress is a snapshot emitted after every processed item.
type Progress struct {
	Processed        int `json:"processed"`
	Total            int `json:"total"`
	SuccessCount     int `json:"successCount"`
	FailedCount      int `json:"failedCount"`
	UnreachableCount int `json:"unreachableCount"`
	SkippedCount     int `json:"skippedCount"`
	Percentage       int `json:"percentage"`
}

// Result is the terminal outcome of a run.
type Result struct {
	State       State  `json:"state"`
	Success     int    `json:"success"`
	Failed      int    `json:"failed"`
	Unreachable int    `json:"unreachable"`
	Skipped     int    `json:"skipped"`
	Total       int    `json:"total"`
	Message     string `json:"message"`
	Remediation string `json:"remediation,omitempty"`
}

// Status describes the persisted migration checkpoint.
type Status struct {
	Complete       bool       `json:"complete"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	ProcessedCount int        `json:"processedCount"`
}

// Store is the persistence a migration needs.
type Store interface {
	GetSetting(ctx context.Context, key string, dest any) error
	SetSetting(ctx context.Context, key string, value any) error
	DeleteSetting(ctx context.Context, key string) error
	BookmarkByURL(ctx context.Context, normalized string) (model.Bookmark, error)
	PutBookmark(ctx context.Context, b model.Bookmark) error
}

// Prober checks links and reads their pages.
type Prober interface {
	Head(ctx context.Context, url string, timeout time.Duration) bool
	LoadTitle(ctx context.Context, url string) (string, bool)
	LoadText(ctx context.Context, url string, maxRunes int) string
}

// Classifier never fails; the worst case is the fallback classification.
type Classifier interface {
	Classify(ctx context.Context, item model.Item) model.Classification
}

// Detector records fuzzy duplicates of a freshly stored bookmark.
type Detector interface {
	Detect(ctx context.Context, b model.Bookmark) ([]duplicates.Match, error)
}
