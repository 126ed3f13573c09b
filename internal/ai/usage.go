package ai

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/nikbrunner/gmark/internal/model"
	"github.com/nikbrunner/gmark/internal/storage"
)

const (
	DefaultDailyTokenLimit = 10000
	charsPerToken          = 4
)

// SettingsStore is the subset of the store the ai package persists through.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string, dest any) error
	SetSetting(ctx context.Context, key string, value any) error
}

// UsageLimiter tracks estimated model tokens consumed per calendar day.
type UsageLimiter struct {
	store SettingsStore
	now   func() time.Time
	mu    sync.Mutex
}

// NewUsageLimiter creates a limiter persisting its counters in store.
func NewUsageLimiter(store SettingsStore) *UsageLimiter {
	return &UsageLimiter{store: store, now: time.Now}
}

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}

// Usage reports tokens used today and the daily limit.
type Usage struct {
	Used  int    `json:"used"`
	Limit int    `json:"limit"`
	Day   string `json:"day"`
}

func (u *UsageLimiter) Usage(ctx context.Context) (Usage, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.usageLocked(ctx)
}

// CanConsume reports whether n more tokens fit in today's budget.
func (u *UsageLimiter) CanConsume(ctx context.Context, n int) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	usage, err := u.usageLocked(ctx)
	if err != nil {
		return false, err
	}
	return usage.Used+n <= usage.Limit, nil
}

// Consume books n tokens against today's budget and returns the new total.
func (u *UsageLimiter) Consume(ctx context.Context, n int) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	usage, err := u.usageLocked(ctx)
	if err != nil {
		return 0, err
	}
	next := usage.Used + n
	if err := u.store.SetSetting(ctx, model.SettingDailyTokensUsed, next); err != nil {
		return 0, err
	}
	return next, nil
}

// SetLimit changes the daily token limit.
func (u *UsageLimiter) SetLimit(ctx context.Context, limit int) error {
	if limit <= 0 {
		return errors.New("daily token limit must be positive")
	}
	return u.store.SetSetting(ctx, model.SettingDailyTokenLimit, limit)
}

// usageLocked resets the counter when the day changed since the last reset.
func (u *UsageLimiter) usageLocked(ctx context.Context) (Usage, error) {
	today := u.now().Format("2006-01-02")

	var lastReset string
	if err := u.getOptional(ctx, model.SettingTokensLastReset, &lastReset); err != nil {
		return Usage{}, err
	}
	if lastReset != today {
		if err := u.store.SetSetting(ctx, model.SettingDailyTokensUsed, 0); err != nil {
			return Usage{}, err
		}
		if err := u.store.SetSetting(ctx, model.SettingTokensLastReset, today); err != nil {
			return Usage{}, err
		}
	}

	limit := DefaultDailyTokenLimit
	if err := u.getOptional(ctx, model.SettingDailyTokenLimit, &limit); err != nil {
		return Usage{}, err
	}
	if limit <= 0 {
		limit = DefaultDailyTokenLimit
	}

	used := 0
	if err := u.getOptional(ctx, model.SettingDailyTokensUsed, &used); err != nil {
		return Usage{}, err
	}

	return Usage{Used: used, Limit: limit, Day: today}, nil
}

func (u *UsageLimiter) getOptional(ctx context.Context, key string, dest any) error {
	err := u.store.GetSetting(ctx, key, dest)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}
