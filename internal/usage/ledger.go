package usage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/talkscene/talkscene/internal/user"
)

// Period is the length of one metering window. Counters reset lazily the
// first time they are touched after the window elapses.
const Period = 30 * 24 * time.Hour

// Record holds one user's counters for the current metering window.
type Record struct {
	UserID       string
	Conversation int
	Image        int
	TTS          int
	PeriodStart  time.Time
}

// Count returns the counter for a metric.
func (r *Record) Count(m Metric) int {
	switch m {
	case MetricConversation:
		return r.Conversation
	case MetricImage:
		return r.Image
	case MetricTTS:
		return r.TTS
	}
	return 0
}

// Store persists usage counters. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get retrieves a user's counter record. Returns (nil, nil) if the user
	// has no record yet.
	Get(ctx context.Context, userID string) (*Record, error)

	// Increment adds one to a metric counter, creating the record with the
	// given period start if it does not exist, and returns the updated record.
	Increment(ctx context.Context, userID string, metric Metric, periodStart time.Time) (*Record, error)

	// Reset zeroes all counters and moves the period start, but only if the
	// stored period start still equals from. Returns false when the record
	// changed underneath (another reset won the race) or does not exist.
	Reset(ctx context.Context, userID string, from, newStart time.Time) (bool, error)
}

// Quota is the outcome of a quota check.
type Quota struct {
	// Allowed reports whether the metered operation may proceed.
	Allowed bool `json:"canUse"`
	// Current is the counter value for the metric in this window.
	Current int `json:"currentUsage"`
	// Limit is the tier's quota for the metric.
	Limit int `json:"limit"`
	// Tier is the user's subscription tier.
	Tier user.Tier `json:"tier"`
	// DaysUntilReset is how many whole days remain in the metering window,
	// rounded up.
	DaysUntilReset int `json:"daysUntilReset"`
}

// Ledger answers quota checks and records consumption. Checks consult the
// user's tier on every call so that upgrades take effect immediately.
//
// A check and its matching increment are two separate store operations; a
// burst of parallel requests can each pass the check before any increment
// lands. The window is small and the worst case is a handful of turns over
// quota, so the ledger does not serialise them.
type Ledger struct {
	users  user.Store
	counts Store
	log    *slog.Logger
	now    func() time.Time
}

// Option is a functional option for Ledger.
type Option func(*Ledger)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// NewLedger creates a Ledger over the given user and counter stores.
func NewLedger(users user.Store, counts Store, log *slog.Logger, opts ...Option) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	l := &Ledger{users: users, counts: counts, log: log, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// CheckQuota reports whether userID may perform one more metric operation.
// Unknown users fail closed. Admin accounts are always allowed with an
// effectively unbounded limit.
func (l *Ledger) CheckQuota(ctx context.Context, userID string, metric Metric) (Quota, error) {
	if !metric.IsValid() {
		return Quota{}, fmt.Errorf("usage: unknown metric %q", metric)
	}

	u, err := l.users.Get(ctx, userID)
	if err != nil {
		return Quota{}, fmt.Errorf("usage: look up user %q: %w", userID, err)
	}
	if u == nil {
		l.log.Warn("quota check for unknown user, denying", "user_id", userID, "metric", metric)
		return Quota{Allowed: false, Tier: user.TierFree}, nil
	}

	if u.Role == user.RoleAdmin {
		return Quota{Allowed: true, Limit: Unlimited, Tier: u.Tier}, nil
	}

	rec, err := l.currentRecord(ctx, userID)
	if err != nil {
		return Quota{}, err
	}

	limit := Limit(u.Tier, metric)
	current := rec.Count(metric)
	return Quota{
		Allowed:        current < limit,
		Current:        current,
		Limit:          limit,
		Tier:           u.Tier,
		DaysUntilReset: daysUntil(rec.PeriodStart.Add(Period), l.now()),
	}, nil
}

// Increment records one successful metric operation. Call it only after the
// metered upstream call succeeded.
func (l *Ledger) Increment(ctx context.Context, userID string, metric Metric) error {
	if !metric.IsValid() {
		return fmt.Errorf("usage: unknown metric %q", metric)
	}

	// Settle any pending window rollover first so the increment lands in the
	// fresh window rather than the stale one.
	if _, err := l.currentRecord(ctx, userID); err != nil {
		return err
	}

	if _, err := l.counts.Increment(ctx, userID, metric, l.now().UTC()); err != nil {
		return fmt.Errorf("usage: increment %s for %q: %w", metric, userID, err)
	}
	return nil
}

// currentRecord loads the user's counters, performing the lazy window reset
// when the period has elapsed. Users without a record get a zero record
// starting now (not persisted until the first increment).
func (l *Ledger) currentRecord(ctx context.Context, userID string) (*Record, error) {
	for range 3 {
		rec, err := l.counts.Get(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("usage: load counters for %q: %w", userID, err)
		}
		if rec == nil {
			return &Record{UserID: userID, PeriodStart: l.now().UTC()}, nil
		}

		now := l.now()
		if now.Before(rec.PeriodStart.Add(Period)) {
			return rec, nil
		}

		ok, err := l.counts.Reset(ctx, userID, rec.PeriodStart, now.UTC())
		if err != nil {
			return nil, fmt.Errorf("usage: reset window for %q: %w", userID, err)
		}
		if ok {
			l.log.Info("usage window reset", "user_id", userID)
		}
		// Either we reset it or a concurrent reset did; reload and re-check.
	}
	return nil, fmt.Errorf("usage: window reset for %q did not settle", userID)
}

func daysUntil(deadline, now time.Time) int {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + 24*time.Hour - 1) / (24 * time.Hour))
}
