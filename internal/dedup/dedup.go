package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"signalwatch/internal/alerts"
	"signalwatch/internal/config"
	"signalwatch/internal/store"
)

// Suppression reasons.
const (
	ReasonDuplicateID  = "duplicate_id"
	ReasonCooldown     = "cooldown"
	ReasonValueCeiling = "value_ceiling"
)

// Outcome is the dedup/rate-limit decision for one alert.
type Outcome struct {
	// Record is true when the alert should be stored and journaled.
	// Suppressed duplicates and cooldown hits are not recorded.
	Record bool
	// Downgraded is true when the hard value ceiling forced the alert to
	// WATCH. Downgraded alerts are recorded but not emitted.
	Downgraded bool
	// Suppressed carries the suppression reason, or "" when the alert
	// passed all checks.
	Suppressed string
}

// Limiter enforces alert-identity dedup, the per-token cooldown and the hard
// value ceiling. Cooldown state lives in the TTL store under cooldown:<token>
// keys owned by this package, so it survives restarts and is shared across
// processes when the Redis backend is in use.
type Limiter struct {
	store *store.Store
	rules *config.Rules
	log   *logrus.Logger
	now   func() time.Time
}

// New creates a Limiter.
func New(st *store.Store, rules *config.Rules, log *logrus.Logger) *Limiter {
	return &Limiter{store: st, rules: rules, log: log, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// Check runs an alert through the ceiling, duplicate and cooldown gates. It
// may mutate the alert's severity (ceiling downgrade). When the alert is
// recorded, the cooldown marker and the alert-id entry are written before
// returning, so a concurrent retry of the same alert suppresses cleanly.
func (l *Limiter) Check(ctx context.Context, alert *alerts.Alert) (Outcome, error) {
	var out Outcome

	// Hard value ceiling: too-large tokens are tracked, not traded.
	if alert.ValueUSD != nil && *alert.ValueUSD > l.rules.Thresholds.ValueCeilingUSD && alert.Severity.Emittable() {
		l.log.WithFields(logrus.Fields{
			"token":     alert.Token,
			"value_usd": *alert.ValueUSD,
			"severity":  alert.Severity,
		}).Info("Value ceiling exceeded, downgrading alert to WATCH")
		alert.Severity = alerts.SeverityWatch
		// The stored id must carry the final severity, or the WATCH record
		// would shadow a future emittable alert for the same cohort.
		alert.ID = alerts.AlertID(alert.Token, alert.CohortStart, alert.Severity)
		out.Downgraded = true
		out.Suppressed = ReasonValueCeiling
	}

	exists, err := l.alertExists(ctx, alert.ID)
	if err != nil {
		return out, err
	}
	if exists {
		out.Suppressed = ReasonDuplicateID
		return out, nil
	}

	cooling, err := l.inCooldown(ctx, alert.Token)
	if err != nil {
		return out, err
	}
	if cooling {
		l.log.WithField("token", alert.Token).Info("Alert suppressed by per-token cooldown")
		out.Suppressed = ReasonCooldown
		return out, nil
	}

	if err := l.markAlerted(ctx, alert); err != nil {
		return out, err
	}

	out.Record = true
	return out, nil
}

func (l *Limiter) alertExists(ctx context.Context, id string) (bool, error) {
	var stored alerts.Alert
	found, err := l.store.Get(ctx, alertKey(id), &stored)
	if err != nil {
		return false, fmt.Errorf("alert dedup lookup: %w", err)
	}
	return found, nil
}

func (l *Limiter) inCooldown(ctx context.Context, token string) (bool, error) {
	var since time.Time
	found, err := l.store.Get(ctx, cooldownKey(token), &since)
	if err != nil {
		return false, fmt.Errorf("cooldown lookup: %w", err)
	}
	return found, nil
}

func (l *Limiter) markAlerted(ctx context.Context, alert *alerts.Alert) error {
	if err := l.store.Set(ctx, alertKey(alert.ID), alert, l.rules.Retention.AlertTTL()); err != nil {
		return fmt.Errorf("store alert: %w", err)
	}
	if err := l.store.Set(ctx, cooldownKey(alert.Token), l.now().UTC(), l.rules.Timers.Cooldown()); err != nil {
		return fmt.Errorf("store cooldown marker: %w", err)
	}
	return nil
}

func alertKey(id string) string {
	return "alert:" + id
}

func cooldownKey(token string) string {
	return "cooldown:" + token
}
