package cohort

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"signalwatch/internal/config"
	"signalwatch/internal/event"
	"signalwatch/internal/store"
)

// Cohort is the correlation anchor for a token: opened by the first
// trigger-feed event whose multiplier clears the floor, and fixed for its
// whole TTL. All scoring windows are measured from Start.
type Cohort struct {
	Token          string    `json:"token"`
	Contract       string    `json:"contract,omitempty"`
	Start          time.Time `json:"cohort_start"`
	BaseMultiplier float64   `json:"base_multiplier"`
	BaseWeight     float64   `json:"base_weight"`
	Feed           string    `json:"feed_name"`
	MessageID      string    `json:"message_id"`
	EntryValueUSD  *float64  `json:"entry_mc,omitempty"`
}

// Manager owns cohort lifecycle in the TTL store.
type Manager struct {
	store *store.Store
	rules *config.Rules
	log   *logrus.Logger
}

// NewManager creates a cohort Manager.
func NewManager(st *store.Store, rules *config.Rules, log *logrus.Logger) *Manager {
	return &Manager{store: st, rules: rules, log: log}
}

// Ensure returns the token's cohort, opening one if this event qualifies as a
// trigger. Returns (nil, false, nil) when no cohort exists and the event does
// not open one. created is true only for the call that opened the cohort.
func (m *Manager) Ensure(ctx context.Context, ev *event.Event) (c *Cohort, created bool, err error) {
	existing, err := m.Get(ctx, ev.Token)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	if !m.isTrigger(ev) {
		return nil, false, nil
	}

	mult := *ev.Multiplier
	weight := m.rules.Weights.Base2x
	if mult >= m.rules.Trigger.StrongFloor {
		weight = m.rules.Weights.Base3x
	}

	c = &Cohort{
		Token:          ev.Token,
		Contract:       ev.Contract,
		Start:          ev.Timestamp,
		BaseMultiplier: mult,
		BaseWeight:     weight,
		Feed:           ev.Feed,
		MessageID:      ev.MessageID,
		EntryValueUSD:  ev.ValueUSD,
	}

	if err := m.Put(ctx, c); err != nil {
		return nil, false, err
	}

	m.log.WithFields(logrus.Fields{
		"token":      c.Token,
		"multiplier": c.BaseMultiplier,
		"feed":       c.Feed,
	}).Info("Cohort opened")

	return c, true, nil
}

// Get returns the token's cohort, or nil when none is open.
func (m *Manager) Get(ctx context.Context, token string) (*Cohort, error) {
	var c Cohort
	found, err := m.store.Get(ctx, key(token), &c)
	if err != nil {
		return nil, fmt.Errorf("load cohort for %s: %w", token, err)
	}
	if !found {
		return nil, nil
	}
	return &c, nil
}

// Put stores a cohort with the configured TTL. Used by Ensure and when the
// pipeline back-fills a late-resolved entry value.
func (m *Manager) Put(ctx context.Context, c *Cohort) error {
	if err := m.store.Set(ctx, key(c.Token), c, m.rules.Retention.CohortTTL()); err != nil {
		return fmt.Errorf("store cohort for %s: %w", c.Token, err)
	}
	return nil
}

func (m *Manager) isTrigger(ev *event.Event) bool {
	if !strings.HasPrefix(ev.Feed, m.rules.Trigger.FeedPrefix) {
		return false
	}
	return ev.Multiplier != nil && *ev.Multiplier >= m.rules.Trigger.MultiplierFloor
}

func key(token string) string {
	return "cohort:" + token
}
