package normalizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"signalwatch/internal/config"
	"signalwatch/internal/event"
	"signalwatch/internal/store"
)

// ErrDuplicate is returned when a (feed, messageID) pair was already ingested.
var ErrDuplicate = errors.New("event already processed")

// Signal is an already-parsed feed record, the inbound contract of the
// pipeline. Optional numerics are pointers: absent, never zero.
type Signal struct {
	Feed         string    `json:"feed_name"`
	MessageID    string    `json:"message_id"`
	Timestamp    time.Time `json:"timestamp_utc"`
	Token        string    `json:"token"`
	Contract     string    `json:"contract,omitempty"`
	RawText      string    `json:"raw_text,omitempty"`
	Multiplier   *float64  `json:"multiplier,omitempty"`
	ValueUSD     *float64  `json:"mc_usd,omitempty"`
	LiquidityUSD *float64  `json:"liquidity_usd,omitempty"`
	BuySizeSOL   *float64  `json:"buy_size_sol,omitempty"`
}

// Normalizer validates parsed signals, fills derived fields and persists the
// resulting events into the TTL store.
type Normalizer struct {
	store *store.Store
	rules *config.Rules
	log   *logrus.Logger
	now   func() time.Time
}

// New creates a Normalizer.
func New(st *store.Store, rules *config.Rules, log *logrus.Logger) *Normalizer {
	return &Normalizer{
		store: st,
		rules: rules,
		log:   log,
		now:   time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (n *Normalizer) SetClock(now func() time.Time) {
	n.now = now
}

// Process normalizes and persists one signal. Returns ErrDuplicate when the
// (feed, messageID) pair was seen before.
func (n *Normalizer) Process(ctx context.Context, sig Signal) (*event.Event, error) {
	ev, err := n.Normalize(ctx, sig)
	if err != nil {
		return nil, err
	}

	processed, err := n.store.IsProcessed(ctx, ev.Feed, ev.MessageID)
	if err != nil {
		return nil, fmt.Errorf("dedup check: %w", err)
	}
	if processed {
		return nil, ErrDuplicate
	}

	ttl := n.rules.Retention.RawEventTTL()
	if err := n.store.MarkProcessed(ctx, ev.Feed, ev.MessageID, ttl); err != nil {
		return nil, fmt.Errorf("mark processed: %w", err)
	}
	if err := n.store.StoreEvent(ctx, ev, ttl); err != nil {
		return nil, fmt.Errorf("store event: %w", err)
	}

	// Events carrying a value feed the last-known-value cache for the
	// resolver's fallback chain.
	if ev.ValueUSD != nil {
		token := ev.Token
		if token == "" {
			token = ev.Contract
		}
		if err := n.store.SetLastValue(ctx, token, *ev.ValueUSD, ev.ValueSource, n.rules.Retention.ValueCacheTTL()); err != nil {
			n.log.WithError(err).WithField("token", token).Warn("Failed to cache last value")
		}
	}

	return ev, nil
}

// Normalize validates a signal and builds the normalized event. Unparseable
// numeric fields are dropped, not zeroed; a missing token or feed is a hard
// failure.
func (n *Normalizer) Normalize(ctx context.Context, sig Signal) (*event.Event, error) {
	if sig.Token == "" {
		return nil, fmt.Errorf("invalid signal: missing token (feed=%s message_id=%s)", sig.Feed, sig.MessageID)
	}
	if sig.Feed == "" {
		return nil, fmt.Errorf("invalid signal: missing feed name (token=%s message_id=%s)", sig.Token, sig.MessageID)
	}

	ts := sig.Timestamp
	if ts.IsZero() {
		n.log.WithFields(logrus.Fields{
			"feed":       sig.Feed,
			"message_id": sig.MessageID,
		}).Warn("Signal missing timestamp, using current time")
		ts = n.now()
	}
	ts = ts.UTC()

	callers, subs := event.ParseCallersSubs(sig.RawText)

	contract := sig.Contract
	if contract == "" {
		// Best effort: earlier events may have taught us the contract.
		cached, err := n.store.Contract(ctx, sig.Token)
		if err != nil {
			n.log.WithError(err).WithField("token", sig.Token).Debug("Contract cache lookup failed")
		} else {
			contract = cached
		}
	}

	valueUSD := sanitize(sig.ValueUSD)
	valueSource := ""
	if valueUSD != nil {
		valueSource = sig.Feed
	}

	return &event.Event{
		Feed:         sig.Feed,
		MessageID:    sig.MessageID,
		Timestamp:    ts,
		Token:        sig.Token,
		Contract:     contract,
		Multiplier:   sanitize(sig.Multiplier),
		ValueUSD:     valueUSD,
		ValueSource:  valueSource,
		LiquidityUSD: sanitize(sig.LiquidityUSD),
		BuySizeSOL:   sanitize(sig.BuySizeSOL),
		Callers:      callers,
		Subs:         subs,
		RawText:      sig.RawText,
		ParsedAt:     n.now().UTC(),
	}, nil
}

// sanitize drops negative and non-finite numeric values.
func sanitize(v *float64) *float64 {
	if v == nil {
		return nil
	}
	if *v < 0 || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}
