package marketcap

import (
	"context"
	"strconv"
	"strings"
	"time"

	"signalwatch/internal/config"
	"signalwatch/internal/event"
	"signalwatch/internal/store"
)

// Resolution is a resolved market value and the source that supplied it.
// Sources derived from stale data carry a "cached_" prefix or an explicit
// fallback tag so downstream consumers can judge confidence.
type Resolution struct {
	ValueUSD float64
	Source   string
}

// Resolver merges market-value observations across feeds using a strict
// fallback order: live primary source, live secondary source, trusted
// momentum sources in priority order, latest cached observation, last-known
// value cache, then a time-bounded low-confidence feed fallback. A nil
// result means unknown; the resolver never guesses.
type Resolver struct {
	store *store.Store
	rules *config.Rules
}

// NewResolver creates a Resolver.
func NewResolver(st *store.Store, rules *config.Rules) *Resolver {
	return &Resolver{store: st, rules: rules}
}

// Resolve returns the best market value for token known at time at, given the
// token's event history. Only events at or before at are considered.
func (r *Resolver) Resolve(ctx context.Context, token string, at time.Time, events []*event.Event) (*Resolution, error) {
	// 1. Live primary source.
	if res := r.fromSourceTag(events, at, r.rules.Resolver.PrimarySource); res != nil {
		res.Source = r.rules.Resolver.PrimarySource + "_live"
		return res, nil
	}

	// 2. Live secondary source.
	if res := r.fromSourceTag(events, at, r.rules.Resolver.SecondarySource); res != nil {
		res.Source = r.rules.Resolver.SecondarySource
		return res, nil
	}

	// 3. Trusted momentum sources, in configured priority order.
	for _, trusted := range r.rules.Resolver.TrustedSources {
		for _, ev := range events {
			if ev.Timestamp.After(at) || ev.ValueUSD == nil {
				continue
			}
			if strings.Contains(ev.Feed, trusted) || strings.Contains(ev.ValueSource, trusted) {
				return &Resolution{ValueUSD: *ev.ValueUSD, Source: "cached_" + trusted}, nil
			}
		}
	}

	// 4. Latest observation from any feed.
	if res := r.latest(events, at); res != nil {
		return res, nil
	}

	// 5. Last-known-value cache.
	lv, err := r.store.LastValue(ctx, token)
	if err != nil {
		return nil, err
	}
	if lv != nil {
		source := lv.Source
		if source == "" {
			source = "cached"
		}
		if !strings.HasPrefix(source, "cached_") {
			source = "cached_" + source
		}
		return &Resolution{ValueUSD: lv.ValueUSD, Source: source}, nil
	}

	// 6. Low-confidence fallback: latest value from the fallback feed inside
	// the fallback window.
	if res := r.fallbackFeed(events, at); res != nil {
		return res, nil
	}

	return nil, nil
}

func (r *Resolver) fromSourceTag(events []*event.Event, at time.Time, tag string) *Resolution {
	tag = strings.ToLower(tag)
	for _, ev := range events {
		if ev.Timestamp.After(at) || ev.ValueUSD == nil {
			continue
		}
		if strings.Contains(strings.ToLower(ev.ValueSource), tag) {
			return &Resolution{ValueUSD: *ev.ValueUSD}
		}
	}
	return nil
}

// latest returns the most recent observation from any feed except the
// low-confidence fallback feed, which is only consulted as the last stage.
func (r *Resolver) latest(events []*event.Event, at time.Time) *Resolution {
	var best *event.Event
	for _, ev := range events {
		if ev.Timestamp.After(at) || ev.ValueUSD == nil {
			continue
		}
		if ev.Feed == r.rules.Resolver.FallbackFeed {
			continue
		}
		if best == nil || ev.Timestamp.After(best.Timestamp) {
			best = ev
		}
	}
	if best == nil {
		return nil
	}

	source := best.ValueSource
	if source == "" {
		source = best.Feed
	}
	if !strings.HasPrefix(source, "cached_") {
		source = "cached_" + source
	}
	return &Resolution{ValueUSD: *best.ValueUSD, Source: source}
}

func (r *Resolver) fallbackFeed(events []*event.Event, at time.Time) *Resolution {
	feed := r.rules.Resolver.FallbackFeed
	windowStart := at.Add(-r.rules.Resolver.FallbackWindow())

	var best *event.Event
	for _, ev := range events {
		if ev.Feed != feed || ev.ValueUSD == nil {
			continue
		}
		if ev.Timestamp.Before(windowStart) || ev.Timestamp.After(at) {
			continue
		}
		if best == nil || ev.Timestamp.After(best.Timestamp) {
			best = ev
		}
	}
	if best == nil {
		return nil
	}
	return &Resolution{
		ValueUSD: *best.ValueUSD,
		Source:   feed + "_fallback_" + strconv.Itoa(r.rules.Resolver.FallbackWindowHours) + "h",
	}
}
