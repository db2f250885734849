package tier

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"signalwatch/internal/cohort"
	"signalwatch/internal/config"
	"signalwatch/internal/event"
)

// HotListStatus distinguishes "not on the hot list" from "no heat-list data
// observed yet".
type HotListStatus int

const (
	HotListUnknown HotListStatus = iota
	HotListIn
	HotListOut
)

// Confirmations tallies corroborating signals around a cohort start.
type Confirmations struct {
	Momentum   int      `json:"momentum_spike"`
	LargeBuy   int      `json:"large_buy"`
	MultiBuy   int      `json:"multi_buy"`
	WhaleBuy   int      `json:"whale_buy"`
	Volume     int      `json:"volume"`
	EarlyTrend int      `json:"early_trending"`
	Total      int      `json:"total"`
	Strong     int      `json:"strong_total"`
	Details    []string `json:"details"`
}

// Opportunity is a cohort that qualified for a tier.
type Opportunity struct {
	Tier          int
	InTopFive     bool
	Delayed       bool
	HotList       HotListStatus
	Confirmations Confirmations
	EntryValueUSD float64
}

type report struct {
	at      time.Time
	symbols []string
}

// rankedSymbolRe matches "N. SYMBOL" lines in heat-list report text.
var rankedSymbolRe = regexp.MustCompile(`\d+\.\s*[#$]?([A-Za-z0-9]+)`)

// Classifier maintains a rolling cache of heat-list reports and evaluates
// cohorts against the tiered opportunity rules.
type Classifier struct {
	rules   *config.Rules
	matcher *SymbolMatcher

	mu      sync.Mutex
	reports []report
	hot     []string
}

// New creates a Classifier with the default alias table.
func New(rules *config.Rules) *Classifier {
	return NewWithMatcher(rules, NewSymbolMatcher(DefaultAliases()))
}

// NewWithMatcher creates a Classifier with a custom symbol matcher.
func NewWithMatcher(rules *config.Rules, matcher *SymbolMatcher) *Classifier {
	return &Classifier{rules: rules, matcher: matcher}
}

// Observe feeds a heat-list report into the rolling cache. Events from other
// feeds are ignored.
func (c *Classifier) Observe(ev *event.Event) {
	if ev.Feed != c.rules.Tiers.HeatListFeed {
		return
	}

	matches := rankedSymbolRe.FindAllStringSubmatch(ev.RawText, -1)
	symbols := make([]string, 0, 5)
	for _, m := range matches {
		if len(symbols) == 5 {
			break
		}
		symbols = append(symbols, c.matcher.Normalize(m[1]))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.reports = append(c.reports, report{at: ev.Timestamp, symbols: symbols})
	if max := c.rules.Tiers.CacheReports; len(c.reports) > max {
		c.reports = c.reports[len(c.reports)-max:]
	}

	// Hot set: every symbol named by the most recent reports.
	c.hot = c.hot[:0]
	recent := c.reports
	if n := c.rules.Tiers.RecentReports; len(recent) > n {
		recent = recent[len(recent)-n:]
	}
	for _, rep := range recent {
		c.hot = append(c.hot, rep.symbols...)
	}
}

// HotList reports whether the token is currently on the hot list. Returns
// HotListUnknown before any report has been observed.
func (c *Classifier) HotList(token string) HotListStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.reports) == 0 {
		return HotListUnknown
	}
	for _, symbol := range c.hot {
		if c.matcher.Match(token, symbol) {
			return HotListIn
		}
	}
	return HotListOut
}

// Evaluate checks whether a cohort qualifies for a tier. Returns nil when the
// entry value is unknown, outside the admissible range, or no tier rule
// matches.
func (c *Classifier) Evaluate(coh *cohort.Cohort, entryValueUSD float64, events []*event.Event) *Opportunity {
	tiers := c.rules.Tiers
	if entryValueUSD < tiers.AdmissibleMinUSD || entryValueUSD > tiers.AdmissibleMaxUSD {
		return nil
	}

	inTopFive := c.inTopFiveWindow(coh.Token, coh.Start)
	delayed := c.delayedAppearance(coh.Token, coh.Start)
	conf := c.countConfirmations(coh.Start, events)

	tier := 0
	switch {
	case inTopFive && conf.Strong >= 1 && entryValueUSD >= tiers.Tier1MinUSD && entryValueUSD <= tiers.Tier1MaxUSD:
		tier = 1
	case inTopFive && conf.Total >= 1 && entryValueUSD >= tiers.Tier2MinUSD && entryValueUSD <= tiers.Tier2MaxUSD:
		tier = 2
	case conf.Total >= 2 || delayed:
		tier = 3
	default:
		return nil
	}

	return &Opportunity{
		Tier:          tier,
		InTopFive:     inTopFive,
		Delayed:       delayed,
		HotList:       c.HotList(coh.Token),
		Confirmations: conf,
		EntryValueUSD: entryValueUSD,
	}
}

// inTopFiveWindow reports whether the token appeared in a heat-list report
// within the configured window around the cohort start.
func (c *Classifier) inTopFiveWindow(token string, start time.Time) bool {
	window := c.rules.Timers.HeatListWindow()
	from := start.Add(-window)
	to := start.Add(window)

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, rep := range c.reports {
		if rep.at.Before(from) || rep.at.After(to) {
			continue
		}
		for _, symbol := range rep.symbols {
			if c.matcher.Match(token, symbol) {
				return true
			}
		}
	}
	return false
}

// delayedAppearance reports whether the token showed up in a heat-list report
// in the delayed window after the cohort start.
func (c *Classifier) delayedAppearance(token string, start time.Time) bool {
	from := start.Add(c.rules.Timers.DelayedMin())
	to := start.Add(c.rules.Timers.DelayedMax())

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, rep := range c.reports {
		if rep.at.Before(from) || rep.at.After(to) {
			continue
		}
		for _, symbol := range rep.symbols {
			if c.matcher.Match(token, symbol) {
				return true
			}
		}
	}
	return false
}

// countConfirmations tallies corroborating signals within the confirmation
// window around the cohort start. Momentum, large single buys, whale buys and
// early-trend signals are strong; volume alerts are weak.
func (c *Classifier) countConfirmations(start time.Time, events []*event.Event) Confirmations {
	window := c.rules.Timers.ConfirmationWindow()
	from := start.Add(-window)
	to := start.Add(window)
	tiers := c.rules.Tiers

	var conf Confirmations
	for _, ev := range events {
		if ev.Timestamp.Before(from) || ev.Timestamp.After(to) {
			continue
		}

		if ev.Feed == tiers.MomentumFeed {
			conf.Momentum++
			conf.Strong++
			conf.Details = append(conf.Details, "Momentum spike")
		}

		if ev.BuySizeSOL != nil && *ev.BuySizeSOL > tiers.LargeBuyFloorSOL {
			conf.LargeBuy++
			conf.Strong++
			conf.Details = append(conf.Details, fmt.Sprintf("Large buy: %.1f SOL", *ev.BuySizeSOL))
		}

		if ev.Feed == tiers.WhaleFeed {
			conf.MultiBuy++
			conf.WhaleBuy++
			conf.Strong++
			conf.Details = append(conf.Details, "Whale buy")
		}

		if ev.Feed == tiers.VolumeFeed {
			conf.MultiBuy++
			conf.Volume++
			conf.Details = append(conf.Details, "Volume alert")
		}

		if ev.Feed == tiers.EarlyTrendFeed {
			conf.EarlyTrend++
			conf.Strong++
			conf.Details = append(conf.Details, "Early trending")
		}
	}

	conf.Total = conf.Momentum + conf.LargeBuy + conf.MultiBuy + conf.EarlyTrend
	return conf
}
