package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Rules is the versioned scoring/alerting rules document. It is loaded from
// JSON at startup and never mutated afterwards; invalid or incomplete rules
// are a fatal startup error.
type Rules struct {
	Version    int           `json:"version"`
	Weights    Weights       `json:"weights"`
	Thresholds Thresholds    `json:"thresholds"`
	Timers     Timers        `json:"timers"`
	Retention  Retention     `json:"retention"`
	Trigger    Trigger       `json:"trigger"`
	Resolver   ResolverRules `json:"resolver"`
	Tiers      TierRules     `json:"tiers"`
}

// Weights holds the multiplicative scoring weights.
type Weights struct {
	Base2x             float64            `json:"base_2x"`
	Base3x             float64            `json:"base_3x"`
	Sources            map[string]float64 `json:"sources"`
	ContractPresent    float64            `json:"contract_present"`
	ValueSweetSpot     float64            `json:"value_sweet_spot"`
	LiquidityOK        float64            `json:"liquidity_ok"`
	CallersBoostFactor float64            `json:"callers_boost_factor"`
}

// Thresholds holds score cutoffs and USD gates.
type Thresholds struct {
	High            float64 `json:"high"`
	Medium          float64 `json:"medium"`
	LiquidityMinUSD float64 `json:"liquidity_min_usd"`
	SweetSpotMinUSD float64 `json:"sweet_spot_min_usd"`
	SweetSpotMaxUSD float64 `json:"sweet_spot_max_usd"`
	ValueCeilingUSD float64 `json:"value_ceiling_usd"`
}

// Timers holds all time windows. Durations are stored in the units the
// document uses and exposed through the helper methods.
type Timers struct {
	ConfirmWindowMinutes      int `json:"confirm_window_minutes"`
	TailWindowHours           int `json:"tail_window_hours"`
	CooldownSeconds           int `json:"cooldown_seconds"`
	ConfirmationWindowMinutes int `json:"confirmation_window_minutes"`
	HeatListWindowMinutes     int `json:"heatlist_window_minutes"`
	DelayedMinMinutes         int `json:"delayed_min_minutes"`
	DelayedMaxHours           int `json:"delayed_max_hours"`
}

func (t Timers) ConfirmWindow() time.Duration {
	return time.Duration(t.ConfirmWindowMinutes) * time.Minute
}

func (t Timers) TailWindow() time.Duration {
	return time.Duration(t.TailWindowHours) * time.Hour
}

func (t Timers) Cooldown() time.Duration {
	return time.Duration(t.CooldownSeconds) * time.Second
}

func (t Timers) ConfirmationWindow() time.Duration {
	return time.Duration(t.ConfirmationWindowMinutes) * time.Minute
}

func (t Timers) HeatListWindow() time.Duration {
	return time.Duration(t.HeatListWindowMinutes) * time.Minute
}

func (t Timers) DelayedMin() time.Duration {
	return time.Duration(t.DelayedMinMinutes) * time.Minute
}

func (t Timers) DelayedMax() time.Duration {
	return time.Duration(t.DelayedMaxHours) * time.Hour
}

// Retention holds TTLs for stored entities.
type Retention struct {
	RawEventTTLHours     int `json:"raw_event_ttl_hours"`
	CohortTTLHours       int `json:"cohort_ttl_hours"`
	AlertTTLHours        int `json:"alert_ttl_hours"`
	ValueCacheTTLMinutes int `json:"value_cache_ttl_minutes"`
}

func (r Retention) RawEventTTL() time.Duration {
	return time.Duration(r.RawEventTTLHours) * time.Hour
}

func (r Retention) CohortTTL() time.Duration {
	return time.Duration(r.CohortTTLHours) * time.Hour
}

func (r Retention) AlertTTL() time.Duration {
	return time.Duration(r.AlertTTLHours) * time.Hour
}

func (r Retention) ValueCacheTTL() time.Duration {
	return time.Duration(r.ValueCacheTTLMinutes) * time.Minute
}

// Trigger defines which events open a cohort.
type Trigger struct {
	FeedPrefix      string  `json:"feed_prefix"`
	MultiplierFloor float64 `json:"multiplier_floor"`
	StrongFloor     float64 `json:"strong_floor"`
}

// ResolverRules defines the market-value fallback chain.
type ResolverRules struct {
	PrimarySource       string   `json:"primary_source"`
	SecondarySource     string   `json:"secondary_source"`
	TrustedSources      []string `json:"trusted_sources"`
	FallbackFeed        string   `json:"fallback_feed"`
	FallbackWindowHours int      `json:"fallback_window_hours"`
}

func (r ResolverRules) FallbackWindow() time.Duration {
	return time.Duration(r.FallbackWindowHours) * time.Hour
}

// TierRules defines the tiered-opportunity criteria.
type TierRules struct {
	AdmissibleMinUSD float64 `json:"admissible_min_usd"`
	AdmissibleMaxUSD float64 `json:"admissible_max_usd"`
	Tier1MinUSD      float64 `json:"tier1_min_usd"`
	Tier1MaxUSD      float64 `json:"tier1_max_usd"`
	Tier2MinUSD      float64 `json:"tier2_min_usd"`
	Tier2MaxUSD      float64 `json:"tier2_max_usd"`
	LargeBuyFloorSOL float64 `json:"large_buy_floor_sol"`

	HeatListFeed   string `json:"heatlist_feed"`
	MomentumFeed   string `json:"momentum_feed"`
	WhaleFeed      string `json:"whale_feed"`
	VolumeFeed     string `json:"volume_feed"`
	EarlyTrendFeed string `json:"early_trend_feed"`

	RecentReports int `json:"recent_reports"`
	CacheReports  int `json:"cache_reports"`
}

// DefaultRules returns the built-in rules document, used when RULES_PATH is
// not set and as the baseline in tests.
func DefaultRules() *Rules {
	return &Rules{
		Version: 2,
		Weights: Weights{
			Base2x: 1.0,
			Base3x: 1.8,
			Sources: map[string]float64{
				"glydo":          1.5,
				"sol_sb1":        2.5,
				"sol_sb_mb":      2.1,
				"kolscope":       1.5,
				"early_trending": 1.0,
				"large_buy":      0.8,
				"momentum":       0.8,
				"pfbf_volume":    0.8,
				"spydefi":        0.8,
				"whalebuy":       0.8,
			},
			ContractPresent:    0.8,
			ValueSweetSpot:     1.0,
			LiquidityOK:        0.5,
			CallersBoostFactor: 1.2,
		},
		Thresholds: Thresholds{
			High:            5.0,
			Medium:          3.0,
			LiquidityMinUSD: 5000,
			SweetSpotMinUSD: 10000,
			SweetSpotMaxUSD: 500000,
			ValueCeilingUSD: 500000,
		},
		Timers: Timers{
			ConfirmWindowMinutes:      30,
			TailWindowHours:           6,
			CooldownSeconds:           600,
			ConfirmationWindowMinutes: 30,
			HeatListWindowMinutes:     20,
			DelayedMinMinutes:         30,
			DelayedMaxHours:           2,
		},
		Retention: Retention{
			RawEventTTLHours:     168,
			CohortTTLHours:       720,
			AlertTTLHours:        168,
			ValueCacheTTLMinutes: 60,
		},
		Trigger: Trigger{
			FeedPrefix:      "xtrack",
			MultiplierFloor: 2.0,
			StrongFloor:     3.0,
		},
		Resolver: ResolverRules{
			PrimarySource:       "dexscreener",
			SecondarySource:     "gmgn",
			TrustedSources:      []string{"kolscope", "spydefi", "momentum_tracker"},
			FallbackFeed:        "glydo",
			FallbackWindowHours: 72,
		},
		Tiers: TierRules{
			AdmissibleMinUSD: 30000,
			AdmissibleMaxUSD: 150000,
			Tier1MinUSD:      40000,
			Tier1MaxUSD:      100000,
			Tier2MinUSD:      30000,
			Tier2MaxUSD:      120000,
			LargeBuyFloorSOL: 5,
			HeatListFeed:     "glydo",
			MomentumFeed:     "momentum_tracker",
			WhaleFeed:        "whalebuy",
			VolumeFeed:       "pfbf_volume_alert",
			EarlyTrendFeed:   "solana_early_trending",
			RecentReports:    10,
			CacheReports:     50,
		},
	}
}

// LoadRules reads and validates a rules document. Returns DefaultRules when
// path is empty.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file %s: %w", path, err)
	}

	return ParseRules(data)
}

// ParseRules parses and validates a rules document from raw JSON.
func ParseRules(data []byte) (*Rules, error) {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("parse rules document: %w", err)
	}

	// The retired additive layout carried a top-level "scoring" section.
	// Fail loudly instead of silently mis-reading a stale document.
	if _, ok := sections["scoring"]; ok {
		return nil, fmt.Errorf("rules document uses the retired additive 'scoring' layout; migrate to weights/thresholds")
	}

	for _, required := range []string{"weights", "thresholds", "timers", "retention", "trigger", "resolver", "tiers"} {
		if _, ok := sections[required]; !ok {
			return nil, fmt.Errorf("rules document missing required section %q", required)
		}
	}

	var rules Rules
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("decode rules document: %w", err)
	}

	if err := rules.Validate(); err != nil {
		return nil, err
	}

	return &rules, nil
}

// Validate checks the rules document for inconsistent values.
func (r *Rules) Validate() error {
	if r.Weights.Base2x <= 0 || r.Weights.Base3x <= 0 {
		return fmt.Errorf("weights.base_2x and weights.base_3x must be > 0")
	}

	for source, weight := range r.Weights.Sources {
		if weight <= 0 {
			return fmt.Errorf("invalid weight for source %s: %v (must be > 0)", source, weight)
		}
	}

	if r.Thresholds.High <= 0 || r.Thresholds.Medium <= 0 {
		return fmt.Errorf("thresholds.high and thresholds.medium must be > 0")
	}

	if r.Thresholds.High <= r.Thresholds.Medium {
		return fmt.Errorf("thresholds.high (%v) must be greater than thresholds.medium (%v)", r.Thresholds.High, r.Thresholds.Medium)
	}

	if r.Thresholds.SweetSpotMinUSD >= r.Thresholds.SweetSpotMaxUSD {
		return fmt.Errorf("thresholds sweet-spot range is inverted")
	}

	if r.Timers.ConfirmWindowMinutes <= 0 || r.Timers.TailWindowHours <= 0 {
		return fmt.Errorf("timers.confirm_window_minutes and timers.tail_window_hours must be > 0")
	}

	if r.Timers.CooldownSeconds < 0 {
		return fmt.Errorf("timers.cooldown_seconds must be >= 0")
	}

	if r.Retention.RawEventTTLHours <= 0 || r.Retention.CohortTTLHours <= 0 || r.Retention.AlertTTLHours <= 0 {
		return fmt.Errorf("retention TTLs must be > 0")
	}

	if r.Trigger.FeedPrefix == "" {
		return fmt.Errorf("trigger.feed_prefix is required")
	}

	if r.Trigger.MultiplierFloor < 1 {
		return fmt.Errorf("trigger.multiplier_floor must be >= 1, got %v", r.Trigger.MultiplierFloor)
	}

	if r.Tiers.AdmissibleMinUSD >= r.Tiers.AdmissibleMaxUSD {
		return fmt.Errorf("tiers admissible range is inverted")
	}

	if r.Tiers.Tier1MinUSD >= r.Tiers.Tier1MaxUSD || r.Tiers.Tier2MinUSD >= r.Tiers.Tier2MaxUSD {
		return fmt.Errorf("tier value ranges are inverted")
	}

	return nil
}

// SourceWeight returns the configured weight for a signal source, defaulting
// to a neutral 1.0 for sources the document does not name.
func (r *Rules) SourceWeight(signal string) float64 {
	if w, ok := r.Weights.Sources[signal]; ok {
		return w
	}
	return 1.0
}
