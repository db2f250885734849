package journal

import (
	"time"

	"signalwatch/internal/alerts"
)

// Record is one journaled alert plus optional outcome-marking fields.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Token     string    `json:"token"`
	Contract  string    `json:"contract,omitempty"`
	Score     float64   `json:"score"`

	Callers         *int     `json:"callers,omitempty"`
	Subs            *int     `json:"subs,omitempty"`
	LiquidityUSD    *float64 `json:"liq_usd,omitempty"`
	ValueUSD        *float64 `json:"mc_usd,omitempty"`
	CurrentValueUSD *float64 `json:"current_mcap,omitempty"`
	EntryValueUSD   *float64 `json:"entry_mc,omitempty"`
	LastBuySOL      *float64 `json:"last_buy_sol,omitempty"`
	TopBuySOL       *float64 `json:"top_buy_sol,omitempty"`

	MatchedSignals []string `json:"matched_signals"`
	Tags           []string `json:"tags"`

	Tier          *int  `json:"tier,omitempty"`
	InTopFive     *bool `json:"heatlist_top5,omitempty"`
	HotList       *bool `json:"hot_list,omitempty"`
	Confirmations *int  `json:"confirmations,omitempty"`

	// Outcome marking.
	FPReason          string     `json:"fp_reason,omitempty"`
	PeakMultiplier    *float64   `json:"peak_multiplier,omitempty"`
	TimeToPeakMinutes *float64   `json:"time_to_peak_minutes,omitempty"`
	MarkedAt          *time.Time `json:"marked_at,omitempty"`
}

// TierOrLegacy returns the record's tier, mapping pre-tier records through
// their severity: HIGH was tier 1, MEDIUM tier 2, everything else untiered.
func (r Record) TierOrLegacy() int {
	if r.Tier != nil {
		return *r.Tier
	}
	switch r.Level {
	case string(alerts.SeverityHigh):
		return 1
	case string(alerts.SeverityMedium):
		return 2
	default:
		return 0
	}
}

// FromAlert builds a journal record from an alert, including the analysis
// tags.
func FromAlert(alert *alerts.Alert) Record {
	rec := Record{
		Timestamp:       time.Now().UTC(),
		Level:           string(alert.Severity),
		Token:           alert.Token,
		Contract:        alert.Contract,
		Score:           alert.Score,
		Callers:         alert.Callers,
		Subs:            alert.Subs,
		LiquidityUSD:    alert.LiquidityUSD,
		ValueUSD:        alert.ValueUSD,
		CurrentValueUSD: alert.ValueUSD,
		EntryValueUSD:   alert.EntryValueUSD,
		LastBuySOL:      alert.LastBuySOL,
		TopBuySOL:       alert.TopBuySOL,
		MatchedSignals:  alert.MatchedSignals,
		InTopFive:       alert.InTopFive,
		HotList:         alert.HotList,
		Tags:            Tags(alert),
	}
	if rec.MatchedSignals == nil {
		rec.MatchedSignals = []string{}
	}
	if alert.Tier > 0 {
		tier := alert.Tier
		rec.Tier = &tier
		conf := alert.Confirmations
		rec.Confirmations = &conf
	}
	return rec
}

// Tags derives the false-positive-analysis tags for an alert.
func Tags(alert *alerts.Alert) []string {
	tags := []string{}

	if alert.Contract == "" {
		tags = append(tags, "no_ca")
	}

	if alert.LiquidityUSD == nil || *alert.LiquidityUSD < 5000 {
		tags = append(tags, "low_liq")
	}

	for _, signal := range alert.MatchedSignals {
		if signal == "sol_sb1" {
			tags = append(tags, "has_sb1")
		}
		if signal == "glydo" {
			tags = append(tags, "has_glydo")
		}
	}

	lastBuy := 0.0
	if alert.LastBuySOL != nil {
		lastBuy = *alert.LastBuySOL
	}
	topBuy := 0.0
	if alert.TopBuySOL != nil {
		topBuy = *alert.TopBuySOL
	}
	if lastBuy < 5 && topBuy < 5 {
		tags = append(tags, "tiny_buy")
	}

	callers := 0
	if alert.Callers != nil {
		callers = *alert.Callers
	}
	subs := 0
	if alert.Subs != nil {
		subs = *alert.Subs
	}
	if callers < 20 || subs < 100000 {
		tags = append(tags, "weak_social")
	}

	return tags
}
