package scoring

import (
	"context"
	"math"
	"sort"

	"signalwatch/internal/cohort"
	"signalwatch/internal/config"
	"signalwatch/internal/event"
	"signalwatch/internal/marketcap"
)

// signalNames maps feed names to the signal keys the weights document uses.
var signalNames = map[string]string{
	"glydo":                 "glydo",
	"sol_sb1":               "sol_sb1",
	"sol_sb_mb":             "sol_sb_mb",
	"kolscope":              "kolscope",
	"solana_early_trending": "early_trending",
	"large_buys_tracker":    "large_buy",
	"momentum_tracker":      "momentum",
	"pfbf_volume_alert":     "pfbf_volume",
	"spydefi":               "spydefi",
	"whalebuy":              "whalebuy",
}

// Result is the outcome of scoring a cohort against its event history.
type Result struct {
	Score          float64
	MatchedSignals []string
	ValueUSD       *float64
	ValueSource    string
	LiquidityUSD   *float64
	Callers        *int
	Subs           *int
	LastBuySOL     *float64
	TopBuySOL      *float64
}

// Engine implements multiplicative corroboration scoring: the cohort's base
// weight is multiplied by one weight per distinct corroborating source, with
// decayed sources interpolated toward neutral, then by the meta multipliers.
type Engine struct {
	rules    *config.Rules
	resolver *marketcap.Resolver
}

// NewEngine creates a scoring Engine.
func NewEngine(rules *config.Rules, resolver *marketcap.Resolver) *Engine {
	return &Engine{rules: rules, resolver: resolver}
}

// Score computes the multiplicative score for a cohort over its events.
// The contribution window spans one tail window on each side of the cohort
// start: corroboration usually arrives before the trigger.
func (e *Engine) Score(ctx context.Context, coh *cohort.Cohort, events []*event.Event) (Result, error) {
	start := coh.Start
	confirmEnd := start.Add(e.rules.Timers.ConfirmWindow())
	tailEnd := start.Add(e.rules.Timers.TailWindow())
	windowStart := start.Add(-e.rules.Timers.TailWindow())

	score := coh.BaseWeight

	var matched []string
	seen := make(map[string]bool)
	var latestLiq *float64
	var latestCallers, latestSubs *int
	var lastBuy, topBuy *float64

	for _, ev := range events {
		ts := ev.Timestamp
		if ts.Before(windowStart) || ts.After(tailEnd) {
			continue
		}

		// Full weight for early signals and the confirm window, half
		// weight for the tail.
		factor := 1.0
		if ts.After(confirmEnd) {
			factor = 0.5
		}

		signal := signalNames[ev.Feed]
		if signal == "" {
			// A source the rules document names under its feed name can
			// contribute without a hard-coded mapping entry.
			if _, ok := e.rules.Weights.Sources[ev.Feed]; ok {
				signal = ev.Feed
			}
		}
		if signal != "" && !seen[signal] {
			seen[signal] = true
			matched = append(matched, signal)

			weight := e.rules.SourceWeight(signal)
			// Decay interpolates the multiplier toward neutral 1.0 rather
			// than scaling it directly, so a decayed weak source cannot
			// drag the score below its undecayed value.
			effective := weight
			if factor < 1.0 {
				effective = 1.0 + (weight-1.0)*factor
			}
			score *= effective
		}

		if ev.LiquidityUSD != nil {
			latestLiq = ev.LiquidityUSD
		}
		if ev.Callers != nil {
			latestCallers = ev.Callers
		}
		if ev.Subs != nil {
			latestSubs = ev.Subs
		}
		if ev.BuySizeSOL != nil && *ev.BuySizeSOL > 0 {
			lastBuy = ev.BuySizeSOL
			if topBuy == nil || *ev.BuySizeSOL > *topBuy {
				topBuy = ev.BuySizeSOL
			}
		}
	}

	// Meta multipliers.
	if coh.Contract != "" {
		score *= e.rules.Weights.ContractPresent
	}

	res, err := e.resolver.Resolve(ctx, coh.Token, tailEnd, events)
	if err != nil {
		return Result{}, err
	}

	var valueUSD *float64
	valueSource := "unknown"
	if res != nil {
		valueUSD = &res.ValueUSD
		valueSource = res.Source
		if res.ValueUSD >= e.rules.Thresholds.SweetSpotMinUSD && res.ValueUSD <= e.rules.Thresholds.SweetSpotMaxUSD {
			score *= e.rules.Weights.ValueSweetSpot
		}
	}

	if latestLiq != nil && *latestLiq >= e.rules.Thresholds.LiquidityMinUSD {
		score *= e.rules.Weights.LiquidityOK
	}

	if latestCallers != nil && *latestCallers > 0 {
		score *= e.rules.Weights.CallersBoostFactor * math.Log10(float64(*latestCallers)+1)
	}

	sort.Strings(matched)

	return Result{
		Score:          score,
		MatchedSignals: matched,
		ValueUSD:       valueUSD,
		ValueSource:    valueSource,
		LiquidityUSD:   latestLiq,
		Callers:        latestCallers,
		Subs:           latestSubs,
		LastBuySOL:     lastBuy,
		TopBuySOL:      topBuy,
	}, nil
}
