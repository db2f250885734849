package alerts

import (
	"context"
	"time"
)

// Severity represents alert severity
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityWatch  Severity = "WATCH"
	SeverityIgnore Severity = "IGNORE"
)

// Emittable reports whether alerts of this severity are sent to senders.
// WATCH and IGNORE results are recorded but never emitted.
func (s Severity) Emittable() bool {
	return s == SeverityHigh || s == SeverityMedium
}

// Alert contains all information for a generated alert. Optional fields are
// pointers: a nil means the value was never observed, not zero.
type Alert struct {
	ID               string
	Severity         Severity
	Token            string
	Contract         string
	Score            float64
	CohortStart      time.Time
	CohortMultiplier float64
	TimeSinceCohort  time.Duration

	ValueUSD      *float64
	ValueSource   string
	EntryValueUSD *float64
	LiquidityUSD  *float64
	Callers       *int
	Subs          *int
	LastBuySOL    *float64
	TopBuySOL     *float64

	MatchedSignals []string

	// Tier is 0 when the alert came from threshold scoring rather than the
	// tiered rules. InTopFive/HotList are nil when no heat-list data was
	// available at classification time.
	Tier          int
	InTopFive     *bool
	HotList       *bool
	Confirmations int

	Environment string
	CreatedAt   time.Time
}

// AlertID builds the composite alert identity from token, cohort start and
// the final severity. The severity component must reflect any downgrade, so
// the id is derived only after the severity is settled.
func AlertID(token string, start time.Time, severity Severity) string {
	return token + ":" + start.UTC().Format(time.RFC3339) + ":" + string(severity)
}

// Sender defines the interface for alert senders
type Sender interface {
	Send(ctx context.Context, alert *Alert) error
}
