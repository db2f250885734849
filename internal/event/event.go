package event

import (
	"regexp"
	"strconv"
	"time"
)

// Event is the normalized form of a parsed feed message. Optional numeric
// fields are pointers so that "absent" is distinguishable from zero.
type Event struct {
	Feed         string     `json:"feed_name"`
	MessageID    string     `json:"message_id"`
	Timestamp    time.Time  `json:"timestamp_utc"`
	Token        string     `json:"token"`
	Contract     string     `json:"contract,omitempty"`
	Multiplier   *float64   `json:"multiplier,omitempty"`
	ValueUSD     *float64   `json:"mc_usd,omitempty"`
	ValueSource  string     `json:"mc_source,omitempty"`
	LiquidityUSD *float64   `json:"liquidity_usd,omitempty"`
	BuySizeSOL   *float64   `json:"buy_size_sol,omitempty"`
	Callers      *int       `json:"callers,omitempty"`
	Subs         *int       `json:"subs,omitempty"`
	RawText      string     `json:"raw_text,omitempty"`
	ParsedAt     time.Time  `json:"parsed_at"`
}

// Key returns the storage key for this event.
func (e *Event) Key() string {
	return "event:" + e.Feed + ":" + e.MessageID
}

var (
	callersRe = regexp.MustCompile(`(?i)Callers:\s*([0-9]+)`)
	subsRe    = regexp.MustCompile(`(?i)Subs:\s*([0-9]+)`)
)

// ParseCallersSubs extracts "Callers: N" and "Subs: N" counts from raw
// message text. Either result is nil when the pattern is absent.
func ParseCallersSubs(text string) (callers, subs *int) {
	if m := callersRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			callers = &n
		}
	}
	if m := subsRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			subs = &n
		}
	}
	return callers, subs
}
