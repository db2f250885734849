package alerts

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSender sends alerts to the logger
type LogSender struct {
	log *logrus.Logger
}

// NewLogSender creates a new log sender
func NewLogSender(log *logrus.Logger) *LogSender {
	return &LogSender{log: log}
}

// Send logs the alert
func (s *LogSender) Send(ctx context.Context, alert *Alert) error {
	fields := logrus.Fields{
		"alert_id":        alert.ID,
		"severity":        alert.Severity,
		"token":           alert.Token,
		"score":           alert.Score,
		"tier":            alert.Tier,
		"value_source":    alert.ValueSource,
		"matched_signals": alert.MatchedSignals,
		"cohort_start":    alert.CohortStart,
	}
	if alert.Contract != "" {
		fields["contract"] = alert.Contract
	}
	if alert.ValueUSD != nil {
		fields["value_usd"] = *alert.ValueUSD
	}
	if alert.LiquidityUSD != nil {
		fields["liquidity_usd"] = *alert.LiquidityUSD
	}

	s.log.WithFields(fields).Info("Alert generated")
	return nil
}
