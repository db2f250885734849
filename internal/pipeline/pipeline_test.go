package pipeline

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalwatch/internal/alerts"
	"signalwatch/internal/config"
	"signalwatch/internal/journal"
	"signalwatch/internal/normalizer"
	"signalwatch/internal/store"
)

type captureSender struct {
	mu   sync.Mutex
	sent []*alerts.Alert
}

func (c *captureSender) Send(_ context.Context, alert *alerts.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, alert)
	return nil
}

func (c *captureSender) alerts() []*alerts.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*alerts.Alert, len(c.sent))
	copy(out, c.sent)
	return out
}

func fptr(v float64) *float64 { return &v }

func newTestPipeline(t *testing.T) (*Pipeline, *captureSender, *journal.Journal) {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	jr, err := journal.Open(filepath.Join(t.TempDir(), "journal.json"), 5, log)
	require.NoError(t, err)

	cfg := &config.Config{Environment: "test", IngestBuffer: 16}
	sender := &captureSender{}
	p := New(cfg, config.DefaultRules(), log, store.New(store.NewMemory()), jr, sender, nil)
	return p, sender, jr
}

var t0 = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func triggerSignal(mult float64) normalizer.Signal {
	return normalizer.Signal{
		Feed:       "xtrack_gems",
		MessageID:  "m1",
		Timestamp:  t0,
		Token:      "SNOC",
		Multiplier: &mult,
	}
}

// A trigger without a value, a trusted feed carrying one, then a whale buy:
// two strong confirmations inside the window qualify the cohort for tier 3.
func TestWhaleConfirmedCohortReachesTierThree(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	ctx := context.Background()

	alert, err := p.Process(ctx, triggerSignal(2.5))
	require.NoError(t, err)
	assert.Nil(t, alert, "a lone trigger must not alert")

	alert, err = p.Process(ctx, normalizer.Signal{
		Feed:      "kolscope",
		MessageID: "m2",
		Timestamp: t0.Add(2 * time.Minute),
		Token:     "SNOC",
		ValueUSD:  fptr(45000),
	})
	require.NoError(t, err)
	assert.Nil(t, alert, "a single corroboration is below every gate")

	buy := 6.0
	alert, err = p.Process(ctx, normalizer.Signal{
		Feed:       "whalebuy",
		MessageID:  "m3",
		Timestamp:  t0.Add(5 * time.Minute),
		Token:      "SNOC",
		BuySizeSOL: &buy,
	})
	require.NoError(t, err)
	require.NotNil(t, alert)

	assert.Equal(t, alerts.SeverityMedium, alert.Severity)
	assert.Equal(t, 3, alert.Tier)
	assert.Equal(t, 75.0, alert.Score)
	assert.Equal(t, 2, alert.Confirmations)
	require.NotNil(t, alert.EntryValueUSD)
	assert.Equal(t, 45000.0, *alert.EntryValueUSD)
	assert.Contains(t, alert.MatchedSignals, "Whale buy")
	assert.Contains(t, alert.MatchedSignals, "Large buy: 6.0 SOL")
}

func TestHeatListTopFiveReachesTierOne(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	ctx := context.Background()

	// Heat-list report naming the token five minutes before the trigger.
	_, err := p.Process(ctx, normalizer.Signal{
		Feed:      "glydo",
		MessageID: "h1",
		Timestamp: t0.Add(-5 * time.Minute),
		Token:     "heatlist",
		RawText:   "1. SNOC\n2. FIREBALL\n3. BOBO\n4. WIF\n5. DOGE",
	})
	require.NoError(t, err)

	trigger := triggerSignal(2.5)
	trigger.ValueUSD = fptr(50000)
	alert, err := p.Process(ctx, trigger)
	require.NoError(t, err)
	assert.Nil(t, alert, "no strong confirmation yet")

	alert, err = p.Process(ctx, normalizer.Signal{
		Feed:      "momentum_tracker",
		MessageID: "m2",
		Timestamp: t0.Add(3 * time.Minute),
		Token:     "SNOC",
	})
	require.NoError(t, err)
	require.NotNil(t, alert)

	assert.Equal(t, alerts.SeverityHigh, alert.Severity)
	assert.Equal(t, 1, alert.Tier)
	assert.Equal(t, 25.0, alert.Score)
	require.NotNil(t, alert.InTopFive)
	assert.True(t, *alert.InTopFive)
	require.NotNil(t, alert.HotList)
	assert.True(t, *alert.HotList)
}

func TestDuplicateSignalRejected(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.Process(ctx, triggerSignal(2.5))
	require.NoError(t, err)

	_, err = p.Process(ctx, triggerSignal(2.5))
	assert.ErrorIs(t, err, normalizer.ErrDuplicate)
}

func TestRepeatAlertForSameCohortSuppressed(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.Process(ctx, triggerSignal(2.5))
	require.NoError(t, err)
	_, err = p.Process(ctx, normalizer.Signal{
		Feed:      "kolscope",
		MessageID: "m2",
		Timestamp: t0.Add(2 * time.Minute),
		Token:     "SNOC",
		ValueUSD:  fptr(45000),
	})
	require.NoError(t, err)

	buy := 6.0
	alert, err := p.Process(ctx, normalizer.Signal{
		Feed:       "whalebuy",
		MessageID:  "m3",
		Timestamp:  t0.Add(5 * time.Minute),
		Token:      "SNOC",
		BuySizeSOL: &buy,
	})
	require.NoError(t, err)
	require.NotNil(t, alert)

	// A later confirmation re-derives the same tier for the same cohort:
	// identical alert identity, so it must not fire again.
	alert, err = p.Process(ctx, normalizer.Signal{
		Feed:      "momentum_tracker",
		MessageID: "m4",
		Timestamp: t0.Add(8 * time.Minute),
		Token:     "SNOC",
	})
	require.NoError(t, err)
	assert.Nil(t, alert)
}

func TestValueCeilingDowngradesToWatch(t *testing.T) {
	p, sender, jr := newTestPipeline(t)
	ctx := context.Background()

	trigger := triggerSignal(3.5)
	trigger.ValueUSD = fptr(600000)
	_, err := p.Process(ctx, trigger)
	require.NoError(t, err)

	alert, err := p.Process(ctx, normalizer.Signal{
		Feed:      "sol_sb1",
		MessageID: "m2",
		Timestamp: t0.Add(2 * time.Minute),
		Token:     "SNOC",
	})
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, alerts.SeverityWatch, alert.Severity)
	assert.Equal(t, "SNOC:2026-08-30T12:00:00Z:WATCH", alert.ID,
		"alert identity follows the downgraded severity")

	// WATCH results are journaled but never delivered.
	p.deliver(alert)
	assert.Empty(t, sender.alerts())

	records := jr.Alerts()
	require.Len(t, records, 1)
	assert.Equal(t, "WATCH", records[0].Level)
}

func TestSubmitRunDrainDeliversAlert(t *testing.T) {
	p, sender, jr := newTestPipeline(t)

	buy := 6.0
	signals := []normalizer.Signal{
		triggerSignal(2.5),
		{Feed: "kolscope", MessageID: "m2", Timestamp: t0.Add(2 * time.Minute), Token: "SNOC", ValueUSD: fptr(45000)},
		{Feed: "whalebuy", MessageID: "m3", Timestamp: t0.Add(5 * time.Minute), Token: "SNOC", BuySizeSOL: &buy},
	}
	for _, sig := range signals {
		require.NoError(t, p.Submit(sig))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Drain(5 * time.Second)

	sent := sender.alerts()
	require.Len(t, sent, 1)
	assert.Equal(t, alerts.SeverityMedium, sent[0].Severity)
	assert.Len(t, jr.Alerts(), 1)

	assert.ErrorIs(t, p.Submit(triggerSignal(2.5)), ErrClosed)
}

func TestSubmitRejectsWhenBufferFull(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	jr, err := journal.Open(filepath.Join(t.TempDir(), "journal.json"), 5, log)
	require.NoError(t, err)

	cfg := &config.Config{Environment: "test", IngestBuffer: 1}
	p := New(cfg, config.DefaultRules(), log, store.New(store.NewMemory()), jr, &captureSender{}, nil)

	require.NoError(t, p.Submit(triggerSignal(2.5)))
	assert.ErrorIs(t, p.Submit(triggerSignal(2.5)), ErrBufferFull)
}
