package journal

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalwatch/internal/alerts"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "alert_journal.json")
	j, err := Open(path, 5, testLogger())
	require.NoError(t, err)
	j.retryDelay = time.Millisecond
	return j, path
}

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func testRecord(token, level string) Record {
	return Record{
		Timestamp:      time.Now().UTC(),
		Level:          level,
		Token:          token,
		Score:          4.2,
		MatchedSignals: []string{"glydo"},
		Tags:           []string{"no_ca"},
	}
}

func TestAppendAndReload(t *testing.T) {
	j, path := newTestJournal(t)

	require.NoError(t, j.Append(testRecord("PEPE", "HIGH")))
	require.NoError(t, j.Append(testRecord("DOGE", "MEDIUM")))

	reloaded, err := Open(path, 5, testLogger())
	require.NoError(t, err)

	alerts := reloaded.Alerts()
	require.Len(t, alerts, 2)
	assert.Equal(t, "PEPE", alerts[0].Token)
	assert.Equal(t, "DOGE", alerts[1].Token)
}

func TestAppendSurvivesFailingAtomicStrategy(t *testing.T) {
	j, path := newTestJournal(t)

	attempts := 0
	j.SetWriteStrategies([]WriteStrategy{
		{Name: "always_fails", Write: func(string, []byte) error {
			attempts++
			return errors.New("disk on fire")
		}},
		{Name: "direct", Write: directWrite},
	})

	require.NoError(t, j.Append(testRecord("PEPE", "HIGH")))
	assert.Equal(t, 5, attempts, "first strategy should be retried before escalating")

	reloaded, err := Open(path, 5, testLogger())
	require.NoError(t, err)
	assert.Len(t, reloaded.Alerts(), 1)
}

func TestAppendReportsTotalFailure(t *testing.T) {
	j, _ := newTestJournal(t)

	j.SetWriteStrategies([]WriteStrategy{
		{Name: "broken", Write: func(string, []byte) error { return errors.New("nope") }},
	})

	err := j.Append(testRecord("PEPE", "HIGH"))
	assert.Error(t, err, "total persistence failure must be reported, not swallowed")
}

func TestBackupRotationKeepsFive(t *testing.T) {
	j, path := newTestJournal(t)

	for i := 0; i < 8; i++ {
		require.NoError(t, j.Append(testRecord("PEPE", "HIGH")))
	}

	entries, err := os.ReadDir(filepath.Join(filepath.Dir(path), "backups"))
	require.NoError(t, err)
	assert.Len(t, entries, 5, "only the newest five backups survive")
}

func TestCorruptJournalStartsFresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alert_journal.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	j, err := Open(path, 5, testLogger())
	require.NoError(t, err, "corrupt journal must not prevent startup")
	assert.Empty(t, j.Alerts())

	_, err = os.Stat(path + ".corrupt")
	assert.NoError(t, err, "corrupt file should be kept aside")
}

func TestMarkOutcomes(t *testing.T) {
	j, path := newTestJournal(t)

	rec := testRecord("PEPE", "HIGH")
	require.NoError(t, j.Append(rec))
	require.NoError(t, j.MarkTruePositive(rec, 4.5, 42))

	fp := testRecord("DOGE", "HIGH")
	fp.Tags = []string{"low_liq", "weak_social"}
	require.NoError(t, j.Append(fp))
	require.NoError(t, j.MarkFalsePositive(fp, "rugged"))

	reloaded, err := Open(path, 5, testLogger())
	require.NoError(t, err)

	require.Len(t, reloaded.doc.TruePositives, 1)
	tp := reloaded.doc.TruePositives[0]
	require.NotNil(t, tp.PeakMultiplier)
	assert.Equal(t, 4.5, *tp.PeakMultiplier)
	require.NotNil(t, tp.MarkedAt)

	require.Len(t, reloaded.doc.FalsePositives, 1)
	assert.Equal(t, "rugged", reloaded.doc.FalsePositives[0].FPReason)
}

func TestDailyStats(t *testing.T) {
	j, _ := newTestJournal(t)

	high := testRecord("PEPE", "HIGH")
	require.NoError(t, j.Append(high))
	require.NoError(t, j.Append(testRecord("DOGE", "MEDIUM")))
	require.NoError(t, j.MarkTruePositive(high, 3.0, 20))

	fp := testRecord("WIF", "HIGH")
	fp.Tags = []string{"tiny_buy", "weak_social"}
	require.NoError(t, j.Append(fp))
	require.NoError(t, j.MarkFalsePositive(fp, "no follow-through"))

	stats := j.DailyStats(1)
	assert.Equal(t, 2, stats.HighAlerts)
	assert.Equal(t, 1, stats.MediumAlerts)
	assert.Equal(t, 3, stats.TotalAlerts)
	assert.Equal(t, 1, stats.TruePositives)
	assert.Equal(t, 1, stats.FalsePositives)
	assert.InDelta(t, 0.5, stats.HighPrecision, 0.001)
	assert.Equal(t, 1, stats.FPBreakdown["tiny_buy"])
	assert.Equal(t, 1, stats.FPBreakdown["weak_social"])
}

func TestTierOrLegacy(t *testing.T) {
	withTier := Record{Level: "MEDIUM", Tier: iptr(3)}
	assert.Equal(t, 3, withTier.TierOrLegacy())

	assert.Equal(t, 1, Record{Level: "HIGH"}.TierOrLegacy())
	assert.Equal(t, 2, Record{Level: "MEDIUM"}.TierOrLegacy())
	assert.Equal(t, 0, Record{Level: "WATCH"}.TierOrLegacy())
}

func TestFromAlertTags(t *testing.T) {
	callers := 25
	subs := 150000

	alert := &alerts.Alert{
		Severity:       alerts.SeverityHigh,
		Token:          "PEPE",
		Contract:       "So1abc",
		Score:          75,
		Tier:           1,
		Confirmations:  2,
		LiquidityUSD:   fptr(8000),
		LastBuySOL:     fptr(7),
		TopBuySOL:      fptr(12),
		Callers:        &callers,
		Subs:           &subs,
		MatchedSignals: []string{"glydo", "sol_sb1"},
	}

	rec := FromAlert(alert)
	assert.Equal(t, "HIGH", rec.Level)
	require.NotNil(t, rec.Tier)
	assert.Equal(t, 1, *rec.Tier)
	assert.ElementsMatch(t, []string{"has_glydo", "has_sb1"}, rec.Tags)

	// A thin alert earns every warning tag.
	thin := &alerts.Alert{Severity: alerts.SeverityMedium, Token: "DOGE"}
	rec = FromAlert(thin)
	assert.Nil(t, rec.Tier)
	assert.ElementsMatch(t, []string{"no_ca", "low_liq", "tiny_buy", "weak_social"}, rec.Tags)
}
