package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Document is the persisted shape of the journal file.
type Document struct {
	Alerts         []Record  `json:"alerts"`
	TruePositives  []Record  `json:"true_positives"`
	FalsePositives []Record  `json:"false_positives"`
	LastUpdated    time.Time `json:"last_updated"`
}

// Stats summarizes journal activity over a period.
type Stats struct {
	PeriodDays     int            `json:"period_days"`
	HighAlerts     int            `json:"high_alerts"`
	MediumAlerts   int            `json:"medium_alerts"`
	TotalAlerts    int            `json:"total_alerts"`
	TruePositives  int            `json:"true_positives"`
	FalsePositives int            `json:"false_positives"`
	HighPrecision  float64        `json:"high_precision"`
	FPBreakdown    map[string]int `json:"fp_breakdown"`
}

// WriteStrategy attempts to persist the serialized document. Strategies are
// tried in order until one succeeds; the first is retried, the rest are
// single-shot escalations.
type WriteStrategy struct {
	Name  string
	Write func(path string, data []byte) error
}

// Journal is the crash-safe JSON alert history. Every mutation rewrites the
// whole document: backup first, then atomic tmp-write + rename with read-back
// verification, retried with backoff, then a direct emergency write. Total
// failure is reported to the caller and logged as data loss.
type Journal struct {
	path       string
	backupDir  string
	keep       int
	maxRetries int
	retryDelay time.Duration
	log        *logrus.Logger
	strategies []WriteStrategy

	mu  sync.Mutex
	doc Document
}

// Open loads (or initializes) a journal at path, keeping the given number of
// rotated backups.
func Open(path string, keep int, log *logrus.Logger) (*Journal, error) {
	j := &Journal{
		path:       path,
		backupDir:  filepath.Join(filepath.Dir(path), "backups"),
		keep:       keep,
		maxRetries: 5,
		retryDelay: 500 * time.Millisecond,
		log:        log,
	}
	j.strategies = []WriteStrategy{
		{Name: "atomic_replace", Write: atomicReplace},
		{Name: "direct_write", Write: directWrite},
	}

	if err := j.load(); err != nil {
		return nil, err
	}
	return j, nil
}

// SetWriteStrategies replaces the persistence cascade, for tests.
func (j *Journal) SetWriteStrategies(strategies []WriteStrategy) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.strategies = strategies
}

func (j *Journal) load() error {
	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read journal %s: %w", j.path, err)
	}

	if err := json.Unmarshal(data, &j.doc); err != nil {
		// A corrupt journal must not take the pipeline down; keep the
		// broken file aside and start fresh.
		j.log.WithError(err).WithField("path", j.path).Error("Journal file corrupt, starting fresh")
		_ = os.Rename(j.path, j.path+".corrupt")
		j.doc = Document{}
	}
	return nil
}

// Append records an alert and persists the document before returning.
func (j *Journal) Append(rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.doc.Alerts = append(j.doc.Alerts, rec)
	return j.save()
}

// MarkTruePositive copies a record into the true-positive list with peak
// data and persists.
func (j *Journal) MarkTruePositive(rec Record, peakMultiplier, timeToPeakMinutes float64) error {
	now := time.Now().UTC()
	rec.PeakMultiplier = &peakMultiplier
	rec.TimeToPeakMinutes = &timeToPeakMinutes
	rec.MarkedAt = &now

	j.mu.Lock()
	defer j.mu.Unlock()
	j.doc.TruePositives = append(j.doc.TruePositives, rec)
	return j.save()
}

// MarkFalsePositive copies a record into the false-positive list with the
// reason and persists.
func (j *Journal) MarkFalsePositive(rec Record, reason string) error {
	now := time.Now().UTC()
	rec.FPReason = reason
	rec.MarkedAt = &now

	j.mu.Lock()
	defer j.mu.Unlock()
	j.doc.FalsePositives = append(j.doc.FalsePositives, rec)
	return j.save()
}

// Alerts returns a copy of the journaled alerts.
func (j *Journal) Alerts() []Record {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Record, len(j.doc.Alerts))
	copy(out, j.doc.Alerts)
	return out
}

// DailyStats summarizes the last N days of journal activity.
func (j *Journal) DailyStats(days int) Stats {
	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	stats := Stats{PeriodDays: days, FPBreakdown: map[string]int{}}
	for _, rec := range j.doc.Alerts {
		if rec.Timestamp.Before(cutoff) {
			continue
		}
		stats.TotalAlerts++
		switch rec.Level {
		case "HIGH":
			stats.HighAlerts++
		case "MEDIUM":
			stats.MediumAlerts++
		}
	}

	for _, rec := range j.doc.TruePositives {
		if rec.MarkedAt != nil && rec.MarkedAt.After(cutoff) {
			stats.TruePositives++
		}
	}

	knownTags := map[string]bool{
		"no_ca": true, "low_liq": true, "has_sb1": true,
		"has_glydo": true, "tiny_buy": true, "weak_social": true,
	}
	for _, rec := range j.doc.FalsePositives {
		if rec.MarkedAt == nil || !rec.MarkedAt.After(cutoff) {
			continue
		}
		stats.FalsePositives++
		for _, tag := range rec.Tags {
			if knownTags[tag] {
				stats.FPBreakdown[tag]++
			}
		}
	}

	if stats.HighAlerts > 0 {
		stats.HighPrecision = float64(stats.TruePositives) / float64(stats.HighAlerts)
	}

	return stats
}

// save persists the document. Caller must hold the lock.
func (j *Journal) save() error {
	j.doc.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(&j.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal journal: %w", err)
	}

	j.rotateBackups()

	var lastErr error
	for i, strategy := range j.strategies {
		attempts := 1
		if i == 0 {
			attempts = j.maxRetries
		}

		for attempt := 1; attempt <= attempts; attempt++ {
			if err := strategy.Write(j.path, data); err != nil {
				lastErr = err
				j.log.WithError(err).WithFields(logrus.Fields{
					"strategy": strategy.Name,
					"attempt":  attempt,
				}).Warn("Journal write attempt failed")
				if attempt < attempts {
					time.Sleep(j.retryDelay * time.Duration(attempt))
				}
				continue
			}

			if i > 0 || attempt > 1 {
				j.log.WithField("strategy", strategy.Name).Info("Journal write recovered")
			}
			return nil
		}
	}

	j.log.WithError(lastErr).WithFields(logrus.Fields{
		"path":      j.path,
		"data_loss": true,
	}).Error("All journal write strategies failed, alert history entry lost")

	return fmt.Errorf("persist journal %s: %w", j.path, lastErr)
}

// rotateBackups copies the current file into the backup directory and prunes
// old backups. Backup failure is logged, never fatal.
func (j *Journal) rotateBackups() {
	current, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		j.log.WithError(err).Warn("Could not read journal for backup")
		return
	}

	if err := os.MkdirAll(j.backupDir, 0o755); err != nil {
		j.log.WithError(err).Warn("Could not create journal backup directory")
		return
	}

	name := fmt.Sprintf("journal_%s.json", time.Now().UTC().Format("20060102_150405.000000000"))
	if err := os.WriteFile(filepath.Join(j.backupDir, name), current, 0o644); err != nil {
		j.log.WithError(err).Warn("Could not write journal backup")
		return
	}

	entries, err := os.ReadDir(j.backupDir)
	if err != nil {
		return
	}

	var backups []string
	for _, entry := range entries {
		if !entry.IsDir() {
			backups = append(backups, entry.Name())
		}
	}
	if len(backups) <= j.keep {
		return
	}

	// Timestamped names sort chronologically.
	sort.Strings(backups)
	for _, old := range backups[:len(backups)-j.keep] {
		if err := os.Remove(filepath.Join(j.backupDir, old)); err != nil {
			j.log.WithError(err).WithField("backup", old).Warn("Could not prune journal backup")
		}
	}
}

// atomicReplace writes to a temp file, fsyncs, renames over the target and
// verifies the result parses.
func atomicReplace(path string, data []byte) error {
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}

	// Read-back verification: the file on disk must parse.
	written, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("verify journal: %w", err)
	}
	var check Document
	if err := json.Unmarshal(written, &check); err != nil {
		return fmt.Errorf("verify journal: %w", err)
	}

	return nil
}

// directWrite is the emergency fallback: no atomicity, just get the bytes to
// disk.
func directWrite(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("direct write: %w", err)
	}
	return nil
}
