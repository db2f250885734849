package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIndexCutoff(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	ttl := 168 * time.Hour

	cutoff := indexCutoff(now, ttl)
	assert.Equal(t, now.Add(-ttl).Unix(), cutoff)

	// An event written exactly one ttl ago expires at now, so it falls at
	// the cutoff and is pruned; a fresher event survives.
	expired := now.Add(-ttl)
	live := now.Add(-ttl + time.Second)
	assert.LessOrEqual(t, expired.Unix(), cutoff)
	assert.Greater(t, live.Unix(), cutoff)
}
