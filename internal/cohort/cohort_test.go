package cohort

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalwatch/internal/config"
	"signalwatch/internal/event"
	"signalwatch/internal/store"
)

func newTestManager() *Manager {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewManager(store.New(store.NewMemory()), config.DefaultRules(), log)
}

func fptr(v float64) *float64 { return &v }

func TestEnsureOpensCohortOnTrigger(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	start := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	c, created, err := m.Ensure(ctx, &event.Event{
		Feed: "xtrack_gems", MessageID: "1", Token: "PEPE", Contract: "So1abc",
		Timestamp: start, Multiplier: fptr(2.5), ValueUSD: fptr(45000),
	})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, created)
	assert.Equal(t, start, c.Start)
	assert.Equal(t, 2.5, c.BaseMultiplier)
	assert.Equal(t, 1.0, c.BaseWeight, "2x tier base weight")
	require.NotNil(t, c.EntryValueUSD)
	assert.Equal(t, 45000.0, *c.EntryValueUSD)
}

func TestEnsureStrongTriggerBaseWeight(t *testing.T) {
	m := newTestManager()

	c, created, err := m.Ensure(context.Background(), &event.Event{
		Feed: "xtrack_gems", MessageID: "1", Token: "PEPE",
		Timestamp: time.Now(), Multiplier: fptr(3.0),
	})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, created)
	assert.Equal(t, 1.8, c.BaseWeight, "3x tier base weight at the boundary")
}

func TestEnsureIgnoresNonTriggers(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	tests := []struct {
		name string
		ev   *event.Event
	}{
		{
			name: "wrong feed",
			ev:   &event.Event{Feed: "whalebuy", MessageID: "1", Token: "PEPE", Timestamp: time.Now(), Multiplier: fptr(5)},
		},
		{
			name: "below multiplier floor",
			ev:   &event.Event{Feed: "xtrack_gems", MessageID: "2", Token: "PEPE", Timestamp: time.Now(), Multiplier: fptr(1.9)},
		},
		{
			name: "no multiplier",
			ev:   &event.Event{Feed: "xtrack_gems", MessageID: "3", Token: "PEPE", Timestamp: time.Now()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, created, err := m.Ensure(ctx, tt.ev)
			require.NoError(t, err)
			assert.Nil(t, c)
			assert.False(t, created)
		})
	}
}

func TestEnsureCreatesAtMostOneCohort(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	start := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	first, created, err := m.Ensure(ctx, &event.Event{
		Feed: "xtrack_gems", MessageID: "1", Token: "PEPE",
		Timestamp: start, Multiplier: fptr(2.0),
	})
	require.NoError(t, err)
	require.True(t, created)

	// A later, stronger trigger must not reopen or move the cohort.
	second, created, err := m.Ensure(ctx, &event.Event{
		Feed: "xtrack_gems", MessageID: "2", Token: "PEPE",
		Timestamp: start.Add(10 * time.Minute), Multiplier: fptr(4.0),
	})
	require.NoError(t, err)
	assert.False(t, created)
	require.NotNil(t, second)
	assert.Equal(t, first.Start, second.Start)
	assert.Equal(t, 2.0, second.BaseMultiplier)
}

func TestEnsureReturnsExistingCohortForNonTrigger(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	_, _, err := m.Ensure(ctx, &event.Event{
		Feed: "xtrack_gems", MessageID: "1", Token: "PEPE",
		Timestamp: time.Now(), Multiplier: fptr(2.2),
	})
	require.NoError(t, err)

	c, created, err := m.Ensure(ctx, &event.Event{
		Feed: "glydo", MessageID: "2", Token: "PEPE", Timestamp: time.Now(),
	})
	require.NoError(t, err)
	assert.False(t, created)
	require.NotNil(t, c)
	assert.Equal(t, "PEPE", c.Token)
}
