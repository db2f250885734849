package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"signalwatch/internal/event"
)

// Backend is a TTL key/value store with a per-token secondary index. Values
// are JSON-serialized so the in-memory and Redis backends behave identically.
type Backend interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Get unmarshals the stored value into dest and reports whether the key
	// existed. A missing or expired key is (false, nil), not an error.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Delete(ctx context.Context, key string) error
	AddToTokenIndex(ctx context.Context, token string, ts time.Time, key string, ttl time.Duration) error
	TokenIndexKeys(ctx context.Context, token string) ([]string, error)
}

// LastValue is a cached last-known market value for a token.
type LastValue struct {
	ValueUSD float64   `json:"mc_usd"`
	Source   string    `json:"source"`
	At       time.Time `json:"ts"`
}

// Store wraps a Backend with the typed accessors the pipeline needs.
type Store struct {
	backend Backend
}

// New creates a Store on top of the given backend.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// Set stores an arbitrary value under key with a TTL.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return s.backend.Set(ctx, key, value, ttl)
}

// Get loads a value into dest, reporting whether the key existed.
func (s *Store) Get(ctx context.Context, key string, dest any) (bool, error) {
	return s.backend.Get(ctx, key, dest)
}

// Delete removes a key.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// IsProcessed reports whether a (feed, messageID) pair was already ingested.
func (s *Store) IsProcessed(ctx context.Context, feed, messageID string) (bool, error) {
	var marker bool
	found, err := s.backend.Get(ctx, processedKey(feed, messageID), &marker)
	return found, err
}

// MarkProcessed records a (feed, messageID) pair as ingested.
func (s *Store) MarkProcessed(ctx context.Context, feed, messageID string, ttl time.Duration) error {
	return s.backend.Set(ctx, processedKey(feed, messageID), true, ttl)
}

// StoreEvent persists an event, indexes it under its token and caches the
// symbol->contract mapping when both are present.
func (s *Store) StoreEvent(ctx context.Context, ev *event.Event, ttl time.Duration) error {
	if err := s.backend.Set(ctx, ev.Key(), ev, ttl); err != nil {
		return err
	}

	token := ev.Token
	if token == "" {
		token = ev.Contract
	}
	if err := s.backend.AddToTokenIndex(ctx, token, ev.Timestamp, ev.Key(), ttl); err != nil {
		return err
	}

	if ev.Token != "" && ev.Contract != "" {
		if err := s.SetContract(ctx, ev.Token, ev.Contract, ttl); err != nil {
			return err
		}
	}

	return nil
}

// EventsForToken returns all live events for a token, oldest first. Index
// entries whose event already expired are skipped.
func (s *Store) EventsForToken(ctx context.Context, token string) ([]*event.Event, error) {
	keys, err := s.backend.TokenIndexKeys(ctx, token)
	if err != nil {
		return nil, err
	}

	events := make([]*event.Event, 0, len(keys))
	for _, key := range keys {
		var ev event.Event
		found, err := s.backend.Get(ctx, key, &ev)
		if err != nil {
			return nil, err
		}
		if found {
			events = append(events, &ev)
		}
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

// SetLastValue caches the last-known market value for a token.
func (s *Store) SetLastValue(ctx context.Context, token string, valueUSD float64, source string, ttl time.Duration) error {
	return s.backend.Set(ctx, "last_value:"+token, LastValue{
		ValueUSD: valueUSD,
		Source:   source,
		At:       time.Now().UTC(),
	}, ttl)
}

// LastValue returns the cached last-known market value for a token, or nil.
func (s *Store) LastValue(ctx context.Context, token string) (*LastValue, error) {
	var lv LastValue
	found, err := s.backend.Get(ctx, "last_value:"+token, &lv)
	if err != nil || !found {
		return nil, err
	}
	return &lv, nil
}

// SetContract caches the symbol->contract mapping.
func (s *Store) SetContract(ctx context.Context, symbol, contract string, ttl time.Duration) error {
	return s.backend.Set(ctx, contractKey(symbol), contract, ttl)
}

// Contract returns the cached contract for a symbol, or "".
func (s *Store) Contract(ctx context.Context, symbol string) (string, error) {
	var contract string
	found, err := s.backend.Get(ctx, contractKey(symbol), &contract)
	if err != nil || !found {
		return "", err
	}
	return contract, nil
}

func processedKey(feed, messageID string) string {
	return "processed:" + feed + ":" + messageID
}

func contractKey(symbol string) string {
	return "symbol_contract:" + strings.ToUpper(symbol)
}
