package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrKeyNotFound indicates the requested key has no stored value.
var ErrKeyNotFound = errors.New("store: key not found")

// Logical keys. Every record is a JSON document replaced wholesale on write.
const (
	KeyCredential   = "api_credential"
	KeyCatalog      = "item_catalog"
	KeyMarketCache  = "market_cache"
	KeyWatchlist    = "watchlist"
	KeyMonitorState = "monitor_state"
	KeyMutes        = "mutes"
	KeyAlertHistory = "alert_history"
	KeyOverrides    = "item_overrides"
	KeyRuntime      = "runtime_state"
	KeyPriceHistory = "price_history"
)

// Store is the injected key/value persistence collaborator.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Subscribe registers a callback invoked after every successful Set or
	// Delete with the affected key. The returned function cancels it.
	Subscribe(fn func(key string)) (cancel func())
	Close() error
}

// GetJSON reads key and unmarshals it into out. The boolean reports whether
// the key existed; a missing key is not an error.
func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON marshals v and stores it under key, replacing any previous value.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

// Notifier fans change notifications out to subscribers. Backends embed it
// and call NotifyChanged after each mutation.
type Notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]func(string)
}

// Subscribe registers fn and returns a cancel function.
func (n *Notifier) Subscribe(fn func(key string)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]func(string))
	}
	id := n.next
	n.next++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// NotifyChanged invokes every subscriber with key. Backends call it after a
// successful mutation.
func (n *Notifier) NotifyChanged(key string) {
	n.mu.Lock()
	fns := make([]func(string), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn(key)
	}
}
