// Package ledger records which source files have been structured, keyed by
// their meta/file pair, so re-runs skip files that were already imported.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/edenschool/examparse/internal/store"
)

const DefaultPrefix = "examparse:done:"

// Store is the subset of pkg/redis.Client the ledger uses.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, keys ...string) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type Ledger struct {
	store  Store
	prefix string
	ttl    time.Duration
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New builds a Ledger. A zero ttl keeps entries forever.
func New(s Store, prefix string, ttl time.Duration) *Ledger {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Ledger{
		store:  s,
		prefix: prefix,
		ttl:    ttl,
		logger: slog.Default().With("component", "ledger"),
	}
}

// Done reports whether ref was marked. Lookup failures are returned so the
// caller can decide whether to process anyway.
func (l *Ledger) Done(ctx context.Context, ref store.FileRef) (bool, error) {
	key := l.Key(ref)
	ok, err := l.store.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("ledger lookup %s: %w", key, err)
	}
	if ok {
		l.hits.Add(1)
		l.logger.Debug("file already processed", "key", key)
	} else {
		l.misses.Add(1)
	}
	return ok, nil
}

// Mark records ref as processed. It reports false when another worker
// marked it first.
func (l *Ledger) Mark(ctx context.Context, ref store.FileRef) (bool, error) {
	key := l.Key(ref)
	set, err := l.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), l.ttl)
	if err != nil {
		return false, fmt.Errorf("ledger mark %s: %w", key, err)
	}
	return set, nil
}

// Forget removes the mark for ref so the next run reprocesses it.
func (l *Ledger) Forget(ctx context.Context, ref store.FileRef) error {
	if err := l.store.Del(ctx, l.Key(ref)); err != nil {
		return fmt.Errorf("ledger forget: %w", err)
	}
	return nil
}

// Reset drops every mark under the ledger's prefix.
func (l *Ledger) Reset(ctx context.Context) (int64, error) {
	deleted, err := l.store.FlushByPattern(ctx, l.prefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("resetting ledger: %w", err)
	}
	l.logger.Info("ledger reset", "keys_deleted", deleted)
	return deleted, nil
}

// Stats returns how many lookups found (hits) or missed a mark.
func (l *Ledger) Stats() (hits, misses int64) {
	return l.hits.Load(), l.misses.Load()
}

func (l *Ledger) Key(ref store.FileRef) string {
	return fmt.Sprintf("%s%d_%d", l.prefix, ref.MetaID, ref.FileID)
}
