// Package refdata resolves natural keys for the global reference entities
// (codes, payers, plans) to their surrogate ids, deduplicating across all
// concurrent loads.
package refdata

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Store is the persistence surface the resolver needs. Every method must be
// an atomic insert-if-absent-else-return-existing keyed on the natural key;
// the store's uniqueness constraint is the source of truth under races.
type Store interface {
	UpsertCode(ctx context.Context, code, codeType string) (int32, error)
	UpsertPayer(ctx context.Context, name string) (int32, error)
	UpsertPlan(ctx context.Context, name string) (int32, error)
}

type codeKey struct {
	code     string
	codeType string
}

// Resolver caches natural-key → id mappings process-wide. The cache is a
// pure optimization: a miss always goes to the store, and concurrent
// creations of the same key converge on the store's winner. One Resolver
// instance is shared by all loads.
type Resolver struct {
	store Store

	maxRetries    uint64
	retryInterval time.Duration

	mu     sync.RWMutex
	codes  map[codeKey]int32
	payers map[string]int32
	plans  map[string]int32
}

func NewResolver(store Store, maxRetries uint64, retryInterval time.Duration) *Resolver {
	if retryInterval <= 0 {
		retryInterval = 50 * time.Millisecond
	}
	return &Resolver{
		store:         store,
		maxRetries:    maxRetries,
		retryInterval: retryInterval,
		codes:         make(map[codeKey]int32),
		payers:        make(map[string]int32),
		plans:         make(map[string]int32),
	}
}

// ResolveCode returns the id for (code, codeType), creating the row if
// absent. Matching is exact and case-sensitive beyond trimming.
func (r *Resolver) ResolveCode(ctx context.Context, code, codeType string) (int32, error) {
	key := codeKey{code: strings.TrimSpace(code), codeType: strings.TrimSpace(codeType)}

	r.mu.RLock()
	id, ok := r.codes[key]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	id, err := r.upsert(ctx, func(ctx context.Context) (int32, error) {
		return r.store.UpsertCode(ctx, key.code, key.codeType)
	})
	if err != nil {
		return 0, fmt.Errorf("resolve code %s/%s: %w", key.code, key.codeType, err)
	}

	r.mu.Lock()
	r.codes[key] = id
	r.mu.Unlock()
	return id, nil
}

// ResolvePayer returns the id for a payer name, creating the row if absent.
func (r *Resolver) ResolvePayer(ctx context.Context, name string) (int32, error) {
	name = strings.TrimSpace(name)

	r.mu.RLock()
	id, ok := r.payers[name]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	id, err := r.upsert(ctx, func(ctx context.Context) (int32, error) {
		return r.store.UpsertPayer(ctx, name)
	})
	if err != nil {
		return 0, fmt.Errorf("resolve payer %q: %w", name, err)
	}

	r.mu.Lock()
	r.payers[name] = id
	r.mu.Unlock()
	return id, nil
}

// ResolvePlan returns the id for a plan name, creating the row if absent.
func (r *Resolver) ResolvePlan(ctx context.Context, name string) (int32, error) {
	name = strings.TrimSpace(name)

	r.mu.RLock()
	id, ok := r.plans[name]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	id, err := r.upsert(ctx, func(ctx context.Context) (int32, error) {
		return r.store.UpsertPlan(ctx, name)
	})
	if err != nil {
		return 0, fmt.Errorf("resolve plan %q: %w", name, err)
	}

	r.mu.Lock()
	r.plans[name] = id
	r.mu.Unlock()
	return id, nil
}

// upsert runs one store upsert under the bounded retry policy. Exhausting
// the retries is a resolution failure; the caller treats it as fatal to the
// current row, not to the load.
func (r *Resolver) upsert(ctx context.Context, op func(context.Context) (int32, error)) (int32, error) {
	var id int32
	err := backoff.Retry(
		func() error {
			var err error
			id, err = op(ctx)
			return err
		},
		backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(r.retryInterval), r.maxRetries),
			ctx,
		),
	)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// CacheSize reports how many keys are cached, for load summaries.
func (r *Resolver) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.codes) + len(r.payers) + len(r.plans)
}
