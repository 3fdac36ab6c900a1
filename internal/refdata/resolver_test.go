package refdata

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore assigns ids per natural key and counts upsert calls. failures
// makes the first N calls fail to exercise the retry policy.
type fakeStore struct {
	mu       sync.Mutex
	codes    map[[2]string]int32
	payers   map[string]int32
	plans    map[string]int32
	nextID   int32
	calls    atomic.Int64
	failures atomic.Int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		codes:  make(map[[2]string]int32),
		payers: make(map[string]int32),
		plans:  make(map[string]int32),
	}
}

var errStoreDown = errors.New("store unavailable")

func (s *fakeStore) fail() bool {
	return s.failures.Add(-1) >= 0
}

func (s *fakeStore) UpsertCode(_ context.Context, code, codeType string) (int32, error) {
	s.calls.Add(1)
	if s.fail() {
		return 0, errStoreDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{code, codeType}
	if id, ok := s.codes[key]; ok {
		return id, nil
	}
	s.nextID++
	s.codes[key] = s.nextID
	return s.nextID, nil
}

func (s *fakeStore) UpsertPayer(_ context.Context, name string) (int32, error) {
	s.calls.Add(1)
	if s.fail() {
		return 0, errStoreDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.payers[name]; ok {
		return id, nil
	}
	s.nextID++
	s.payers[name] = s.nextID
	return s.nextID, nil
}

func (s *fakeStore) UpsertPlan(_ context.Context, name string) (int32, error) {
	s.calls.Add(1)
	if s.fail() {
		return 0, errStoreDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.plans[name]; ok {
		return id, nil
	}
	s.nextID++
	s.plans[name] = s.nextID
	return s.nextID, nil
}

func TestResolverCachesAfterFirstUpsert(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, 3, time.Millisecond)
	ctx := context.Background()

	id1, err := r.ResolveCode(ctx, "99213", "CPT")
	require.NoError(t, err)
	id2, err := r.ResolveCode(ctx, "99213", "CPT")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, int64(1), store.calls.Load(), "second resolve must hit the cache")
}

func TestResolverKeysCodesByCodeAndType(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, 3, time.Millisecond)
	ctx := context.Background()

	cpt, err := r.ResolveCode(ctx, "70551", "CPT")
	require.NoError(t, err)
	rc, err := r.ResolveCode(ctx, "70551", "RC")
	require.NoError(t, err)

	assert.NotEqual(t, cpt, rc, "same code under different type systems must be distinct")
}

func TestResolverPayerAndPlanAreSeparateNamespaces(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, 3, time.Millisecond)
	ctx := context.Background()

	payerID, err := r.ResolvePayer(ctx, "Aetna")
	require.NoError(t, err)
	planID, err := r.ResolvePlan(ctx, "Aetna")
	require.NoError(t, err)

	assert.NotEqual(t, payerID, planID)
	assert.Equal(t, 2, r.CacheSize())
}

func TestResolverConcurrentSameKey(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, 3, time.Millisecond)
	ctx := context.Background()

	const goroutines = 32
	ids := make([]int32, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := r.ResolveCode(ctx, "99213", "CPT")
			if err != nil {
				t.Error(err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id, "all goroutines must converge on one id")
	}
	store.mu.Lock()
	assert.Len(t, store.codes, 1)
	store.mu.Unlock()
}

func TestResolverRetriesTransientFailure(t *testing.T) {
	store := newFakeStore()
	store.failures.Store(2)
	r := NewResolver(store, 5, time.Millisecond)

	id, err := r.ResolvePayer(context.Background(), "Aetna")
	require.NoError(t, err)
	assert.Equal(t, int32(1), id)
	assert.Equal(t, int64(3), store.calls.Load())
}

func TestResolverExhaustsRetries(t *testing.T) {
	store := newFakeStore()
	store.failures.Store(100)
	r := NewResolver(store, 2, time.Millisecond)

	_, err := r.ResolvePayer(context.Background(), "Aetna")
	require.Error(t, err)
	assert.ErrorIs(t, err, errStoreDown)
	// Initial attempt plus two retries.
	assert.Equal(t, int64(3), store.calls.Load())
}

func TestResolverTrimsKeys(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, 3, time.Millisecond)
	ctx := context.Background()

	a, err := r.ResolvePlan(ctx, " PPO ")
	require.NoError(t, err)
	b, err := r.ResolvePlan(ctx, "PPO")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, int64(1), store.calls.Load())
}
