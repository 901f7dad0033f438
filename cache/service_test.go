package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type book struct {
	ID   int64  `msgpack:"id"`
	Name string `msgpack:"name"`
}

// mapStore is a minimal in-process Store. failGet and failSet force errors.
type mapStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet error
	failSet error
	sets    int
}

func newMapStore() *mapStore {
	return &mapStore{data: map[string][]byte{}}
}

func (s *mapStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return nil, false, s.failGet
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *mapStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	if s.failSet != nil {
		return s.failSet
	}
	s.data[key] = value
	return nil
}

func (s *mapStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func TestGetOrFetch_MissThenHit(t *testing.T) {
	ctx := context.Background()
	gw := NewGateway(newMapStore())

	var calls int
	fetch := func(context.Context) (book, error) {
		calls++
		return book{ID: 1, Name: "Dune"}, nil
	}

	first, err := GetOrFetch(ctx, gw, "books:1", time.Minute, fetch)
	require.NoError(t, err)
	second, err := GetOrFetch(ctx, gw, "books:1", time.Minute, fetch)
	require.NoError(t, err)

	assert.Equal(t, book{ID: 1, Name: "Dune"}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls, "second read should be served from the store")
}

func TestGetOrFetch_SliceValues(t *testing.T) {
	ctx := context.Background()
	gw := NewGateway(newMapStore())
	want := []book{{ID: 1, Name: "Dune"}, {ID: 2, Name: "Emma"}}

	_, err := GetOrFetch(ctx, gw, "k", 0, func(context.Context) ([]book, error) { return want, nil })
	require.NoError(t, err)

	got, err := GetOrFetch(ctx, gw, "k", 0, func(context.Context) ([]book, error) {
		t.Fatal("fetch called on a cached key")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGetOrFetch_FetchErrorNotCached(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	gw := NewGateway(store)
	boom := errors.New("source down")

	_, err := GetOrFetch(ctx, gw, "k", 0, func(context.Context) (book, error) { return book{}, boom })
	require.ErrorIs(t, err, boom)
	assert.Zero(t, store.sets)

	got, err := GetOrFetch(ctx, gw, "k", 0, func(context.Context) (book, error) { return book{ID: 9}, nil })
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.ID)
}

func TestGetOrFetch_StoreDownFallsThrough(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	store.failGet = errors.New("connection refused")
	store.failSet = errors.New("connection refused")
	gw := NewGateway(store)

	var calls int
	for range 3 {
		got, err := GetOrFetch(ctx, gw, "k", 0, func(context.Context) (book, error) {
			calls++
			return book{ID: 3}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), got.ID)
	}
	assert.Equal(t, 3, calls)
}

func TestGetOrFetch_UndecodableEntryRefetched(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	store.data["k"] = []byte{0xc1} // never-used msgpack code
	gw := NewGateway(store)

	got, err := GetOrFetch(ctx, gw, "k", 0, func(context.Context) (book, error) { return book{ID: 4}, nil })
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.ID)

	var stored book
	require.NoError(t, msgpack.Unmarshal(store.data["k"], &stored))
	assert.Equal(t, int64(4), stored.ID, "refetched value should replace the bad entry")
}

func TestGetOrFetch_NilPointer(t *testing.T) {
	ctx := context.Background()
	gw := NewGateway(newMapStore())

	got, err := GetOrFetch(ctx, gw, "k", 0, func(context.Context) (*book, error) { return nil, nil })
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = GetOrFetch(ctx, gw, "k", 0, func(context.Context) (*book, error) {
		return &book{ID: 1}, nil
	})
	require.NoError(t, err)
	assert.Nil(t, got, "cached nil should be served")
}

func TestGetOrFetchStrict_PropagatesStoreError(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	store.failGet = errors.New("timeout")
	gw := NewGateway(store)

	called := false
	_, err := GetOrFetchStrict(ctx, gw, "k", 0, func(context.Context) (book, error) {
		called = true
		return book{}, nil
	})
	require.EqualError(t, err, "timeout")
	assert.False(t, called)
}

func TestGetOrFetchStrict_HitAndMiss(t *testing.T) {
	ctx := context.Background()
	gw := NewGateway(newMapStore())
	var calls atomic.Int32
	fetch := func(context.Context) (book, error) {
		calls.Add(1)
		return book{ID: 5}, nil
	}

	_, err := GetOrFetchStrict(ctx, gw, "k", 0, fetch)
	require.NoError(t, err)
	got, err := GetOrFetchStrict(ctx, gw, "k", 0, fetch)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.ID)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrFetch_ConcurrentMissesAllFetch(t *testing.T) {
	ctx := context.Background()
	gw := NewGateway(newMapStore())

	// Hold every fetch until all goroutines have missed.
	const n = 4
	var calls atomic.Int32
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := GetOrFetch(ctx, gw, "k", 0, func(context.Context) (book, error) {
				calls.Add(1)
				started.Done()
				<-release
				return book{ID: int64(i)}, nil
			})
			assert.NoError(t, err)
		}()
	}
	started.Wait()
	close(release)
	wg.Wait()

	assert.Equal(t, int32(n), calls.Load())
}
