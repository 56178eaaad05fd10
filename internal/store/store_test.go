package store_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorsim/sensorsim/internal/store"
)

type counter struct {
	N int
}

func TestStore_UpdateInstallsNewSnapshot(t *testing.T) {
	initial := &counter{N: 1}
	s := store.New(initial)

	changed, err := s.Update(func(cur *counter) (*counter, error) {
		return &counter{N: cur.N + 1}, nil
	})
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Equal(t, 2, s.Load().N)
	assert.Equal(t, 1, initial.N, "previous snapshot must not be mutated")
	assert.Equal(t, uint64(1), s.Version())
}

func TestStore_SamePointerIsNoop(t *testing.T) {
	initial := &counter{N: 1}
	s := store.New(initial)

	calls := 0
	s.Subscribe(func(_, _ *counter) { calls++ })

	changed, err := s.Update(func(cur *counter) (*counter, error) { return cur, nil })
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Same(t, initial, s.Load())
	assert.Zero(t, calls)
	assert.Zero(t, s.Version())
}

func TestStore_ErrorLeavesSnapshot(t *testing.T) {
	initial := &counter{N: 1}
	s := store.New(initial)
	boom := errors.New("boom")

	changed, err := s.Update(func(*counter) (*counter, error) { return &counter{N: 9}, boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, changed)
	assert.Same(t, initial, s.Load())
}

func TestStore_SubscribeAndUnsubscribe(t *testing.T) {
	s := store.New[counter](nil)

	var seen []int
	unsubscribe := s.Subscribe(func(prev, next *counter) {
		if prev == nil {
			seen = append(seen, -1)
		}
		seen = append(seen, next.N)
	})

	s.Replace(&counter{N: 1})
	s.Replace(&counter{N: 2})
	unsubscribe()
	unsubscribe()
	s.Replace(&counter{N: 3})

	assert.Equal(t, []int{-1, 1, 2}, seen)
	assert.Equal(t, 3, s.Load().N)
}

func TestStore_ObserverMayReadStore(t *testing.T) {
	s := store.New(&counter{N: 0})

	var observed int
	s.Subscribe(func(_, _ *counter) {
		observed = s.Load().N
	})

	s.Replace(&counter{N: 5})
	assert.Equal(t, 5, observed)
}

func TestStore_CompareAndSwap(t *testing.T) {
	first := &counter{N: 1}
	s := store.New(first)

	second := &counter{N: 2}
	assert.True(t, s.CompareAndSwap(first, second))
	assert.False(t, s.CompareAndSwap(first, &counter{N: 3}))
	assert.Same(t, second, s.Load())
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	s := store.New(&counter{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Update(func(cur *counter) (*counter, error) {
				return &counter{N: cur.N + 1}, nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, s.Load().N)
	assert.Equal(t, uint64(50), s.Version())
}
