package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("s-%d", n.Add(1)) }
}

func TestStoreCreateAndGet(t *testing.T) {
	store := NewStore(WithClock(func() time.Time { return fixedNow }))

	id := store.Create()
	require.NotEmpty(t, id)

	snap, err := store.Get(id)
	require.NoError(t, err)
	require.Equal(t, id, snap.ID)
	require.Equal(t, PhaseCreated, snap.Phase)
	require.Equal(t, fixedNow, snap.CreatedAt)

	_, err = store.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, store.Mutate("missing", func(*Session) error { return nil }), ErrNotFound)
}

func TestStoreCreateSkipsTakenIDs(t *testing.T) {
	ids := []string{"dup", "dup", "fresh"}
	i := 0
	store := NewStore(WithIDGenerator(func() string {
		id := ids[i]
		i++
		return id
	}))

	require.Equal(t, "dup", store.Create())
	require.Equal(t, "fresh", store.Create())
}

func TestStoreMutateIsAllOrNothing(t *testing.T) {
	store := NewStore()
	id := store.Create()

	boom := errors.New("boom")
	err := store.Mutate(id, func(s *Session) error {
		s.Append(Turn{Speaker: SpeakerCandidate, Text: "partial"})
		if err := s.Transition(PhaseAnalyzing); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	snap, err := store.Get(id)
	require.NoError(t, err)
	require.Empty(t, snap.Conversation)
	require.Equal(t, PhaseCreated, snap.Phase)
}

func TestStoreSerializesMutationsPerSession(t *testing.T) {
	store := NewStore()
	id := store.Create()

	const writers = 50
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			errs <- store.Mutate(id, func(s *Session) error {
				s.Append(Turn{Speaker: SpeakerCandidate, Text: fmt.Sprintf("%d", s.Len())})
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	snap, err := store.Get(id)
	require.NoError(t, err)
	require.Len(t, snap.Conversation, writers)
	for i, turn := range snap.Conversation {
		require.Equal(t, fmt.Sprintf("%d", i), turn.Text, "turn order must follow append order")
	}
}

func TestStoreDoesNotBlockOtherSessions(t *testing.T) {
	store := NewStore(WithIDGenerator(sequentialIDs()))
	slow := store.Create()
	fast := store.Create()

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = store.Mutate(slow, func(*Session) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	done := make(chan error, 1)
	go func() {
		done <- store.Mutate(fast, func(s *Session) error { return s.Transition(PhaseAnalyzing) })
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("mutation of an unrelated session was blocked")
	}
	close(release)
}

func TestStoreEvictSkipsInFlightAndActive(t *testing.T) {
	clock := &fakeClock{now: fixedNow}
	store := NewStore(WithClock(clock.Now), WithIDGenerator(sequentialIDs()))

	idle := store.Create()
	busy := store.Create()
	require.NoError(t, store.Mutate(busy, func(s *Session) error { return s.Acquire("lease") }))

	clock.Advance(3 * time.Hour)
	active := store.Create()

	evicted := store.Evict(2 * time.Hour)
	require.Equal(t, []string{idle}, evicted)

	_, err := store.Get(idle)
	require.ErrorIs(t, err, ErrNotFound)

	for _, id := range []string{busy, active} {
		_, err := store.Get(id)
		require.NoError(t, err)
	}
	require.Equal(t, 2, store.Len())
	require.Nil(t, store.Evict(0))
}

func TestStoreEvictRunsHooks(t *testing.T) {
	clock := &fakeClock{now: fixedNow}
	var fromOption, fromMethod []string
	store := NewStore(
		WithClock(clock.Now),
		WithIDGenerator(sequentialIDs()),
		WithOnEvict(func(id string) { fromOption = append(fromOption, id) }),
	)
	store.OnEvict(func(id string) {
		// the session is already gone when hooks run
		_, err := store.Get(id)
		require.ErrorIs(t, err, ErrNotFound)
		fromMethod = append(fromMethod, id)
	})
	store.OnEvict(nil)

	idle := store.Create()
	clock.Advance(3 * time.Hour)
	store.Create()

	require.Equal(t, []string{idle}, store.Evict(2*time.Hour))
	require.Equal(t, []string{idle}, fromOption)
	require.Equal(t, []string{idle}, fromMethod)

	require.Empty(t, store.Evict(2*time.Hour))
	require.Len(t, fromOption, 1)
}

func TestStoreRunStopsWithContext(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		store.Run(ctx, time.Millisecond, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}
}
