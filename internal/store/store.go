// Package store holds the resource caches. One Store exists per resource
// kind; each maps keys to entries and decides when a fetch is needed.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/rs/zerolog/log"
	"github.com/smeagol-wiki/smeagol-client/internal/failure"
	"github.com/smeagol-wiki/smeagol-client/internal/resource"
)

// Fetcher loads the resource for key. Errors wrapping failure.ErrNotFound
// move the entry to NotFound; any other error moves it to Failed.
type Fetcher[T any] func(ctx context.Context, key resource.Key) (T, error)

type Options struct {
	// StaleThreshold is how long a loaded entry stays fresh. Defaults to
	// DefaultStaleThreshold.
	StaleThreshold time.Duration

	// MaximumSize bounds the number of entries held. Defaults to 10 000.
	MaximumSize int

	// FetchTimeout bounds a single fetch. Zero leaves fetches unbounded, so
	// a hung request keeps its entry Loading.
	FetchTimeout time.Duration

	// Clock supplies the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Store caches one kind of resource. The gate check and the transition to
// Loading happen under one lock, so at most one fetch per key is in flight.
// Fetchers run outside the lock; distinct keys never wait on each other.
type Store[T any] struct {
	kind      resource.Kind
	fetch     Fetcher[T]
	threshold time.Duration
	timeout   time.Duration
	clock     func() time.Time

	mu       sync.Mutex
	entries  *otter.Cache[resource.Key, Entry[T]]
	inflight sync.WaitGroup
}

// New creates an empty store for kind.
func New[T any](kind resource.Kind, fetch Fetcher[T], opts Options) *Store[T] {
	if opts.StaleThreshold <= 0 {
		opts.StaleThreshold = DefaultStaleThreshold
	}
	if opts.MaximumSize <= 0 {
		opts.MaximumSize = 10_000
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	initMetrics()

	entries := otter.Must(&otter.Options[resource.Key, Entry[T]]{
		MaximumSize: opts.MaximumSize,
	})

	return &Store[T]{
		kind:      kind,
		fetch:     fetch,
		threshold: opts.StaleThreshold,
		timeout:   opts.FetchTimeout,
		clock:     opts.Clock,
		entries:   entries,
	}
}

func (s *Store[T]) Kind() resource.Kind {
	return s.kind
}

// Get returns the entry for key. Absent keys yield an Absent entry.
func (s *Store[T]) Get(key resource.Key) Entry[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.get(key)
}

// ShouldFetch reports whether a fetch for key would be admitted now.
func (s *Store[T]) ShouldFetch(key resource.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return ShouldFetch(s.get(key), s.clock(), s.threshold)
}

// FetchIfNeeded fetches key in the calling goroutine when the gate admits it,
// and reports whether it did. The outcome is recorded in the entry, never
// returned. The fetch is detached from ctx's cancellation: a caller giving
// up early still waits for the outcome to be recorded.
func (s *Store[T]) FetchIfNeeded(ctx context.Context, key resource.Key) bool {
	return s.fetchNow(ctx, key, false)
}

// Dispatch is FetchIfNeeded in the background. Once started the fetch always
// runs to completion and records its outcome.
func (s *Store[T]) Dispatch(ctx context.Context, key resource.Key) bool {
	return s.dispatch(ctx, key, false)
}

// Refetch fetches key regardless of freshness or a settled failure. This is
// the only way out of Failed and NotFound. A fetch already in flight for key
// is never duplicated: Refetch then does nothing and returns false.
func (s *Store[T]) Refetch(ctx context.Context, key resource.Key) bool {
	return s.fetchNow(ctx, key, true)
}

// DispatchRefetch is Refetch in the background.
func (s *Store[T]) DispatchRefetch(ctx context.Context, key resource.Key) bool {
	return s.dispatch(ctx, key, true)
}

// Invalidate resets key to Absent.
func (s *Store[T]) Invalidate(key resource.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.apply(key, InvalidatedEvent[T]())
}

// Fail records err against key without fetching, used to surface a failed
// mutation on the entry it targeted.
func (s *Store[T]) Fail(key resource.Key, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.apply(key, FailureEvent[T](err))
}

// Wait blocks until every dispatched fetch has recorded its outcome.
func (s *Store[T]) Wait() {
	s.inflight.Wait()
}

// Len is the number of entries currently held.
func (s *Store[T]) Len() int {
	return s.entries.EstimatedSize()
}

func (s *Store[T]) fetchNow(ctx context.Context, key resource.Key, force bool) bool {
	if !s.begin(ctx, key, force) {
		return false
	}
	s.run(context.WithoutCancel(ctx), key)
	return true
}

func (s *Store[T]) dispatch(ctx context.Context, key resource.Key, force bool) bool {
	if !s.begin(ctx, key, force) {
		return false
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.run(context.WithoutCancel(ctx), key)
	}()
	return true
}

// begin runs the gate and, when it admits the fetch, moves the entry to
// Loading before the lock is released. Forcing bypasses freshness and settled
// failures but never admits a second fetch while one is in flight.
func (s *Store[T]) begin(ctx context.Context, key resource.Key, force bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.get(key)
	now := s.clock()
	recordRequest(ctx, s.kind, requestStatus(current, now, s.threshold))

	admit := ShouldFetch(current, now, s.threshold)
	if force {
		admit = current.State != Loading
	}
	if !admit {
		return false
	}

	s.apply(key, RequestedEvent[T]())
	return true
}

func (s *Store[T]) run(ctx context.Context, key resource.Key) {
	ctx, span := tracer().Start(ctx, "store.fetch")
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	data, err := s.invoke(ctx, key)
	duration := time.Since(start)

	var ev Event[T]
	switch {
	case err == nil:
		ev = ReceivedEvent(data, s.clock())
	case errors.Is(err, failure.ErrNotFound):
		ev = MissingEvent[T]()
	default:
		ev = FailureEvent[T](err)
	}

	s.mu.Lock()
	entry := s.apply(key, ev)
	s.mu.Unlock()

	recordFetch(ctx, span, s.kind, entry.State, duration, err)

	l := log.Debug()
	if entry.State == Failed {
		l = log.Warn().Err(err)
	}
	l.Str("store", string(s.kind)).
		Str("key", key.String()).
		Stringer("state", entry.State).
		Dur("duration", duration).
		Msg("fetch complete")
}

// invoke calls the fetcher, converting a panic into a failure so the entry
// never stays Loading because of it.
func (s *Store[T]) invoke(ctx context.Context, key resource.Key) (data T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetch of %s panicked: %v", key, r)
		}
	}()

	return s.fetch(ctx, key)
}

// get and apply must be called with mu held.

func (s *Store[T]) get(key resource.Key) Entry[T] {
	entry, ok := s.entries.GetEntry(key)
	if !ok {
		return Entry[T]{State: Absent}
	}
	return entry.Value
}

func (s *Store[T]) apply(key resource.Key, ev Event[T]) Entry[T] {
	next := Transition(s.get(key), ev)
	if next.State == Absent {
		s.entries.Invalidate(key)
	} else {
		s.entries.Set(key, next)
	}
	return next
}

func requestStatus[T any](e Entry[T], now time.Time, threshold time.Duration) string {
	switch e.State {
	case Absent:
		return "absent"
	case Loading:
		return "in_flight"
	case Loaded:
		if e.Fresh(now, threshold) {
			return "fresh"
		}
		return "stale"
	default:
		return "settled"
	}
}
