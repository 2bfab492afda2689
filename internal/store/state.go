package store

import (
	"encoding/json"
	"time"
)

// DefaultStaleThreshold is how long a loaded entry stays fresh.
const DefaultStaleThreshold = 10 * time.Second

// State is the state of a cache entry. An entry is in exactly one state.
type State int

const (
	// Absent: never requested, or invalidated since.
	Absent State = iota
	// Loading: a fetch is in flight and no data has arrived yet.
	Loading
	// Loaded: the last fetch succeeded at FetchedAt.
	Loaded
	// NotFound: the server confirmed the resource does not exist.
	NotFound
	// Failed: the last fetch failed for a reason other than not-found.
	Failed
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case NotFound:
		return "not_found"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Entry is the cached view of one resource. Data and FetchedAt are only
// meaningful when State is Loaded; Err only when State is Failed.
type Entry[T any] struct {
	State     State
	Data      T
	FetchedAt time.Time
	Err       error
}

// Fresh reports whether the entry is loaded and younger than threshold. An
// entry exactly threshold old is stale.
func (e Entry[T]) Fresh(now time.Time, threshold time.Duration) bool {
	return e.State == Loaded && now.Sub(e.FetchedAt) < threshold
}

type entryJSON[T any] struct {
	State     State      `json:"state"`
	Data      *T         `json:"data,omitempty"`
	FetchedAt *time.Time `json:"fetchedAt,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// MarshalJSON renders only the fields that belong to the entry's state.
func (e Entry[T]) MarshalJSON() ([]byte, error) {
	out := entryJSON[T]{State: e.State}
	switch e.State {
	case Loaded:
		out.Data = &e.Data
		out.FetchedAt = &e.FetchedAt
	case Failed:
		if e.Err != nil {
			out.Error = e.Err.Error()
		}
	}
	return json.Marshal(out)
}

// ShouldFetch is the gate in front of every fetch. It admits a fetch for an
// absent entry or a stale loaded one, and refuses while a fetch is in flight
// or after a definitive failure or not-found.
func ShouldFetch[T any](e Entry[T], now time.Time, threshold time.Duration) bool {
	switch e.State {
	case Absent:
		return true
	case Loaded:
		return !e.Fresh(now, threshold)
	default:
		return false
	}
}

// EventKind names the inputs of the entry state machine.
type EventKind int

const (
	Requested EventKind = iota
	Received
	Missing
	Failure
	Invalidated
)

type Event[T any] struct {
	Kind EventKind
	Data T
	At   time.Time
	Err  error
}

func RequestedEvent[T any]() Event[T] {
	return Event[T]{Kind: Requested}
}

func ReceivedEvent[T any](data T, at time.Time) Event[T] {
	return Event[T]{Kind: Received, Data: data, At: at}
}

func MissingEvent[T any]() Event[T] {
	return Event[T]{Kind: Missing}
}

func FailureEvent[T any](err error) Event[T] {
	return Event[T]{Kind: Failure, Err: err}
}

func InvalidatedEvent[T any]() Event[T] {
	return Event[T]{Kind: Invalidated}
}

// Transition is the entry state machine. It never mutates its input. Every
// event is accepted in every state: a late fetch outcome landing on an
// invalidated entry overwrites it (last write wins).
func Transition[T any](_ Entry[T], ev Event[T]) Entry[T] {
	switch ev.Kind {
	case Requested:
		return Entry[T]{State: Loading}
	case Received:
		return Entry[T]{State: Loaded, Data: ev.Data, FetchedAt: ev.At}
	case Missing:
		return Entry[T]{State: NotFound}
	case Failure:
		return Entry[T]{State: Failed, Err: ev.Err}
	default:
		return Entry[T]{State: Absent}
	}
}
