package store_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/smeagol-wiki/smeagol-client/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, time.May, 7, 12, 0, 0, 0, time.UTC)

func TestShouldFetch(t *testing.T) {
	threshold := 10 * time.Second

	cases := []struct {
		name  string
		entry store.Entry[string]
		now   time.Time
		want  bool
	}{
		{"absent", store.Entry[string]{State: store.Absent}, epoch, true},
		{"loading", store.Entry[string]{State: store.Loading}, epoch, false},
		{"not found", store.Entry[string]{State: store.NotFound}, epoch.Add(time.Hour), false},
		{"failed", store.Entry[string]{State: store.Failed}, epoch.Add(time.Hour), false},
		{"loaded fresh", store.Entry[string]{State: store.Loaded, FetchedAt: epoch}, epoch.Add(9999 * time.Millisecond), false},
		{"loaded at threshold", store.Entry[string]{State: store.Loaded, FetchedAt: epoch}, epoch.Add(threshold), true},
		{"loaded stale", store.Entry[string]{State: store.Loaded, FetchedAt: epoch}, epoch.Add(time.Minute), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, store.ShouldFetch(tc.entry, tc.now, threshold))
		})
	}
}

func TestTransition(t *testing.T) {
	loaded := store.Entry[string]{State: store.Loaded, Data: "old", FetchedAt: epoch}
	boom := errors.New("boom")

	cases := []struct {
		name  string
		from  store.Entry[string]
		event store.Event[string]
		want  store.Entry[string]
	}{
		{"request from absent", store.Entry[string]{}, store.RequestedEvent[string](), store.Entry[string]{State: store.Loading}},
		{"request drops stale data", loaded, store.RequestedEvent[string](), store.Entry[string]{State: store.Loading}},
		{"received", store.Entry[string]{State: store.Loading}, store.ReceivedEvent("new", epoch), store.Entry[string]{State: store.Loaded, Data: "new", FetchedAt: epoch}},
		{"missing", store.Entry[string]{State: store.Loading}, store.MissingEvent[string](), store.Entry[string]{State: store.NotFound}},
		{"failure", store.Entry[string]{State: store.Loading}, store.FailureEvent[string](boom), store.Entry[string]{State: store.Failed, Err: boom}},
		{"invalidated", loaded, store.InvalidatedEvent[string](), store.Entry[string]{State: store.Absent}},
		{"late result after invalidation", store.Entry[string]{}, store.ReceivedEvent("late", epoch), store.Entry[string]{State: store.Loaded, Data: "late", FetchedAt: epoch}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			from := tc.from
			assert.Equal(t, tc.want, store.Transition(tc.from, tc.event))
			assert.Equal(t, from, tc.from)
		})
	}
}

func TestEntry_MarshalJSON(t *testing.T) {
	t.Run("loaded", func(t *testing.T) {
		data, err := json.Marshal(store.Entry[string]{State: store.Loaded, Data: "page", FetchedAt: epoch})
		require.NoError(t, err)
		assert.JSONEq(t, `{"state":"loaded","data":"page","fetchedAt":"2024-05-07T12:00:00Z"}`, string(data))
	})

	t.Run("failed", func(t *testing.T) {
		data, err := json.Marshal(store.Entry[string]{State: store.Failed, Data: "ignored", Err: errors.New("boom")})
		require.NoError(t, err)
		assert.JSONEq(t, `{"state":"failed","error":"boom"}`, string(data))
	})

	t.Run("not found", func(t *testing.T) {
		data, err := json.Marshal(store.Entry[string]{State: store.NotFound})
		require.NoError(t, err)
		assert.JSONEq(t, `{"state":"not_found"}`, string(data))
	})
}
