//go:build integration

package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/smeagol-wiki/smeagol-client/internal/wiki"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheck(t *testing.T) {
	harness := NewAPITestHarness(t)

	resp, err := harness.Client().Request(http.MethodGet, "/healthcheck", "", nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(resp.Body))
}

func TestBrowseEditBrowse(t *testing.T) {
	harness := NewAPITestHarness(t)
	harness.WikiMock.SetWiki("42", "master", wiki.Wiki{Name: "Team", LandingPage: "docs/Home"})
	harness.WikiMock.SetPage("docs/Home", wiki.Page{Path: "docs/Home", Content: "v1"})
	client := harness.Client()

	first, err := client.Entry("/api/pages/42/master/docs/Home")
	require.NoError(t, err)
	assert.True(t, first.Dispatched)
	harness.State.Wait()

	loaded, err := client.Entry("/api/pages/42/master/docs/Home")
	require.NoError(t, err)
	assert.Equal(t, "loaded", loaded.Entry.State)

	result, err := client.Mutate("42/master/docs/Home", map[string]string{"action": "edit", "content": "v2"})
	require.NoError(t, err)
	assert.Equal(t, "docs/Home", result.Navigate)

	// the edit invalidated the entry, so the next read fetches again
	after, err := client.Entry("/api/pages/42/master/docs/Home")
	require.NoError(t, err)
	assert.Equal(t, "absent", after.Entry.State)
	assert.True(t, after.Dispatched)
	harness.State.Wait()

	final, err := client.Entry("/api/pages/42/master/docs/Home")
	require.NoError(t, err)
	var page wiki.Page
	require.NoError(t, json.Unmarshal(final.Entry.Data, &page))
	assert.Equal(t, "v2", page.Content)
}

func TestStaleEntryServedWhileRefreshing(t *testing.T) {
	harness := NewAPITestHarness(t, WithStaleThreshold(50))
	harness.WikiMock.SetPage("docs/Home", wiki.Page{Path: "docs/Home", Content: "v1"})
	client := harness.Client()

	_, err := client.Entry("/api/pages/42/master/docs/Home")
	require.NoError(t, err)
	harness.State.Wait()

	time.Sleep(60 * time.Millisecond)
	harness.WikiMock.Hold()

	stale, err := client.Entry("/api/pages/42/master/docs/Home")
	require.NoError(t, err)
	assert.Equal(t, "loaded", stale.Entry.State)
	assert.True(t, stale.Dispatched)

	inFlight, err := client.Entry("/api/pages/42/master/docs/Home")
	require.NoError(t, err)
	assert.Equal(t, "loading", inFlight.Entry.State)
	assert.False(t, inFlight.Dispatched)

	harness.WikiMock.Release()
	harness.State.Wait()
	assert.Equal(t, 2, harness.WikiMock.RequestCount(http.MethodGet, "/repositories/42/branches/master/content/docs/Home"))
}

func TestDeleteNavigatesToLandingPage(t *testing.T) {
	harness := NewAPITestHarness(t)
	harness.WikiMock.SetWiki("42", "master", wiki.Wiki{Name: "Team", LandingPage: "docs/Home"})
	harness.WikiMock.SetPage("docs/Old", wiki.Page{Path: "docs/Old"})
	client := harness.Client()

	_, err := client.Entry("/api/wikis/42/master")
	require.NoError(t, err)
	harness.State.Wait()

	result, err := client.Mutate("42/master/docs/Old", map[string]string{"action": "delete"})
	require.NoError(t, err)
	assert.Equal(t, "docs/Home", result.Navigate)
}

func TestMutationErrorsAreRelayed(t *testing.T) {
	harness := NewAPITestHarness(t)

	_, err := harness.Client().Mutate("42/master/docs/Home", map[string]string{"action": "move", "target": "docs/Home"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "unchanged")
}

func TestSessionExpiry(t *testing.T) {
	harness := NewAPITestHarness(t)
	harness.WikiMock.ExpireSession()
	client := harness.Client()

	_, err := client.Request(http.MethodGet, "/api/history/42/master/docs/Home", "/wiki/42/master/docs/Home/history", nil)
	require.NoError(t, err)
	harness.State.Wait()

	redirect, err := client.Session()
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/authc?location=%2Fwiki%2F42%2Fmaster%2Fdocs%2FHome%2Fhistory", redirect)

	redirect, err = client.Session()
	require.NoError(t, err)
	assert.Empty(t, redirect)
}
