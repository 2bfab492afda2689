package wiki_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smeagol-wiki/smeagol-client/internal/failure"
	"github.com/smeagol-wiki/smeagol-client/internal/resource"
	"github.com/smeagol-wiki/smeagol-client/internal/testhelpers"
	"github.com/smeagol-wiki/smeagol-client/internal/transport"
	"github.com/smeagol-wiki/smeagol-client/internal/wiki"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var home = resource.NewLocator("42", "master", "docs/Home")

func setup(t *testing.T) (*testhelpers.MockWikiServer, *wiki.Client) {
	t.Helper()

	mock := testhelpers.SetupMockWikiServer(t)
	t.Cleanup(mock.Close)

	api, err := transport.New(mock.Server.URL)
	require.NoError(t, err)

	return mock, wiki.NewClient(api)
}

func TestFetchWiki(t *testing.T) {
	mock, client := setup(t)
	mock.SetWiki("42", "master", wiki.Wiki{Name: "Team Wiki", Directory: "docs", LandingPage: "docs/Home"})

	w, err := client.FetchWiki(context.Background(), resource.WikiKey(home))

	require.NoError(t, err)
	assert.Equal(t, "Team Wiki", w.Name)
	assert.Equal(t, "docs/Home", w.LandingPage)
}

func TestFetchPage(t *testing.T) {
	mock, client := setup(t)
	commitDate := time.Date(2024, time.May, 7, 17, 59, 36, 0, time.UTC)
	mock.SetPage("docs/Home", wiki.Page{
		Path:    "docs/Home",
		Content: "# Home",
		Commit: wiki.Commit{
			ID:      "a1b2c3",
			Author:  wiki.Author{DisplayName: "Tricia Trillian", Email: "tricia@example.com"},
			Date:    commitDate,
			Message: "initial",
		},
		Links: wiki.Links{"edit": {Href: "/edit"}},
	})

	page, err := client.FetchPage(context.Background(), resource.ContentKey(home))

	require.NoError(t, err)
	assert.Equal(t, "# Home", page.Content)
	assert.Equal(t, "a1b2c3", page.Commit.ID)
	assert.Equal(t, commitDate, page.Commit.Date)
	assert.True(t, page.Links.Has("edit"))
	assert.False(t, page.Links.Has("delete"))
}

func TestFetchPage_AtCommit(t *testing.T) {
	mock, client := setup(t)
	mock.SetPage("docs/Home", wiki.Page{Path: "docs/Home", Content: "new"})
	mock.SetPage("docs/Home@old", wiki.Page{Path: "docs/Home", Content: "old"})

	page, err := client.FetchPage(context.Background(), resource.CacheKey(resource.KindContent, home, "old"))

	require.NoError(t, err)
	assert.Equal(t, "old", page.Content)
}

func TestFetchHistory(t *testing.T) {
	mock, client := setup(t)
	mock.SetHistory("docs/Home", wiki.History{
		Path:    "docs/Home",
		Commits: []wiki.Commit{{ID: "2"}, {ID: "1"}},
	})

	history, err := client.FetchHistory(context.Background(), resource.HistoryKey(home))

	require.NoError(t, err)
	require.Len(t, history.Commits, 2)
	assert.Equal(t, "2", history.Commits[0].ID)
}

func TestFetch_NotFound(t *testing.T) {
	_, client := setup(t)

	_, err := client.FetchPage(context.Background(), resource.ContentKey(home))

	assert.ErrorIs(t, err, failure.ErrNotFound)
}

func TestFetch_ServerError(t *testing.T) {
	mock, client := setup(t)
	mock.SetStatus(http.StatusInternalServerError)

	_, err := client.FetchPage(context.Background(), resource.ContentKey(home))

	var server failure.ServerError
	require.ErrorAs(t, err, &server)
	assert.Equal(t, http.StatusInternalServerError, server.StatusCode)
}

func TestFetch_SessionExpired(t *testing.T) {
	mock, client := setup(t)
	mock.ExpireSession()

	_, err := client.FetchWiki(context.Background(), resource.WikiKey(home))

	assert.ErrorIs(t, err, failure.ErrAuthExpired)
}

func TestFetch_NetworkError(t *testing.T) {
	mock, client := setup(t)
	mock.Close()

	_, err := client.FetchPage(context.Background(), resource.ContentKey(home))

	assert.Equal(t, "network", failure.Kind(err))
}

func TestFetch_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{not json"))
	}))
	defer server.Close()

	api, err := transport.New(server.URL)
	require.NoError(t, err)

	_, err = wiki.NewClient(api).FetchPage(context.Background(), resource.ContentKey(home))

	assert.ErrorContains(t, err, "malformed response")
	assert.Equal(t, "unknown", failure.Kind(err))
}

func TestCreatePage(t *testing.T) {
	mock, client := setup(t)

	err := client.CreatePage(context.Background(), home, "Create page docs/Home (smeagol)", "# Home")

	require.NoError(t, err)
	page, ok := mock.Page("docs/Home")
	require.True(t, ok)
	assert.Equal(t, "# Home", page.Content)

	requests := mock.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, http.MethodPost, requests[0].Method)
	assert.Equal(t, "/repositories/42/branches/master/content/docs/Home", requests[0].Path)
	assert.Equal(t, "Create page docs/Home (smeagol)", requests[0].Body["message"])
}

func TestEditPage(t *testing.T) {
	mock, client := setup(t)
	mock.SetPage("docs/Home", wiki.Page{Path: "docs/Home", Content: "before"})

	err := client.EditPage(context.Background(), home, "edit", "after")

	require.NoError(t, err)
	page, _ := mock.Page("docs/Home")
	assert.Equal(t, "after", page.Content)
	assert.Equal(t, http.MethodPut, mock.Requests()[0].Method)
}

func TestEditPage_Missing(t *testing.T) {
	_, client := setup(t)

	err := client.EditPage(context.Background(), home, "edit", "after")

	assert.ErrorIs(t, err, failure.ErrNotFound)
}

func TestDeletePage(t *testing.T) {
	mock, client := setup(t)
	mock.SetPage("docs/Home", wiki.Page{Path: "docs/Home"})

	err := client.DeletePage(context.Background(), home, "Delete page docs/Home (smeagol)")

	require.NoError(t, err)
	_, ok := mock.Page("docs/Home")
	assert.False(t, ok)

	requests := mock.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, http.MethodDelete, requests[0].Method)
	assert.Equal(t, "message=Delete+page+docs%2FHome+%28smeagol%29", requests[0].Query)
}

func TestMovePage(t *testing.T) {
	mock, client := setup(t)
	mock.SetPage("docs/Home", wiki.Page{Path: "docs/Home", Content: "moving"})

	target := home.WithPath("docs/Start")
	err := client.MovePage(context.Background(), home, target, "move")

	require.NoError(t, err)
	_, ok := mock.Page("docs/Home")
	assert.False(t, ok)
	moved, ok := mock.Page("docs/Start")
	require.True(t, ok)
	assert.Equal(t, "moving", moved.Content)

	request := mock.Requests()[0]
	assert.Equal(t, "/repositories/42/branches/master/content/docs/Start", request.Path)
	assert.Equal(t, "docs/Home", request.Body["moveFrom"])
}

func TestRestorePage(t *testing.T) {
	mock, client := setup(t)
	mock.SetPage("docs/Home", wiki.Page{Path: "docs/Home", Content: "new"})
	mock.SetPage("docs/Home@c1", wiki.Page{Path: "docs/Home", Content: "old"})

	err := client.RestorePage(context.Background(), home, "restore", "c1")

	require.NoError(t, err)
	page, _ := mock.Page("docs/Home")
	assert.Equal(t, "old", page.Content)
	assert.Equal(t, "c1", mock.Requests()[0].Body["restore"])
}
