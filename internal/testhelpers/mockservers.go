package testhelpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/smeagol-wiki/smeagol-client/internal/wiki"
)

// RecordedRequest is a request received by MockWikiServer.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]string
}

// MockWikiServer provides a configurable mock wiki API server for testing.
// Pages are keyed by path; pages at a historical commit are keyed by
// "path@commit".
type MockWikiServer struct {
	Server *httptest.Server

	mu             sync.Mutex
	wikis          map[string]wiki.Wiki
	pages          map[string]wiki.Page
	histories      map[string]wiki.History
	statusCode     int
	sessionExpired bool
	gate           chan struct{}
	requests       []RecordedRequest
}

// SetupMockWikiServer creates a mock wiki API serving the read routes and
// applying the page mutations to its in-memory content.
func SetupMockWikiServer(t *testing.T) *MockWikiServer {
	t.Helper()

	mock := &MockWikiServer{
		wikis:     map[string]wiki.Wiki{},
		pages:     map[string]wiki.Page{},
		histories: map[string]wiki.History{},
	}

	router := http.NewServeMux()

	router.HandleFunc("GET /repositories/{repository}/branches/{branch}", func(w http.ResponseWriter, r *http.Request) {
		if mock.intercept(w, r, nil) {
			return
		}
		mock.mu.Lock()
		payload, ok := mock.wikis[r.PathValue("repository")+"@"+r.PathValue("branch")]
		mock.mu.Unlock()
		writeOrNotFound(w, payload, ok)
	})

	router.HandleFunc("GET /repositories/{repository}/branches/{branch}/content/{path...}", func(w http.ResponseWriter, r *http.Request) {
		if mock.intercept(w, r, nil) {
			return
		}
		key := r.PathValue("path")
		if commit := r.URL.Query().Get("commit"); commit != "" {
			key += "@" + commit
		}
		mock.mu.Lock()
		payload, ok := mock.pages[key]
		mock.mu.Unlock()
		writeOrNotFound(w, payload, ok)
	})

	router.HandleFunc("GET /repositories/{repository}/branches/{branch}/history/{path...}", func(w http.ResponseWriter, r *http.Request) {
		if mock.intercept(w, r, nil) {
			return
		}
		mock.mu.Lock()
		payload, ok := mock.histories[r.PathValue("path")]
		mock.mu.Unlock()
		writeOrNotFound(w, payload, ok)
	})

	router.HandleFunc("/repositories/{repository}/branches/{branch}/content/{path...}", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{}
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, fmt.Sprintf("bad body: %v", err), http.StatusBadRequest)
				return
			}
		}
		if mock.intercept(w, r, body) {
			return
		}
		mock.applyMutation(w, r, body)
	})

	mock.Server = httptest.NewServer(router)
	return mock
}

// Close shuts down the mock server, releasing any blocked reads first.
func (m *MockWikiServer) Close() {
	m.Release()
	m.Server.Close()
}

func (m *MockWikiServer) SetWiki(repository, branch string, w wiki.Wiki) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wikis[repository+"@"+branch] = w
}

func (m *MockWikiServer) SetPage(key string, p wiki.Page) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[key] = p
}

func (m *MockWikiServer) Page(key string) (wiki.Page, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[key]
	return p, ok
}

func (m *MockWikiServer) SetHistory(path string, h wiki.History) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histories[path] = h
}

// SetStatus forces every request to answer with statusCode. Zero restores
// normal behaviour.
func (m *MockWikiServer) SetStatus(statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCode = statusCode
}

// ExpireSession makes every request answer 401 with a login Location header.
func (m *MockWikiServer) ExpireSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionExpired = true
}

// Hold blocks reads until Release is called, keeping fetches in flight.
func (m *MockWikiServer) Hold() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = make(chan struct{})
}

func (m *MockWikiServer) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

func (m *MockWikiServer) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// RequestCount counts received requests matching method and path.
func (m *MockWikiServer) RequestCount(method, path string) int {
	count := 0
	for _, r := range m.Requests() {
		if r.Method == method && r.Path == path {
			count++
		}
	}
	return count
}

// intercept records the request and answers it when a forced status or an
// expired session is configured. Reads wait on the gate, if any.
func (m *MockWikiServer) intercept(w http.ResponseWriter, r *http.Request, body map[string]string) bool {
	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Body:   body,
	})
	gate := m.gate
	statusCode := m.statusCode
	expired := m.sessionExpired
	m.mu.Unlock()

	if gate != nil && r.Method == http.MethodGet {
		<-gate
	}

	if expired {
		w.Header().Set("Location", "https://cas.example.com/login")
		w.WriteHeader(http.StatusUnauthorized)
		return true
	}
	if statusCode != 0 {
		w.WriteHeader(statusCode)
		return true
	}
	return false
}

func (m *MockWikiServer) applyMutation(w http.ResponseWriter, r *http.Request, body map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := r.PathValue("path")
	_, exists := m.pages[path]

	switch {
	case r.Method == http.MethodPost:
		if exists {
			w.WriteHeader(http.StatusConflict)
			return
		}
		m.pages[path] = wiki.Page{Path: path, Content: body["content"]}
		w.WriteHeader(http.StatusCreated)

	case r.Method == http.MethodPut && body["moveFrom"] != "":
		source, ok := m.pages[body["moveFrom"]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(m.pages, body["moveFrom"])
		source.Path = path
		m.pages[path] = source
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodPut && body["restore"] != "":
		old, ok := m.pages[path+"@"+body["restore"]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		m.pages[path] = wiki.Page{Path: path, Content: old.Content}
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodPut:
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		m.pages[path] = wiki.Page{Path: path, Content: body["content"]}
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodDelete:
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(m.pages, path)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeOrNotFound(w http.ResponseWriter, payload any, ok bool) {
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	WriteJSON(w, payload)
}

// WriteJSON is a helper function that writes a JSON response.
// It sets the Content-Type header and marshals the payload to JSON.
func WriteJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(payload)
	if err != nil {
		// In test context, this should never happen with valid test data
		http.Error(w, fmt.Sprintf("failed to marshal JSON: %v", err), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(data)
}
