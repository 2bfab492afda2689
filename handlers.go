package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/smeagol-wiki/smeagol-client/internal/app"
	"github.com/smeagol-wiki/smeagol-client/internal/audit"
	"github.com/smeagol-wiki/smeagol-client/internal/failure"
	"github.com/smeagol-wiki/smeagol-client/internal/mutation"
	"github.com/smeagol-wiki/smeagol-client/internal/resource"
	"github.com/smeagol-wiki/smeagol-client/internal/store"
	"github.com/smeagol-wiki/smeagol-client/internal/transport"
)

// HTTPStatuser provides HTTP status information for errors
type HTTPStatuser interface {
	Status() (int, string)
}

// currentLocationHeader carries the presentation layer's current URL, used
// to return there after a session expiry.
const currentLocationHeader = "X-Current-Location"

var validate = validator.New()

// keyFunc derives the store key addressed by a request.
type keyFunc func(r *http.Request) (resource.Key, error)

func wikiKey(r *http.Request) (resource.Key, error) {
	loc := resource.NewLocator(r.PathValue("repository"), r.PathValue("branch"), "")
	return resource.WikiKey(loc), nil
}

func contentKey(r *http.Request) (resource.Key, error) {
	loc, err := pageLocator(r)
	if err != nil {
		return "", err
	}
	return resource.CacheKey(resource.KindContent, loc, r.URL.Query().Get("commit")), nil
}

func historyKey(r *http.Request) (resource.Key, error) {
	loc, err := pageLocator(r)
	if err != nil {
		return "", err
	}
	return resource.HistoryKey(loc), nil
}

func pageLocator(r *http.Request) (resource.Locator, error) {
	loc := resource.NewLocator(r.PathValue("repository"), r.PathValue("branch"), r.PathValue("path"))
	if loc.Path == "" {
		return loc, failure.ValidationError{Field: "path", Value: r.PathValue("path"), Reason: "no page path given"}
	}
	return loc, nil
}

// entryResponse is the view of a store entry handed to the presentation
// layer. Entry is the state as it was when the request arrived, so stale
// data stays readable while its refresh is in flight.
type entryResponse[T any] struct {
	Entry      store.Entry[T] `json:"entry"`
	Dispatched bool           `json:"dispatched"`
}

// handleGetEntry returns the entry for the addressed resource and starts a
// background fetch when one is needed. "refresh=true" forces the fetch,
// which is the only way to retry a failed or missing resource; it still
// never starts a second fetch while one is in flight.
func handleGetEntry[T any](s *store.Store[T], key keyFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		k, err := key(r)
		if err != nil {
			log.Info().Msgf("invalid resource request: %v", err)
			status, message := errorStatus(err)
			writeJSONError(w, status, message)
			return
		}

		entry := s.Get(k)

		var dispatched bool
		if r.URL.Query().Get("refresh") == "true" {
			dispatched = s.DispatchRefetch(r.Context(), k)
		} else {
			dispatched = s.Dispatch(r.Context(), k)
		}

		auditEntry := audit.Log(r.Context())
		auditEntry.Store = string(s.Kind())
		auditEntry.Key = k.String()
		auditEntry.State = entry.State.String()
		auditEntry.Dispatched = dispatched

		writeJSON(w, http.StatusOK, entryResponse[T]{Entry: entry, Dispatched: dispatched})
	})
}

func handleInvalidate[T any](s *store.Store[T], key keyFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		k, err := key(r)
		if err != nil {
			status, message := errorStatus(err)
			writeJSONError(w, status, message)
			return
		}

		s.Invalidate(k)

		auditEntry := audit.Log(r.Context())
		auditEntry.Store = string(s.Kind())
		auditEntry.Key = k.String()

		w.WriteHeader(http.StatusNoContent)
	})
}

type mutationRequest struct {
	Action  string `json:"action" validate:"required,oneof=create edit delete move restore"`
	Message string `json:"message" validate:"max=1024"`
	Content string `json:"content"`
	Target  string `json:"target" validate:"required_if=Action move"`
	Commit  string `json:"commit" validate:"required_if=Action restore"`
}

type mutationResponse struct {
	ID       string `json:"id"`
	Navigate string `json:"navigate"`
}

// handlePostMutation applies a change to the addressed page. For create the
// path names the new page.
func handlePostMutation(mutations *mutation.Coordinator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		var req mutationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Info().Msgf("invalid mutation body: %v", err)
			writeJSONError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		if err := validate.Struct(req); err != nil {
			log.Info().Msgf("invalid mutation request: %v", err)
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		ctx := r.Context()
		loc := resource.NewLocator(r.PathValue("repository"), r.PathValue("branch"), r.PathValue("path"))

		if req.Action != "create" && loc.Path == "" {
			writeJSONError(w, http.StatusBadRequest, "no page path given")
			return
		}

		var result mutation.Result
		switch req.Action {
		case "create":
			result = mutations.Create(ctx, loc.Wiki(), r.PathValue("path"), req.Message, req.Content, nil)
		case "edit":
			result = mutations.Edit(ctx, loc, req.Message, req.Content, nil)
		case "delete":
			result = mutations.Delete(ctx, loc, req.Message, nil)
		case "move":
			result = mutations.Move(ctx, loc, req.Target, req.Message, nil)
		case "restore":
			result = mutations.Restore(ctx, loc, req.Commit, req.Message, nil)
		}

		auditEntry := audit.Log(ctx)
		auditEntry.Action = req.Action
		auditEntry.MutationID = result.ID.String()

		if result.Failed() {
			auditEntry.Error = result.Err.Error()
			log.Info().Msgf("%s of %s failed: %v", req.Action, loc, result.Err)
			status, message := errorStatus(result.Err)
			writeJSONError(w, status, message)
			return
		}

		target, _ := result.Target()
		auditEntry.Navigate = target
		writeJSON(w, http.StatusOK, mutationResponse{ID: result.ID.String(), Navigate: target})
	})
}

type prefetchResponse struct {
	Fetched int `json:"fetched"`
}

// handlePrefetch loads everything a page view needs before it is asked for.
func handlePrefetch(state *app.State) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		loc, err := pageLocator(r)
		if err != nil {
			status, message := errorStatus(err)
			writeJSONError(w, status, message)
			return
		}

		fetched := state.Prefetch(r.Context(), loc)
		writeJSON(w, http.StatusOK, prefetchResponse{Fetched: fetched})
	})
}

type sessionResponse struct {
	Redirect string `json:"redirect"`
}

// handleGetSession hands over a pending login redirect, once.
func handleGetSession(redirects *transport.PendingRedirect) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		target, pending := redirects.Take()
		if !pending {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		writeJSON(w, http.StatusOK, sessionResponse{Redirect: target})
	})
}

func handleHealthCheck() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

// withCurrentLocation records the caller's location on the request context.
func withCurrentLocation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if location := r.Header.Get(currentLocationHeader); location != "" {
			audit.Log(r.Context()).Location = location
			r = r.WithContext(transport.ContextWithLocation(r.Context(), location))
		}
		next.ServeHTTP(w, r)
	})
}

func maxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.MaxBytesHandler(next, limit)
	}
}

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		requestError(w, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		// the status is already sent, so logging is all that is left
		log.Info().Msgf("failed to write response: %v", err)
	}
}

// writeJSONError writes a JSON error response with the given status code and message.
func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}

// errorStatus extracts HTTP status code and message from an error. Missing
// resources map to 404 and unreachable upstreams to 502; other errors that
// don't implement HTTPStatuser are a 500.
func errorStatus(err error) (int, string) {
	if errors.Is(err, failure.ErrNotFound) {
		return http.StatusNotFound, http.StatusText(http.StatusNotFound)
	}

	var statuser HTTPStatuser
	if errors.As(err, &statuser) {
		return statuser.Status()
	}

	var network failure.NetworkError
	if errors.As(err, &network) {
		return http.StatusBadGateway, fmt.Sprintf("wiki API unreachable: %s", network.URL)
	}

	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}

func requestError(w http.ResponseWriter, statusCode int) {
	http.Error(w, http.StatusText(statusCode), statusCode)
}

// drainRequestBody drains the request body by reading and discarding the contents.
// This is useful to ensure the request body is fully consumed, which is important
// for connection reuse in HTTP/1 clients.
func drainRequestBody(r *http.Request) {
	if r.Body != nil {
		// 5kb max: after this we'll assume the client is broken or malicious
		// and close the connection
		_, _ = io.CopyN(io.Discard, r.Body, 5*1024)
	}
}
