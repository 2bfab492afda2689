// Package audit writes one structured log line per sidecar request,
// describing what the request did to the client state.
package audit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Level is the level audit entries are written at.
const Level = zerolog.InfoLevel

type auditKey struct{}

// Entry collects the audit details of a request as it is handled.
type Entry struct {
	Method     string
	Path       string
	Status     int
	SourceIP   string
	UserAgent  string
	Location   string
	Error      string
	DurationMS int64

	// read routes
	Store      string
	Key        string
	State      string
	Dispatched bool

	// mutation routes
	Action     string
	MutationID string
	Navigate   string
}

// MarshalZerologObject writes the entry, omitting the store and mutation
// sections when the request touched neither.
func (e *Entry) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("method", e.Method).
		Str("path", e.Path).
		Int("status", e.Status).
		Str("sourceIP", e.SourceIP).
		Str("userAgent", e.UserAgent).
		Int64("durationMs", e.DurationMS)

	if e.Location != "" {
		ev.Str("location", e.Location)
	}
	if e.Error != "" {
		ev.Str("error", e.Error)
	}

	store := NewOptionalEvent(nil).
		Str("kind", e.Store).
		Str("key", e.Key).
		Str("state", e.State)
	if e.Store != "" {
		store.Bool("dispatched", e.Dispatched)
	}
	store.Set(ev, "store")

	NewOptionalEvent(nil).
		Str("action", e.Action).
		Str("id", e.MutationID).
		Str("navigate", e.Navigate).
		Set(ev, "mutation")
}

// Begin records the request details.
func (e *Entry) Begin(r *http.Request) {
	e.Method = r.Method
	e.Path = r.URL.Path
	e.UserAgent = r.UserAgent()
	e.SourceIP = sourceIP(r.RemoteAddr)
}

// End returns the function that writes the entry, to be deferred.
func (e *Entry) End(ctx context.Context) func() {
	start := time.Now()

	return func() {
		if r := recover(); r != nil {
			if e.Error != "" {
				e.Error += "; "
			}
			e.Error += fmt.Sprintf("panic: %v", r)
			defer panic(r)
		}

		e.DurationMS = time.Since(start).Milliseconds()
		if e.Status == 0 {
			e.Status = http.StatusOK
		}

		zerolog.Ctx(ctx).WithLevel(Level).EmbedObject(e).Msg("audit")
	}
}

// Context returns the audit entry carried by ctx, adding one when there is
// none.
func Context(ctx context.Context) (context.Context, *Entry) {
	if e, ok := ctx.Value(auditKey{}).(*Entry); ok {
		return ctx, e
	}

	e := &Entry{}
	return context.WithValue(ctx, auditKey{}, e), e
}

// Log returns the audit entry for ctx. Outside the middleware the entry is
// detached and never written.
func Log(ctx context.Context) *Entry {
	_, e := Context(ctx)
	return e
}

// Middleware adds an audit entry to each request and writes it when the
// request completes, including when the handler panics.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, entry := Context(r.Context())
			entry.Begin(r)
			defer entry.End(ctx)()

			next.ServeHTTP(&statusRecorder{ResponseWriter: w, entry: entry}, r.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	entry *Entry
}

func (s *statusRecorder) WriteHeader(statusCode int) {
	s.entry.Status = statusCode
	s.ResponseWriter.WriteHeader(statusCode)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func sourceIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
