package transport

import (
	"context"
	"sync"
)

type locationKey struct{}

// ContextWithLocation records the presentation layer's current location so a
// session expiry can send the user back to it after login.
func ContextWithLocation(ctx context.Context, location string) context.Context {
	return context.WithValue(ctx, locationKey{}, location)
}

// LocationFromContext returns the location recorded by ContextWithLocation,
// or "/" when none was recorded.
func LocationFromContext(ctx context.Context) string {
	if location, ok := ctx.Value(locationKey{}).(string); ok && location != "" {
		return location
	}
	return "/"
}

// PendingRedirect is a Redirector that holds the most recent redirect target
// until the presentation layer takes it and navigates.
type PendingRedirect struct {
	mu     sync.Mutex
	target string
}

func (p *PendingRedirect) Redirect(_ context.Context, target string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.target = target
}

// Take returns the pending target and clears it.
func (p *PendingRedirect) Take() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	target := p.target
	p.target = ""
	return target, target != ""
}
