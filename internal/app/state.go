// Package app assembles the process-wide client state: one store per
// resource kind, the mutation coordinator and the pending session redirect.
// The state starts empty; nothing is fetched until asked for.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/smeagol-wiki/smeagol-client/internal/config"
	"github.com/smeagol-wiki/smeagol-client/internal/mutation"
	"github.com/smeagol-wiki/smeagol-client/internal/resource"
	"github.com/smeagol-wiki/smeagol-client/internal/store"
	"github.com/smeagol-wiki/smeagol-client/internal/transport"
	"github.com/smeagol-wiki/smeagol-client/internal/wiki"
	"golang.org/x/sync/errgroup"
)

type State struct {
	Wikis     *store.Store[wiki.Wiki]
	Pages     *store.Store[wiki.Page]
	History   *store.Store[wiki.History]
	Mutations *mutation.Coordinator
	Redirects *transport.PendingRedirect

	prefetchLimit int
}

// New wires the stores to the wiki API described by cfg. Requests go through
// httpClient, which may be nil for the default client.
func New(cfg config.Config, httpClient *http.Client) (*State, error) {
	redirects := &transport.PendingRedirect{}

	opts := []transport.Option{
		transport.WithLoginPath(cfg.Wiki.LoginPath),
		transport.WithRedirector(redirects),
	}
	if httpClient != nil {
		opts = append(opts, transport.WithHTTPClient(httpClient))
	}

	api, err := transport.New(cfg.Wiki.APIURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("wiki transport: %w", err)
	}
	client := wiki.NewClient(api)

	storeOpts := store.Options{
		StaleThreshold: cfg.Store.StaleThreshold(),
		MaximumSize:    cfg.Store.MaximumSize,
		FetchTimeout:   cfg.Store.FetchTimeout(),
	}

	s := &State{
		Wikis:         store.New(resource.KindWiki, client.FetchWiki, storeOpts),
		Pages:         store.New(resource.KindContent, client.FetchPage, storeOpts),
		History:       store.New(resource.KindHistory, client.FetchHistory, storeOpts),
		Redirects:     redirects,
		prefetchLimit: cfg.Store.PrefetchConcurrency,
	}
	s.Mutations = mutation.NewCoordinator(client, s.Wikis, s.Pages, s.History)

	return s, nil
}

// Prefetch loads the wiki metadata, content and history of each page,
// running at most the configured number of fetches at once. Entries the gate
// refuses are skipped. It returns the number of fetches performed.
func (s *State) Prefetch(ctx context.Context, locs ...resource.Locator) int {
	var fetched atomic.Int32

	g, ctx := errgroup.WithContext(ctx)
	if s.prefetchLimit > 0 {
		g.SetLimit(s.prefetchLimit)
	}

	count := func(did bool) {
		if did {
			fetched.Add(1)
		}
	}

	for _, loc := range locs {
		g.Go(func() error {
			count(s.Wikis.FetchIfNeeded(ctx, resource.WikiKey(loc)))
			return nil
		})
		g.Go(func() error {
			count(s.Pages.FetchIfNeeded(ctx, resource.ContentKey(loc)))
			return nil
		})
		g.Go(func() error {
			count(s.History.FetchIfNeeded(ctx, resource.HistoryKey(loc)))
			return nil
		})
	}

	_ = g.Wait()

	log.Debug().
		Int("pages", len(locs)).
		Int32("fetched", fetched.Load()).
		Msg("prefetch complete")

	return int(fetched.Load())
}

// Wait blocks until every dispatched fetch in every store has completed.
func (s *State) Wait() {
	s.Wikis.Wait()
	s.Pages.Wait()
	s.History.Wait()
}
