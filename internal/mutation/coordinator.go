// Package mutation performs page changes against the wiki API and keeps the
// stores consistent with them.
package mutation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/smeagol-wiki/smeagol-client/internal/failure"
	"github.com/smeagol-wiki/smeagol-client/internal/resource"
	"github.com/smeagol-wiki/smeagol-client/internal/store"
	"github.com/smeagol-wiki/smeagol-client/internal/wiki"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// API is the subset of the wiki client that changes pages.
type API interface {
	CreatePage(ctx context.Context, loc resource.Locator, message, content string) error
	EditPage(ctx context.Context, loc resource.Locator, message, content string) error
	DeletePage(ctx context.Context, loc resource.Locator, message string) error
	MovePage(ctx context.Context, source, target resource.Locator, message string) error
	RestorePage(ctx context.Context, loc resource.Locator, message, commit string) error
}

// Continuation receives the path to navigate to after a successful mutation.
type Continuation func(path string)

// Coordinator runs mutations. On success it invalidates the content and
// history entries of every page the mutation touched, then invokes the
// continuation exactly once. On failure nothing is invalidated: the content
// entry of the mutated page is marked Failed instead.
type Coordinator struct {
	api     API
	wikis   *store.Store[wiki.Wiki]
	pages   *store.Store[wiki.Page]
	history *store.Store[wiki.History]
}

func NewCoordinator(api API, wikis *store.Store[wiki.Wiki], pages *store.Store[wiki.Page], history *store.Store[wiki.History]) *Coordinator {
	return &Coordinator{
		api:     api,
		wikis:   wikis,
		pages:   pages,
		history: history,
	}
}

// Create writes a new page called name in the wiki of loc. The name is
// validated before anything is sent.
func (c *Coordinator) Create(ctx context.Context, loc resource.Locator, name, message, content string, then Continuation) Result {
	id := uuid.New()
	if err := resource.ValidatePageName(name, ""); err != nil {
		return c.rejected(ctx, id, "create", err)
	}

	target := loc.WithPath(name)
	if message == "" {
		message = fmt.Sprintf("Create page %s (smeagol)", target.Path)
	}

	return c.run(ctx, operation{
		id:       id,
		name:     "create",
		loc:      target,
		affected: []resource.Locator{target},
		navigate: func() string { return target.Path },
		call: func(ctx context.Context) error {
			return c.api.CreatePage(ctx, target, message, content)
		},
	}, then)
}

// Edit replaces the content of the page at loc.
func (c *Coordinator) Edit(ctx context.Context, loc resource.Locator, message, content string, then Continuation) Result {
	if message == "" {
		message = fmt.Sprintf("Edit page %s (smeagol)", loc.Path)
	}

	return c.run(ctx, operation{
		id:       uuid.New(),
		name:     "edit",
		loc:      loc,
		affected: []resource.Locator{loc},
		navigate: func() string { return loc.Path },
		call: func(ctx context.Context) error {
			return c.api.EditPage(ctx, loc, message, content)
		},
	}, then)
}

// Delete removes the page at loc and navigates to the wiki's landing page,
// when the wiki metadata is loaded.
func (c *Coordinator) Delete(ctx context.Context, loc resource.Locator, message string, then Continuation) Result {
	if message == "" {
		message = fmt.Sprintf("Delete page %s (smeagol)", loc.Path)
	}

	return c.run(ctx, operation{
		id:       uuid.New(),
		name:     "delete",
		loc:      loc,
		affected: []resource.Locator{loc},
		navigate: func() string { return c.landingPage(loc) },
		call: func(ctx context.Context) error {
			return c.api.DeletePage(ctx, loc, message)
		},
	}, then)
}

// Move renames the page at source to target. The target name must differ
// from the current one and pass validation.
func (c *Coordinator) Move(ctx context.Context, source resource.Locator, target, message string, then Continuation) Result {
	id := uuid.New()
	if err := resource.ValidatePageName(target, source.Path); err != nil {
		return c.rejected(ctx, id, "move", err)
	}

	destination := source.WithPath(target)
	if message == "" {
		message = fmt.Sprintf("Move page %s to %s (smeagol)", source.Path, destination.Path)
	}

	return c.run(ctx, operation{
		id:       id,
		name:     "move",
		loc:      source,
		affected: []resource.Locator{source, destination},
		navigate: func() string { return destination.Path },
		call: func(ctx context.Context) error {
			return c.api.MovePage(ctx, source, destination, message)
		},
	}, then)
}

// Restore replaces the page at loc with its content at commit.
func (c *Coordinator) Restore(ctx context.Context, loc resource.Locator, commit, message string, then Continuation) Result {
	if message == "" {
		message = fmt.Sprintf("Restore commit %s from page %s (smeagol)", commit, loc.Path)
	}

	return c.run(ctx, operation{
		id:       uuid.New(),
		name:     "restore",
		loc:      loc,
		affected: []resource.Locator{loc},
		navigate: func() string { return loc.Path },
		call: func(ctx context.Context) error {
			return c.api.RestorePage(ctx, loc, message, commit)
		},
	}, then)
}

type operation struct {
	id       uuid.UUID
	name     string
	loc      resource.Locator
	affected []resource.Locator
	navigate func() string
	call     func(ctx context.Context) error
}

func (c *Coordinator) run(ctx context.Context, op operation, then Continuation) Result {
	ctx, span := otel.Tracer("github.com/smeagol-wiki/smeagol-client/internal/mutation").
		Start(ctx, "mutation."+op.name)
	defer span.End()

	span.SetAttributes(
		attribute.String("mutation.id", op.id.String()),
		attribute.String("mutation.page", op.loc.String()),
	)

	logger := log.Ctx(ctx).With().
		Str("mutation", op.name).
		Stringer("id", op.id).
		Stringer("page", op.loc).
		Logger()

	if err := op.call(ctx); err != nil {
		c.pages.Fail(resource.ContentKey(op.loc), err)

		span.RecordError(err)
		span.SetStatus(codes.Error, "mutation failed")
		logger.Warn().Err(err).Str("failure", failure.Kind(err)).Msg("mutation failed")

		return Result{ID: op.id, Err: err}
	}

	for _, loc := range op.affected {
		c.pages.Invalidate(resource.ContentKey(loc))
		c.history.Invalidate(resource.HistoryKey(loc))
	}

	target := op.navigate()
	logger.Info().Str("navigate", target).Msg("mutation complete")

	if then != nil {
		then(target)
	}

	return Result{ID: op.id, Navigate: target}
}

func (c *Coordinator) rejected(ctx context.Context, id uuid.UUID, name string, err error) Result {
	log.Ctx(ctx).Info().
		Str("mutation", name).
		Stringer("id", id).
		Err(err).
		Msg("mutation rejected")

	return Result{ID: id, Err: err}
}

func (c *Coordinator) landingPage(loc resource.Locator) string {
	entry := c.wikis.Get(resource.WikiKey(loc))
	if entry.State != store.Loaded {
		return ""
	}
	return entry.Data.LandingPage
}
