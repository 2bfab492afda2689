package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/smeagol-wiki/smeagol-client/internal/failure"
	"github.com/smeagol-wiki/smeagol-client/internal/resource"
	"github.com/smeagol-wiki/smeagol-client/internal/transport"
)

type Client struct {
	api *transport.Client
}

func NewClient(api *transport.Client) *Client {
	return &Client{api: api}
}

// FetchWiki, FetchPage and FetchHistory have the shape of a store fetcher:
// the key is the API path of the resource.

func (c *Client) FetchWiki(ctx context.Context, key resource.Key) (Wiki, error) {
	return fetch[Wiki](ctx, c.api, key)
}

func (c *Client) FetchPage(ctx context.Context, key resource.Key) (Page, error) {
	return fetch[Page](ctx, c.api, key)
}

func (c *Client) FetchHistory(ctx context.Context, key resource.Key) (History, error) {
	return fetch[History](ctx, c.api, key)
}

func fetch[T any](ctx context.Context, api *transport.Client, key resource.Key) (T, error) {
	var payload T

	path := key.String()
	resp, err := api.Call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return payload, failure.NetworkError{URL: path, Err: err}
	}
	defer closeBody(resp)

	if err := failure.FromStatus(path, resp.StatusCode, transport.IsAuthenticationRedirect(resp)); err != nil {
		return payload, err
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return payload, fmt.Errorf("malformed response from %s: %w", path, err)
	}

	return payload, nil
}

type contentChange struct {
	Message string `json:"message"`
	Content string `json:"content"`
}

type moveChange struct {
	Message  string `json:"message"`
	MoveFrom string `json:"moveFrom"`
}

type restoreChange struct {
	Message string `json:"message"`
	Restore string `json:"restore"`
}

// CreatePage writes a new page.
func (c *Client) CreatePage(ctx context.Context, loc resource.Locator, message, content string) error {
	return c.mutate(ctx, http.MethodPost, resource.ContentKey(loc).String(), contentChange{Message: message, Content: content})
}

// EditPage replaces the content of an existing page.
func (c *Client) EditPage(ctx context.Context, loc resource.Locator, message, content string) error {
	return c.mutate(ctx, http.MethodPut, resource.ContentKey(loc).String(), contentChange{Message: message, Content: content})
}

// DeletePage removes a page. The change message travels as a query
// parameter since the request has no body.
func (c *Client) DeletePage(ctx context.Context, loc resource.Locator, message string) error {
	path := resource.ContentKey(loc).String() + "?message=" + url.QueryEscape(message)
	return c.mutate(ctx, http.MethodDelete, path, nil)
}

// MovePage writes the page at its new location, naming the location it moves
// from.
func (c *Client) MovePage(ctx context.Context, source, target resource.Locator, message string) error {
	return c.mutate(ctx, http.MethodPut, resource.ContentKey(target).String(), moveChange{Message: message, MoveFrom: source.Path})
}

// RestorePage replaces the page content with its content at commit.
func (c *Client) RestorePage(ctx context.Context, loc resource.Locator, message, commit string) error {
	return c.mutate(ctx, http.MethodPut, resource.ContentKey(loc).String(), restoreChange{Message: message, Restore: commit})
}

func (c *Client) mutate(ctx context.Context, method, path string, body any) error {
	resp, err := c.api.Call(ctx, method, path, body)
	if err != nil {
		return failure.NetworkError{URL: path, Err: err}
	}
	defer closeBody(resp)

	return failure.FromStatus(path, resp.StatusCode, transport.IsAuthenticationRedirect(resp))
}

// closeBody drains a bounded amount of the body so the connection can be
// reused, then closes it.
func closeBody(resp *http.Response) {
	_, _ = io.CopyN(io.Discard, resp.Body, 64<<10)
	_ = resp.Body.Close()
}
