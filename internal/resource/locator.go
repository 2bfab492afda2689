// Package resource derives canonical locators and cache keys for wiki
// resources. Everything here is pure: no I/O and no shared state.
package resource

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Kind names the resource family a key belongs to. Each kind has its own
// store; keys are never shared across kinds.
type Kind string

const (
	KindWiki    Kind = "wiki"
	KindContent Kind = "content"
	KindHistory Kind = "history"
)

func (k Kind) Valid() bool {
	switch k {
	case KindWiki, KindContent, KindHistory:
		return true
	}
	return false
}

const (
	repositoriesPrefix = "/repositories/"
	branchesSegment    = "branches"
)

// Locator identifies a page within a wiki: the repository, the branch and the
// page path. Use NewLocator to get the normalized form.
type Locator struct {
	Repository string
	Branch     string
	Path       string
}

// NewLocator builds a locator with a normalized path, so that the same page
// reached through "docs/Home", "/docs/Home/" or "docs//Home" compares equal.
func NewLocator(repository, branch, pagePath string) Locator {
	return Locator{
		Repository: repository,
		Branch:     branch,
		Path:       cleanPath(pagePath),
	}
}

// WithPath returns a locator for another page of the same wiki.
func (l Locator) WithPath(pagePath string) Locator {
	return NewLocator(l.Repository, l.Branch, pagePath)
}

// Wiki returns the locator of the wiki the page belongs to.
func (l Locator) Wiki() Locator {
	return Locator{Repository: l.Repository, Branch: l.Branch}
}

// WikiID is the short identifier of the wiki, e.g. "42@master".
func (l Locator) WikiID() string {
	return l.Repository + "@" + l.Branch
}

// String renders the canonical form:
//
//	/repositories/{repository}/branches/{branch}/{path}
//
// Every segment is escaped, which keeps the mapping injective even when a
// branch name contains a slash.
func (l Locator) String() string {
	base := l.base()
	p := escapePath(cleanPath(l.Path))
	if p == "" {
		return base
	}
	return base + "/" + p
}

func (l Locator) base() string {
	return repositoriesPrefix + url.PathEscape(l.Repository) + "/" + branchesSegment + "/" + url.PathEscape(l.Branch)
}

// ParseLocator is the inverse of Locator.String.
func ParseLocator(s string) (Locator, error) {
	repository, branch, rest, err := splitBase(s)
	if err != nil {
		return Locator{}, err
	}

	pagePath, err := unescapePath(rest)
	if err != nil {
		return Locator{}, fmt.Errorf("invalid locator %q: %w", s, err)
	}

	return NewLocator(repository, branch, pagePath), nil
}

// splitBase separates the repository and branch segments from the remainder
// of a locator or key. Returned segments are unescaped; the remainder is not.
func splitBase(s string) (repository, branch, rest string, err error) {
	trimmed, ok := strings.CutPrefix(s, repositoriesPrefix)
	if !ok {
		return "", "", "", fmt.Errorf("invalid locator %q: missing %q prefix", s, repositoriesPrefix)
	}

	repoSegment, trimmed, ok := strings.Cut(trimmed, "/")
	if !ok {
		return "", "", "", fmt.Errorf("invalid locator %q: missing branch", s)
	}

	trimmed, ok = strings.CutPrefix(trimmed, branchesSegment+"/")
	if !ok {
		return "", "", "", fmt.Errorf("invalid locator %q: missing %q segment", s, branchesSegment)
	}

	branchSegment, rest, _ := strings.Cut(trimmed, "/")

	repository, err = url.PathUnescape(repoSegment)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid repository in %q: %w", s, err)
	}
	branch, err = url.PathUnescape(branchSegment)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid branch in %q: %w", s, err)
	}

	return repository, branch, rest, nil
}

func cleanPath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	if p == "." {
		return ""
	}
	return p
}

func escapePath(p string) string {
	if p == "" {
		return ""
	}
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func unescapePath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	segments := strings.Split(p, "/")
	for i, s := range segments {
		u, err := url.PathUnescape(s)
		if err != nil {
			return "", err
		}
		segments[i] = u
	}
	return strings.Join(segments, "/"), nil
}
