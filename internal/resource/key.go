package resource

import (
	"fmt"
	"net/url"
	"strings"
)

// Key is the store lookup key. It doubles as the API-relative request path
// for the resource, so a key can be fetched without further derivation.
type Key string

func (k Key) String() string {
	return string(k)
}

// CacheKey combines a kind and a locator, plus an optional revision for
// reads pinned to a historical commit. Wiki keys ignore the path and the
// revision.
func CacheKey(kind Kind, loc Locator, revision string) Key {
	base := loc.base()
	if kind == KindWiki {
		return Key(base)
	}

	k := base + "/" + string(kind) + "/" + escapePath(cleanPath(loc.Path))
	if revision != "" {
		k += "?commit=" + url.QueryEscape(revision)
	}
	return Key(k)
}

// ContentKey is the head revision content key for the page.
func ContentKey(loc Locator) Key {
	return CacheKey(KindContent, loc, "")
}

// HistoryKey is the history key for the page.
func HistoryKey(loc Locator) Key {
	return CacheKey(KindHistory, loc, "")
}

// WikiKey is the metadata key for the wiki containing the page.
func WikiKey(loc Locator) Key {
	return CacheKey(KindWiki, loc, "")
}

// ParseKey recovers the kind, locator and revision a key was derived from.
func ParseKey(k Key) (Kind, Locator, string, error) {
	raw, query, _ := strings.Cut(string(k), "?")

	repository, branch, rest, err := splitBase(raw)
	if err != nil {
		return "", Locator{}, "", err
	}

	if rest == "" {
		return KindWiki, Locator{Repository: repository, Branch: branch}, "", nil
	}

	kindSegment, pathPart, _ := strings.Cut(rest, "/")
	kind := Kind(kindSegment)
	if kind == KindWiki || !kind.Valid() {
		return "", Locator{}, "", fmt.Errorf("invalid key %q: unknown kind %q", k, kindSegment)
	}

	pagePath, err := unescapePath(pathPart)
	if err != nil {
		return "", Locator{}, "", fmt.Errorf("invalid key %q: %w", k, err)
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return "", Locator{}, "", fmt.Errorf("invalid key %q: %w", k, err)
	}

	return kind, NewLocator(repository, branch, pagePath), values.Get("commit"), nil
}
