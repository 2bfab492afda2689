package resource

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/smeagol-wiki/smeagol-client/internal/failure"
)

var pageNameCharacters = regexp.MustCompile(`^[A-Za-z0-9._\-/]+$`)

// ValidatePageName decides whether a candidate page name may be submitted
// for a create or move. The candidate is URL-decoded before the checks run.
func ValidatePageName(name, initial string) error {
	invalid := func(reason string) error {
		return failure.ValidationError{Field: "page name", Value: name, Reason: reason}
	}

	if name == initial {
		return invalid("unchanged")
	}

	decoded, err := url.PathUnescape(name)
	if err != nil {
		return invalid("malformed escape sequence")
	}

	switch {
	case strings.Contains(decoded, ".."):
		return invalid("contains a parent directory segment")
	case strings.HasPrefix(decoded, "/"):
		return invalid("starts with /")
	case strings.Contains(decoded, "//"):
		return invalid("contains an empty segment")
	case strings.ContainsAny(decoded, "?!"):
		return invalid("contains ? or !")
	case !pageNameCharacters.MatchString(decoded):
		return invalid("contains unsupported characters")
	}

	return nil
}

// ValidPageName is the boolean form of ValidatePageName.
func ValidPageName(name, initial string) bool {
	return ValidatePageName(name, initial) == nil
}
