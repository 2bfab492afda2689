package mutation

import "github.com/google/uuid"

// Result is the outcome of a mutation: either the path to navigate to, or
// the reason it failed.
type Result struct {
	ID       uuid.UUID
	Navigate string
	Err      error
}

// Failed reports whether the mutation did not succeed; Err holds the reason.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Target returns the navigation target of a successful mutation.
func (r Result) Target() (string, bool) {
	if r.Err != nil {
		return "", false
	}
	return r.Navigate, true
}
