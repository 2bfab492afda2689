// Package wiki is the typed client for the wiki API: payload types, the
// fetchers backing the resource stores and the mutation calls.
package wiki

import "time"

type Link struct {
	Href string `json:"href"`
}

// Links are the hypermedia links of a payload. The server only includes an
// action link (edit, move, delete, restore) when the user may perform it.
type Links map[string]Link

func (l Links) Has(rel string) bool {
	_, ok := l[rel]
	return ok
}

// Wiki is the metadata of a wiki on a branch.
type Wiki struct {
	Name        string `json:"displayName"`
	Repository  string `json:"repositoryName"`
	Branch      string `json:"branch"`
	Directory   string `json:"directory"`
	LandingPage string `json:"landingPage"`
	Links       Links  `json:"_links,omitempty"`
}

type Author struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

type Commit struct {
	ID      string    `json:"commitId"`
	Author  Author    `json:"author"`
	Date    time.Time `json:"date"`
	Message string    `json:"message"`
}

type Page struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Commit  Commit `json:"commit"`
	Links   Links  `json:"_links,omitempty"`
}

type History struct {
	Path    string   `json:"path"`
	Commits []Commit `json:"commits"`
	Links   Links    `json:"_links,omitempty"`
}
