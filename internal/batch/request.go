package batch

import (
	"strings"

	"mixtape/internal/links"
)

// DefaultMaxURLs caps the number of links accepted in one request.
const DefaultMaxURLs = 50

// Request is the ephemeral create request. It is validated once and discarded
// after the batch is built.
type Request struct {
	Name        string      `json:"name"`
	URLs        []string    `json:"urls"`
	AutoTag     *bool       `json:"auto_edit_tags,omitempty"`
	DefaultTags TagDefaults `json:"default_tags"`
}

// Resolve validates the request and returns the fetchable links in input
// order. The first violated rule is reported: empty name, no resolvable link,
// then too many links.
func (r Request) Resolve(maxURLs int) ([]string, error) {
	if maxURLs <= 0 {
		maxURLs = DefaultMaxURLs
	}
	if strings.TrimSpace(r.Name) == "" {
		return nil, ValidationError("batch name must not be empty")
	}
	resolved := make([]string, 0, len(r.URLs))
	for _, raw := range r.URLs {
		if link := links.Extract(raw); link != "" {
			resolved = append(resolved, link)
		}
	}
	if len(resolved) == 0 {
		return nil, ValidationError("no valid Bilibili URL found")
	}
	if len(resolved) > maxURLs {
		return nil, ValidationError("too many URLs: %d exceeds the limit of %d", len(resolved), maxURLs)
	}
	return resolved, nil
}

// Options returns the worker options the request asks for. Tagging defaults
// to on.
func (r Request) Options() Options {
	autoTag := true
	if r.AutoTag != nil {
		autoTag = *r.AutoTag
	}
	return Options{AutoTag: autoTag, DefaultTags: r.DefaultTags}
}

// Build validates the request and constructs a pending batch from it.
func (r Request) Build(maxURLs int) (*Batch, error) {
	urls, err := r.Resolve(maxURLs)
	if err != nil {
		return nil, err
	}
	return New("", strings.TrimSpace(r.Name), urls, r.Options()), nil
}
