// Package articlemeta fetches article XML from the article-meta HTTP
// API, the last-resort pull source (spec §4.6 source (c)).
package articlemeta

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/scieloorg/id-provider/internal/source"
)

const defaultBaseURL = "https://articlemeta.scielo.org/api/v1/article"

// Source is a source.Fetcher backed by the article-meta collection API.
type Source struct {
	baseURL    string
	collection string
	client     *source.RetryingClient
}

// New returns an articlemeta Source scoped to one collection acronym
// (e.g. "scl"). An empty baseURL uses defaultBaseURL.
func New(baseURL, collection string, client *source.RetryingClient) *Source {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Source{baseURL: strings.TrimRight(baseURL, "/"), collection: collection, client: client}
}

// Fetch retrieves the XML format of the article identified by v2.
// filePath is unused by this source.
func (s *Source) Fetch(ctx context.Context, v2, filePath string) ([]byte, error) {
	q := url.Values{}
	q.Set("code", v2)
	q.Set("collection", s.collection)
	q.Set("format", "xmlrsps")
	reqURL := fmt.Sprintf("%s/?%s", s.baseURL, q.Encode())

	body, err := s.client.Get(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("articlemeta: fetch xml for %s: %w", v2, err)
	}
	return body, nil
}
