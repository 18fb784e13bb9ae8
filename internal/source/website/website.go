// Package website fetches article XML from the new-website article
// store by pid, over HTTP (spec §4.6 source (a)).
package website

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scieloorg/id-provider/internal/source"
)

// Source is a source.Fetcher backed by the new-website's article
// record endpoint: GET {baseURL}/api/v1/article/{pid} returns a JSON
// document with an "_id" and an "xml" URL to the article body.
type Source struct {
	baseURL string
	client  *source.RetryingClient
}

// New returns a website Source. baseURL has no trailing slash.
func New(baseURL string, client *source.RetryingClient) *Source {
	return &Source{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type articleRecord struct {
	ID  string `json:"_id"`
	XML string `json:"xml"`
}

// Fetch looks up the article record by pid, then follows its xml URL.
// filePath is unused by this source.
func (s *Source) Fetch(ctx context.Context, v2, filePath string) ([]byte, error) {
	recordURL := fmt.Sprintf("%s/api/v1/article/%s", s.baseURL, v2)
	body, err := s.client.Get(ctx, recordURL)
	if err != nil {
		return nil, fmt.Errorf("website: fetch article record for %s: %w", v2, err)
	}
	if body == nil {
		return nil, nil
	}

	var rec articleRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("website: decode article record for %s: %w", v2, err)
	}
	if rec.XML == "" {
		return nil, nil
	}

	xmlBytes, err := s.client.Get(ctx, rec.XML)
	if err != nil {
		return nil, fmt.Errorf("website: fetch xml for %s: %w", v2, err)
	}
	return xmlBytes, nil
}
