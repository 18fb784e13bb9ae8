// Package source defines the Fetcher contract shared by the three XML
// pull sources the Migration Orchestrator tries in order (spec §4.6):
// the new-website article store, the legacy filesystem tree, and the
// article-meta HTTP API.
package source

import "context"

// Fetcher retrieves the raw XML bytes for one migration row, keyed by
// its v2 identifier (and, for the filesystem source, its recorded
// file path). A Fetcher returning (nil, nil) means "this source has
// nothing for this pid" — not an error — so PullAndRequestId can fall
// through to the next source in order.
type Fetcher interface {
	Fetch(ctx context.Context, v2, filePath string) ([]byte, error)
}

// Name identifies which Fetcher produced a pull for the Migration
// row's Source field (spec §4.6 supplement).
type Name string

const (
	Website     Name = "website"
	Filesystem  Name = "filesystem"
	ArticleMeta Name = "articlemeta"
)

// Named pairs a Fetcher with the Name recorded against a successful pull.
type Named struct {
	Name    Name
	Fetcher Fetcher
}
