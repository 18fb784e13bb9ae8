// Package filesystem reads article XML from the legacy on-disk tree,
// the second pull source in priority order (spec §4.6 source (b)).
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Source is a source.Fetcher backed by a configured legacy XML root.
// filePath, recorded on the Migration row, is resolved relative to
// root; v2 is unused — the legacy tree is addressed purely by path.
type Source struct {
	root string
}

// New returns a filesystem Source rooted at root.
func New(root string) *Source {
	return &Source{root: root}
}

// Fetch reads filePath under the configured root. A missing file
// returns (nil, nil): this source simply has nothing for this pid, not
// a failure — the Orchestrator falls through to article-meta.
func (s *Source) Fetch(ctx context.Context, v2, filePath string) ([]byte, error) {
	if filePath == "" {
		return nil, nil
	}
	full := filepath.Join(s.root, filePath)
	body, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("filesystem: read %s: %w", full, err)
	}
	return body, nil
}
