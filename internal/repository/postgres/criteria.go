package postgres

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scieloorg/id-provider/internal/idp/store"
)

// equalsColumn maps a store.Criteria scalar field name to its
// document_records column.
var equalsColumn = map[string]string{
	"v2":           "v2",
	"pub_year":     "pub_year",
	"collab":       "collab",
	"surnames":     "surnames",
	"volume":       "volume",
	"number":       "number",
	"suppl":        "suppl",
	"elocation_id": "elocation_id",
	"fpage":        "fpage",
	"fpage_seq":    "fpage_seq",
	"lpage":        "lpage",
	"partial_body": "partial_body",
}

// orGroupColumn maps a store.OrGroup field name to the jsonb array
// column and the key each element is matched on.
var orGroupColumn = map[string]struct{ column, key string }{
	"issns.value":         {"issns", "value"},
	"doi_with_lang.value": {"doi_with_lang", "value"},
	"article_titles.text": {"titles", "text"},
}

// buildWhere translates a store.Criteria into a SQL WHERE clause (sans
// the "WHERE" keyword) and its positional arguments, keeping
// internal/idp/resolver independent of the storage engine (spec §4.3,
// Design Notes §9). Equals keys are sorted for deterministic SQL
// across calls with the same criteria, which keeps prepared-statement
// caching effective.
func buildWhere(c store.Criteria, startArg int) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	argN := startArg

	keys := make([]string, 0, len(c.Equals))
	for k := range c.Equals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, field := range keys {
		col, ok := equalsColumn[field]
		if !ok {
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s = $%d", col, argN))
		args = append(args, c.Equals[field])
		argN++
	}

	for _, group := range c.OrGroups {
		mapping, ok := orGroupColumn[group.Field]
		if !ok || len(group.Values) == 0 {
			continue
		}
		clauses = append(clauses, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM jsonb_array_elements(%s) elem WHERE elem->>'%s' = ANY($%d))",
			mapping.column, mapping.key, argN,
		))
		args = append(args, group.Values)
		argN++
	}

	if len(clauses) == 0 {
		return "TRUE", args
	}
	return strings.Join(clauses, " AND "), args
}
