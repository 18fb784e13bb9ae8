package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/scieloorg/id-provider/internal/migration"
	"github.com/scieloorg/id-provider/internal/queue"
)

// cmdRequestId implements `migr request_id <issn_list>`: for every
// issn and isAop value, enumerates status=XML rows (already fetched,
// not yet pushed through the identifier pipeline — e.g. retrying after
// a prior RequestId failure) and drives them through
// Orchestrator.RequestIdForRow without re-pulling. Journals run
// concurrently, bounded by maxConcurrentIssns; one journal's failure
// does not stop the others.
func (a *app) cmdRequestId(ctx context.Context, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: migr request_id <issn_list>")
		return 1
	}

	issns, err := readLines(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "migr: read issn list: %v\n", err)
		return 1
	}

	var g errgroup.Group
	g.SetLimit(maxConcurrentIssns)
	var failed atomic.Bool
	for _, issn := range issns {
		issn := strings.TrimSpace(issn)
		if issn == "" {
			continue
		}
		g.Go(func() error {
			for _, isAop := range []bool{false, true} {
				if ctx.Err() != nil {
					return nil
				}
				err := a.orch.Enumerate(ctx, issn, isAop, migration.StatusXML, func(rows []migration.Row) bool {
					for _, row := range rows {
						row := row
						submitErr := queue.SubmitAndWait(ctx, a.queues.For(queue.High), func() {
							if _, err := a.orch.RequestIdForRow(ctx, row); err != nil {
								a.logger.Error("request id for row failed", "v2", row.V2, "error", err)
							}
						})
						if submitErr != nil {
							a.logger.Error("submit failed", "v2", row.V2, "error", submitErr)
							return false
						}
					}
					return true
				})
				if err != nil {
					fmt.Fprintf(os.Stderr, "migr: request_id %s (aop=%v): %v\n", issn, isAop, err)
					a.logger.Error("request_id failed", "issn", issn, "is_aop", isAop, "error", err)
					failed.Store(true)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return 130
	}
	if failed.Load() {
		return 1
	}
	return 0
}
