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

// maxConcurrentIssns bounds how many journals cmdMigrate, cmdRequestId
// and cmdUndoIdRequest walk at once — separate from the queue.Set's
// own per-row worker pools, which bound row-level fetch/identify work.
const maxConcurrentIssns = 8

// cmdMigrate implements `migr migrate <issn_list>`: for every issn and
// every isAop value, enumerates status=CREATED rows and drives them
// through PullAndRequestId (spec §4.6). --xml_folder_path/--collection
// were already folded into the app's sources by newApp. One journal's
// failure does not stop the others — errgroup here is only a
// concurrency limiter, not a first-error abort (the plain ctx, not a
// WithContext derivative, is shared across every journal's goroutine).
func (a *app) cmdMigrate(ctx context.Context, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: migr migrate <issn_list> [--xml_folder_path P] [--collection C]")
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
				if err := a.migrateIssn(ctx, issn, isAop); err != nil {
					fmt.Fprintf(os.Stderr, "migr: migrate %s (aop=%v): %v\n", issn, isAop, err)
					a.logger.Error("migrate failed", "issn", issn, "is_aop", isAop, "error", err)
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

func (a *app) migrateIssn(ctx context.Context, issn string, isAop bool) error {
	return a.orch.Enumerate(ctx, issn, isAop, migration.StatusCreated, func(rows []migration.Row) bool {
		for _, row := range rows {
			row := row
			submitErr := queue.SubmitAndWait(ctx, a.queues.For(queue.High), func() {
				if _, err := a.orch.PullAndRequestId(ctx, row); err != nil {
					a.logger.Error("pull and request id failed", "v2", row.V2, "error", err)
				}
			})
			if submitErr != nil {
				a.logger.Error("submit failed", "v2", row.V2, "error", submitErr)
				return false
			}
		}
		return true
	})
}
