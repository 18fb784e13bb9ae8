package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/scieloorg/id-provider/internal/idp/store"
	"github.com/scieloorg/id-provider/internal/migration"
	"github.com/scieloorg/id-provider/internal/queue"
)

// cmdUndoIdRequest implements `migr undo_id_request <issn_list>`: for
// every issn and isAop value, enumerates status=MIGRATED rows, looks
// up each one's registered document by v2, and reverts it via
// Orchestrator.UndoIdRequest (spec §4.6). Journals run concurrently,
// bounded by maxConcurrentIssns.
func (a *app) cmdUndoIdRequest(ctx context.Context, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: migr undo_id_request <issn_list>")
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
				err := a.orch.Enumerate(ctx, issn, isAop, migration.StatusMigrated, func(rows []migration.Row) bool {
					for _, row := range rows {
						row := row
						submitErr := queue.SubmitAndWait(ctx, a.queues.For(queue.Default), func() {
							a.undoOne(ctx, row)
						})
						if submitErr != nil {
							a.logger.Error("submit failed", "v2", row.V2, "error", submitErr)
							return false
						}
					}
					return true
				})
				if err != nil {
					fmt.Fprintf(os.Stderr, "migr: undo_id_request %s (aop=%v): %v\n", issn, isAop, err)
					a.logger.Error("undo_id_request failed", "issn", issn, "is_aop", isAop, "error", err)
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

func (a *app) undoOne(ctx context.Context, row migration.Row) {
	recs, err := a.idp.FindMatching(ctx, store.NewCriteria().Eq("v2", row.V2), store.FindOptions{PageSize: 1})
	if err != nil {
		a.logger.Error("undo: lookup registered document failed", "v2", row.V2, "error", err)
		return
	}
	if len(recs) == 0 {
		a.logger.Error("undo: no registered document found", "v2", row.V2)
		return
	}

	if _, err := a.orch.UndoIdRequest(ctx, recs[0].XML, row); err != nil {
		a.logger.Error("undo id request failed", "v2", row.V2, "error", err)
	}
}
