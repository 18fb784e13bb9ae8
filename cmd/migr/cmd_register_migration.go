package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/scieloorg/id-provider/internal/migration"
	"github.com/scieloorg/id-provider/internal/queue"
)

// descriptorLine is the JSONL shape RegisterMigration consumes (spec
// §4.6): one line per Migration row to seed.
type descriptorLine struct {
	V2       string `json:"v2"`
	AopPid   string `json:"aop_pid"`
	IsAop    bool   `json:"is_aop"`
	FilePath string `json:"file_path"`
	Issn     string `json:"issn"`
	Year     string `json:"year"`
	Order    int    `json:"order"`
	V91      string `json:"v91"`
	V93      string `json:"v93"`
}

// cmdRegisterMigration implements `migr register_migration [--skip_update] <jsonl> <issn_out>`.
// skipUpdate was already extracted from args by parseFlags in main.go.
func (a *app) cmdRegisterMigration(ctx context.Context, args []string, skipUpdate bool) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: migr register_migration [--skip_update] <jsonl> <issn_out>")
		return 1
	}
	jsonlPath, issnOutPath := args[0], args[1]

	f, err := os.Open(jsonlPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migr: open jsonl: %v\n", err)
		return 1
	}
	defer f.Close()

	issnOut, err := os.Create(issnOutPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migr: create issn_out: %v\n", err)
		return 1
	}
	defer issnOut.Close()

	seenIssns := map[string]bool{}
	issnWriter := bufio.NewWriter(issnOut)
	defer issnWriter.Flush()

	scanner := bufio.NewScanner(f)
	exitCode := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return 130
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var d descriptorLine
		if err := json.Unmarshal([]byte(line), &d); err != nil {
			fmt.Fprintf(os.Stderr, "migr: decode descriptor: %v\n", err)
			exitCode = 1
			continue
		}

		var regErr error
		submitErr := queue.SubmitAndWait(ctx, a.queues.For(queue.Default), func() {
			regErr = a.orch.RegisterMigration(ctx, migration.Descriptor{
				V2: d.V2, AopPid: d.AopPid, IsAop: d.IsAop, FilePath: d.FilePath,
				Issn: d.Issn, Year: d.Year, Order: d.Order, V91: d.V91, V93: d.V93,
			}, skipUpdate)
		})
		if err := firstErr(submitErr, regErr); err != nil {
			fmt.Fprintf(os.Stderr, "migr: register %s: %v\n", d.V2, err)
			exitCode = 1
			continue
		}

		if !seenIssns[d.Issn] {
			seenIssns[d.Issn] = true
			fmt.Fprintln(issnWriter, d.Issn)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "migr: read jsonl: %v\n", err)
		return 1
	}
	return exitCode
}
