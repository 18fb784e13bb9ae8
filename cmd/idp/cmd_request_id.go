package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/scieloorg/id-provider/internal/idp/facts"
	"github.com/scieloorg/id-provider/internal/idp/xmladapter"
	"github.com/scieloorg/id-provider/internal/queue"
)

// cmdRequestId implements `idp request_id <source_list> <result_log>`:
// reads a newline-separated list of XML/ZIP paths and submits each to
// the high-priority queue (spec §5: "harvest / request-id" is a high
// queue), writing one result line per submission.
func (a *app) cmdRequestId(ctx context.Context, args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: idp request_id <source_list> <result_log>")
		return 1
	}
	sourceList, resultLog := args[0], args[1]

	paths, err := readLines(sourceList)
	if err != nil {
		fmt.Fprintf(os.Stderr, "idp: read source list: %v\n", err)
		return 1
	}

	out, err := os.Create(resultLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "idp: create result log: %v\n", err)
		return 1
	}
	defer out.Close()
	logWriter := bufio.NewWriter(out)
	defer logWriter.Flush()

	exitCode := 0
	for _, path := range paths {
		path := strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if ctx.Err() != nil {
			return 130
		}
		if err := queue.SubmitAndWait(ctx, a.queues.For(queue.High), func() {
			a.requestIdOne(ctx, path, logWriter)
		}); err != nil {
			fmt.Fprintf(logWriter, "%s\tERROR\t%v\n", path, err)
			exitCode = 1
		}
	}
	return exitCode
}

func (a *app) requestIdOne(ctx context.Context, path string, logWriter *bufio.Writer) {
	raw, err := xmladapter.ReadPackage(path)
	if err != nil {
		fmt.Fprintf(logWriter, "%s\tERROR\t%v\n", path, err)
		a.logger.Error("read package failed", "path", path, "error", err)
		return
	}

	extracted, err := xmladapter.Parse(raw)
	if err != nil {
		fmt.Fprintf(logWriter, "%s\tERROR\t%v\n", path, err)
		a.logger.Error("parse failed", "path", path, "error", err)
		return
	}
	extracted.Input.ZipPath = path

	f, err := facts.New(extracted.Input)
	if err != nil {
		fmt.Fprintf(logWriter, "%s\tERROR\t%v\n", path, err)
		a.logger.Error("facts validation failed", "path", path, "error", err)
		return
	}

	outcome, err := a.pipe.RequestId(ctx, "idp-cli", f)
	if err != nil {
		fmt.Fprintf(logWriter, "%s\tERROR\t%v\n", path, err)
		a.logger.Error("request id failed", "path", path, "error", err)
		return
	}

	fmt.Fprintf(logWriter, "%s\tOK\tv3=%s\tv2=%s\n", path, outcome.Record.V3, outcome.Record.V2)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
