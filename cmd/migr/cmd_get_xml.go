package main

import (
	"context"
	"fmt"
	"os"
)

// cmdGetXML implements `migr get_xml <v2>`: prints the Migration row's
// stored XML for v2.
func (a *app) cmdGetXML(ctx context.Context, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: migr get_xml <v2>")
		return 1
	}

	row, found, err := a.mstore.FindByV2(ctx, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "migr: get xml: %v\n", err)
		return 1
	}
	if !found {
		fmt.Fprintf(os.Stderr, "migr: no migration row for v2 %s\n", args[0])
		return 1
	}

	os.Stdout.Write(row.XML)
	return 0
}
