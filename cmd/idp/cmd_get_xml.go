package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/scieloorg/id-provider/internal/idp/store"
)

// cmdGetXML implements `idp get_xml <v3>`: prints the stored XML for v3.
func (a *app) cmdGetXML(ctx context.Context, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: idp get_xml <v3>")
		return 1
	}

	rec, err := a.store.FindByV3(ctx, args[0])
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			fmt.Fprintf(os.Stderr, "idp: no document registered for v3 %s\n", args[0])
			return 1
		}
		fmt.Fprintf(os.Stderr, "idp: get xml: %v\n", err)
		return 1
	}

	os.Stdout.Write(rec.XML)
	return 0
}
