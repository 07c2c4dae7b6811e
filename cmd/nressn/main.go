// Command nressn crawls NRES engineering archives for the S/N reported by
// the pipeline QC sheet and plots S/N against V magnitude for a set of
// nights.
//
// Usage:
//
//	nressn --crawl --plot --instruments nres01 --date 20171128 20171129
//	nressn --plot --date 20171128,20171129
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		stop()
		os.Exit(1)
	}
}
