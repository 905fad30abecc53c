// Command spinlet serves a WebAssembly HTTP application.
//
//	spinlet [--config spinlet.yaml] [--app spin.yaml] [--listen addr]
//	spinlet schema
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
