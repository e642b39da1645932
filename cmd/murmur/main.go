// Package main provides the murmur CLI process entrypoint.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rbright/murmur/internal/app"
)

// exitInterrupted is the shell convention for termination by SIGINT.
const exitInterrupted = 130

func main() {
	os.Exit(run(os.Args[1:]))
}

// run cancels the command on the first interrupt so an active dictation can
// release the microphone and socket. A second interrupt exits at once.
func run(args []string) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

	go func() {
		<-signals
		cancel()
		<-signals
		os.Exit(exitInterrupted)
	}()

	return app.Execute(ctx, args, os.Stdout, os.Stderr)
}
