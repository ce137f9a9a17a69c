package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/troydota/client.vote.komodohype.dev/configure"
)

const usage = `usage: vote [flags] <command> [args]

commands:
  polls [tab] [search]                    list polls of a tab (Ongoing, Voted, Ended)
  poll <id>                               show a poll and its candidates
  cast <poll id> <candidate id>           vote in a poll
  login <username> <password>             sign in and remember the session
  register <username> <password> <image>  create an account
  whoami                                  show the stored session
  serve                                   run the presentation gateway
`

func main() {
	cfg, args, err := configure.Load(os.Args[1:])
	if err != nil {
		fmt.Fprint(os.Stderr, usage)
		log.Fatalf("config, err=%v", err)
	}
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := <-c
		log.Infof("sig=%v, gracefully shutting down...", sig)
		cancel()
	}()

	code := run(ctx, cfg, args, os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}
