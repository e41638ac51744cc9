// vaicheck is a small participant-side tool for watching a VAI-CHECK session.
//
//	vaicheck wait   --session <id> --token <jwt>   block until the session changes
//	vaicheck status --session <id> --token <jwt>   print the current view once
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/vairify/vaicheck-server-go/internal/client"
)

const exitTimeout = 2

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) ExitCode() int { return e.code }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		var coder *exitError
		if errors.As(err, &coder) {
			log.Error().Err(coder.err).Msg("vaicheck")
			os.Exit(coder.ExitCode())
		}
		log.Error().Err(err).Msg("vaicheck")
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: vaicheck <wait|status> --session <id> [--token <jwt>] [--base-url <url>]")
	}
	command, args := args[0], args[1:]

	var (
		sessionID string
		token     string
		baseURL   string
		interval  time.Duration
		maxWait   time.Duration
		verbose   bool
	)
	flags := pflag.NewFlagSet("vaicheck "+command, pflag.ContinueOnError)
	flags.StringVar(&sessionID, "session", "", "session id to watch")
	flags.StringVar(&token, "token", os.Getenv("VAICHECK_TOKEN"), "participant bearer token (default $VAICHECK_TOKEN)")
	flags.StringVar(&baseURL, "base-url", envOr("VAICHECK_URL", "http://localhost:8080"), "session service base URL")
	flags.DurationVar(&interval, "interval", client.DefaultInterval, "poll interval")
	flags.DurationVar(&maxWait, "max-wait", client.DefaultMaxWait, "give up after this long")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log every poll")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if sessionID == "" {
		return errors.New("--session is required")
	}
	if token == "" {
		return errors.New("--token or VAICHECK_TOKEN is required")
	}
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	poller := client.NewPoller(baseURL, token)
	poller.Interval = interval
	poller.MaxWait = maxWait

	switch command {
	case "status":
		view, err := poller.Status(ctx, sessionID)
		if err != nil {
			return err
		}
		return printJSON(stdout, view)

	case "wait":
		view, err := poller.WaitForChange(ctx, sessionID)
		if errors.Is(err, client.ErrPollTimeout) {
			if view != nil {
				_ = printJSON(stdout, view)
			}
			return &exitError{code: exitTimeout, err: err}
		}
		if err != nil {
			return err
		}
		return printJSON(stdout, view)
	}
	return fmt.Errorf("unknown command %q", command)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
