package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/smartcontrol/internal/pkg/config"
	"github.com/anicoll/smartcontrol/internal/pkg/control"
	"github.com/anicoll/smartcontrol/internal/pkg/poller"
)

const pollHelp = "toggle with an appliance name or number, r to refresh, q to quit"

func PollCommand(ctx *cli.Context) error {
	cfg := &config.PollerConfig{
		ServerURL:      ctx.String("server-url"),
		Interval:       ctx.Duration("poll-interval"),
		Timeout:        ctx.Duration("request-timeout"),
		ReconcileDelay: ctx.Duration("reconcile-delay"),
		LogLevel:       ctx.String("log-level"),
	}

	// the terminal owns stdout, logs go to stderr.
	logger, err := newLogger(cfg.LogLevel, "stderr")
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	client, err := control.New(cfg.ServerURL, cfg.Timeout)
	if err != nil {
		return err
	}
	p := poller.New(client,
		poller.WithInterval(cfg.Interval),
		poller.WithReconcileDelay(cfg.ReconcileDelay),
		poller.WithRenderer(poller.NewTextRenderer(os.Stdout)),
	)
	fmt.Fprintln(os.Stdout, pollHelp)

	return poll(ctx.Context, p, os.Stdin, os.Stdout)
}

// poll runs p until ctx is done, the user quits or in is exhausted.
func poll(ctx context.Context, p *poller.Poller, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return p.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()
		return readCommands(ctx, p, in, out)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func readCommands(ctx context.Context, p *poller.Poller, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	// the scanner cannot be interrupted, so it is left behind on cancellation.
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleCommand(ctx, p, line, out); quit {
				return nil
			}
		}
	}
}

// handleCommand applies one line of input and reports whether to quit.
func handleCommand(ctx context.Context, p *poller.Poller, line string, out io.Writer) bool {
	cmd := strings.ToLower(strings.TrimSpace(line))
	switch cmd {
	case "":
		return false
	case "q", "quit", "exit":
		return true
	case "r", "refresh":
		p.RequestRefresh()
		return false
	case "?", "h", "help":
		fmt.Fprintln(out, pollHelp)
		return false
	}

	key := cmd
	if n, err := strconv.Atoi(cmd); err == nil {
		appliances := p.Snapshot().Appliances
		if n < 1 || n > len(appliances) {
			fmt.Fprintf(out, "no appliance numbered %d\n", n)
			return false
		}
		key = appliances[n-1].ID
	}

	err := p.Toggle(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, poller.ErrOffline):
		fmt.Fprintln(out, "disconnected, toggles are disabled until the service is reachable")
	case errors.Is(err, poller.ErrUnknownAppliance):
		fmt.Fprintf(out, "unknown appliance %q\n", line)
	default:
		fmt.Fprintf(out, "toggle failed: %v\n", err)
	}
	return false
}
