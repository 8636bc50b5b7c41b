// notifywatch signs in to a BrewNet server and keeps the caller's unread
// notifications on screen. It listens on the push channel and reconciles by
// polling, faster while the push channel is down.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/brewnet/backend/pkg/client"
)

type options struct {
	server           string
	token            string
	name             string
	pollInterval     time.Duration
	fallbackInterval time.Duration
	jitter           time.Duration
	failureThreshold int
	signOutOnExit    bool
	verbose          bool
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	_ = godotenv.Load()

	var opts options
	flagSet := pflag.NewFlagSet("notifywatch", pflag.ContinueOnError)
	flagSet.StringVar(&opts.server, "server", envOr("BREWNET_SERVER", "http://localhost:4200"), "server base URL")
	flagSet.StringVar(&opts.token, "token", os.Getenv("BREWNET_TOKEN"), "access token (default $BREWNET_TOKEN)")
	flagSet.StringVar(&opts.name, "name", "", "display name sent on sign-in")
	flagSet.DurationVar(&opts.pollInterval, "poll-interval", 30*time.Second, "reconcile interval while the push channel is up")
	flagSet.DurationVar(&opts.fallbackInterval, "fallback-interval", 5*time.Second, "reconcile interval while the push channel is down")
	flagSet.DurationVar(&opts.jitter, "jitter", time.Second, "random spread added to each interval")
	flagSet.IntVar(&opts.failureThreshold, "failure-threshold", 3, "consecutive failed fetches before reporting the server unreachable")
	flagSet.BoolVar(&opts.signOutOnExit, "sign-out-on-exit", true, "sign out when interrupted")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log push channel activity to stderr")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if opts.token == "" {
		return errors.New("--token or BREWNET_TOKEN is required")
	}

	logger := zap.NewNop()
	if opts.verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			return err
		}
		defer logger.Sync()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.New(opts.server, opts.token)
	user, err := c.SignIn(ctx, opts.name)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	fmt.Fprintf(out, "signed in as %s\n", user.UserID)

	session := client.NewSession(c, client.SessionOptions{
		PollInterval:     opts.pollInterval,
		FallbackInterval: opts.fallbackInterval,
		Jitter:           opts.jitter,
		FailureThreshold: opts.failureThreshold,
		OnChange:         func(items []client.Notification) { printInbox(out, items) },
		OnUnreachable: func(down bool) {
			if down {
				fmt.Fprintln(out, "server unreachable, showing last known notifications")
			} else {
				fmt.Fprintln(out, "server reachable again")
			}
		},
		OnPush: func(connected bool) {
			logger.Debug("push channel", zap.Bool("connected", connected))
		},
		Logger: logger,
	})

	if err := session.Run(ctx); err != nil {
		return err
	}

	if !opts.signOutOnExit {
		session.Close()
		return nil
	}
	signOutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := session.SignOut(signOutCtx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	fmt.Fprintln(out, "signed out")
	return nil
}

func printInbox(out io.Writer, items []client.Notification) {
	fmt.Fprintf(out, "%s  %d unread\n", time.Now().Format(time.TimeOnly), len(items))
	for _, n := range items {
		name := n.Originator.Name
		if name == "" {
			name = n.Originator.UserID
		}
		fmt.Fprintf(out, "  %s  %-20s %s\n", n.CreatedAt.Local().Format(time.DateTime), n.Type, name)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
