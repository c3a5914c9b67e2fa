// Command fortuna is the entry point of the fortune and bounty oracle: an
// HTTP API server, one-shot readings in the terminal, and a live voice chat
// with the master.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/fortuna/internal/app"
	"github.com/MrWong99/fortuna/internal/config"
	"github.com/MrWong99/fortuna/internal/observe"
	"github.com/MrWong99/fortuna/internal/resilience"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// errSilent fails a command whose output already explains the failure.
var errSilent = errors.New("fortuna: failed")

// cli holds state shared by all subcommands.
type cli struct {
	configPath string
	out        io.Writer

	cfg   *config.Config
	level slog.LevelVar
}

func run(args []string, stdout, stderr io.Writer) int {
	c := &cli{out: stdout}
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, errSilent) {
			return 1
		}
		fmt.Fprintf(stderr, "fortuna: %s\n", describeError(err))
		return 1
	}
	return 0
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fortuna",
		Short:         "Pirate bounty fortunes, alliances and a live voice master",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to the YAML configuration file (optional)")

	root.AddCommand(
		c.serveCmd(),
		c.liveCmd(),
		c.fortuneCmd(),
		c.matchCmd(),
		c.speakCmd(),
		c.posterCmd(),
		c.statusCmd(),
	)
	return root
}

// setup resolves configuration and installs the default logger.
func (c *cli) setup(logOut io.Writer) error {
	cfg, err := config.Resolve(c.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %q not found", c.configPath)
		}
		return err
	}
	c.cfg = cfg
	c.level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: &c.level})))
	return nil
}

// build instantiates providers and the application. m may be nil.
func (c *cli) build(m *observe.Metrics, opts ...app.Option) (*app.App, error) {
	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)

	providers, err := app.BuildProviders(c.cfg, reg, m)
	if err != nil {
		return nil, err
	}
	return app.New(c.cfg, providers, append(opts, app.WithLogLevel(&c.level))...)
}

// describeError renders err for the terminal: the themed message plus the
// underlying cause.
func describeError(err error) string {
	switch resilience.Classify(err) {
	case resilience.KindTransient:
		return err.Error()
	default:
		return resilience.UserMessage(err) + " (" + err.Error() + ")"
	}
}
