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

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/formreports/cmd/formctl/cli"
	"github.com/odyssey-erp/formreports/internal/app"
	"github.com/odyssey-erp/formreports/internal/platform/cache"
	"github.com/odyssey-erp/formreports/internal/reports"
	"github.com/odyssey-erp/formreports/jobs"
)

// exitError carries a command's exit code back to main.
type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func exit(code int) error {
	if code == 0 {
		return nil
	}
	return exitError(code)
}

// usageError is a bad invocation: unknown flags, commands or arguments.
type usageError struct {
	cmd *cobra.Command
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usage(cmd *cobra.Command, err error) error {
	return usageError{cmd: cmd, err: err}
}

func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return usage(cmd, err)
	}
	return nil
}

func main() {
	if app.InTestMode() {
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes formctl with args and returns the process exit code. Commands
// that return an exitError have already reported on stderr.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if args == nil {
		args = []string{}
	}
	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var code exitError
	if errors.As(err, &code) {
		return int(code)
	}
	_, _ = fmt.Fprintf(stderr, "formctl: %v\n", err)
	var bad usageError
	if errors.As(err, &bad) {
		_, _ = fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", bad.cmd.CommandPath())
		return 2
	}
	return 1
}

func newRootCommand() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "formctl",
		Short:         "Generate form reports from the command line",
		Long:          "formctl produces the summary and consolidated PDFs, lists forms by date and queues background packs, using the same environment as the server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usage(cmd, fmt.Errorf("unknown command %q for %q", args[0], cmd.CommandPath()))
			}
			return cmd.Help()
		},
	}
	root.SetFlagErrorFunc(usage)
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")

	// setup loads the configuration and the report stack for one command.
	setup := func(cmd *cobra.Command) (*app.Config, *app.Reports, error) {
		cfg, err := app.LoadToolConfig()
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		if verbose {
			logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
		}
		stack, err := app.BuildReports(cmd.Context(), cfg, logger, nil, nil)
		if err != nil {
			return nil, nil, err
		}
		return cfg, stack, nil
	}

	root.AddCommand(
		generateCommand("summary", "Write the summary PDF for a fiscal year and month", setup, (*cli.ReportsCLI).SummaryCommand),
		generateCommand("consolidate", "Write the consolidated PDF for a fiscal year and month", setup, (*cli.ReportsCLI).ConsolidateCommand),
		filterCommand(setup),
		optionsCommand(setup),
		enqueueCommand(),
		queueCommand(),
	)
	return root
}

type setupFunc func(cmd *cobra.Command) (*app.Config, *app.Reports, error)

func generateCommand(use, short string, setup setupFunc, run func(*cli.ReportsCLI, context.Context, cli.GenerateOptions) int) *cobra.Command {
	var opts cli.GenerateOptions
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, stack, err := setup(cmd)
			if err != nil {
				return err
			}
			defer stack.Close()
			opts.Stdout = cmd.OutOrStdout()
			opts.Stderr = cmd.ErrOrStderr()
			return exit(run(cli.NewReportsCLI(stack.Service), cmd.Context(), opts))
		},
	}
	cmd.Flags().StringVar(&opts.FiscalYear, "fy-year", "", "fiscal year name, e.g. 2023-24")
	cmd.Flags().StringVar(&opts.Month, "month", "", "month name, e.g. April")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", `output file ("-" for stdout)`)
	return cmd
}

func filterCommand(setup setupFunc) *cobra.Command {
	var opts cli.FilterOptions
	cmd := &cobra.Command{
		Use:   "filter",
		Args:  noArgs,
		Short: "List forms dated within a range",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, stack, err := setup(cmd)
			if err != nil {
				return err
			}
			defer stack.Close()
			opts.Stdout = cmd.OutOrStdout()
			opts.Stderr = cmd.ErrOrStderr()
			return exit(cli.NewReportsCLI(stack.Service).FilterCommand(cmd.Context(), opts))
		},
	}
	cmd.Flags().StringVar(&opts.From, "from", "", "first date, YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.To, "to", "", "last date, YYYY-MM-DD")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "print rows as JSON")
	return cmd
}

func optionsCommand(setup setupFunc) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "options",
		Args:  noArgs,
		Short: "Print the fiscal years and months offered by the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, stack, err := setup(cmd)
			if err != nil {
				return err
			}
			defer stack.Close()
			return exit(cli.NewReportsCLI(stack.Service).OptionsCommand(cmd.Context(), jsonOutput, cmd.OutOrStdout(), cmd.ErrOrStderr()))
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print as JSON")
	return cmd
}

// withQueue connects to Redis and hands the command a JobsCLI.
func withQueue(cmd *cobra.Command, fn func(*cli.JobsCLI) int) error {
	cfg, err := app.LoadToolConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	redisClient, err := cache.New(cmd.Context(), cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	queueOpt := cache.QueueOpt(redisClient)
	jobsClient, err := jobs.NewClient(queueOpt)
	if err != nil {
		return err
	}
	defer jobsClient.Close()
	inspector := asynq.NewInspector(queueOpt)
	defer inspector.Close()

	packs := reports.NewPacks(reports.NewPackStore(redisClient, cfg.PackTTL), jobsClient)
	return exit(fn(cli.NewJobsCLI(packs, inspector, jobs.QueueReports)))
}

func enqueueCommand() *cobra.Command {
	var fyYear, month string
	cmd := &cobra.Command{
		Use:   "enqueue",
		Args:  noArgs,
		Short: "Queue a consolidated pack for the worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueue(cmd, func(c *cli.JobsCLI) int {
				return c.EnqueueCommand(cmd.Context(), fyYear, month, cmd.OutOrStdout(), cmd.ErrOrStderr())
			})
		},
	}
	cmd.Flags().StringVar(&fyYear, "fy-year", "", "fiscal year name")
	cmd.Flags().StringVar(&month, "month", "", "month name")
	return cmd
}

func queueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Args:  noArgs,
		Short: "Show the report queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueue(cmd, func(c *cli.JobsCLI) int {
				stats, err := c.InspectQueue(cmd.Context())
				if err != nil {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "queue: %v\n", err)
					return 1
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: pending=%d active=%d completed=%d failed=%d\n",
					stats.Queue, stats.Pending, stats.Active, stats.Completed, stats.Failed)
				return 0
			})
		},
	}
}
