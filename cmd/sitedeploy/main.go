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

	"github.com/joho/godotenv"
	"github.com/openmined/sitedeploy/internal/config"
	"github.com/openmined/sitedeploy/internal/routing"
	"github.com/openmined/sitedeploy/internal/utils"
	"github.com/openmined/sitedeploy/internal/version"
	"github.com/spf13/cobra"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
	exitAborted = 3
)

var errAborted = errors.New("user aborted")

// usageError marks bad flags or arguments, which exit like configuration errors.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// app carries the process streams and the logger state shared by all commands.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	level    *slog.LevelVar
	closeLog func() error
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	return &app{
		in:       in,
		out:      out,
		errOut:   errOut,
		level:    new(slog.LevelVar),
		closeLog: func() error { return nil },
	}
}

func (a *app) rootCmd() *cobra.Command {
	opts := &deployOptions{}

	root := &cobra.Command{
		Use:           version.AppName,
		Short:         "Deploy a static site build to an S3 bucket",
		Long:          "Deploy the site build to an S3 bucket. The bucket is created if it does not exist, otherwise it is updated.",
		Version:       version.Detailed(),
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setupLogger(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDeploy(cmd, opts)
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	root.PersistentFlags().StringP("config", "c", "", "config file (default <artifactsDir>/s3.config.json)")
	root.PersistentFlags().String("log-file", "", "also write debug logs to this file")
	root.PersistentFlags().BoolP("verbose", "v", false, "verbose logging")
	bindDeployFlags(root, opts)

	root.AddCommand(a.deployCmd())
	root.AddCommand(a.routesCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func (a *app) setupLogger(cmd *cobra.Command) error {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		a.level.Set(slog.LevelDebug)
	}
	logFile, _ := cmd.Flags().GetString("log-file")

	logger, closeLog, err := utils.NewLogger(utils.LogOptions{
		Console:      a.errOut,
		ConsoleLevel: a.level,
		FilePath:     logFile,
	})
	if err != nil {
		return fmt.Errorf("log file '%s': %w", logFile, err)
	}
	a.closeLog = closeLog
	slog.SetDefault(logger)
	return nil
}

// execute runs the command line and maps the outcome to a process exit code.
func (a *app) execute(ctx context.Context, args []string) int {
	cmd := a.rootCmd()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	defer a.closeLog()

	code := exitCode(err)
	switch code {
	case exitOK:
	case exitAborted:
		fmt.Fprintln(a.errOut, red.Render("User aborted!"))
	default:
		fmt.Fprintln(a.errOut, red.Render("Error: ")+err.Error())
		if code == exitConfig {
			var usage *usageError
			if errors.As(err, &usage) {
				fmt.Fprintln(a.errOut, gray.Render("Run '"+cmd.CommandPath()+" --help' for usage."))
			}
		}
	}
	return code
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, errAborted) {
		return exitAborted
	}

	var validation *config.ValidationError
	var usage *usageError
	switch {
	case errors.As(err, &validation),
		errors.As(err, &usage),
		errors.Is(err, routing.ErrHostnameProtocol),
		errors.Is(err, routing.ErrTooManyRoutingRules),
		errors.Is(err, routing.ErrDuplicateRedirect):
		return exitConfig
	}
	return exitRuntime
}

func main() {
	// .env is optional, it usually only carries AWS credentials
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := newApp(os.Stdin, os.Stdout, os.Stderr).execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
