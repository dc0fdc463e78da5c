// Package commands implements the postsctl command line client.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	goerrors "github.com/goliatone/go-errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goliatone/go-query-cache/failure"
	"github.com/goliatone/go-query-cache/pkg/config"
	"github.com/goliatone/go-query-cache/pkg/di"
)

// DefaultRetries is how many times a retryable failure is retried.
const DefaultRetries = 2

// CLI represents the postsctl command line interface.
type CLI struct {
	rootCmd   *cobra.Command
	diOpts    []di.Option
	container *di.Container

	configPath  string
	environment string
	retries     int
}

// New creates a CLI. opts are forwarded to the container built before each
// command runs.
func New(opts ...di.Option) *CLI {
	c := &CLI{diOpts: opts}

	rootCmd := &cobra.Command{
		Use:               "postsctl",
		Short:             "Browse and edit posts through the query cache",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.container == nil {
				return nil
			}
			return c.container.Close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "Path to a YAML configuration file")
	flags.StringVarP(&c.environment, "env", "e", "", "Environment to use instead of the configured one")
	flags.IntVar(&c.retries, "retries", DefaultRetries, "Retries for failures that can be retried")

	rootCmd.AddCommand(c.newListCmd())
	rootCmd.AddCommand(c.newShowCmd())
	rootCmd.AddCommand(c.newCommentsCmd())
	rootCmd.AddCommand(c.newCreateCmd())
	rootCmd.AddCommand(c.newDeleteCmd())
	rootCmd.AddCommand(c.newEnvsCmd())

	c.rootCmd = rootCmd
	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput redirects command output and diagnostics.
func (c *CLI) SetOutput(out, errOut io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(errOut)
}

func (c *CLI) setup(cmd *cobra.Command, _ []string) error {
	cfg := config.Default()
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if c.environment != "" {
		cfg.ActiveEnvironment = c.environment
	}

	container, err := di.NewContainer(cfg, c.diOpts...)
	if err != nil {
		return err
	}
	c.container = container
	container.Logger().Debug("postsctl ready",
		zap.String("command", cmd.Name()),
		zap.String("environment", container.Environments().Active()),
	)
	return nil
}

// retryFailure retries f while it is retryable, up to the --retries flag. It
// returns nil once a retry succeeds and the last failure otherwise.
func (c *CLI) retryFailure(cmd *cobra.Command, f *failure.Failure) error {
	for attempt := 1; attempt <= c.retries && f.Retryable(); attempt++ {
		cmd.PrintErrf("%s Retrying (%d/%d)\n", f.Message, attempt, c.retries)

		err := f.Retry(cmd.Context())
		if err == nil {
			return nil
		}
		f = presentable(err, f.Retry)
	}
	return f
}

// presentable returns the failure carried by err, or wraps err with retry.
func presentable(err error, retry func(context.Context) error) *failure.Failure {
	var f *failure.Failure
	if errors.As(err, &f) {
		return f
	}
	return failure.New(err, retry, nil)
}

// PrintError writes err to w the way a user should read it: the failure
// message when there is one, followed by any field errors.
func PrintError(w io.Writer, err error) {
	var f *failure.Failure
	if errors.As(err, &f) {
		fmt.Fprintf(w, "Error: %s\n", f.Message)
	} else {
		fmt.Fprintf(w, "Error: %v\n", err)
	}

	var gerr *goerrors.Error
	if errors.As(err, &gerr) {
		for _, fe := range gerr.ValidationErrors {
			fmt.Fprintf(w, "  %s: %s\n", fe.Field, fe.Message)
		}
	}
}
