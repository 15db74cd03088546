package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// usageError marks failures caused by bad invocation; they exit with 2.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	var ue *usageError
	if errors.As(err, &ue) {
		return 2
	}
	var ce *exitCodeError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}

// exitCodeError carries a non-zero exit code for a command that already
// printed its own output, such as an unhealthy doctor report.
type exitCodeError struct {
	code int
	msg  string
}

func (e *exitCodeError) Error() string { return e.msg }

type rootOptions struct {
	configPath string
	logLevel   string
	storage    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	tuiOpts := &tuiOptions{}

	root := &cobra.Command{
		Use:   "chapter-generator",
		Short: "Generate YouTube chapter timestamps",
		Long: `chapter-generator sends a video link to the chapter webhook and prints
the generated timestamps. Free use is limited per period; a Pro license key
lifts the limit. Running without a command opens the terminal user interface (TUI).`,
		Args:          noArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd, opts, tuiOpts)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default ~/.chapter-generator/config.yaml)")
	pf.StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	pf.StringVar(&opts.storage, "storage", "", "override storage.driver (file, redis, memory)")
	addTUIFlags(root, tuiOpts)

	root.AddCommand(
		newTUICmd(opts),
		newGenerateCmd(opts),
		newStatusCmd(opts),
		newHistoryCmd(opts),
		newLicenseCmd(opts),
		newUpgradeCmd(opts),
		newDoctorCmd(opts),
		newCompletionCmd(),
	)
	return root
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		if cmd.HasSubCommands() {
			return usageErrorf("unknown command %q for %q", args[0], cmd.CommandPath())
		}
		return usageErrorf("%s accepts no arguments", cmd.CommandPath())
	}
	return nil
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageErrorf("%s expects %d argument(s), got %d", cmd.CommandPath(), n, len(args))
		}
		return nil
	}
}
