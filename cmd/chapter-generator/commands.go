package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/olliecrow/chapter_generator/internal/chapters"
	"github.com/olliecrow/chapter_generator/internal/history"
	"github.com/olliecrow/chapter_generator/internal/logger"
	"github.com/olliecrow/chapter_generator/internal/tui"
)

type tuiOptions struct {
	timeout     time.Duration
	noColor     bool
	noAltScreen bool
}

func addTUIFlags(cmd *cobra.Command, o *tuiOptions) {
	f := cmd.Flags()
	f.DurationVar(&o.timeout, "timeout", 3*time.Minute, "per-request timeout")
	f.BoolVar(&o.noColor, "no-color", false, "disable color styling")
	f.BoolVar(&o.noAltScreen, "no-alt-screen", false, "disable alternate screen mode")
}

func newTUICmd(opts *rootOptions) *cobra.Command {
	o := &tuiOptions{}
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Run the terminal user interface (default)",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd, opts, o)
		},
	}
	addTUIFlags(cmd, o)
	return cmd
}

func runTUI(cmd *cobra.Command, opts *rootOptions, o *tuiOptions) error {
	if o.timeout <= 0 {
		return usageErrorf("--timeout must be > 0")
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("interactive TUI requires a TTY; use generate for scripts")
	}

	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	logger.FromContext(cmd.Context()).Info("tui started", zap.String("webhook", a.client.Endpoint()))
	return tui.Run(tui.Options{
		Timeout:     o.timeout,
		NoColor:     o.noColor,
		AltScreen:   !o.noAltScreen,
		CheckoutURL: a.cfg.CheckoutURL,
		Submit:      a.session.Submit,
		SaveLicense: a.session.SaveLicense,
		Snapshot:    a.session.Snapshot,
	})
}

// userFacing replaces err with the message shown to end users, keeping the
// full error in the log.
func userFacing(cmd *cobra.Command, err error) error {
	var validationErr *chapters.ValidationError
	if errors.As(err, &validationErr) {
		return &usageError{err: validationErr}
	}
	logger.FromContext(cmd.Context()).Debug("command failed",
		zap.String("command", cmd.CommandPath()), zap.Error(err))
	return &exitCodeError{code: 1, msg: chapters.UserMessage(err)}
}

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "generate <video-url>",
		Short: "Generate chapters for one video",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out, err := a.session.Submit(cmd.Context(), args[0])
			if err != nil {
				return userFacing(cmd, err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(out.Chapters, "\n"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the result as JSON")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show plan and remaining free generations",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			snap := a.session.Snapshot(cmd.Context())
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), snap)
			}
			printStatus(cmd.OutOrStdout(), snap, a.cfg.CheckoutURL, time.Now())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output status as JSON")
	return cmd
}

func printStatus(w io.Writer, snap chapters.Snapshot, checkoutURL string, now time.Time) {
	if snap.Licensed {
		fmt.Fprintln(w, "plan: pro (unlimited generations)")
		return
	}
	fmt.Fprintln(w, "plan: free")
	fmt.Fprintf(w, "used: %d of %d this %s\n", snap.Used, snap.Limit, snap.Period)
	fmt.Fprintf(w, "remaining: %d\n", snap.Remaining)
	if snap.ResetsAt != nil {
		in := max(0, snap.ResetsAt.Sub(now)).Round(time.Minute)
		fmt.Fprintf(w, "resets: %s (in %s)\n", snap.ResetsAt.UTC().Format(time.RFC3339), in)
	}
	if checkoutURL != "" {
		fmt.Fprintf(w, "upgrade: %s\n", checkoutURL)
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent generations, newest first",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			records := a.state.History(cmd.Context())
			if asJSON {
				if records == nil {
					records = []history.Record{}
				}
				return writeJSON(cmd.OutOrStdout(), records)
			}
			w := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(w, "no generations yet")
				return nil
			}
			for i, rec := range records {
				at := time.UnixMilli(rec.ID).UTC().Format("2006-01-02 15:04")
				fmt.Fprintf(w, "%d. %s  %s\n", i+1, at, rec.URL)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output history as JSON")

	show := &cobra.Command{
		Use:   "show <n>",
		Short: "Print the chapters of history entry n (1 is newest)",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return usageErrorf("history index must be a positive integer, got %q", args[0])
			}
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			rec, err := a.session.Record(cmd.Context(), n-1)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(rec.Chapters, "\n"))
			return nil
		},
	}
	cmd.AddCommand(show)
	return cmd
}

func newLicenseCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "license",
		Short: "Manage the Pro license key",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	set := &cobra.Command{
		Use:   "set <key>",
		Short: "Save a license key",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.session.SaveLicense(cmd.Context(), args[0]); err != nil {
				return userFacing(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "license key saved; generations are now unlimited")
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the saved license key",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			key := a.session.LicenseKey(cmd.Context())
			if key == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "no license key set")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the saved license key",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.session.ClearLicense(cmd.Context()); err != nil {
				return userFacing(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "license key cleared")
			return nil
		},
	}

	cmd.AddCommand(set, show, clearCmd)
	return cmd
}

func newUpgradeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade",
		Short: "Print the Pro checkout link",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if a.cfg.CheckoutURL == "" {
				return errors.New("no checkout_url configured")
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Upgrade to Pro: %s\n", a.cfg.CheckoutURL)
			fmt.Fprintln(w, "After purchase, save your key with: chapter-generator license set <key>")
			return nil
		},
	}
}

func newDoctorCmd(opts *rootOptions) *cobra.Command {
	var (
		asJSON  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run setup and connectivity checks",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if timeout <= 0 {
				return usageErrorf("--timeout must be > 0")
			}
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			report := chapters.RunDoctor(ctx, chapters.DoctorOptions{
				Endpoint:   a.client.Endpoint(),
				Store:      a.kv,
				LicenseKey: a.session.LicenseKey(ctx),
			})

			w := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(w, report); err != nil {
					return err
				}
			} else {
				printDoctorHuman(w, report)
			}
			if !report.Healthy() {
				return &exitCodeError{code: 1, msg: "doctor found problems"}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output doctor report as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 20*time.Second, "doctor timeout")
	return cmd
}

func printDoctorHuman(w io.Writer, report chapters.DoctorReport) {
	fmt.Fprintln(w, "chapter generator doctor")
	fmt.Fprintln(w)
	for _, c := range report.Checks {
		state := "FAIL"
		if c.OK {
			state = "PASS"
		}
		fmt.Fprintf(w, "[%s] %s\n", state, c.Name)
		fmt.Fprintf(w, "  %s\n", c.Details)
	}
}

func newCompletionCmd() *cobra.Command {
	shells := []string{"bash", "zsh", "fish", "powershell"}
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion script",
		Long: `Generate shell completion script for chapter-generator.

Bash:
  chapter-generator completion bash > ~/.local/share/bash-completion/completions/chapter-generator

Zsh:
  chapter-generator completion zsh > "${fpath[1]}/_chapter-generator"

Fish:
  chapter-generator completion fish > ~/.config/fish/completions/chapter-generator.fish`,
		DisableFlagsInUseLine: true,
		ValidArgs:             shells,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return usageErrorf("completion accepts zero or one shell argument")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			shell := "bash"
			if len(args) == 1 {
				shell = strings.TrimSpace(args[0])
			}
			w := cmd.OutOrStdout()
			switch shell {
			case "bash":
				return cmd.Root().GenBashCompletionV2(w, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(w)
			case "fish":
				return cmd.Root().GenFishCompletion(w, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(w)
			default:
				return usageErrorf("unsupported shell %q (expected one of %s)", shell, strings.Join(shells, ", "))
			}
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
