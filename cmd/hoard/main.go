// Command hoard is a thin cobra CLI over internal/install: argument
// parsing and process exit codes only, grounded on the teacher's
// internal/cmd/root.go root command and internal/cmdutil.Helper's
// verbosity/color flag wiring.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/hoardpm/hoard/internal/install"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}

type globalOpts struct {
	verbosity int
	noColor   bool
	cwd       string
}

func newRootCmd() *cobra.Command {
	opts := &globalOpts{}

	cmd := &cobra.Command{
		Use:           "hoard",
		Short:         "An npm-compatible package manager",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	flags := cmd.PersistentFlags()
	flags.CountVarP(&opts.verbosity, "verbose", "v", "increase logging verbosity (-v, -vv, -vvv)")
	flags.BoolVar(&opts.noColor, "no-color", !isatty.IsTerminal(os.Stdout.Fd()), "disable colorized output")
	flags.StringVar(&opts.cwd, "cwd", ".", "directory to run in")

	cmd.AddCommand(newInstallCmd(opts))
	cmd.AddCommand(newRunCmd(opts))
	return cmd
}

func (o *globalOpts) logger() hclog.Logger {
	level := hclog.Warn
	switch {
	case o.verbosity >= 2:
		level = hclog.Trace
	case o.verbosity == 1:
		level = hclog.Debug
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:            "hoard",
		Level:           level,
		Output:          os.Stderr,
		Color:           colorOption(o.noColor),
		DisableTime:     true,
		IncludeLocation: false,
	})
}

func colorOption(noColor bool) hclog.ColorOption {
	if noColor {
		return hclog.ColorOff
	}
	return hclog.AutoColor
}

func newInstallCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Resolve and install the project's dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.logger()
			inst, err := install.New(install.Options{ProjectDir: opts.cwd, Logger: logger})
			if err != nil {
				return err
			}
			defer inst.Close()

			result, err := inst.Run(context.Background())
			if err != nil {
				return err
			}
			printSummary(opts, result)
			return nil
		},
	}
}

func newRunCmd(opts *globalOpts) *cobra.Command {
	var priority int
	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Run a package.json script through the resilient process runner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.logger()
			inst, err := install.New(install.Options{ProjectDir: opts.cwd, Logger: logger})
			if err != nil {
				return err
			}
			defer inst.Close()

			result, err := inst.RunScript(context.Background(), args[0], priority)
			if err != nil {
				return err
			}
			if result.Result != nil && result.Result.Stdout != "" {
				fmt.Fprintln(os.Stdout, result.Result.Stdout)
			}
			if result.Result == nil || !result.Result.Success {
				warn(opts, "script %q failed", args[0])
				return fmt.Errorf("script %q exited unsuccessfully", args[0])
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&priority, "priority", 0, "script pool priority; higher values run first")
	return cmd
}

func printSummary(opts *globalOpts, result *install.Result) {
	count := 0
	if result.Graph != nil {
		count = len(result.Graph.Packages)
	}
	line := fmt.Sprintf("installed %d package(s)", count)
	if opts.noColor {
		fmt.Fprintln(os.Stdout, line)
		return
	}
	color.New(color.FgGreen).Fprintln(os.Stdout, line) //nolint:errcheck
}

func warn(opts *globalOpts, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if opts.noColor {
		fmt.Fprintln(os.Stderr, msg)
		return
	}
	color.New(color.FgYellow).Fprintln(os.Stderr, msg) //nolint:errcheck
}
