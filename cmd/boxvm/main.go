package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var version = "dev"

func main() {
	cmd := newRootCmd(os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries the configuration shared by the subcommands.
type app struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: viper.New(), stdout: stdout, stderr: stderr}
	a.v.SetEnvPrefix("boxvm")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "boxvm",
		Short:         "Assemble, run and disassemble Box virtual machine programs",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.processGlobalFlags()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().Bool("no-color", false, "Disable colored output")
	root.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	a.bind(root.PersistentFlags().Lookup("no-color"), root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(a.runCmd(), a.disCmd())
	return root
}

func (a *app) bind(flags ...*pflag.Flag) {
	for _, f := range flags {
		if err := a.v.BindPFlag(f.Name, f); err != nil {
			panic(err)
		}
	}
}

// Reads global flags and adjusts the environment accordingly.
func (a *app) processGlobalFlags() {
	if a.v.GetBool("no-color") {
		color.NoColor = true
	}
}

func (a *app) logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(a.v.GetString("log-level"))
	if err != nil {
		level = zerolog.WarnLevel
	}
	w := zerolog.ConsoleWriter{Out: a.stderr, NoColor: a.v.GetBool("no-color")}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

type friendlyError interface {
	FriendlyErrorMessage() string
}

// printError writes every error of err, with source context or backtrace
// where the error carries one.
func printError(w io.Writer, err error) {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, e := range merr.Errors {
			printError(w, e)
		}
		return
	}
	var friendly friendlyError
	if errors.As(err, &friendly) {
		fmt.Fprint(w, friendly.FriendlyErrorMessage())
		return
	}
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintln(w, red(err.Error()))
}
