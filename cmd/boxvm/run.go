package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/boxlang/boxvm/internal/asmtext"
	"github.com/boxlang/boxvm/op"
	"github.com/boxlang/boxvm/vm"
	"github.com/spf13/cobra"
)

func (a *app) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Assemble a file and run one of its procedures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), args[0])
		},
	}
	flags := cmd.Flags()
	flags.String("entry", "main", "Procedure to run")
	flags.Bool("trace", false, "Print every instruction as it runs")
	flags.Bool("trace-lines", false, "Print source lines instead of instructions when tracing")
	flags.Bool("dump", false, "Print the non-zero global registers after the run")
	flags.Int("max-depth", 0, "Limit procedure call nesting (0 keeps the default)")
	a.bind(flags.Lookup("entry"), flags.Lookup("trace"), flags.Lookup("trace-lines"),
		flags.Lookup("dump"), flags.Lookup("max-depth"))
	return cmd
}

// loaded is an assembled program ready to run.
type loaded struct {
	machine *vm.VirtualMachine
	prog    *asmtext.Program
	procs   map[string]op.CallNum
}

func (a *app) load(ctx context.Context, path string, options ...vm.Option) (*loaded, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	prog, err := asmtext.Parse(ctx, string(src), asmtext.WithFilename(path))
	if err != nil {
		return nil, err
	}
	opts := append(prog.Options(), vm.WithLogger(a.logger()))
	opts = append(opts, options...)
	machine := vm.New(opts...)
	installNatives(machine, a.stdout)
	procs, err := asmtext.Load(machine, prog, asmtext.WithLineNumbers())
	if err != nil {
		return nil, err
	}
	return &loaded{machine: machine, prog: prog, procs: procs}, nil
}

func (a *app) run(ctx context.Context, path string) error {
	var opts []vm.Option
	if depth := a.v.GetInt("max-depth"); depth > 0 {
		opts = append(opts, vm.WithMaxDepth(depth))
	}
	if a.v.GetBool("trace") || a.v.GetBool("trace-lines") {
		opts = append(opts, vm.WithObserver(newTracer(a.stderr, a.v.GetBool("trace-lines"))))
	}
	l, err := a.load(ctx, path, opts...)
	if err != nil {
		return err
	}
	defer l.machine.Close()

	entry := a.v.GetString("entry")
	num, ok := l.procs[entry]
	if !ok {
		return fmt.Errorf("no procedure named %q in %s", entry, path)
	}
	log := l.machine.Logger()
	log.Debug().Str("entry", entry).Uint32("call", uint32(num)).Msg("running")
	if err := l.machine.Run(num); err != nil {
		return err
	}
	if a.v.GetBool("dump") {
		dumpGlobals(a.stdout, l.machine)
	}
	return nil
}

// dumpGlobals prints the global registers and variables holding a non-zero
// value, one per line.
func dumpGlobals(w io.Writer, machine *vm.VirtualMachine) {
	for _, t := range []op.Type{op.TypeChar, op.TypeInt, op.TypeReal, op.TypePoint} {
		for i := -1; ; i-- {
			p, err := machine.Global(t, i)
			if err != nil {
				break
			}
			if s, nonZero := formatValue(t, p, true); nonZero {
				fmt.Fprintf(w, "gv%s%d = %s\n", t, -i, s)
			}
		}
		for i := 0; ; i++ {
			p, err := machine.Global(t, i)
			if err != nil {
				break
			}
			if s, nonZero := formatValue(t, p, true); nonZero {
				fmt.Fprintf(w, "g%s%d = %s\n", t, i, s)
			}
		}
	}
}
