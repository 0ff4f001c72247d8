package main

import (
	"fmt"

	"github.com/boxlang/boxvm/bytecode"
	"github.com/spf13/cobra"
)

func (a *app) disCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dis <file>",
		Short: "Assemble a file and print the resulting bytecode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dis(cmd, args[0])
		},
	}
	cmd.Flags().String("proc", "", "Procedure to disassemble")
	cmd.Flags().Bool("stats", false, "Print instruction counts after each listing")
	a.bind(cmd.Flags().Lookup("proc"), cmd.Flags().Lookup("stats"))
	return cmd
}

func (a *app) dis(cmd *cobra.Command, path string) error {
	l, err := a.load(cmd.Context(), path)
	if err != nil {
		return err
	}
	defer l.machine.Close()

	only := a.v.GetString("proc")
	if only != "" {
		if _, ok := l.procs[only]; !ok {
			return fmt.Errorf("procedure %q not found", only)
		}
	}
	for i, proc := range l.prog.Procs {
		if only != "" && proc.Name != only {
			continue
		}
		code, ok := l.machine.ProcCode(l.procs[proc.Name])
		if !ok {
			return fmt.Errorf("procedure %q has no bytecode", proc.Name)
		}
		instructions, err := bytecode.Disassemble(code)
		if err != nil {
			return err
		}
		if i > 0 && only == "" {
			fmt.Fprintln(a.stdout)
		}
		fmt.Fprintf(a.stdout, "%s:\n", proc.Name)
		bytecode.Print(instructions, a.stdout)
		if a.v.GetBool("stats") {
			stats, err := bytecode.CodeStats(code)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "; %d instructions (%d short, %d long), %d words\n",
				stats.Instructions, stats.Short, stats.Long, stats.Words)
		}
	}
	return nil
}
