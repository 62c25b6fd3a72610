package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dangdungcntt/go-blade/v2/compiler"
)

func newCompileCmd(s *settings) *cobra.Command {
	var show, list bool
	cmd := &cobra.Command{
		Use:   "compile [view...]",
		Short: "Compile every view, filling the caches",
		Long: `Compile every view of the view directory. Broken views fail the command.
With --cache-path the compiled artifacts are kept for later runs.

Examples:
  blade compile                       # Check that every view compiles
  blade compile --print pages.home    # Show the compiled program of a view
  blade compile --list                # List the directives views can use`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := s.engine()
			if err != nil {
				return err
			}
			if list {
				out := cmd.OutOrStdout()
				for _, name := range compiler.Builtins() {
					fmt.Fprintf(out, "@%s\n", name)
				}
				for _, name := range e.Compiler().Directives() {
					fmt.Fprintf(out, "@%s (custom)\n", name)
				}
				return nil
			}
			if err := e.Load(); err != nil {
				return err
			}
			templates := e.GetDebugTemplates()
			s.logger.Info("compiled views", "count", len(templates))
			if !show {
				return nil
			}

			names := slices.Sorted(maps.Keys(templates))
			if len(args) > 0 {
				names = names[:0]
				for _, a := range args {
					names = append(names, strings.ReplaceAll(a, ".", "/"))
				}
			}
			out := cmd.OutOrStdout()
			for _, name := range names {
				text, ok := templates[name]
				if !ok {
					return fmt.Errorf("view %q not found", name)
				}
				fmt.Fprintf(out, "==> %s <==\n%s\n", name, text)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&show, "print", "p", false, "print the compiled programs")
	cmd.Flags().BoolVarP(&list, "list", "l", false, "list builtin and custom directives instead of compiling")
	return cmd
}
