package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
)

func newCheckProjectsCmd(a *app) *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "check-projects",
		Short: "Report descriptors whose project does not match their container",
		Long: `check-projects compares the project column of every property and domain
descriptor with the project its container currently belongs to. With --fix
the column is rewritten, or the descriptor is merged into the one the
project already has for the same URI.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			engine, err := m.Migrations()
			if err != nil {
				return err
			}
			tree, err := m.Topology()
			if err != nil {
				return err
			}
			found, err := engine.CheckProjectColumns(cmd.Context(), fix)
			if err != nil {
				return err
			}
			return a.output(cmd, found, func(w io.Writer) error {
				if len(found) == 0 {
					_, err := fmt.Fprintln(w, "no mismatched descriptors")
					return err
				}
				t := newTable(w, "KIND", "ID", "URI", "CONTAINER", "PROJECT", "EXPECTED", "MERGED INTO")
				for _, mm := range found {
					merged := mm.Unresolved
					if mm.MergedInto != 0 {
						merged = strconv.FormatInt(mm.MergedInto, 10)
					}
					t.row(mm.Kind, strconv.FormatInt(mm.ID, 10), mm.URI, tree.Path(mm.Container),
						mm.Project, tree.Path(mm.Expected), merged)
				}
				if err := t.flush(); err != nil {
					return err
				}
				if !fix {
					_, err := fmt.Fprintln(w, "run with --fix to repair")
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "repair the mismatches")
	return cmd
}
