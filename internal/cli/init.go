package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize ontology storage",
		Long:  "Create the configuration and data directories, then create the schema\nand the root and shared containers.",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			cfg, err := m.Config()
			if err != nil {
				return err
			}
			view := struct {
				ConfigDir string `json:"config_dir"`
				Backend   string `json:"backend"`
				DataDir   string `json:"data_dir,omitempty"`
			}{a.configDir, cfg.Backend, cfg.DataDir}
			return a.output(cmd, view, func(w io.Writer) error {
				fmt.Fprintln(w, "Ontology initialized successfully")
				fmt.Fprintln(w, "  config: ", view.ConfigDir)
				fmt.Fprintln(w, "  backend:", view.Backend)
				if view.DataDir != "" {
					fmt.Fprintln(w, "  data:   ", view.DataDir)
				}
				return nil
			})
		},
	}
}
