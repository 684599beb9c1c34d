package cli

import (
	"fmt"
	"io"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

func newStatsCmd(a *app) *cobra.Command {
	var metrics bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show row counts, and optionally the store counters",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			s, err := m.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.output(cmd, s, func(w io.Writer) error {
				t := newTable(w, "TABLE", "ROWS")
				t.row("containers", fmt.Sprint(s.Containers))
				t.row("properties", fmt.Sprint(s.Properties))
				t.row("domains", fmt.Sprint(s.Domains))
				t.row("memberships", fmt.Sprint(s.Memberships))
				t.row("validators", fmt.Sprint(s.Validators))
				t.row("objects", fmt.Sprint(s.Objects))
				t.row("values", fmt.Sprint(s.Values))
				return t.flush()
			}); err != nil {
				return err
			}
			if !metrics {
				return nil
			}
			families, err := m.Gatherer().Gather()
			if err != nil {
				return err
			}
			for _, mf := range families {
				if _, err := expfmt.MetricFamilyToText(cmd.OutOrStdout(), mf); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&metrics, "metrics", false, "also print the cache and import counters in Prometheus text format")
	return cmd
}
