package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/ontology/internal/topology"
	"github.com/mesh-intelligence/ontology/pkg/proptype"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// table writes tab-separated rows aligned in columns.
type table struct {
	tw *tabwriter.Writer
}

func newTable(w io.Writer, header ...string) *table {
	t := &table{tw: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}
	t.row(header...)
	return t
}

func (t *table) row(cols ...string) {
	fmt.Fprintln(t.tw, strings.Join(cols, "\t"))
}

func (t *table) flush() error { return t.tw.Flush() }

// output prints v as JSON in --json mode, otherwise calls text.
func (a *app) output(cmd *cobra.Command, v any, text func(w io.Writer) error) error {
	if a.flags.jsonMode {
		return printJSON(cmd.OutOrStdout(), v)
	}
	return text(cmd.OutOrStdout())
}

// containerView is a container with its path and project spelled out.
type containerView struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Project  string `json:"project"`
}

func viewContainer(tree *topology.Tree, c types.Container) containerView {
	return containerView{
		ID:       c.ID,
		ParentID: c.ParentID,
		Name:     c.Name,
		Path:     tree.Path(c.ID),
		Project:  tree.Path(tree.Project(c.ID)),
	}
}

func typeName(pd *types.PropertyDescriptor) string {
	return proptype.Of(pd).String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
