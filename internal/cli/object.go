package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/ontology/pkg/proptype"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

func newObjectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "object",
		Short: "Read and write property values of objects",
	}
	cmd.AddCommand(
		newObjectSetCmd(a),
		newObjectGetCmd(a),
		newObjectDeleteCmd(a),
	)
	return cmd
}

type cellView struct {
	PropertyURI string `json:"property_uri"`
	Name        string `json:"name,omitempty"`
	Value       any    `json:"value,omitempty"`
	MvIndicator string `json:"mv_indicator,omitempty"`
}

func viewCell(op *types.ObjectProperty) cellView {
	return cellView{PropertyURI: op.PropertyURI, Name: op.Name, Value: op.Value, MvIndicator: op.MvIndicator}
}

func formatCell(v cellView) string {
	if v.Value == nil {
		return ""
	}
	return proptype.FormatValue(v.Value)
}

func newObjectSetCmd(a *app) *cobra.Command {
	var (
		container string
		mv        string
		owner     string
		clear     bool
	)
	cmd := &cobra.Command{
		Use:   "set <object-uri> <property-uri> [value]",
		Short: "Set one property value of an object",
		Long: `Set replaces the value of one property on an object, creating the object
when needed. The value is converted to the property's type. Omit the value
with --clear to remove it, or pass --mv to record a missing-value indicator.`,
		Example: `  ontology object set urn:o:S-1 urn:p:Weight 12.5 -c /Lab
  ontology object set urn:o:S-1 urn:p:Weight --mv Q -c /Lab`,
		Args: usageArgs(cobra.RangeArgs(2, 3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value any
			switch {
			case len(args) == 3:
				value = args[2]
			case !clear && mv == "":
				return fmt.Errorf("%w: a value, --mv or --clear is required", errUsage)
			}
			if mv != "" {
				value = types.MvValue{Value: value, Indicator: mv}
			}

			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			c, err := m.Resolve(container)
			if err != nil {
				return err
			}
			descriptors, err := m.Descriptors()
			if err != nil {
				return err
			}
			objects, err := m.Objects()
			if err != nil {
				return err
			}
			pd, err := descriptors.GetPropertyDescriptor(cmd.Context(), args[1], c.ID)
			if err != nil {
				return err
			}
			cell, err := objects.UpdateObjectProperty(cmd.Context(), types.System, c.ID, pd, args[0], value, owner, false)
			if err != nil {
				return err
			}
			view := viewCell(cell)
			return a.output(cmd, view, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", args[0], view.PropertyURI, formatCell(view), view.MvIndicator)
				return err
			})
		},
	}
	containerFlag(cmd, &container)
	cmd.Flags().StringVar(&mv, "mv", "", "missing-value indicator")
	cmd.Flags().StringVar(&owner, "owner", "", "owner object URI, set when the object is created")
	cmd.Flags().BoolVar(&clear, "clear", false, "remove the value")
	return cmd
}

func newObjectGetCmd(a *app) *cobra.Command {
	var container string
	cmd := &cobra.Command{
		Use:   "get <object-uri>",
		Short: "Show the property values of an object",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			c, err := m.Resolve(container)
			if err != nil {
				return err
			}
			objects, err := m.Objects()
			if err != nil {
				return err
			}
			if _, err := objects.GetObject(cmd.Context(), c.ID, args[0]); err != nil {
				return err
			}
			values, err := objects.GetPropertyObjects(cmd.Context(), c.ID, args[0])
			if err != nil {
				return err
			}
			views := make([]cellView, 0, values.Len())
			for _, op := range values.Values() {
				views = append(views, viewCell(op))
			}
			return a.output(cmd, views, func(w io.Writer) error {
				t := newTable(w, "PROPERTY", "NAME", "VALUE", "MV")
				for _, v := range views {
					t.row(v.PropertyURI, v.Name, formatCell(v), v.MvIndicator)
				}
				return t.flush()
			})
		},
	}
	containerFlag(cmd, &container)
	return cmd
}

func newObjectDeleteCmd(a *app) *cobra.Command {
	var (
		container string
		owned     bool
	)
	cmd := &cobra.Command{
		Use:   "delete <object-uri>...",
		Short: "Delete objects and their values",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			c, err := m.Resolve(container)
			if err != nil {
				return err
			}
			objects, err := m.Objects()
			if err != nil {
				return err
			}
			ids := make([]int64, 0, len(args))
			for _, uri := range args {
				o, err := objects.GetObject(cmd.Context(), c.ID, uri)
				if err != nil {
					return err
				}
				ids = append(ids, o.ObjectID)
			}
			if err := objects.DeleteObjects(cmd.Context(), c.ID, owned, ids...); err != nil {
				return err
			}
			return a.output(cmd, map[string][]string{"deleted": args}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "deleted %d object(s)\n", len(args))
				return err
			})
		},
	}
	containerFlag(cmd, &container)
	cmd.Flags().BoolVar(&owned, "owned", false, "also delete the objects these objects own")
	return cmd
}
