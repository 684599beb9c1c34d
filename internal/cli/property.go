package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/ontology/internal/ontology"
	"github.com/mesh-intelligence/ontology/pkg/proptype"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

func newPropertyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "property",
		Short: "Manage property descriptors and domain membership",
	}
	cmd.AddCommand(
		newPropertyEnsureCmd(a),
		newPropertyAddCmd(a),
		newPropertyRemoveCmd(a),
		newPropertyDeleteCmd(a),
	)
	return cmd
}

// parseValidator reads kind:expression, for example regex:^[A-Z]+$ or range:[0,100].
func parseValidator(s string) (types.ValidatorDef, error) {
	kind, expr, ok := strings.Cut(s, ":")
	if !ok || expr == "" {
		return types.ValidatorDef{}, fmt.Errorf("%w: validator %q is not kind:expression", errUsage, s)
	}
	return types.ValidatorDef{Kind: strings.ToLower(kind), Expression: expr}, nil
}

func newPropertyEnsureCmd(a *app) *cobra.Command {
	var (
		container  string
		typ        string
		validators []string
		pd         types.PropertyDescriptor
	)
	cmd := &cobra.Command{
		Use:   "ensure <property-uri>",
		Short: "Create a property descriptor, or return the existing one",
		Long: `Ensure returns the descriptor registered for the URI as seen from the
container, creating it when absent. Changes to an existing descriptor are
applied only from its own container or its project; the type never changes.`,
		Example: `  ontology property ensure urn:lsid:example.org:Property:Weight --type Double -c /Lab
  ontology property ensure urn:p:Code --validator 'regex:^[A-Z]{3}$' --mv`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pt, ok := proptype.FromName(typ)
			if !ok {
				return fmt.Errorf("%w: unknown type %q", errUsage, typ)
			}
			for _, v := range validators {
				def, err := parseValidator(v)
				if err != nil {
					return err
				}
				pd.Validators = append(pd.Validators, def)
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
			pd.PropertyURI = args[0]
			pd.RangeURI = pt.URI()
			pd.Container = c.ID
			if pd.Name == "" {
				pd.Name = types.PropertyNameFromURI(pd.PropertyURI)
			}
			out, err := descriptors.EnsurePropertyDescriptor(cmd.Context(), types.System, &pd)
			if err != nil {
				return err
			}
			return a.output(cmd, out, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s\t%s\t%s\tid %d\n", out.PropertyURI, out.DisplayName(), typeName(out), out.PropertyID)
				return err
			})
		},
	}
	containerFlag(cmd, &container)
	f := cmd.Flags()
	f.StringVarP(&typ, "type", "t", proptype.String.String(), "property type (String, Integer, Double, Boolean, DateTime, ...)")
	f.StringVar(&pd.Name, "name", "", "property name (default: derived from the URI)")
	f.StringVar(&pd.Label, "label", "", "display label")
	f.StringVar(&pd.Description, "description", "", "description")
	f.StringVar(&pd.Format, "format", "", "display format")
	f.StringVar(&pd.ImportAliases, "aliases", "", "comma-separated import column aliases")
	f.BoolVar(&pd.Required, "required", false, "require a value in every domain")
	f.BoolVar(&pd.MvEnabled, "mv", false, "accept missing-value indicators")
	f.BoolVar(&pd.Hidden, "hidden", false, "hide from default views")
	f.StringArrayVar(&validators, "validator", nil, "validator as kind:expression (regex, range, lookup); repeatable")
	return cmd
}

// membership resolves the property and domain named by args as seen from
// container.
func membership(cmd *cobra.Command, m *ontology.Manager, container, propertyURI, domainURI string) (*types.PropertyDescriptor, *types.DomainDescriptor, error) {
	c, err := m.Resolve(container)
	if err != nil {
		return nil, nil, err
	}
	descriptors, err := m.Descriptors()
	if err != nil {
		return nil, nil, err
	}
	pd, err := descriptors.GetPropertyDescriptor(cmd.Context(), propertyURI, c.ID)
	if err != nil {
		return nil, nil, err
	}
	dd, err := descriptors.GetDomainDescriptor(cmd.Context(), domainURI, c.ID)
	if err != nil {
		return nil, nil, err
	}
	return pd, dd, nil
}

func newPropertyAddCmd(a *app) *cobra.Command {
	var (
		container string
		required  bool
		sortOrder int
	)
	cmd := &cobra.Command{
		Use:   "add <property-uri> <domain-uri>",
		Short: "Add a property to a domain",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			pd, dd, err := membership(cmd, m, container, args[0], args[1])
			if err != nil {
				return err
			}
			descriptors, err := m.Descriptors()
			if err != nil {
				return err
			}
			row, err := descriptors.EnsurePropertyDomain(cmd.Context(), pd, dd, required, sortOrder)
			if err != nil {
				return err
			}
			return a.output(cmd, row, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s is a member of %s\n", pd.PropertyURI, dd.DomainURI)
				return err
			})
		},
	}
	containerFlag(cmd, &container)
	cmd.Flags().BoolVar(&required, "required", false, "require a value within this domain")
	cmd.Flags().IntVar(&sortOrder, "sort", 0, "position within the domain")
	return cmd
}

func newPropertyRemoveCmd(a *app) *cobra.Command {
	var container string
	cmd := &cobra.Command{
		Use:   "remove <property-uri> <domain-uri>",
		Short: "Remove a property from a domain",
		Long:  "Remove drops the membership. A property left in no domain is deleted with its values.",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			pd, dd, err := membership(cmd, m, container, args[0], args[1])
			if err != nil {
				return err
			}
			descriptors, err := m.Descriptors()
			if err != nil {
				return err
			}
			if err := descriptors.RemovePropertyDescriptorFromDomain(cmd.Context(), pd, dd); err != nil {
				return err
			}
			return a.output(cmd, map[string]string{"removed": pd.PropertyURI, "domain": dd.DomainURI}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "removed %s from %s\n", pd.PropertyURI, dd.DomainURI)
				return err
			})
		},
	}
	containerFlag(cmd, &container)
	return cmd
}

func newPropertyDeleteCmd(a *app) *cobra.Command {
	var container string
	cmd := &cobra.Command{
		Use:   "delete <property-uri>",
		Short: "Delete a property with its values and memberships",
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
			descriptors, err := m.Descriptors()
			if err != nil {
				return err
			}
			pd, err := descriptors.GetPropertyDescriptor(cmd.Context(), args[0], c.ID)
			if err != nil {
				return err
			}
			if err := descriptors.DeletePropertyDescriptor(cmd.Context(), pd); err != nil {
				return err
			}
			return a.output(cmd, map[string]string{"deleted": pd.PropertyURI}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, "deleted", pd.PropertyURI)
				return err
			})
		},
	}
	containerFlag(cmd, &container)
	return cmd
}
