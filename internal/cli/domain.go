package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/ontology/pkg/types"
)

func newDomainCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domain",
		Short: "Manage domains (named sets of properties)",
	}
	cmd.AddCommand(
		newDomainListCmd(a),
		newDomainShowCmd(a),
		newDomainCreateCmd(a),
		newDomainDeleteCmd(a),
	)
	return cmd
}

type domainView struct {
	*types.DomainDescriptor
	ContainerPath string `json:"container_path"`
}

func newDomainListCmd(a *app) *cobra.Command {
	var (
		container string
		all       bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the domains of a container",
		Args:  usageArgs(cobra.NoArgs),
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
			tree, err := m.Topology()
			if err != nil {
				return err
			}
			list, err := descriptors.GetDomainDescriptors(cmd.Context(), c.ID, types.System, all)
			if err != nil {
				return err
			}
			views := make([]domainView, len(list))
			for i, dd := range list {
				views[i] = domainView{DomainDescriptor: dd, ContainerPath: tree.Path(dd.Container)}
			}
			return a.output(cmd, views, func(w io.Writer) error {
				t := newTable(w, "URI", "NAME", "CONTAINER")
				for _, v := range views {
					t.row(v.DomainURI, v.Name, v.ContainerPath)
				}
				return t.flush()
			})
		},
	}
	containerFlag(cmd, &container)
	cmd.Flags().BoolVar(&all, "all", false, "include the project's and the shared container's domains")
	return cmd
}

type memberView struct {
	*types.PropertyDescriptor
	Type      string `json:"type"`
	InDomain  bool   `json:"required_in_domain"`
	SortOrder int    `json:"sort_order"`
}

func newDomainShowCmd(a *app) *cobra.Command {
	var container string
	cmd := &cobra.Command{
		Use:   "show <domain-uri>",
		Short: "Show a domain and its properties",
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
			dd, err := descriptors.GetDomainDescriptor(cmd.Context(), args[0], c.ID)
			if err != nil {
				return err
			}
			members, err := descriptors.GetPropertiesForDomain(cmd.Context(), args[0], c.ID)
			if err != nil {
				return err
			}
			view := struct {
				Domain     *types.DomainDescriptor `json:"domain"`
				Properties []memberView            `json:"properties"`
			}{Domain: dd, Properties: make([]memberView, len(members))}
			for i, dm := range members {
				view.Properties[i] = memberView{
					PropertyDescriptor: dm.Property,
					Type:               typeName(dm.Property),
					InDomain:           dm.Required,
					SortOrder:          dm.SortOrder,
				}
			}
			return a.output(cmd, view, func(w io.Writer) error {
				fmt.Fprintf(w, "%s (%s)\n", dd.Name, dd.DomainURI)
				if dd.Description != "" {
					fmt.Fprintln(w, dd.Description)
				}
				t := newTable(w, "PROPERTY", "NAME", "TYPE", "REQUIRED", "SORT")
				for _, p := range view.Properties {
					t.row(p.PropertyURI, p.DisplayName(), p.Type, yesNo(p.Required || p.InDomain), strconv.Itoa(p.SortOrder))
				}
				return t.flush()
			})
		},
	}
	containerFlag(cmd, &container)
	return cmd
}

func newDomainCreateCmd(a *app) *cobra.Command {
	var (
		container string
		dd        types.DomainDescriptor
	)
	cmd := &cobra.Command{
		Use:     "create <domain-uri>",
		Short:   "Create a domain, or return the existing one",
		Example: `  ontology domain create urn:lsid:example.org:Domain:Sample --name Sample -c /Lab`,
		Args:    exactArgs(1),
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
			dd.DomainURI = args[0]
			dd.Container = c.ID
			out, err := descriptors.EnsureDomainDescriptor(cmd.Context(), types.System, &dd)
			if err != nil {
				return err
			}
			return a.output(cmd, out, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s\t%s\tid %d\n", out.DomainURI, out.Name, out.DomainID)
				return err
			})
		},
	}
	containerFlag(cmd, &container)
	cmd.Flags().StringVar(&dd.Name, "name", "", "domain name (default: derived from the URI)")
	cmd.Flags().StringVar(&dd.Description, "description", "", "domain description")
	return cmd
}

func newDomainDeleteCmd(a *app) *cobra.Command {
	var (
		container   string
		withObjects bool
	)
	cmd := &cobra.Command{
		Use:   "delete <domain-uri>",
		Short: "Delete a domain",
		Long: `Delete removes a domain and its memberships. Member properties that no
other domain uses and that hold no values are removed too. With --objects
the objects holding values for the domain's properties are deleted first.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			c, err := m.Resolve(container)
			if err != nil {
				return err
			}
			if withObjects {
				objects, err := m.Objects()
				if err != nil {
					return err
				}
				if err := objects.DeleteType(cmd.Context(), args[0], c.ID); err != nil {
					return err
				}
			} else {
				descriptors, err := m.Descriptors()
				if err != nil {
					return err
				}
				if err := descriptors.DeleteDomain(cmd.Context(), args[0], c.ID); err != nil {
					return err
				}
			}
			return a.output(cmd, map[string]string{"deleted": args[0]}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, "deleted", args[0])
				return err
			})
		},
	}
	containerFlag(cmd, &container)
	cmd.Flags().BoolVar(&withObjects, "objects", false, "also delete the objects of this type")
	return cmd
}
