package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/ontology/internal/topology"
)

func newContainerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "container",
		Short: "Manage the container tree",
		Long: `Containers form a tree. Direct children of the root are projects; a
container's descriptors are stored at its project. Containers are named by
path, for example /Lab/Assay, or by id.`,
	}
	cmd.AddCommand(
		newContainerCreateCmd(a),
		newContainerListCmd(a),
		newContainerMoveCmd(a),
		newContainerDeleteCmd(a),
	)
	return cmd
}

func newContainerCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create <parent> <name>",
		Short: "Create a container",
		Example: `  ontology container create / Lab
  ontology container create /Lab Assay`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			parent, err := m.Resolve(args[0])
			if err != nil {
				return err
			}
			c, err := m.CreateContainer(cmd.Context(), parent.ID, args[1])
			if err != nil {
				return err
			}
			tree, err := m.Topology()
			if err != nil {
				return err
			}
			view := viewContainer(tree, c)
			return a.output(cmd, view, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s\t%s\n", view.Path, view.ID)
				return err
			})
		},
	}
}

func newContainerListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list [path]",
		Short: "List a container and everything beneath it",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			tree, err := m.Topology()
			if err != nil {
				return err
			}
			from := "/"
			if len(args) == 1 {
				from = args[0]
			}
			start, err := m.Resolve(from)
			if err != nil {
				return err
			}

			views := []containerView{}
			var walk func(id string)
			walk = func(id string) {
				for _, c := range tree.Children(id) {
					views = append(views, viewContainer(tree, c))
					walk(c.ID)
				}
			}
			if start.ID != tree.Root() {
				views = append(views, viewContainer(tree, start))
			}
			walk(start.ID)

			return a.output(cmd, views, func(w io.Writer) error {
				t := newTable(w, "PATH", "ID", "PROJECT")
				for _, v := range views {
					t.row(v.Path, v.ID, v.Project)
				}
				return t.flush()
			})
		},
	}
}

func newContainerMoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "move <path> <new-parent>",
		Short: "Move a container, relocating the descriptors it uses",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			c, err := m.Resolve(args[0])
			if err != nil {
				return err
			}
			parent, err := m.Resolve(args[1])
			if err != nil {
				return err
			}
			if err := m.MoveContainer(cmd.Context(), c.ID, parent.ID); err != nil {
				return err
			}
			tree, err := m.Topology()
			if err != nil {
				return err
			}
			c, _ = tree.Container(c.ID)
			view := viewContainer(tree, c)
			return a.output(cmd, view, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "moved to %s (project %s)\n", view.Path, view.Project)
				return err
			})
		},
	}
}

func newContainerDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <path>",
		Short: "Delete a container with its objects and descriptors",
		Long: `Delete removes a container that has no children, together with its
objects, their values and the descriptors defined in it. Descriptors still
used elsewhere are moved to the project first.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			c, err := m.Resolve(args[0])
			if err != nil {
				return err
			}
			tree, err := m.Topology()
			if err != nil {
				return err
			}
			view := viewContainer(tree, c)
			if err := m.DeleteContainer(cmd.Context(), c.ID); err != nil {
				return err
			}
			return a.output(cmd, view, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, "deleted", view.Path)
				return err
			})
		},
	}
}

// containerFlag adds --container to cmd, defaulting to the shared container.
func containerFlag(cmd *cobra.Command, dst *string) {
	cmd.Flags().StringVarP(dst, "container", "c", "/"+topology.SharedName, "container path or id")
}
