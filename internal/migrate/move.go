package migrate

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/ontology/internal/db"
)

// MoveContainer relocates descriptors after container moved from oldParent
// to newParent. Nothing happens when its project did not change.
// Otherwise, in one transaction:
//
//   - descriptors defined in the moved subtree switch to the new project,
//     except those whose URI the new project already defines;
//   - objects left behind get copies, in the old project, of moved
//     descriptors they use;
//   - objects in the subtree get copies, in the new project, of the old
//     project's descriptors they still use.
//
// Every cache is dropped after the commit.
func (e *Engine) MoveContainer(ctx context.Context, container, oldParent, newParent string) error {
	oldProject := e.topo.ProjectUnder(oldParent, container)
	newProject := e.topo.ProjectUnder(newParent, container)
	if oldProject == newProject {
		return nil
	}
	subtree := e.topo.Descendants(container)

	var moved, kept, left, brought int
	err := e.run(ctx, func(ctx context.Context) error {
		var err error
		if moved, kept, err = e.switchProject(ctx, subtree, newProject); err != nil {
			return err
		}
		if !slices.Contains(subtree, oldProject) {
			left, err = e.copyUsed(ctx, in("container", subtree), notIn("container", subtree), oldProject)
			if err != nil {
				return err
			}
		}
		brought, err = e.copyUsed(ctx,
			and(equals("project", oldProject), notIn("container", subtree)),
			in("container", subtree),
			newProject)
		return err
	})
	if err != nil {
		return err
	}

	e.log.Info("moved container descriptors",
		zap.String("container", container),
		zap.String("from_project", oldProject),
		zap.String("to_project", newProject),
		zap.Int("moved", moved),
		zap.Int("kept_in_old_project", kept),
		zap.Int("copied_to_old_project", left),
		zap.Int("copied_to_new_project", brought))
	return nil
}

// switchProject rewrites the project column of descriptors defined in
// subtree, skipping URIs project already has. It returns how many rows
// moved and how many were kept back.
func (e *Engine) switchProject(ctx context.Context, subtree []string, project string) (moved, kept int, err error) {
	containers := "container IN (" + db.Placeholders(len(subtree)) + ")"
	args := db.StringArgs(subtree)
	for _, table := range []struct{ name, uri string }{
		{"property_descriptor", "property_uri"},
		{"domain_descriptor", "domain_uri"},
	} {
		n, err := e.db.ExecAffected(ctx,
			`UPDATE `+table.name+` SET project = ?
			 WHERE `+containers+` AND project <> ?
			 AND `+table.uri+` NOT IN (SELECT x.`+table.uri+` FROM `+table.name+` x WHERE x.project = ?)`,
			append(append([]any{project}, args...), project, project)...)
		if err != nil {
			return 0, 0, Error.Wrap(err)
		}
		moved += int(n)

		var left int
		if err := e.db.QueryRow(ctx,
			`SELECT COUNT(*) FROM `+table.name+` WHERE `+containers+` AND project <> ?`,
			append(args, project)...).Scan(&left); err != nil {
			return 0, 0, Error.Wrap(err)
		}
		kept += left
	}
	return moved, kept, nil
}
