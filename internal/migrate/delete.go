package migrate

import (
	"context"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/ontology/internal/db"
)

// DeleteContainer removes everything container owns: its objects and
// their values, and the descriptors defined in it. Descriptors that
// objects elsewhere still use are first moved to the project container,
// together with the domains holding them.
func (e *Engine) DeleteContainer(ctx context.Context, container string) error {
	project := e.topo.Project(container)
	var rehomed int
	err := e.run(ctx, func(ctx context.Context) error {
		if project != container {
			var err error
			if rehomed, err = e.rehome(ctx, container, project); err != nil {
				return err
			}
		}

		properties := `SELECT property_id FROM property_descriptor WHERE container = ?`
		domains := `SELECT domain_id FROM domain_descriptor WHERE container = ?`
		objects := `SELECT object_id FROM object WHERE container = ?`
		for _, st := range []struct {
			query string
			args  []any
		}{
			{`UPDATE object SET owner_object_id = NULL WHERE owner_object_id IN (` + objects + `) AND container <> ?`, []any{container, container}},
			{`DELETE FROM object_property WHERE object_id IN (` + objects + `)`, []any{container}},
			{`DELETE FROM object WHERE container = ?`, []any{container}},
			{`DELETE FROM object_property WHERE property_id IN (` + properties + `)`, []any{container}},
			{`DELETE FROM property_domain WHERE property_id IN (` + properties + `)`, []any{container}},
			{`DELETE FROM property_domain WHERE domain_id IN (` + domains + `)`, []any{container}},
			{`DELETE FROM property_validator WHERE property_id IN (` + properties + `)`, []any{container}},
			{`DELETE FROM property_descriptor WHERE container = ?`, []any{container}},
			{`DELETE FROM domain_descriptor WHERE container = ?`, []any{container}},
		} {
			if _, err := e.db.Exec(ctx, st.query, st.args...); err != nil {
				return Error.Wrap(err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.log.Info("deleted container contents",
		zap.String("container", container),
		zap.Int("descriptors_rehomed", rehomed))
	return nil
}

// rehome moves the descriptors of container that other containers' objects
// use, and the domains they belong to, to the project container.
func (e *Engine) rehome(ctx context.Context, container, project string) (int, error) {
	ids, err := e.db.QueryInt64s(ctx,
		`SELECT DISTINCT pd.property_id FROM property_descriptor pd
		 JOIN object_property op ON op.property_id = pd.property_id
		 JOIN object o ON o.object_id = op.object_id
		 WHERE pd.container = ? AND o.container <> ?
		 ORDER BY pd.property_id`, container, container)
	if err != nil || len(ids) == 0 {
		return 0, Error.Wrap(err)
	}
	list := "(" + db.Placeholders(len(ids)) + ")"
	args := db.Int64Args(ids)
	if _, err := e.db.Exec(ctx,
		`UPDATE domain_descriptor SET container = ? WHERE container = ?
		 AND domain_id IN (SELECT domain_id FROM property_domain WHERE property_id IN `+list+`)`,
		append([]any{project, container}, args...)...); err != nil {
		return 0, Error.Wrap(err)
	}
	if _, err := e.db.Exec(ctx,
		`UPDATE property_descriptor SET container = ? WHERE property_id IN `+list,
		append([]any{project}, args...)...); err != nil {
		return 0, Error.Wrap(err)
	}
	return len(ids), nil
}
