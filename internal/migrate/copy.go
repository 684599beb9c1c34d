package migrate

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/ontology/internal/db"
	"github.com/mesh-intelligence/ontology/pkg/proptype"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

// CopyDescriptors gives objects outside container (and its descendants) a
// copy in targetProject of every descriptor defined inside it that they
// use, and re-points their values at the copies. Domains of copied
// properties are copied with their memberships. It returns the number of
// properties copied.
func (e *Engine) CopyDescriptors(ctx context.Context, container, targetProject string) (int, error) {
	subtree := e.topo.Descendants(container)
	var n int
	err := e.run(ctx, func(ctx context.Context) error {
		var err error
		n, err = e.copyUsed(ctx, in("container", subtree), notIn("container", subtree), targetProject)
		return err
	})
	return n, err
}

type membership struct {
	domainID   int64
	propertyID int64
	required   bool
	sortOrder  int
}

// copyUsed copies the properties matching defined that objects matching
// users hold values for into target, re-pointing those values.
func (e *Engine) copyUsed(ctx context.Context, defined, users filter, target string) (int, error) {
	defWhere, defArgs := defined("pd")
	useWhere, useArgs := users("o")
	ids, err := e.db.QueryInt64s(ctx,
		`SELECT DISTINCT pd.property_id FROM property_descriptor pd
		 JOIN object_property op ON op.property_id = pd.property_id
		 JOIN object o ON o.object_id = op.object_id
		 WHERE `+defWhere+` AND `+useWhere+` ORDER BY pd.property_id`,
		append(defArgs, useArgs...)...)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	copies := make(map[int64]*types.PropertyDescriptor, len(ids))
	for _, id := range ids {
		pd, err := e.descriptors.GetPropertyDescriptorByID(ctx, id)
		if err != nil {
			return 0, err
		}
		clone, err := e.descriptors.CloneProperty(ctx, types.System, pd, target, target)
		if err != nil {
			return 0, err
		}
		if clone.PropertyID == id {
			continue
		}
		if !sameStorage(pd, clone) {
			return 0, fmt.Errorf("%w: %s is %s in project %s but its values are stored as %s",
				types.ErrPropertyInUse, pd.PropertyURI, proptype.Of(clone), target, proptype.Of(pd))
		}
		copies[id] = clone

		objects := `SELECT o.object_id FROM object o WHERE ` + useWhere
		if _, err := e.db.Exec(ctx,
			`DELETE FROM object_property WHERE property_id = ?
			 AND object_id IN (SELECT object_id FROM object_property WHERE property_id = ?)
			 AND object_id IN (`+objects+`)`,
			append([]any{id, clone.PropertyID}, useArgs...)...); err != nil {
			return 0, Error.Wrap(err)
		}
		if _, err := e.db.Exec(ctx,
			`UPDATE object_property SET property_id = ? WHERE property_id = ? AND object_id IN (`+objects+`)`,
			append([]any{clone.PropertyID, id}, useArgs...)...); err != nil {
			return 0, Error.Wrap(err)
		}
		e.log.Debug("copied property descriptor",
			zap.String("uri", pd.PropertyURI),
			zap.String("from", pd.Project),
			zap.String("to", target),
			zap.Int64("id", clone.PropertyID))
	}

	if err := e.copyMemberships(ctx, defined, copies, target); err != nil {
		return 0, err
	}
	return len(copies), nil
}

// copyMemberships copies the domains matching defined that hold any of the
// copied properties, and adds the copies to them.
func (e *Engine) copyMemberships(ctx context.Context, defined filter, copies map[int64]*types.PropertyDescriptor, target string) error {
	if len(copies) == 0 {
		return nil
	}
	old := make([]int64, 0, len(copies))
	for id := range copies {
		old = append(old, id)
	}
	slices.Sort(old)

	defWhere, defArgs := defined("dd")
	rows, err := e.db.Query(ctx,
		`SELECT pdm.domain_id, pdm.property_id, pdm.required, pdm.sort_order FROM property_domain pdm
		 JOIN domain_descriptor dd ON dd.domain_id = pdm.domain_id
		 WHERE pdm.property_id IN (`+db.Placeholders(len(old))+`) AND `+defWhere+`
		 ORDER BY pdm.domain_id, pdm.sort_order`,
		append(db.Int64Args(old), defArgs...)...)
	if err != nil {
		return Error.Wrap(err)
	}
	var members []membership
	for rows.Next() {
		var m membership
		if err := rows.Scan(&m.domainID, &m.propertyID, &m.required, &m.sortOrder); err != nil {
			_ = rows.Close()
			return Error.Wrap(err)
		}
		members = append(members, m)
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return Error.Wrap(err)
	}

	domains := make(map[int64]*types.DomainDescriptor)
	for _, m := range members {
		dd, ok := domains[m.domainID]
		if !ok {
			src, err := e.descriptors.GetDomainDescriptorByID(ctx, m.domainID)
			if err != nil {
				return err
			}
			if dd, err = e.descriptors.CloneDomain(ctx, types.System, src, target, target); err != nil {
				return err
			}
			domains[m.domainID] = dd
		}
		if _, err := e.descriptors.CopyPropertyDomain(ctx, copies[m.propertyID], dd, m.required, m.sortOrder); err != nil {
			return err
		}
	}
	return nil
}

// sameStorage reports whether values of a can be re-pointed at b.
func sameStorage(a, b *types.PropertyDescriptor) bool {
	return proptype.Of(a).StorageTag() == proptype.Of(b).StorageTag()
}
