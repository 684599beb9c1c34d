package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/ontology/pkg/proptype"
)

// Mismatch is a descriptor whose project column disagrees with the
// container tree.
type Mismatch struct {
	Kind      string `json:"kind"`
	ID        int64  `json:"id"`
	URI       string `json:"uri"`
	Container string `json:"container"`
	Project   string `json:"project"`
	Expected  string `json:"expected"`
	// MergedInto is set when fixing found the expected project already had
	// the URI and folded this descriptor into that one.
	MergedInto int64 `json:"merged_into,omitempty"`
	// Unresolved says why fixing left the row as it was.
	Unresolved string `json:"unresolved,omitempty"`
}

type descriptorTable struct {
	kind, name, id, uri string
}

var (
	propertyTable = descriptorTable{"property", "property_descriptor", "property_id", "property_uri"}
	domainTable   = descriptorTable{"domain", "domain_descriptor", "domain_id", "domain_uri"}
)

// CheckProjectColumns reports every descriptor whose project is not the
// project of its container. With fix set, each is rewritten in one
// transaction: the project column is corrected, or, when the expected
// project already defines the URI, the descriptor is merged into that one
// with its values and memberships.
func (e *Engine) CheckProjectColumns(ctx context.Context, fix bool) ([]Mismatch, error) {
	var out []Mismatch
	check := func(ctx context.Context) error {
		out = out[:0]
		for _, table := range []descriptorTable{propertyTable, domainTable} {
			found, err := e.mismatches(ctx, table)
			if err != nil {
				return err
			}
			if fix {
				for i := range found {
					if err := e.repair(ctx, table, &found[i]); err != nil {
						return err
					}
				}
			}
			out = append(out, found...)
		}
		return nil
	}
	if !fix {
		return out, check(ctx)
	}
	if err := e.run(ctx, check); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) mismatches(ctx context.Context, table descriptorTable) ([]Mismatch, error) {
	rows, err := e.db.Query(ctx,
		`SELECT `+table.id+`, `+table.uri+`, container, project FROM `+table.name+` ORDER BY `+table.id)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	var out []Mismatch
	for rows.Next() {
		m := Mismatch{Kind: table.kind}
		if err := rows.Scan(&m.ID, &m.URI, &m.Container, &m.Project); err != nil {
			return nil, Error.Wrap(err)
		}
		if m.Expected = e.topo.Project(m.Container); m.Expected != m.Project {
			out = append(out, m)
		}
	}
	return out, Error.Wrap(rows.Err())
}

func (e *Engine) repair(ctx context.Context, table descriptorTable, m *Mismatch) error {
	var existing int64
	err := e.db.QueryRow(ctx,
		`SELECT `+table.id+` FROM `+table.name+` WHERE `+table.uri+` = ? AND project = ?`,
		m.URI, m.Expected).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := e.db.Exec(ctx,
			`UPDATE `+table.name+` SET project = ? WHERE `+table.id+` = ?`, m.Expected, m.ID); err != nil {
			return Error.Wrap(err)
		}
		e.log.Info("fixed project column",
			zap.String("kind", m.Kind), zap.String("uri", m.URI),
			zap.String("from", m.Project), zap.String("to", m.Expected))
		return nil
	}
	if err != nil {
		return Error.Wrap(err)
	}

	if table == propertyTable {
		from, err := e.descriptors.GetPropertyDescriptorByID(ctx, m.ID)
		if err != nil {
			return err
		}
		into, err := e.descriptors.GetPropertyDescriptorByID(ctx, existing)
		if err != nil {
			return err
		}
		if !sameStorage(from, into) {
			m.Unresolved = fmt.Sprintf("project descriptor %d is %s, this one is %s", existing, proptype.Of(into), proptype.Of(from))
			e.log.Warn("descriptor not merged: storage types differ",
				zap.String("uri", m.URI), zap.Int64("from_id", m.ID), zap.Int64("into_id", existing))
			return nil
		}
	}

	type stmt struct {
		query string
		args  []any
	}
	var stmts []stmt
	if table == propertyTable {
		stmts = []stmt{
			{`DELETE FROM object_property WHERE property_id = ? AND object_id IN (SELECT object_id FROM object_property WHERE property_id = ?)`, []any{m.ID, existing}},
			{`UPDATE object_property SET property_id = ? WHERE property_id = ?`, []any{existing, m.ID}},
			{`DELETE FROM property_domain WHERE property_id = ? AND domain_id IN (SELECT domain_id FROM property_domain WHERE property_id = ?)`, []any{m.ID, existing}},
			{`UPDATE property_domain SET property_id = ? WHERE property_id = ?`, []any{existing, m.ID}},
			{`DELETE FROM property_validator WHERE property_id = ?`, []any{m.ID}},
			{`DELETE FROM property_descriptor WHERE property_id = ?`, []any{m.ID}},
		}
	} else {
		stmts = []stmt{
			{`DELETE FROM property_domain WHERE domain_id = ? AND property_id IN (SELECT property_id FROM property_domain WHERE domain_id = ?)`, []any{m.ID, existing}},
			{`UPDATE property_domain SET domain_id = ? WHERE domain_id = ?`, []any{existing, m.ID}},
			{`DELETE FROM domain_descriptor WHERE domain_id = ?`, []any{m.ID}},
		}
	}
	for _, st := range stmts {
		if _, err := e.db.Exec(ctx, st.query, st.args...); err != nil {
			return Error.Wrap(err)
		}
	}
	m.MergedInto = existing
	e.log.Info("merged descriptor into project",
		zap.String("kind", m.Kind), zap.String("uri", m.URI),
		zap.Int64("from_id", m.ID), zap.Int64("into_id", existing))
	return nil
}
