package topology

import (
	"context"
	"database/sql"

	"github.com/zeebo/errs"

	"github.com/mesh-intelligence/ontology/internal/db"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

// Error is the class of persistence errors raised by this package.
var Error = errs.Class("topology")

// Store persists a Tree in the containers table.
type Store struct {
	db *db.DB
}

// NewStore returns a store backed by d.
func NewStore(d *db.DB) *Store {
	return &Store{db: d}
}

// Load rebuilds the saved tree, creating and saving a fresh one on first use.
func (s *Store) Load(ctx context.Context) (*Tree, error) {
	rows, err := s.db.Query(ctx, `SELECT container_id, parent_id, name FROM containers`)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	var all []types.Container
	for rows.Next() {
		var (
			c      types.Container
			parent sql.NullString
		)
		if err := rows.Scan(&c.ID, &parent, &c.Name); err != nil {
			return nil, Error.Wrap(err)
		}
		c.ParentID = parent.String
		all = append(all, c)
	}
	if err := rows.Err(); err != nil {
		return nil, Error.Wrap(err)
	}

	if len(all) == 0 {
		t := New()
		err := s.db.WithTx(ctx, func(ctx context.Context) error {
			if err := s.Insert(ctx, types.Container{ID: t.Root(), Name: RootName}); err != nil {
				return err
			}
			shared, _ := t.Container(t.Shared())
			return s.Insert(ctx, shared)
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	}

	var root, shared string
	for _, c := range all {
		if c.ParentID == "" {
			root = c.ID
		}
	}
	for _, c := range all {
		if c.ParentID == root && c.Name == SharedName {
			shared = c.ID
		}
	}
	if root == "" || shared == "" {
		return nil, Error.New("containers table has no root or shared container")
	}

	t := NewWithIDs(root, shared)
	pending := all
	for len(pending) > 0 {
		var next []types.Container
		for _, c := range pending {
			if c.ID == root || c.ID == shared {
				continue
			}
			if _, ok := t.Container(c.ParentID); !ok {
				next = append(next, c)
				continue
			}
			if _, err := t.Insert(c); err != nil {
				return nil, Error.Wrap(err)
			}
		}
		if len(next) == len(pending) {
			return nil, Error.New("containers table has %d orphaned rows", len(next))
		}
		pending = next
	}
	return t, nil
}

// Insert saves a new container.
func (s *Store) Insert(ctx context.Context, c types.Container) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO containers (container_id, parent_id, name) VALUES (?, ?, ?)`,
		c.ID, db.NullString(c.ParentID), c.Name)
	return Error.Wrap(err)
}

// SetParent saves a move.
func (s *Store) SetParent(ctx context.Context, id, parent string) error {
	_, err := s.db.Exec(ctx, `UPDATE containers SET parent_id = ? WHERE container_id = ?`, parent, id)
	return Error.Wrap(err)
}

// Delete removes a container row.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM containers WHERE container_id = ?`, id)
	return Error.Wrap(err)
}
