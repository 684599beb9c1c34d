package ontology

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/ontology/internal/topology"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

// CreateContainer adds a container named name beneath parent and saves it.
func (m *Manager) CreateContainer(ctx context.Context, parent, name string) (types.Container, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.attached {
		return types.Container{}, types.ErrDetached
	}
	if name == "" {
		return types.Container{}, fmt.Errorf("%w: container name is empty", types.ErrValidation)
	}

	c, err := m.tree.Create(parent, name)
	if err != nil {
		return types.Container{}, err
	}
	if err := m.containers.Insert(ctx, c); err != nil {
		_ = m.tree.Remove(c.ID)
		return types.Container{}, err
	}
	m.log.Debug("created container", zap.String("id", c.ID), zap.String("path", m.tree.Path(c.ID)))
	return c, nil
}

// MoveContainer re-parents a container and relocates the descriptors its
// subtree defines or uses. The tree is restored if anything fails.
func (m *Manager) MoveContainer(ctx context.Context, id, newParent string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.attached {
		return types.ErrDetached
	}

	c, ok := m.tree.Container(id)
	if !ok {
		return fmt.Errorf("container %s: %w", id, types.ErrNotFound)
	}
	if c.ParentID == newParent {
		return nil
	}
	oldParent, err := m.tree.Move(id, newParent)
	if err != nil {
		return err
	}

	err = m.db.WithTx(ctx, func(ctx context.Context) error {
		if err := m.containers.SetParent(ctx, id, newParent); err != nil {
			return err
		}
		return m.migrations.MoveContainer(ctx, id, oldParent, newParent)
	})
	if err != nil {
		if _, undo := m.tree.Move(id, oldParent); undo != nil {
			m.log.Error("restore container after failed move", zap.String("id", id), zap.Error(undo))
		}
		return err
	}
	return nil
}

// DeleteContainer removes a container without children, together with the
// objects and descriptors it owns.
func (m *Manager) DeleteContainer(ctx context.Context, id string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.attached {
		return types.ErrDetached
	}

	if id == m.tree.Root() || id == m.tree.Shared() {
		return topology.ErrReserved
	}
	if _, ok := m.tree.Container(id); !ok {
		return fmt.Errorf("container %s: %w", id, types.ErrNotFound)
	}
	if len(m.tree.Children(id)) > 0 {
		return topology.ErrHasChildren
	}

	err := m.db.WithTx(ctx, func(ctx context.Context) error {
		if err := m.migrations.DeleteContainer(ctx, id); err != nil {
			return err
		}
		return m.containers.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	return m.tree.Remove(id)
}

// Stats counts the rows of every table the manager owns.
type Stats struct {
	Containers  int `json:"containers"`
	Properties  int `json:"properties"`
	Domains     int `json:"domains"`
	Memberships int `json:"memberships"`
	Validators  int `json:"validators"`
	Objects     int `json:"objects"`
	Values      int `json:"values"`
}

// Stats returns table row counts.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.attached {
		return Stats{}, types.ErrDetached
	}

	var s Stats
	for _, c := range []struct {
		table string
		dst   *int
	}{
		{"containers", &s.Containers},
		{"property_descriptor", &s.Properties},
		{"domain_descriptor", &s.Domains},
		{"property_domain", &s.Memberships},
		{"property_validator", &s.Validators},
		{"object", &s.Objects},
		{"object_property", &s.Values},
	} {
		if err := m.db.QueryRow(ctx, `SELECT COUNT(*) FROM `+c.table).Scan(c.dst); err != nil {
			return Stats{}, Error.Wrap(err)
		}
	}
	return s, nil
}
