package descriptor

import (
	"context"

	"github.com/mesh-intelligence/ontology/pkg/types"
)

// CloneProperty copies pd, validators included, into container of project.
// When project already has a property with the same URI, that one is
// returned instead.
func (s *Store) CloneProperty(ctx context.Context, actor types.Actor, pd *types.PropertyDescriptor, container, project string) (*types.PropertyDescriptor, error) {
	next := pd.Clone()
	next.Container = container
	next.Project = project
	var out *types.PropertyDescriptor
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		var err error
		out, _, err = s.insertProperty(ctx, actor, next)
		return err
	})
	return out, err
}

// CloneDomain copies dd into container of project, or returns the domain
// project already has with the same URI. Memberships are not copied.
func (s *Store) CloneDomain(ctx context.Context, actor types.Actor, dd *types.DomainDescriptor, container, project string) (*types.DomainDescriptor, error) {
	next := dd.Clone()
	next.Container = container
	next.Project = project
	var out *types.DomainDescriptor
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		var err error
		out, _, err = s.insertDomain(ctx, actor, next)
		return err
	})
	return out, err
}
