// Package descriptor persists property and domain descriptors and the
// memberships between them. Reads outside a transaction go through the
// descriptor cache; reads inside one go straight to the transaction so
// uncommitted rows never reach the cache. Every write invalidates the cache
// only after its transaction commits.
package descriptor

import (
	"context"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/ontology/internal/db"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

// Error is the class of infrastructure errors raised by this package.
var Error = errs.Class("descriptor")

// Cache is what the store needs from the descriptor cache. *cache.Manager
// satisfies it.
type Cache interface {
	Property(ctx context.Context, uri, project string, load func(context.Context) (*types.PropertyDescriptor, error)) (*types.PropertyDescriptor, error)
	PropertyByID(ctx context.Context, id int64, load func(context.Context) (*types.PropertyDescriptor, error)) (*types.PropertyDescriptor, error)
	Domain(ctx context.Context, uri, project string, load func(context.Context) (*types.DomainDescriptor, error)) (*types.DomainDescriptor, error)
	DomainByID(ctx context.Context, id int64, load func(context.Context) (*types.DomainDescriptor, error)) (*types.DomainDescriptor, error)
	DomainsInContainer(ctx context.Context, container string, extended bool, load func(context.Context) ([]*types.DomainDescriptor, error)) ([]*types.DomainDescriptor, error)
	DomainProperties(ctx context.Context, domainURI, project string, load func(context.Context) ([]types.DomainMember, error)) ([]types.DomainMember, error)

	InvalidateProperty(pd *types.PropertyDescriptor)
	InvalidateDomain(dd *types.DomainDescriptor)
	InvalidateDomainProperties(domainURI, project string)
	InvalidateObjects(container string, objectURIs ...string)
}

// Store reads and writes descriptors.
type Store struct {
	db    *db.DB
	cache Cache
	topo  types.Topology
	perms types.Permissions
	log   *zap.Logger
}

// New returns a store. perms may be nil to allow every read.
func New(d *db.DB, cache Cache, topo types.Topology, perms types.Permissions, log *zap.Logger) *Store {
	if perms == nil {
		perms = types.AllowAll{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: d, cache: cache, topo: topo, perms: perms, log: log.Named("descriptor")}
}

// DB returns the database the store writes to.
func (s *Store) DB() *db.DB { return s.db }

// scopes lists the project scopes searched for a container: its own project
// first, then the shared container.
func (s *Store) scopes(container string) []string {
	project := s.topo.Project(container)
	shared := s.topo.Shared()
	if project == shared {
		return []string{project}
	}
	return []string{project, shared}
}
