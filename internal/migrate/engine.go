// Package migrate keeps descriptors consistent with the container tree:
// it relocates descriptors when a container changes project, cleans up
// after a deleted container, and repairs stale project columns.
package migrate

import (
	"context"
	"strings"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/ontology/internal/db"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

// Error is the class of infrastructure errors raised by this package.
var Error = errs.Class("migrate")

// Topology is the container tree as seen by the engine. *topology.Tree
// satisfies it.
type Topology interface {
	types.Topology
	// Descendants returns id and every container beneath it.
	Descendants(id string) []string
	// ProjectUnder returns the project id would have beneath parent.
	ProjectUnder(parent, id string) string
}

// Descriptors is what the engine needs from the descriptor store.
type Descriptors interface {
	GetPropertyDescriptorByID(ctx context.Context, id int64) (*types.PropertyDescriptor, error)
	GetDomainDescriptorByID(ctx context.Context, id int64) (*types.DomainDescriptor, error)
	CloneProperty(ctx context.Context, actor types.Actor, pd *types.PropertyDescriptor, container, project string) (*types.PropertyDescriptor, error)
	CloneDomain(ctx context.Context, actor types.Actor, dd *types.DomainDescriptor, container, project string) (*types.DomainDescriptor, error)
	CopyPropertyDomain(ctx context.Context, pd *types.PropertyDescriptor, dd *types.DomainDescriptor, required bool, sortOrder int) (types.PropertyDomain, error)
}

// Cache is dropped wholesale after every migration.
type Cache interface {
	InvalidateAll()
}

// Engine runs descriptor migrations, each in one transaction.
type Engine struct {
	db          *db.DB
	descriptors Descriptors
	topo        Topology
	cache       Cache
	log         *zap.Logger
}

// New returns an engine.
func New(d *db.DB, descriptors Descriptors, topo Topology, cache Cache, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{db: d, descriptors: descriptors, topo: topo, cache: cache, log: log.Named("migrate")}
}

// run executes fn in a transaction and drops every cache once it commits.
func (e *Engine) run(ctx context.Context, fn func(ctx context.Context) error) error {
	return e.db.WithTx(ctx, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return err
		}
		db.AfterCommit(ctx, e.cache.InvalidateAll)
		return nil
	})
}

// filter is a WHERE fragment over a table alias.
type filter func(alias string) (string, []any)

func in(col string, ids []string) filter {
	return func(alias string) (string, []any) {
		return alias + "." + col + " IN (" + db.Placeholders(len(ids)) + ")", db.StringArgs(ids)
	}
}

func notIn(col string, ids []string) filter {
	return func(alias string) (string, []any) {
		return alias + "." + col + " NOT IN (" + db.Placeholders(len(ids)) + ")", db.StringArgs(ids)
	}
}

func equals(col, value string) filter {
	return func(alias string) (string, []any) {
		return alias + "." + col + " = ?", []any{value}
	}
}

func and(filters ...filter) filter {
	return func(alias string) (string, []any) {
		var (
			parts []string
			args  []any
		)
		for _, f := range filters {
			p, a := f(alias)
			parts = append(parts, p)
			args = append(args, a...)
		}
		return strings.Join(parts, " AND "), args
	}
}
