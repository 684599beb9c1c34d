// Package ontology wires the stores into one Manager with an Attach/Detach
// lifecycle. Container lifecycle operations live here because they touch
// the topology, its table and the migration engine together.
package ontology

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/ontology/internal/cache"
	"github.com/mesh-intelligence/ontology/internal/db"
	"github.com/mesh-intelligence/ontology/internal/descriptor"
	"github.com/mesh-intelligence/ontology/internal/migrate"
	"github.com/mesh-intelligence/ontology/internal/objectprop"
	"github.com/mesh-intelligence/ontology/internal/topology"
	"github.com/mesh-intelligence/ontology/internal/validate"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

// Error is the class of lifecycle errors raised by this package.
var Error = errs.Class("ontology")

// Option customises a Manager.
type Option func(*Manager)

// WithPermissions sets the read-permission oracle. The default allows every read.
func WithPermissions(p types.Permissions) Option {
	return func(m *Manager) { m.perms = p }
}

// WithLookups sets the resolver used by lookup validators.
func WithLookups(l validate.LookupResolver) Option {
	return func(m *Manager) { m.lookups = l }
}

// Manager owns the database and every store built on it.
type Manager struct {
	mu       sync.RWMutex
	attached bool
	cfg      types.Config
	log      *zap.Logger
	perms    types.Permissions
	lookups  validate.LookupResolver

	db          *db.DB
	tree        *topology.Tree
	containers  *topology.Store
	registry    *prometheus.Registry
	cache       *cache.Manager
	descriptors *descriptor.Store
	objects     *objectprop.Store
	migrations  *migrate.Engine
}

// NewManager returns a detached manager. log may be nil.
func NewManager(log *zap.Logger, opts ...Option) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{log: log.Named("ontology")}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Attach opens the backend named by cfg, loads the container tree and
// builds the stores. A second Attach without Detach fails.
func (m *Manager) Attach(ctx context.Context, cfg types.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.attached {
		return types.ErrAlreadyAttached
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cfg = cfg.WithDefaults()

	d, err := db.Open(ctx, cfg, m.log)
	if err != nil {
		return err
	}
	containers := topology.NewStore(d)
	tree, err := containers.Load(ctx)
	if err != nil {
		_ = d.Close()
		return err
	}

	reg := prometheus.NewRegistry()
	c := cache.NewManager(cfg.Cache, reg)
	descriptors := descriptor.New(d, c, tree, m.perms, m.log)
	objects := objectprop.New(d, descriptors, c, objectprop.Config{
		Import:     cfg.Import,
		MvPolicy:   types.MvCodes(cfg.MvIndicators),
		Lookups:    m.lookups,
		Registerer: reg,
	}, m.log)

	m.cfg = cfg
	m.db = d
	m.containers = containers
	m.tree = tree
	m.registry = reg
	m.cache = c
	m.descriptors = descriptors
	m.objects = objects
	m.migrations = migrate.New(d, descriptors, tree, c, m.log)
	m.attached = true

	m.log.Info("attached", zap.String("backend", cfg.Backend), zap.String("data_dir", cfg.DataDir))
	return nil
}

// Detach closes the backend. Calling it on a detached manager is a no-op.
func (m *Manager) Detach() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.attached {
		return nil
	}
	err := m.db.Close()
	m.attached = false
	m.db = nil
	m.tree = nil
	m.containers = nil
	m.cache = nil
	m.descriptors = nil
	m.objects = nil
	m.migrations = nil
	return err
}

// Config returns the effective configuration of an attached manager.
func (m *Manager) Config() (types.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.attached {
		return types.Config{}, types.ErrDetached
	}
	return m.cfg, nil
}

// Descriptors returns the descriptor store.
func (m *Manager) Descriptors() (*descriptor.Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.attached {
		return nil, types.ErrDetached
	}
	return m.descriptors, nil
}

// Objects returns the object property store.
func (m *Manager) Objects() (*objectprop.Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.attached {
		return nil, types.ErrDetached
	}
	return m.objects, nil
}

// Migrations returns the scope migration engine.
func (m *Manager) Migrations() (*migrate.Engine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.attached {
		return nil, types.ErrDetached
	}
	return m.migrations, nil
}

// Topology returns the container tree.
func (m *Manager) Topology() (*topology.Tree, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.attached {
		return nil, types.ErrDetached
	}
	return m.tree, nil
}

// Gatherer exposes the counters of the attached stores. It returns an empty
// gatherer when detached.
func (m *Manager) Gatherer() prometheus.Gatherer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.registry == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// Resolve returns the container named by a path such as "/Lab/Assay" or by id.
func (m *Manager) Resolve(pathOrID string) (types.Container, error) {
	tree, err := m.Topology()
	if err != nil {
		return types.Container{}, err
	}
	c, ok := tree.Lookup(pathOrID)
	if !ok {
		return types.Container{}, fmt.Errorf("container %s: %w", pathOrID, types.ErrNotFound)
	}
	return c, nil
}
