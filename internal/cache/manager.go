// Package cache holds the descriptor and object caches. Each keyspace loads
// a missing key at most once under concurrency and never caches a failed
// load. The Manager owns every keyspace and all invalidation.
package cache

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mesh-intelligence/ontology/pkg/types"
)

// Keyspace names, used as metric labels.
const (
	PropertyByURI      = "property_by_uri"
	PropertyByID       = "property_by_id"
	DomainByURI        = "domain_by_uri"
	DomainByID         = "domain_by_id"
	DomainsByContainer = "domains_by_container"
	DomainProperties   = "domain_properties"
	ObjectValues       = "object_values"
	ObjectIDs          = "object_ids"
)

// Manager fronts the descriptor tables and the per-object value cache.
// Values handed out are copies; callers may modify them freely.
type Manager struct {
	propByURI    *Keyspace[*types.PropertyDescriptor]
	propByID     *Keyspace[*types.PropertyDescriptor]
	domainByURI  *Keyspace[*types.DomainDescriptor]
	domainByID   *Keyspace[*types.DomainDescriptor]
	byContainer  *Keyspace[[]*types.DomainDescriptor]
	domainProps  *Keyspace[[]types.DomainMember]
	objectValues *Keyspace[*types.PropertyMap]
	objectIDs    *Keyspace[int64]
}

// NewManager builds the keyspaces with the configured capacities and
// registers their counters with reg (which may be nil).
func NewManager(cfg types.CacheConfig, reg prometheus.Registerer) *Manager {
	m := NewMetrics(reg)
	props := cfg.PropertyCapacity
	domains := cfg.DomainCapacity
	objects := cfg.ObjectCapacity
	return &Manager{
		propByURI:    NewKeyspace[*types.PropertyDescriptor](PropertyByURI, props, m),
		propByID:     NewKeyspace[*types.PropertyDescriptor](PropertyByID, props, m),
		domainByURI:  NewKeyspace[*types.DomainDescriptor](DomainByURI, domains, m),
		domainByID:   NewKeyspace[*types.DomainDescriptor](DomainByID, domains, m),
		byContainer:  NewKeyspace[[]*types.DomainDescriptor](DomainsByContainer, domains, m),
		domainProps:  NewKeyspace[[]types.DomainMember](DomainProperties, domains, m),
		objectValues: NewKeyspace[*types.PropertyMap](ObjectValues, objects, m),
		objectIDs:    NewKeyspace[int64](ObjectIDs, objects, m),
	}
}

// URIKey is the By-URI key of a descriptor in a project scope.
func URIKey(uri, project string) string { return uri + "|" + project }

func idKey(id int64) string { return strconv.FormatInt(id, 10) }

// Property returns the property descriptor with uri in exactly the given
// project scope. load returns nil when there is none.
func (m *Manager) Property(ctx context.Context, uri, project string, load func(context.Context) (*types.PropertyDescriptor, error)) (*types.PropertyDescriptor, error) {
	byIDGen := m.propByID.Generation()
	pd, _, err := m.propByURI.Get(ctx, URIKey(uri, project), func(ctx context.Context) (*types.PropertyDescriptor, bool, error) {
		pd, err := load(ctx)
		if err == nil && pd != nil {
			m.propByID.AddAt(byIDGen, idKey(pd.PropertyID), pd.Clone())
		}
		return pd, pd != nil, err
	})
	return pd.Clone(), err
}

// PropertyByID returns the property descriptor with the given id.
func (m *Manager) PropertyByID(ctx context.Context, id int64, load func(context.Context) (*types.PropertyDescriptor, error)) (*types.PropertyDescriptor, error) {
	pd, _, err := m.propByID.Get(ctx, idKey(id), func(ctx context.Context) (*types.PropertyDescriptor, bool, error) {
		pd, err := load(ctx)
		return pd, pd != nil, err
	})
	return pd.Clone(), err
}

// Domain returns the domain descriptor with uri in exactly the given project scope.
func (m *Manager) Domain(ctx context.Context, uri, project string, load func(context.Context) (*types.DomainDescriptor, error)) (*types.DomainDescriptor, error) {
	byIDGen := m.domainByID.Generation()
	dd, _, err := m.domainByURI.Get(ctx, URIKey(uri, project), func(ctx context.Context) (*types.DomainDescriptor, bool, error) {
		dd, err := load(ctx)
		if err == nil && dd != nil {
			m.domainByID.AddAt(byIDGen, idKey(dd.DomainID), dd.Clone())
		}
		return dd, dd != nil, err
	})
	return dd.Clone(), err
}

// DomainByID returns the domain descriptor with the given id.
func (m *Manager) DomainByID(ctx context.Context, id int64, load func(context.Context) (*types.DomainDescriptor, error)) (*types.DomainDescriptor, error) {
	dd, _, err := m.domainByID.Get(ctx, idKey(id), func(ctx context.Context) (*types.DomainDescriptor, bool, error) {
		dd, err := load(ctx)
		return dd, dd != nil, err
	})
	return dd.Clone(), err
}

// DomainsInContainer returns the domains visible in a container. The key
// distinguishes the container-only list from the one extended with project
// and shared domains.
func (m *Manager) DomainsInContainer(ctx context.Context, container string, extended bool, load func(context.Context) ([]*types.DomainDescriptor, error)) ([]*types.DomainDescriptor, error) {
	key := container + "|" + strconv.FormatBool(extended)
	list, _, err := m.byContainer.Get(ctx, key, func(ctx context.Context) ([]*types.DomainDescriptor, bool, error) {
		list, err := load(ctx)
		return list, true, err
	})
	if err != nil {
		return nil, err
	}
	out := make([]*types.DomainDescriptor, len(list))
	for i, dd := range list {
		out[i] = dd.Clone()
	}
	return out, nil
}

// DomainProperties returns the ordered members of a domain. Every property
// loaded here also warms the By-URI and By-ID keyspaces, so resolving the
// members one by one afterwards does not touch the backing store.
func (m *Manager) DomainProperties(ctx context.Context, domainURI, project string, load func(context.Context) ([]types.DomainMember, error)) ([]types.DomainMember, error) {
	uriGen := m.propByURI.Generation()
	idGen := m.propByID.Generation()
	members, _, err := m.domainProps.Get(ctx, URIKey(domainURI, project), func(ctx context.Context) ([]types.DomainMember, bool, error) {
		members, err := load(ctx)
		if err != nil {
			return nil, false, err
		}
		for _, dm := range members {
			pd := dm.Property
			m.propByURI.AddAt(uriGen, URIKey(pd.PropertyURI, pd.Project), pd.Clone())
			m.propByID.AddAt(idGen, idKey(pd.PropertyID), pd.Clone())
		}
		return members, true, nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]types.DomainMember, len(members))
	for i, dm := range members {
		out[i] = types.DomainMember{Property: dm.Property.Clone(), Required: dm.Required, SortOrder: dm.SortOrder}
	}
	return out, nil
}

// ObjectValues returns the cached value map of an object. Object URIs are
// unique per container, so entries are keyed by both.
func (m *Manager) ObjectValues(ctx context.Context, container, objectURI string, load func(context.Context) (*types.PropertyMap, error)) (*types.PropertyMap, error) {
	pm, _, err := m.objectValues.Get(ctx, URIKey(objectURI, container), func(ctx context.Context) (*types.PropertyMap, bool, error) {
		pm, err := load(ctx)
		return pm, pm != nil, err
	})
	if err != nil || pm == nil {
		return nil, err
	}
	return pm.Clone(), nil
}

// ObjectID returns the cached id of an object; 0 when it does not exist.
func (m *Manager) ObjectID(ctx context.Context, container, objectURI string, load func(context.Context) (int64, error)) (int64, error) {
	id, _, err := m.objectIDs.Get(ctx, URIKey(objectURI, container), func(ctx context.Context) (int64, bool, error) {
		id, err := load(ctx)
		return id, id != 0, err
	})
	return id, err
}

// InvalidateProperty drops every entry that may hold pd. Domain member lists
// embed descriptors, so they are dropped as well.
func (m *Manager) InvalidateProperty(pd *types.PropertyDescriptor) {
	m.propByURI.Remove(URIKey(pd.PropertyURI, pd.Project))
	if pd.PropertyID != 0 {
		m.propByID.Remove(idKey(pd.PropertyID))
	}
	m.domainProps.Purge()
}

// InvalidateDomain drops every entry that may hold dd.
func (m *Manager) InvalidateDomain(dd *types.DomainDescriptor) {
	m.domainByURI.Remove(URIKey(dd.DomainURI, dd.Project))
	if dd.DomainID != 0 {
		m.domainByID.Remove(idKey(dd.DomainID))
	}
	m.byContainer.Purge()
	m.domainProps.Remove(URIKey(dd.DomainURI, dd.Project))
}

// InvalidateDomainProperties drops the member list of a domain.
func (m *Manager) InvalidateDomainProperties(domainURI, project string) {
	m.domainProps.Remove(URIKey(domainURI, project))
}

// InvalidateObjects drops the cached values of objects in container.
func (m *Manager) InvalidateObjects(container string, objectURIs ...string) {
	keys := make([]string, len(objectURIs))
	for i, uri := range objectURIs {
		keys[i] = URIKey(uri, container)
	}
	m.objectValues.Remove(keys...)
}

// InvalidateObjectIDs drops cached object ids.
func (m *Manager) InvalidateObjectIDs(container string, objectURIs ...string) {
	keys := make([]string, len(objectURIs))
	for i, uri := range objectURIs {
		keys[i] = URIKey(uri, container)
	}
	m.objectIDs.Remove(keys...)
}

// InvalidateDescriptors drops every descriptor entry.
func (m *Manager) InvalidateDescriptors() {
	m.propByURI.Purge()
	m.propByID.Purge()
	m.domainByURI.Purge()
	m.domainByID.Purge()
	m.byContainer.Purge()
	m.domainProps.Purge()
}

// InvalidateAll drops everything, descriptors and object caches alike.
func (m *Manager) InvalidateAll() {
	m.InvalidateDescriptors()
	m.objectValues.Purge()
	m.objectIDs.Purge()
}
