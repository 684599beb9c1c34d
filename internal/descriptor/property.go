package descriptor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/ontology/internal/db"
	"github.com/mesh-intelligence/ontology/pkg/proptype"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

func (s *Store) loadProperty(ctx context.Context, uri, project string) (*types.PropertyDescriptor, error) {
	list, err := s.queryProperties(ctx,
		`SELECT `+propertySelect+` FROM property_descriptor pd WHERE pd.property_uri = ? AND pd.project = ?`,
		uri, project)
	return first(list), err
}

func (s *Store) loadPropertyByID(ctx context.Context, id int64) (*types.PropertyDescriptor, error) {
	list, err := s.queryProperties(ctx,
		`SELECT `+propertySelect+` FROM property_descriptor pd WHERE pd.property_id = ?`, id)
	return first(list), err
}

// propertyInScope reads the descriptor registered for uri in exactly one
// project scope; nil when there is none.
func (s *Store) propertyInScope(ctx context.Context, uri, project string) (*types.PropertyDescriptor, error) {
	load := func(ctx context.Context) (*types.PropertyDescriptor, error) {
		return s.loadProperty(ctx, uri, project)
	}
	if s.db.InTransaction(ctx) {
		return load(ctx)
	}
	return s.cache.Property(ctx, uri, project, load)
}

// lookupProperty resolves uri as seen from container: the container's
// project first, then the shared container. nil when neither has it.
func (s *Store) lookupProperty(ctx context.Context, uri, container string) (*types.PropertyDescriptor, error) {
	for _, project := range s.scopes(container) {
		pd, err := s.propertyInScope(ctx, uri, project)
		if err != nil || pd != nil {
			return pd, err
		}
	}
	return nil, nil
}

// GetPropertyDescriptor returns the property registered for uri as seen
// from container.
func (s *Store) GetPropertyDescriptor(ctx context.Context, uri, container string) (*types.PropertyDescriptor, error) {
	pd, err := s.lookupProperty(ctx, uri, container)
	if err != nil {
		return nil, err
	}
	if pd == nil {
		return nil, fmt.Errorf("%w: property %s", types.ErrNotFound, uri)
	}
	return pd, nil
}

// GetPropertyDescriptorByID returns the property with the given id.
func (s *Store) GetPropertyDescriptorByID(ctx context.Context, id int64) (*types.PropertyDescriptor, error) {
	load := func(ctx context.Context) (*types.PropertyDescriptor, error) {
		return s.loadPropertyByID(ctx, id)
	}
	var (
		pd  *types.PropertyDescriptor
		err error
	)
	if s.db.InTransaction(ctx) {
		pd, err = load(ctx)
	} else {
		pd, err = s.cache.PropertyByID(ctx, id, load)
	}
	if err != nil {
		return nil, err
	}
	if pd == nil {
		return nil, fmt.Errorf("%w: property id %d", types.ErrNotFound, id)
	}
	return pd, nil
}

// prepareProperty copies pdIn, fills defaults and validates it.
func (s *Store) prepareProperty(pdIn *types.PropertyDescriptor) (*types.PropertyDescriptor, error) {
	if pdIn == nil {
		return nil, &types.InvalidDescriptorError{Reason: "nil property descriptor"}
	}
	in := pdIn.Clone()
	if in.Container == "" {
		return nil, &types.InvalidDescriptorError{Field: "Container", Reason: "a container is required"}
	}
	if in.Project == "" {
		in.Project = s.topo.Project(in.Container)
	}
	if in.RangeURI == "" {
		in.RangeURI = proptype.String.URI()
	}
	if err := ValidatePropertyDescriptor(in); err != nil {
		return nil, err
	}
	return in, nil
}

// EnsurePropertyDescriptor returns the stored descriptor for pdIn's URI as
// seen from pdIn's container, creating it when absent. When one exists,
// differences in mutable fields are applied only if the caller's container
// is the descriptor's own container or the project root; differences in
// range URI or property type are never applied.
func (s *Store) EnsurePropertyDescriptor(ctx context.Context, actor types.Actor, pdIn *types.PropertyDescriptor) (*types.PropertyDescriptor, error) {
	in, err := s.prepareProperty(pdIn)
	if err != nil {
		return nil, err
	}
	var out *types.PropertyDescriptor
	err = s.db.WithTx(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.ensureProperty(ctx, actor, in)
		return err
	})
	return out, err
}

func (s *Store) ensureProperty(ctx context.Context, actor types.Actor, in *types.PropertyDescriptor) (*types.PropertyDescriptor, error) {
	pd, err := s.lookupProperty(ctx, in.PropertyURI, in.Container)
	if err != nil {
		return nil, err
	}
	if pd == nil {
		pd, _, err = s.insertProperty(ctx, actor, in)
		return pd, err
	}
	if pd.Equal(in) {
		return pd, nil
	}

	immutable, mutable := propertyDiffs(in, pd)
	if len(immutable) > 0 {
		s.log.Error("property descriptor differs in immutable fields",
			zap.String("uri", pd.PropertyURI),
			zap.Int64("id", pd.PropertyID),
			zap.Strings("fields", immutable),
			zap.String("stored_range", pd.RangeURI),
			zap.String("candidate_range", in.RangeURI))
	}

	sameScope := in.Project == pd.Project
	if len(mutable) == 0 {
		if sameScope && in.Container != pd.Container && in.Container == in.Project {
			moved := pd.Clone()
			moved.Container = in.Container
			return s.updateProperty(ctx, actor, pd, moved)
		}
		return pd, nil
	}

	if !sameScope || (in.Container != pd.Container && in.Container != in.Project) {
		s.log.Debug("property descriptor differences not applied from this container",
			zap.String("uri", pd.PropertyURI),
			zap.String("container", in.Container),
			zap.String("owner", pd.Container),
			zap.Strings("fields", mutable))
		return pd, nil
	}
	return s.updateProperty(ctx, actor, pd, applyMutable(pd, in))
}

// insertProperty conditionally inserts in. When another writer got there
// first the stored row is returned with AlreadyExists.
func (s *Store) insertProperty(ctx context.Context, actor types.Actor, in *types.PropertyDescriptor) (*types.PropertyDescriptor, types.InsertOutcome, error) {
	pd := in.Clone()
	pd.PropertyID = 0
	if pd.Name == "" {
		pd.Name = pd.DisplayName()
	}
	pd.CreatedBy = actor.ID
	pd.ModifiedBy = actor.ID

	id, outcome, err := s.db.InsertIfAbsent(ctx, "property_descriptor", propertyColumns, propertyValues(pd), "property_id")
	if err != nil {
		return nil, 0, Error.Wrap(err)
	}
	if outcome == types.AlreadyExists {
		existing, err := s.loadProperty(ctx, pd.PropertyURI, pd.Project)
		if err != nil {
			return nil, 0, err
		}
		if existing == nil {
			return nil, 0, Error.New("property %s vanished after a conflicting insert", pd.PropertyURI)
		}
		return existing, outcome, nil
	}

	pd.PropertyID = id
	if err := s.saveValidators(ctx, pd); err != nil {
		return nil, 0, err
	}
	s.log.Debug("inserted property descriptor", zap.String("uri", pd.PropertyURI), zap.Int64("id", id))
	db.AfterCommit(ctx, func() { s.cache.InvalidateProperty(pd) })
	return pd.Clone(), outcome, nil
}

// updateProperty writes next over the row of old.
func (s *Store) updateProperty(ctx context.Context, actor types.Actor, old, next *types.PropertyDescriptor) (*types.PropertyDescriptor, error) {
	next = next.Clone()
	next.PropertyID = old.PropertyID
	next.CreatedBy = old.CreatedBy
	next.ModifiedBy = actor.ID
	if next.Name == "" {
		next.Name = next.DisplayName()
	}

	sets := make([]string, len(propertyColumns))
	for i, c := range propertyColumns {
		sets[i] = c + " = ?"
	}
	args := append(propertyValues(next), next.PropertyID)
	n, err := s.db.ExecAffected(ctx,
		`UPDATE property_descriptor SET `+strings.Join(sets, ", ")+` WHERE property_id = ?`, args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if n == 0 {
		return nil, &types.OptimisticConflictError{Table: "property_descriptor", ID: old.PropertyID}
	}
	if !sameValidators(old.Validators, next.Validators) {
		if err := s.saveValidators(ctx, next); err != nil {
			return nil, err
		}
	}

	db.AfterCommit(ctx, func() {
		s.cache.InvalidateProperty(old)
		s.cache.InvalidateProperty(next)
	})
	return next, nil
}

// UpdatePropertyDescriptor replaces the stored descriptor of old with next.
// A change of storage slot is refused while values exist. When dd is given,
// the membership in dd is ensured with next's required flag and sortOrder.
func (s *Store) UpdatePropertyDescriptor(ctx context.Context, actor types.Actor, dd *types.DomainDescriptor, old, next *types.PropertyDescriptor, sortOrder int) (*types.PropertyDescriptor, error) {
	if !old.IsPersisted() {
		return nil, &types.InvalidDescriptorError{Field: "PropertyId", Reason: "property has not been saved"}
	}
	in, err := s.prepareProperty(next)
	if err != nil {
		return nil, err
	}
	in.PropertyID = old.PropertyID

	var out *types.PropertyDescriptor
	err = s.db.WithTx(ctx, func(ctx context.Context) error {
		stored, err := s.loadPropertyByID(ctx, old.PropertyID)
		if err != nil {
			return err
		}
		if stored == nil {
			return &types.OptimisticConflictError{Table: "property_descriptor", ID: old.PropertyID}
		}
		if proptype.Of(stored).StorageTag() != proptype.Of(in).StorageTag() {
			inUse, err := s.hasValues(ctx, stored.PropertyID)
			if err != nil {
				return err
			}
			if inUse {
				return fmt.Errorf("%w: %s", types.ErrPropertyInUse, stored.DisplayName())
			}
		}
		out, err = s.updateProperty(ctx, actor, stored, in)
		if err != nil {
			return err
		}
		if dd != nil {
			_, err = s.ensurePropertyDomain(ctx, out, dd, out.Required, sortOrder)
		}
		return err
	})
	return out, err
}

// InsertOrUpdatePropertyDescriptor ensures dd and pd and makes pd a member
// of dd at sortOrder. A property that is not shared is placed in the
// domain's container.
func (s *Store) InsertOrUpdatePropertyDescriptor(ctx context.Context, actor types.Actor, pd *types.PropertyDescriptor, dd *types.DomainDescriptor, sortOrder int) (*types.PropertyDescriptor, error) {
	in, err := s.prepareProperty(pd)
	if err != nil {
		return nil, err
	}
	var out *types.PropertyDescriptor
	err = s.db.WithTx(ctx, func(ctx context.Context) error {
		domain, err := s.EnsureDomainDescriptor(ctx, actor, dd)
		if err != nil {
			return err
		}
		if domain.Container != in.Container && in.Project != s.topo.Shared() {
			in.Container = domain.Container
			in.Project = domain.Project
		}
		out, err = s.ensureProperty(ctx, actor, in)
		if err != nil {
			return err
		}
		_, err = s.ensurePropertyDomain(ctx, out, domain, in.Required, sortOrder)
		return err
	})
	return out, err
}

// DeletePropertyDescriptor removes a property with its values, memberships
// and validators.
func (s *Store) DeletePropertyDescriptor(ctx context.Context, pd *types.PropertyDescriptor) error {
	return s.db.WithTx(ctx, func(ctx context.Context) error {
		stored, err := s.resolveStored(ctx, pd)
		if err != nil {
			return err
		}
		return s.deleteProperty(ctx, stored)
	})
}

// resolveStored re-reads pd inside the current transaction.
func (s *Store) resolveStored(ctx context.Context, pd *types.PropertyDescriptor) (*types.PropertyDescriptor, error) {
	var (
		stored *types.PropertyDescriptor
		err    error
	)
	if pd.IsPersisted() {
		stored, err = s.loadPropertyByID(ctx, pd.PropertyID)
	} else {
		stored, err = s.lookupProperty(ctx, pd.PropertyURI, pd.Container)
	}
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("%w: property %s", types.ErrNotFound, pd.PropertyURI)
	}
	return stored, nil
}

func (s *Store) deleteProperty(ctx context.Context, pd *types.PropertyDescriptor) error {
	objectURIs, err := s.objectURIsWithValues(ctx, pd.PropertyID)
	if err != nil {
		return err
	}
	domains, err := s.queryDomains(ctx,
		`SELECT `+domainSelect+` FROM domain_descriptor dd
		 JOIN property_domain pdm ON pdm.domain_id = dd.domain_id
		 WHERE pdm.property_id = ?`, pd.PropertyID)
	if err != nil {
		return err
	}

	for _, stmt := range []string{
		`DELETE FROM object_property WHERE property_id = ?`,
		`DELETE FROM property_domain WHERE property_id = ?`,
		`DELETE FROM property_validator WHERE property_id = ?`,
		`DELETE FROM property_descriptor WHERE property_id = ?`,
	} {
		if _, err := s.db.Exec(ctx, stmt, pd.PropertyID); err != nil {
			return Error.Wrap(err)
		}
	}

	s.log.Debug("deleted property descriptor", zap.String("uri", pd.PropertyURI), zap.Int64("id", pd.PropertyID))
	db.AfterCommit(ctx, func() {
		s.cache.InvalidateProperty(pd)
		for _, dd := range domains {
			s.cache.InvalidateDomainProperties(dd.DomainURI, dd.Project)
		}
		for container, uris := range objectURIs {
			s.cache.InvalidateObjects(container, uris...)
		}
	})
	return nil
}

func (s *Store) hasValues(ctx context.Context, propertyID int64) (bool, error) {
	var one int
	err := s.db.QueryRow(ctx, `SELECT 1 FROM object_property WHERE property_id = ? LIMIT 1`, propertyID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, Error.Wrap(err)
}

// objectURIsWithValues returns, by container, the objects holding a value
// for the property.
func (s *Store) objectURIsWithValues(ctx context.Context, propertyID int64) (map[string][]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT o.container, o.object_uri FROM object o
		 JOIN object_property op ON op.object_id = o.object_id
		 WHERE op.property_id = ?`, propertyID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	byContainer := make(map[string][]string)
	for rows.Next() {
		var container, uri string
		if err := rows.Scan(&container, &uri); err != nil {
			return nil, Error.Wrap(err)
		}
		byContainer[container] = append(byContainer[container], uri)
	}
	return byContainer, Error.Wrap(rows.Err())
}

// propertyDiffs compares a candidate against the stored descriptor. Empty
// candidate strings and a zero scale mean "unspecified" and never differ.
func propertyDiffs(in, stored *types.PropertyDescriptor) (immutable, mutable []string) {
	if in.PropertyID != 0 && in.PropertyID != stored.PropertyID {
		immutable = append(immutable, "PropertyId")
	}
	if in.RangeURI != "" && !strings.EqualFold(in.RangeURI, stored.RangeURI) {
		immutable = append(immutable, "RangeURI")
	}
	if proptype.Of(in) != proptype.Of(stored) {
		immutable = append(immutable, "PropertyType")
	}

	strs := []struct {
		name      string
		in, store string
	}{
		{"Name", in.Name, stored.Name},
		{"Label", in.Label, stored.Label},
		{"Description", in.Description, stored.Description},
		{"ConceptURI", in.ConceptURI, stored.ConceptURI},
		{"Format", in.Format, stored.Format},
		{"SemanticType", in.SemanticType, stored.SemanticType},
		{"SearchTerms", in.SearchTerms, stored.SearchTerms},
		{"OntologyURI", in.OntologyURI, stored.OntologyURI},
		{"DefaultValueType", in.DefaultValue, stored.DefaultValue},
		{"ImportAliases", in.ImportAliases, stored.ImportAliases},
		{"URL", in.URL, stored.URL},
		{"Faceting", in.Faceting, stored.Faceting},
		{"PHI", in.PHI, stored.PHI},
	}
	for _, f := range strs {
		if f.in != "" && f.in != f.store {
			mutable = append(mutable, f.name)
		}
	}
	flags := []struct {
		name      string
		in, store bool
	}{
		{"Required", in.Required, stored.Required},
		{"Hidden", in.Hidden, stored.Hidden},
		{"MvEnabled", in.MvEnabled, stored.MvEnabled},
		{"Measure", in.Measure, stored.Measure},
		{"Dimension", in.Dimension, stored.Dimension},
	}
	for _, f := range flags {
		if f.in != f.store {
			mutable = append(mutable, f.name)
		}
	}
	if in.Scale != 0 && in.Scale != stored.Scale {
		mutable = append(mutable, "Scale")
	}
	if !in.Lookup.IsZero() && in.Lookup != stored.Lookup {
		mutable = append(mutable, "Lookup")
	}
	if in.Validators != nil && !sameValidators(in.Validators, stored.Validators) {
		mutable = append(mutable, "Validators")
	}
	return immutable, mutable
}

// applyMutable returns stored with the candidate's specified mutable fields
// and container. Range URI and the concept that decides the type are kept.
func applyMutable(stored, in *types.PropertyDescriptor) *types.PropertyDescriptor {
	next := stored.Clone()
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&next.Name, in.Name)
	set(&next.Label, in.Label)
	set(&next.Description, in.Description)
	set(&next.Format, in.Format)
	set(&next.SemanticType, in.SemanticType)
	set(&next.SearchTerms, in.SearchTerms)
	set(&next.OntologyURI, in.OntologyURI)
	set(&next.DefaultValue, in.DefaultValue)
	set(&next.ImportAliases, in.ImportAliases)
	set(&next.URL, in.URL)
	set(&next.Faceting, in.Faceting)
	set(&next.PHI, in.PHI)

	if in.ConceptURI != "" {
		withConcept := next.Clone()
		withConcept.ConceptURI = in.ConceptURI
		if proptype.Of(withConcept) == proptype.Of(stored) {
			next.ConceptURI = in.ConceptURI
		}
	}

	next.Required = in.Required
	next.Hidden = in.Hidden
	next.MvEnabled = in.MvEnabled
	next.Measure = in.Measure
	next.Dimension = in.Dimension
	if in.Scale != 0 {
		next.Scale = in.Scale
	}
	if !in.Lookup.IsZero() {
		next.Lookup = in.Lookup
	}
	if in.Validators != nil {
		next.Validators = append([]types.ValidatorDef(nil), in.Validators...)
	}
	next.Container = in.Container
	return next
}
