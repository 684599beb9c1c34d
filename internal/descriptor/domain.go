package descriptor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sort"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/ontology/internal/db"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

func (s *Store) loadDomain(ctx context.Context, uri, project string) (*types.DomainDescriptor, error) {
	list, err := s.queryDomains(ctx,
		`SELECT `+domainSelect+` FROM domain_descriptor dd WHERE dd.domain_uri = ? AND dd.project = ?`,
		uri, project)
	return first(list), err
}

func (s *Store) loadDomainByID(ctx context.Context, id int64) (*types.DomainDescriptor, error) {
	list, err := s.queryDomains(ctx,
		`SELECT `+domainSelect+` FROM domain_descriptor dd WHERE dd.domain_id = ?`, id)
	return first(list), err
}

func (s *Store) domainInScope(ctx context.Context, uri, project string) (*types.DomainDescriptor, error) {
	load := func(ctx context.Context) (*types.DomainDescriptor, error) {
		return s.loadDomain(ctx, uri, project)
	}
	if s.db.InTransaction(ctx) {
		return load(ctx)
	}
	return s.cache.Domain(ctx, uri, project, load)
}

func (s *Store) lookupDomain(ctx context.Context, uri, container string) (*types.DomainDescriptor, error) {
	for _, project := range s.scopes(container) {
		dd, err := s.domainInScope(ctx, uri, project)
		if err != nil || dd != nil {
			return dd, err
		}
	}
	return nil, nil
}

// GetDomainDescriptor returns the domain registered for uri as seen from
// container, falling back to the shared container.
func (s *Store) GetDomainDescriptor(ctx context.Context, uri, container string) (*types.DomainDescriptor, error) {
	dd, err := s.lookupDomain(ctx, uri, container)
	if err != nil {
		return nil, err
	}
	if dd == nil {
		return nil, &types.DomainNotFoundError{URI: uri, Container: container}
	}
	return dd, nil
}

// GetDomainDescriptorByID returns the domain with the given id.
func (s *Store) GetDomainDescriptorByID(ctx context.Context, id int64) (*types.DomainDescriptor, error) {
	load := func(ctx context.Context) (*types.DomainDescriptor, error) {
		return s.loadDomainByID(ctx, id)
	}
	var (
		dd  *types.DomainDescriptor
		err error
	)
	if s.db.InTransaction(ctx) {
		dd, err = load(ctx)
	} else {
		dd, err = s.cache.DomainByID(ctx, id, load)
	}
	if err != nil {
		return nil, err
	}
	if dd == nil {
		return nil, fmt.Errorf("%w: domain id %d", types.ErrNotFound, id)
	}
	return dd, nil
}

// GetDomainDescriptors lists the domains defined in container. When
// extended is set the project's and the shared container's domains follow;
// a URI seen earlier hides later ones. Domains in containers the actor
// cannot read are skipped.
func (s *Store) GetDomainDescriptors(ctx context.Context, container string, actor types.Actor, extended bool) ([]*types.DomainDescriptor, error) {
	load := func(ctx context.Context) ([]*types.DomainDescriptor, error) {
		return s.loadDomainsIn(ctx, container, extended)
	}
	var (
		all []*types.DomainDescriptor
		err error
	)
	if s.db.InTransaction(ctx) {
		all, err = load(ctx)
	} else {
		all, err = s.cache.DomainsInContainer(ctx, container, extended, load)
	}
	if err != nil {
		return nil, err
	}

	out := all[:0]
	for _, dd := range all {
		if s.perms.CanRead(actor, dd.Container) {
			out = append(out, dd)
		}
	}
	return out, nil
}

func (s *Store) loadDomainsIn(ctx context.Context, container string, extended bool) ([]*types.DomainDescriptor, error) {
	containers := []string{container}
	if extended {
		for _, c := range []string{s.topo.Project(container), s.topo.Shared()} {
			if !slices.Contains(containers, c) {
				containers = append(containers, c)
			}
		}
	}
	rank := make(map[string]int, len(containers))
	for i, c := range containers {
		rank[c] = i
	}

	list, err := s.queryDomains(ctx,
		`SELECT `+domainSelect+` FROM domain_descriptor dd
		 WHERE dd.container IN (`+db.Placeholders(len(containers))+`)
		 ORDER BY dd.name, dd.domain_id`, db.StringArgs(containers)...)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		return rank[list[i].Container] < rank[list[j].Container]
	})

	seen := make(map[string]bool, len(list))
	out := make([]*types.DomainDescriptor, 0, len(list))
	for _, dd := range list {
		if seen[dd.DomainURI] {
			continue
		}
		seen[dd.DomainURI] = true
		out = append(out, dd)
	}
	return out, nil
}

// GetPropertiesForDomain returns the members of a domain ordered by sort
// order, then property id. Each member carries the domain's required flag.
func (s *Store) GetPropertiesForDomain(ctx context.Context, domainURI, container string) ([]types.DomainMember, error) {
	dd, err := s.GetDomainDescriptor(ctx, domainURI, container)
	if err != nil {
		return nil, err
	}
	return s.membersOf(ctx, dd)
}

func (s *Store) membersOf(ctx context.Context, dd *types.DomainDescriptor) ([]types.DomainMember, error) {
	load := func(ctx context.Context) ([]types.DomainMember, error) {
		return s.loadMembers(ctx, dd.DomainID)
	}
	if s.db.InTransaction(ctx) {
		return load(ctx)
	}
	return s.cache.DomainProperties(ctx, dd.DomainURI, dd.Project, load)
}

func (s *Store) loadMembers(ctx context.Context, domainID int64) ([]types.DomainMember, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+propertySelect+`, pdm.required, pdm.sort_order
		 FROM property_descriptor pd
		 JOIN property_domain pdm ON pdm.property_id = pd.property_id
		 WHERE pdm.domain_id = ?
		 ORDER BY pdm.sort_order, pd.property_id`, domainID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	var (
		members []types.DomainMember
		pds     []*types.PropertyDescriptor
	)
	for rows.Next() {
		var dm types.DomainMember
		pd, err := scanProperty(rows, &dm.Required, &dm.SortOrder)
		if err != nil {
			_ = rows.Close()
			return nil, Error.Wrap(err)
		}
		dm.Property = pd
		members = append(members, dm)
		pds = append(pds, pd)
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if err := s.attachValidators(ctx, pds); err != nil {
		return nil, err
	}
	return members, nil
}

// GetDomainsForProperty lists the domains a property belongs to.
func (s *Store) GetDomainsForProperty(ctx context.Context, propertyURI, container string) ([]*types.DomainDescriptor, error) {
	pd, err := s.GetPropertyDescriptor(ctx, propertyURI, container)
	if err != nil {
		return nil, err
	}
	return s.queryDomains(ctx,
		`SELECT `+domainSelect+` FROM domain_descriptor dd
		 JOIN property_domain pdm ON pdm.domain_id = dd.domain_id
		 WHERE pdm.property_id = ?
		 ORDER BY dd.domain_id`, pd.PropertyID)
}

func (s *Store) prepareDomain(ddIn *types.DomainDescriptor) (*types.DomainDescriptor, error) {
	if ddIn == nil {
		return nil, &types.InvalidDescriptorError{Reason: "nil domain descriptor"}
	}
	in := ddIn.Clone()
	if in.Container == "" {
		return nil, &types.InvalidDescriptorError{Field: "Container", Reason: "a container is required"}
	}
	if in.Project == "" {
		in.Project = s.topo.Project(in.Container)
	}
	if in.Name == "" {
		in.Name = types.PropertyNameFromURI(in.DomainURI)
	}
	if err := ValidateDomainDescriptor(in); err != nil {
		return nil, err
	}
	return in, nil
}

// EnsureDomainDescriptor returns the stored domain for ddIn's URI as seen
// from ddIn's container, creating it when absent. Differences are written
// with the concurrency token of the candidate, or of the row just read when
// the candidate carries none.
func (s *Store) EnsureDomainDescriptor(ctx context.Context, actor types.Actor, ddIn *types.DomainDescriptor) (*types.DomainDescriptor, error) {
	in, err := s.prepareDomain(ddIn)
	if err != nil {
		return nil, err
	}
	var out *types.DomainDescriptor
	err = s.db.WithTx(ctx, func(ctx context.Context) error {
		dd, err := s.lookupDomain(ctx, in.DomainURI, in.Container)
		if err != nil {
			return err
		}
		if dd == nil {
			out, _, err = s.insertDomain(ctx, actor, in)
			return err
		}

		diffs := domainDiffs(in, dd)
		if len(diffs) == 0 {
			out = dd
			return nil
		}
		if in.Project != dd.Project || (in.Container != dd.Container && in.Container != in.Project) {
			s.log.Debug("domain descriptor differences not applied from this container",
				zap.String("uri", dd.DomainURI),
				zap.String("container", in.Container),
				zap.String("owner", dd.Container),
				zap.Strings("fields", diffs))
			out = dd
			return nil
		}

		token := dd.TS
		if in.TS != 0 {
			token = in.TS
		}
		next := dd.Clone()
		applyDomain(next, in)
		out, err = s.updateDomain(ctx, actor, dd, next, token)
		return err
	})
	return out, err
}

func (s *Store) insertDomain(ctx context.Context, actor types.Actor, in *types.DomainDescriptor) (*types.DomainDescriptor, types.InsertOutcome, error) {
	dd := in.Clone()
	dd.DomainID = 0
	dd.TS = 0
	dd.CreatedBy = actor.ID
	dd.ModifiedBy = actor.ID

	id, outcome, err := s.db.InsertIfAbsent(ctx, "domain_descriptor", domainColumns, domainValues(dd), "domain_id")
	if err != nil {
		return nil, 0, Error.Wrap(err)
	}
	if outcome == types.AlreadyExists {
		existing, err := s.loadDomain(ctx, dd.DomainURI, dd.Project)
		if err != nil {
			return nil, 0, err
		}
		if existing == nil {
			return nil, 0, Error.New("domain %s vanished after a conflicting insert", dd.DomainURI)
		}
		return existing, outcome, nil
	}

	dd.DomainID = id
	s.log.Debug("inserted domain descriptor", zap.String("uri", dd.DomainURI), zap.Int64("id", id))
	db.AfterCommit(ctx, func() { s.cache.InvalidateDomain(dd) })
	return dd.Clone(), outcome, nil
}

// updateDomain writes next over stored when the row still carries token.
func (s *Store) updateDomain(ctx context.Context, actor types.Actor, stored, next *types.DomainDescriptor, token int64) (*types.DomainDescriptor, error) {
	next = next.Clone()
	next.DomainID = stored.DomainID
	next.ModifiedBy = actor.ID

	n, err := s.db.ExecAffected(ctx,
		`UPDATE domain_descriptor SET name = ?, description = ?, container = ?, project = ?,
		 storage_schema_name = ?, storage_table_name = ?, modified_by = ?, ts = ts + 1
		 WHERE domain_id = ? AND ts = ?`,
		next.Name, db.NullString(next.Description), next.Container, next.Project,
		db.NullString(next.StorageSchemaName), db.NullString(next.StorageTableName), next.ModifiedBy,
		next.DomainID, token)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if n == 0 {
		return nil, &types.OptimisticConflictError{Table: "domain_descriptor", ID: stored.DomainID, Token: token}
	}
	next.TS = token + 1

	db.AfterCommit(ctx, func() {
		s.cache.InvalidateDomain(stored)
		s.cache.InvalidateDomain(next)
	})
	return next, nil
}

// UpdateDomainDescriptor writes dd's editable fields. It fails with an
// optimistic conflict when the row changed since dd was read.
func (s *Store) UpdateDomainDescriptor(ctx context.Context, actor types.Actor, dd *types.DomainDescriptor) (*types.DomainDescriptor, error) {
	if !dd.IsPersisted() {
		return nil, &types.InvalidDescriptorError{Field: "DomainId", Reason: "domain has not been saved"}
	}
	if err := ValidateDomainDescriptor(dd); err != nil {
		return nil, err
	}
	var out *types.DomainDescriptor
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		stored, err := s.loadDomainByID(ctx, dd.DomainID)
		if err != nil {
			return err
		}
		if stored == nil {
			return &types.OptimisticConflictError{Table: "domain_descriptor", ID: dd.DomainID, Token: dd.TS}
		}
		next := stored.Clone()
		next.Name = dd.Name
		next.Description = dd.Description
		next.StorageSchemaName = dd.StorageSchemaName
		next.StorageTableName = dd.StorageTableName
		out, err = s.updateDomain(ctx, actor, stored, next, dd.TS)
		return err
	})
	return out, err
}

func domainDiffs(in, stored *types.DomainDescriptor) []string {
	var diffs []string
	fields := []struct {
		name      string
		in, store string
	}{
		{"Name", in.Name, stored.Name},
		{"Description", in.Description, stored.Description},
		{"StorageSchemaName", in.StorageSchemaName, stored.StorageSchemaName},
		{"StorageTableName", in.StorageTableName, stored.StorageTableName},
	}
	for _, f := range fields {
		if f.in != "" && f.in != f.store {
			diffs = append(diffs, f.name)
		}
	}
	return diffs
}

func applyDomain(next, in *types.DomainDescriptor) {
	for _, f := range []struct {
		dst *string
		v   string
	}{
		{&next.Name, in.Name},
		{&next.Description, in.Description},
		{&next.StorageSchemaName, in.StorageSchemaName},
		{&next.StorageTableName, in.StorageTableName},
	} {
		if f.v != "" {
			*f.dst = f.v
		}
	}
}

// EnsurePropertyDomain makes pd a member of dd. An existing membership
// takes the given required flag and sort order. pd must be defined in the
// domain's container unless it belongs to the shared container.
func (s *Store) EnsurePropertyDomain(ctx context.Context, pd *types.PropertyDescriptor, dd *types.DomainDescriptor, required bool, sortOrder int) (types.PropertyDomain, error) {
	if pd.Container != dd.Container && pd.Project != s.topo.Shared() {
		return types.PropertyDomain{}, fmt.Errorf("%w: property %s is defined in %s, domain %s in %s",
			types.ErrPlacement, pd.PropertyURI, pd.Container, dd.DomainURI, dd.Container)
	}
	return s.CopyPropertyDomain(ctx, pd, dd, required, sortOrder)
}

// CopyPropertyDomain records a membership without the placement check. The
// migration engine uses it for descriptors it has relocated into one project.
func (s *Store) CopyPropertyDomain(ctx context.Context, pd *types.PropertyDescriptor, dd *types.DomainDescriptor, required bool, sortOrder int) (types.PropertyDomain, error) {
	if !pd.IsPersisted() {
		return types.PropertyDomain{}, &types.InvalidDescriptorError{Field: "PropertyId", Reason: "property has not been saved"}
	}
	if !dd.IsPersisted() {
		return types.PropertyDomain{}, &types.InvalidDescriptorError{Field: "DomainId", Reason: "domain has not been saved"}
	}
	var out types.PropertyDomain
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.ensurePropertyDomain(ctx, pd, dd, required, sortOrder)
		return err
	})
	return out, err
}

func (s *Store) ensurePropertyDomain(ctx context.Context, pd *types.PropertyDescriptor, dd *types.DomainDescriptor, required bool, sortOrder int) (types.PropertyDomain, error) {
	row := types.PropertyDomain{PropertyID: pd.PropertyID, DomainID: dd.DomainID, Required: required, SortOrder: sortOrder}
	_, outcome, err := s.db.InsertIfAbsent(ctx, "property_domain",
		[]string{"property_id", "domain_id", "required", "sort_order"},
		[]any{row.PropertyID, row.DomainID, row.Required, row.SortOrder}, "property_id")
	if err != nil {
		return row, Error.Wrap(err)
	}

	if outcome == types.AlreadyExists {
		var existing types.PropertyDomain
		err := s.db.QueryRow(ctx,
			`SELECT required, sort_order FROM property_domain WHERE property_id = ? AND domain_id = ?`,
			row.PropertyID, row.DomainID).Scan(&existing.Required, &existing.SortOrder)
		if errors.Is(err, sql.ErrNoRows) {
			return row, &types.OptimisticConflictError{Table: "property_domain", ID: row.PropertyID}
		}
		if err != nil {
			return row, Error.Wrap(err)
		}
		if existing.Required == row.Required && existing.SortOrder == row.SortOrder {
			return row, nil
		}
		_, err = s.db.Exec(ctx,
			`UPDATE property_domain SET required = ?, sort_order = ? WHERE property_id = ? AND domain_id = ?`,
			row.Required, row.SortOrder, row.PropertyID, row.DomainID)
		if err != nil {
			return row, Error.Wrap(err)
		}
	}

	uri, project := dd.DomainURI, dd.Project
	db.AfterCommit(ctx, func() { s.cache.InvalidateDomainProperties(uri, project) })
	return row, nil
}

// DeleteDomain removes a domain defined in container or in its project
// root. Memberships go first, then member properties left with no values
// and no other domain, then the domain itself.
func (s *Store) DeleteDomain(ctx context.Context, domainURI, container string) error {
	return s.db.WithTx(ctx, func(ctx context.Context) error {
		dd, err := s.lookupDomain(ctx, domainURI, container)
		if err != nil {
			return err
		}
		if dd == nil {
			return &types.DomainNotFoundError{URI: domainURI, Container: container}
		}
		if dd.Container != container && dd.Container != s.topo.Project(container) {
			return fmt.Errorf("%w: domain %s is defined in %s", types.ErrPlacement, domainURI, dd.Container)
		}
		return s.deleteDomain(ctx, dd)
	})
}

func (s *Store) deleteDomain(ctx context.Context, dd *types.DomainDescriptor) error {
	memberIDs, err := s.db.QueryInt64s(ctx, `SELECT property_id FROM property_domain WHERE domain_id = ?`, dd.DomainID)
	if err != nil {
		return Error.Wrap(err)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM property_domain WHERE domain_id = ?`, dd.DomainID); err != nil {
		return Error.Wrap(err)
	}

	var orphans []*types.PropertyDescriptor
	for _, chunk := range chunks(memberIDs, inChunk) {
		found, err := s.queryProperties(ctx,
			`SELECT `+propertySelect+` FROM property_descriptor pd
			 WHERE pd.property_id IN (`+db.Placeholders(len(chunk))+`)
			 AND pd.container = ?
			 AND NOT EXISTS (SELECT 1 FROM object_property op WHERE op.property_id = pd.property_id)
			 AND NOT EXISTS (SELECT 1 FROM property_domain pdm WHERE pdm.property_id = pd.property_id)`,
			append(db.Int64Args(chunk), dd.Container)...)
		if err != nil {
			return err
		}
		orphans = append(orphans, found...)
	}
	orphanIDs := make([]int64, len(orphans))
	for i, pd := range orphans {
		orphanIDs[i] = pd.PropertyID
	}
	for _, chunk := range chunks(orphanIDs, inChunk) {
		in := `(` + db.Placeholders(len(chunk)) + `)`
		if _, err := s.db.Exec(ctx, `DELETE FROM property_validator WHERE property_id IN `+in, db.Int64Args(chunk)...); err != nil {
			return Error.Wrap(err)
		}
		if _, err := s.db.Exec(ctx, `DELETE FROM property_descriptor WHERE property_id IN `+in, db.Int64Args(chunk)...); err != nil {
			return Error.Wrap(err)
		}
	}

	if _, err := s.db.Exec(ctx, `DELETE FROM domain_descriptor WHERE domain_id = ?`, dd.DomainID); err != nil {
		return Error.Wrap(err)
	}

	s.log.Debug("deleted domain descriptor",
		zap.String("uri", dd.DomainURI),
		zap.Int("members", len(memberIDs)),
		zap.Int("orphans_removed", len(orphans)))
	db.AfterCommit(ctx, func() {
		s.cache.InvalidateDomain(dd)
		for _, pd := range orphans {
			s.cache.InvalidateProperty(pd)
		}
	})
	return nil
}

// RemovePropertyDescriptorFromDomain drops the membership of pd in dd. A
// property left in no domain is deleted with its values.
func (s *Store) RemovePropertyDescriptorFromDomain(ctx context.Context, pd *types.PropertyDescriptor, dd *types.DomainDescriptor) error {
	return s.db.WithTx(ctx, func(ctx context.Context) error {
		stored, err := s.resolveStored(ctx, pd)
		if err != nil {
			return err
		}
		var domain *types.DomainDescriptor
		if dd.IsPersisted() {
			domain, err = s.loadDomainByID(ctx, dd.DomainID)
		} else {
			domain, err = s.lookupDomain(ctx, dd.DomainURI, dd.Container)
		}
		if err != nil {
			return err
		}
		if domain == nil {
			return &types.DomainNotFoundError{URI: dd.DomainURI, Container: dd.Container}
		}

		if _, err := s.db.Exec(ctx, `DELETE FROM property_domain WHERE property_id = ? AND domain_id = ?`,
			stored.PropertyID, domain.DomainID); err != nil {
			return Error.Wrap(err)
		}
		db.AfterCommit(ctx, func() { s.cache.InvalidateDomainProperties(domain.DomainURI, domain.Project) })

		var remaining int
		if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM property_domain WHERE property_id = ?`,
			stored.PropertyID).Scan(&remaining); err != nil {
			return Error.Wrap(err)
		}
		if remaining > 0 {
			return nil
		}
		return s.deleteProperty(ctx, stored)
	})
}
