package descriptor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/ontology/internal/db/dbtest"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

type denyContainer string

func (d denyContainer) CanRead(_ types.Actor, container string) bool { return container != string(d) }

func domain(uri, container string) *types.DomainDescriptor {
	return &types.DomainDescriptor{DomainURI: uri, Container: container}
}

func TestEnsureDomainDescriptorIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.store.EnsureDomainDescriptor(ctx, types.System, domain("urn:d:Samples", f.lab))
	require.NoError(t, err)
	assert.Equal(t, "Samples", first.Name)

	second, err := f.store.EnsureDomainDescriptor(ctx, types.System, domain("urn:d:Samples", f.lab))
	require.NoError(t, err)
	assert.Equal(t, first.DomainID, second.DomainID)
	assert.Equal(t, int64(0), second.TS)
	assert.Equal(t, 1, dbtest.Count(t, f.db, "domain_descriptor", ""))

	edited := domain("urn:d:Samples", f.lab)
	edited.Description = "all samples"
	third, err := f.store.EnsureDomainDescriptor(ctx, types.System, edited)
	require.NoError(t, err)
	assert.Equal(t, first.DomainID, third.DomainID)
	assert.Equal(t, "all samples", third.Description)
	assert.Equal(t, int64(1), third.TS, "every update moves the token")
}

func TestOptimisticConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.store.EnsureDomainDescriptor(ctx, types.System, domain("urn:d:Runs", f.lab))
	require.NoError(t, err)

	reader1, err := f.store.GetDomainDescriptor(ctx, "urn:d:Runs", f.lab)
	require.NoError(t, err)
	reader2, err := f.store.GetDomainDescriptorByID(ctx, created.DomainID)
	require.NoError(t, err)
	require.Equal(t, reader1.TS, reader2.TS)

	reader1.Description = "first writer"
	saved, err := f.store.UpdateDomainDescriptor(ctx, types.System, reader1)
	require.NoError(t, err)
	assert.Equal(t, reader1.TS+1, saved.TS)

	reader2.Description = "second writer"
	_, err = f.store.UpdateDomainDescriptor(ctx, types.System, reader2)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrOptimisticConflict)

	current, err := f.store.GetDomainDescriptor(ctx, "urn:d:Runs", f.lab)
	require.NoError(t, err)
	assert.Equal(t, "first writer", current.Description)

	token := saved.TS
	saved.Description = "first writer, again"
	_, err = f.store.UpdateDomainDescriptor(ctx, types.System, saved)
	require.NoError(t, err)

	stale := domain("urn:d:Runs", f.lab)
	stale.TS = token
	stale.Description = "ensure with an old token"
	_, err = f.store.EnsureDomainDescriptor(ctx, types.System, stale)
	assert.ErrorIs(t, err, types.ErrOptimisticConflict)
}

func TestEnsurePropertyDomainUpdatesRequired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dd, err := f.store.EnsureDomainDescriptor(ctx, types.System, domain("urn:d:Samples", f.lab))
	require.NoError(t, err)
	pd, err := f.store.EnsurePropertyDescriptor(ctx, types.System, property("urn:p:Weight", f.lab))
	require.NoError(t, err)

	_, err = f.store.EnsurePropertyDomain(ctx, pd, dd, false, 1)
	require.NoError(t, err)
	members, err := f.store.GetPropertiesForDomain(ctx, "urn:d:Samples", f.assay)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.False(t, members[0].Required)

	_, err = f.store.EnsurePropertyDomain(ctx, pd, dd, true, 1)
	require.NoError(t, err)
	members, err = f.store.GetPropertiesForDomain(ctx, "urn:d:Samples", f.assay)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.True(t, members[0].Required, "the cached member list was invalidated")
	assert.Equal(t, 1, dbtest.Count(t, f.db, "property_domain", ""))
}

func TestGetPropertiesForDomainOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dd := domain("urn:d:Samples", f.lab)
	for i, name := range []string{"C", "A", "B"} {
		_, err := f.store.InsertOrUpdatePropertyDescriptor(ctx, types.System, property("urn:p:"+name, f.lab), dd, 10-i)
		require.NoError(t, err)
	}

	members, err := f.store.GetPropertiesForDomain(ctx, "urn:d:Samples", f.lab)
	require.NoError(t, err)
	var names []string
	for _, m := range members {
		names = append(names, m.Property.Name)
	}
	assert.Equal(t, []string{"B", "A", "C"}, names)

	domains, err := f.store.GetDomainsForProperty(ctx, "urn:p:A", f.lab)
	require.NoError(t, err)
	require.Len(t, domains, 1)
	assert.Equal(t, "urn:d:Samples", domains[0].DomainURI)

	_, err = f.store.GetPropertiesForDomain(ctx, "urn:d:Nope", f.lab)
	assert.ErrorIs(t, err, types.ErrDomainNotFound)
}

func TestDeleteDomainKeepsSharedProperty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	shared, err := f.store.InsertOrUpdatePropertyDescriptor(ctx, types.System, property("urn:p:Weight", f.lab), domain("urn:d:A", f.lab), 0)
	require.NoError(t, err)
	_, err = f.store.InsertOrUpdatePropertyDescriptor(ctx, types.System, property("urn:p:Weight", f.lab), domain("urn:d:B", f.lab), 0)
	require.NoError(t, err)
	f.addValue(t, f.lab, "urn:o:1", shared.PropertyID)

	require.NoError(t, f.store.DeleteDomain(ctx, "urn:d:A", f.lab))

	assert.Equal(t, 1, dbtest.Count(t, f.db, "property_domain", "property_id = ?", shared.PropertyID))
	assert.Equal(t, 1, dbtest.Count(t, f.db, "property_descriptor", "property_id = ?", shared.PropertyID))
	assert.Equal(t, 1, dbtest.Count(t, f.db, "object_property", "property_id = ?", shared.PropertyID))
	_, err = f.store.GetDomainDescriptor(ctx, "urn:d:A", f.lab)
	assert.ErrorIs(t, err, types.ErrDomainNotFound)
}

func TestDeleteDomainRemovesOrphanedProperties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dd := domain("urn:d:Solo", f.lab)
	only, err := f.store.InsertOrUpdatePropertyDescriptor(ctx, types.System, property("urn:p:Only", f.lab), dd, 0)
	require.NoError(t, err)
	used, err := f.store.InsertOrUpdatePropertyDescriptor(ctx, types.System, property("urn:p:Used", f.lab), dd, 1)
	require.NoError(t, err)
	f.addValue(t, f.lab, "urn:o:1", used.PropertyID)

	_, err = f.store.GetPropertyDescriptor(ctx, "urn:p:Only", f.lab)
	require.NoError(t, err, "warm the cache")

	require.NoError(t, f.store.DeleteDomain(ctx, "urn:d:Solo", f.lab))

	assert.Equal(t, 0, dbtest.Count(t, f.db, "property_descriptor", "property_id = ?", only.PropertyID))
	assert.Equal(t, 1, dbtest.Count(t, f.db, "property_descriptor", "property_id = ?", used.PropertyID), "values keep a property alive")
	assert.Equal(t, 0, dbtest.Count(t, f.db, "property_domain", ""))
	assert.Equal(t, 0, dbtest.Count(t, f.db, "domain_descriptor", ""))

	_, err = f.store.GetPropertyDescriptor(ctx, "urn:p:Only", f.lab)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestDeleteDomainErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.store.DeleteDomain(ctx, "urn:d:Missing", f.lab)
	assert.ErrorIs(t, err, types.ErrDomainNotFound)

	_, err = f.store.EnsureDomainDescriptor(ctx, types.System, domain("urn:d:Assay", f.assay))
	require.NoError(t, err)
	sibling, err := f.tree.Create(f.lab, "Sibling")
	require.NoError(t, err)

	err = f.store.DeleteDomain(ctx, "urn:d:Assay", sibling.ID)
	assert.ErrorIs(t, err, types.ErrPlacement)
	assert.Equal(t, 1, dbtest.Count(t, f.db, "domain_descriptor", ""))

	assert.NoError(t, f.store.DeleteDomain(ctx, "urn:d:Assay", f.assay))
}

func TestEnsurePropertyDomainPlacement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dd, err := f.store.EnsureDomainDescriptor(ctx, types.System, domain("urn:d:Samples", f.lab))
	require.NoError(t, err)

	tests := []struct {
		name      string
		container string
		wantErr   error
	}{
		{name: "same container", container: f.lab},
		{name: "shared property", container: f.shared},
		{name: "folder below the domain", container: f.assay, wantErr: types.ErrPlacement},
		{name: "other project", container: f.other, wantErr: types.ErrPlacement},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pd, err := f.store.EnsurePropertyDescriptor(ctx, types.System, property("urn:p:"+tt.container, tt.container))
			require.NoError(t, err)
			before := dbtest.Count(t, f.db, "property_domain", "")

			_, err = f.store.EnsurePropertyDomain(ctx, pd, dd, false, 0)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before, dbtest.Count(t, f.db, "property_domain", ""))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, before+1, dbtest.Count(t, f.db, "property_domain", ""))
		})
	}
}

func TestRemovePropertyDescriptorFromDomain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.store.EnsureDomainDescriptor(ctx, types.System, domain("urn:d:A", f.lab))
	require.NoError(t, err)
	b, err := f.store.EnsureDomainDescriptor(ctx, types.System, domain("urn:d:B", f.lab))
	require.NoError(t, err)
	pd, err := f.store.InsertOrUpdatePropertyDescriptor(ctx, types.System, property("urn:p:Weight", f.lab), a, 0)
	require.NoError(t, err)
	_, err = f.store.EnsurePropertyDomain(ctx, pd, b, false, 0)
	require.NoError(t, err)
	f.addValue(t, f.lab, "urn:o:1", pd.PropertyID)

	require.NoError(t, f.store.RemovePropertyDescriptorFromDomain(ctx, pd, a))
	assert.Equal(t, 1, dbtest.Count(t, f.db, "property_descriptor", ""), "still a member of B")

	require.NoError(t, f.store.RemovePropertyDescriptorFromDomain(ctx, pd, b))
	assert.Equal(t, 0, dbtest.Count(t, f.db, "property_descriptor", ""))
	assert.Equal(t, 0, dbtest.Count(t, f.db, "object_property", ""))
}

func TestGetDomainDescriptorsExtended(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, dd := range []*types.DomainDescriptor{
		domain("urn:d:Local", f.assay),
		domain("urn:d:Project", f.lab),
		domain("urn:d:Global", f.shared),
		domain("urn:d:Elsewhere", f.other),
	} {
		_, err := f.store.EnsureDomainDescriptor(ctx, types.System, dd)
		require.NoError(t, err)
	}

	only, err := f.store.GetDomainDescriptors(ctx, f.assay, types.System, false)
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, "urn:d:Local", only[0].DomainURI)

	all, err := f.store.GetDomainDescriptors(ctx, f.assay, types.System, true)
	require.NoError(t, err)
	var uris []string
	for _, dd := range all {
		uris = append(uris, dd.DomainURI)
	}
	assert.Equal(t, []string{"urn:d:Local", "urn:d:Project", "urn:d:Global"}, uris)

	f.store.perms = denyContainer(f.shared)
	visible, err := f.store.GetDomainDescriptors(ctx, f.assay, types.System, true)
	require.NoError(t, err)
	assert.Len(t, visible, 2)
}
