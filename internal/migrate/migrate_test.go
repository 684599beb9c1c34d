package migrate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mesh-intelligence/ontology/internal/cache"
	"github.com/mesh-intelligence/ontology/internal/db"
	"github.com/mesh-intelligence/ontology/internal/db/dbtest"
	"github.com/mesh-intelligence/ontology/internal/descriptor"
	"github.com/mesh-intelligence/ontology/internal/objectprop"
	"github.com/mesh-intelligence/ontology/internal/topology"
	"github.com/mesh-intelligence/ontology/pkg/proptype"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

type fixture struct {
	engine      *Engine
	descriptors *descriptor.Store
	objects     *objectprop.Store
	cache       *cache.Manager
	db          *db.DB
	tree        *topology.Tree
	lab         string
	assay       string
	other       string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d := dbtest.Open(t)
	tree := topology.New()
	lab, err := tree.Create(tree.Root(), "Lab")
	require.NoError(t, err)
	assay, err := tree.Create(lab.ID, "Assay")
	require.NoError(t, err)
	other, err := tree.Create(tree.Root(), "Other")
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	c := cache.NewManager(types.DefaultConfig().Cache, nil)
	descriptors := descriptor.New(d, c, tree, nil, log)
	return &fixture{
		engine:      New(d, descriptors, tree, c, log),
		descriptors: descriptors,
		objects:     objectprop.New(d, descriptors, c, objectprop.Config{}, log),
		cache:       c,
		db:          d,
		tree:        tree,
		lab:         lab.ID,
		assay:       assay.ID,
		other:       other.ID,
	}
}

func (f *fixture) property(t *testing.T, uri, container string) *types.PropertyDescriptor {
	t.Helper()
	pd, err := f.descriptors.EnsurePropertyDescriptor(context.Background(), types.System, &types.PropertyDescriptor{
		PropertyURI: uri,
		Name:        types.PropertyNameFromURI(uri),
		RangeURI:    proptype.String.URI(),
		Container:   container,
	})
	require.NoError(t, err)
	return pd
}

func (f *fixture) set(t *testing.T, container, objectURI string, pd *types.PropertyDescriptor, value string) {
	t.Helper()
	require.NoError(t, f.objects.InsertProperties(context.Background(), container, types.System, objectprop.InsertOptions{},
		types.NewObjectProperty(objectURI, container, pd, value)))
}

func (f *fixture) cell(t *testing.T, container, objectURI, propertyURI string) *types.ObjectProperty {
	t.Helper()
	m, err := f.objects.GetPropertyObjects(context.Background(), container, objectURI)
	require.NoError(t, err)
	cell, ok := m.Get(propertyURI)
	require.True(t, ok, "%s has no value for %s", objectURI, propertyURI)
	return cell
}

func (f *fixture) move(t *testing.T, container, newParent string) error {
	t.Helper()
	oldParent, err := f.tree.Move(container, newParent)
	require.NoError(t, err)
	return f.engine.MoveContainer(context.Background(), container, oldParent, newParent)
}

func TestMoveContainerRelocatesDescriptors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.property(t, "urn:p:P", f.assay)
	q := f.property(t, "urn:p:Q", f.lab)
	d, err := f.descriptors.EnsureDomainDescriptor(ctx, types.System, &types.DomainDescriptor{
		DomainURI: "urn:d:D", Name: "D", Container: f.assay,
	})
	require.NoError(t, err)
	_, err = f.descriptors.EnsurePropertyDomain(ctx, p, d, true, 3)
	require.NoError(t, err)

	f.set(t, f.assay, "urn:o:a", p, "pa")
	f.set(t, f.assay, "urn:o:a", q, "qa")
	f.set(t, f.lab, "urn:o:l", p, "pl")

	require.NoError(t, f.move(t, f.assay, f.other))

	moved, err := f.descriptors.GetPropertyDescriptorByID(ctx, p.PropertyID)
	require.NoError(t, err)
	assert.Equal(t, f.other, moved.Project)

	left, err := f.descriptors.GetPropertyDescriptor(ctx, "urn:p:P", f.lab)
	require.NoError(t, err)
	assert.NotEqual(t, p.PropertyID, left.PropertyID)
	assert.Equal(t, f.lab, left.Container)
	assert.Equal(t, left.PropertyID, f.cell(t, f.lab, "urn:o:l", "urn:p:P").PropertyID)
	assert.Equal(t, "pl", f.cell(t, f.lab, "urn:o:l", "urn:p:P").Value)

	brought, err := f.descriptors.GetPropertyDescriptor(ctx, "urn:p:Q", f.assay)
	require.NoError(t, err)
	assert.Equal(t, f.other, brought.Project)
	assert.NotEqual(t, q.PropertyID, brought.PropertyID)
	assert.Equal(t, brought.PropertyID, f.cell(t, f.assay, "urn:o:a", "urn:p:Q").PropertyID)

	got, err := f.objects.GetProperties(ctx, f.assay, "urn:o:a")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"urn:p:P": "pa", "urn:p:Q": "qa"}, got)

	stay, err := f.descriptors.GetPropertyDescriptor(ctx, "urn:p:Q", f.lab)
	require.NoError(t, err)
	assert.Equal(t, q.PropertyID, stay.PropertyID, "the old project keeps its own descriptor")

	dd, err := f.descriptors.GetDomainDescriptor(ctx, "urn:d:D", f.assay)
	require.NoError(t, err)
	assert.Equal(t, f.other, dd.Project)

	members, err := f.descriptors.GetPropertiesForDomain(ctx, "urn:d:D", f.lab)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, left.PropertyID, members[0].Property.PropertyID)
	assert.True(t, members[0].Required)
	assert.Equal(t, 3, members[0].SortOrder)
}

func TestMoveWithinProjectIsNoop(t *testing.T) {
	f := newFixture(t)
	p := f.property(t, "urn:p:P", f.assay)
	f.set(t, f.lab, "urn:o:l", p, "pl")
	sub, err := f.tree.Create(f.lab, "Sub")
	require.NoError(t, err)

	require.NoError(t, f.move(t, f.assay, sub.ID))
	assert.Equal(t, 1, dbtest.Count(t, f.db, "property_descriptor", ""))
	assert.Equal(t, 1, dbtest.Count(t, f.db, "property_descriptor", "project = ?", f.lab))
}

func TestMoveKeepsCollidingDescriptorsUntilChecked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.property(t, "urn:p:P", f.assay)
	theirs := f.property(t, "urn:p:P", f.other)
	f.set(t, f.assay, "urn:o:a", p, "pa")

	require.NoError(t, f.move(t, f.assay, f.other))
	assert.Equal(t, 1, dbtest.Count(t, f.db, "property_descriptor", "property_id = ? AND project = ?", p.PropertyID, f.lab),
		"the new project already defines the URI")

	found, err := f.engine.CheckProjectColumns(ctx, false)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, Mismatch{
		Kind: "property", ID: p.PropertyID, URI: "urn:p:P",
		Container: f.assay, Project: f.lab, Expected: f.other,
	}, found[0])

	fixed, err := f.engine.CheckProjectColumns(ctx, true)
	require.NoError(t, err)
	require.Len(t, fixed, 1)
	assert.Equal(t, theirs.PropertyID, fixed[0].MergedInto)

	assert.Zero(t, dbtest.Count(t, f.db, "property_descriptor", "property_id = ?", p.PropertyID))
	cell := f.cell(t, f.assay, "urn:o:a", "urn:p:P")
	assert.Equal(t, theirs.PropertyID, cell.PropertyID)
	assert.Equal(t, "pa", cell.Value)

	again, err := f.engine.CheckProjectColumns(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func (f *fixture) doubleProperty(t *testing.T, uri, container string) *types.PropertyDescriptor {
	t.Helper()
	pd, err := f.descriptors.EnsurePropertyDescriptor(context.Background(), types.System, &types.PropertyDescriptor{
		PropertyURI: uri,
		Name:        types.PropertyNameFromURI(uri),
		RangeURI:    proptype.Double.URI(),
		Container:   container,
	})
	require.NoError(t, err)
	return pd
}

func TestCheckProjectColumnsKeepsIncompatibleDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.property(t, "urn:p:P", f.assay)
	theirs := f.doubleProperty(t, "urn:p:P", f.other)
	f.set(t, f.assay, "urn:o:a", p, "pa")
	require.NoError(t, f.move(t, f.assay, f.other))

	fixed, err := f.engine.CheckProjectColumns(ctx, true)
	require.NoError(t, err)
	require.Len(t, fixed, 1)
	assert.Zero(t, fixed[0].MergedInto)
	assert.NotEmpty(t, fixed[0].Unresolved)

	assert.Equal(t, 1, dbtest.Count(t, f.db, "property_descriptor", "property_id = ?", p.PropertyID))
	assert.Zero(t, dbtest.Count(t, f.db, "object_property", "property_id = ?", theirs.PropertyID))
	cell := f.cell(t, f.assay, "urn:o:a", "urn:p:P")
	assert.Equal(t, p.PropertyID, cell.PropertyID)
	assert.Equal(t, "pa", cell.Value)
}

func TestCheckProjectColumnsRewritesProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.property(t, "urn:p:Q", f.lab)
	_, err := f.db.Exec(ctx, `UPDATE property_descriptor SET project = ? WHERE property_id = ?`, f.other, q.PropertyID)
	require.NoError(t, err)

	found, err := f.engine.CheckProjectColumns(ctx, false)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, 1, dbtest.Count(t, f.db, "property_descriptor", "project = ?", f.other), "checking alone changes nothing")

	_, err = f.engine.CheckProjectColumns(ctx, true)
	require.NoError(t, err)
	got, err := f.descriptors.GetPropertyDescriptor(ctx, "urn:p:Q", f.lab)
	require.NoError(t, err)
	assert.Equal(t, q.PropertyID, got.PropertyID)
	assert.Equal(t, f.lab, got.Project)
}

func TestCopyDescriptors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.property(t, "urn:p:P", f.assay)
	f.set(t, f.assay, "urn:o:a", p, "pa")
	f.set(t, f.other, "urn:o:x", p, "px")

	n, err := f.engine.CopyDescriptors(ctx, f.assay, f.other)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	copied, err := f.descriptors.GetPropertyDescriptor(ctx, "urn:p:P", f.other)
	require.NoError(t, err)
	assert.Equal(t, copied.PropertyID, f.cell(t, f.other, "urn:o:x", "urn:p:P").PropertyID)
	assert.Equal(t, p.PropertyID, f.cell(t, f.assay, "urn:o:a", "urn:p:P").PropertyID)
}

func TestCopyDescriptorsRefusesIncompatibleTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.property(t, "urn:p:P", f.assay)
	f.set(t, f.assay, "urn:o:a", p, "pa")
	f.set(t, f.other, "urn:o:x", p, "px")
	f.doubleProperty(t, "urn:p:P", f.other)

	_, err := f.engine.CopyDescriptors(ctx, f.assay, f.other)
	require.ErrorIs(t, err, types.ErrPropertyInUse)

	assert.Equal(t, 2, dbtest.Count(t, f.db, "object_property", "property_id = ?", p.PropertyID),
		"values stay on the string descriptor")
}

func TestDeleteContainer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.property(t, "urn:p:P", f.assay)
	f.set(t, f.assay, "urn:o:a", p, "pa")
	f.set(t, f.lab, "urn:o:l", p, "pl")

	require.NoError(t, f.engine.DeleteContainer(ctx, f.assay))

	assert.Zero(t, dbtest.Count(t, f.db, "object", "container = ?", f.assay))
	assert.Zero(t, dbtest.Count(t, f.db, "property_descriptor", "container = ?", f.assay))
	got, err := f.objects.GetProperties(ctx, f.lab, "urn:o:l")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"urn:p:P": "pl"}, got)

	pd, err := f.descriptors.GetPropertyDescriptor(ctx, "urn:p:P", f.lab)
	require.NoError(t, err)
	assert.Equal(t, f.lab, pd.Container)
}

type failingDescriptors struct {
	*descriptor.Store
}

var errClone = errors.New("clone failed")

func (failingDescriptors) CloneProperty(context.Context, types.Actor, *types.PropertyDescriptor, string, string) (*types.PropertyDescriptor, error) {
	return nil, errClone
}

func TestMoveContainerRollsBack(t *testing.T) {
	f := newFixture(t)
	p := f.property(t, "urn:p:P", f.assay)
	f.set(t, f.lab, "urn:o:l", p, "pl")
	f.engine = New(f.db, failingDescriptors{f.descriptors}, f.tree, f.cache, zaptest.NewLogger(t))

	err := f.move(t, f.assay, f.other)
	require.ErrorIs(t, err, errClone)
	assert.Equal(t, 1, dbtest.Count(t, f.db, "property_descriptor", "property_id = ? AND project = ?", p.PropertyID, f.lab),
		"the project switch was rolled back")
}
