package ontology

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mesh-intelligence/ontology/internal/objectprop"
	"github.com/mesh-intelligence/ontology/internal/topology"
	"github.com/mesh-intelligence/ontology/pkg/proptype"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

func testConfig(t *testing.T) types.Config {
	t.Helper()
	cfg := types.DefaultConfig()
	cfg.DataDir = t.TempDir()
	return cfg
}

func attached(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(zaptest.NewLogger(t))
	require.NoError(t, m.Attach(context.Background(), testConfig(t)))
	t.Cleanup(func() { _ = m.Detach() })
	return m
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	tests := []struct {
		name  string
		check func(t *testing.T, m *Manager)
	}{
		{
			name: "detached accessors fail",
			check: func(t *testing.T, m *Manager) {
				_, err := m.Descriptors()
				assert.ErrorIs(t, err, types.ErrDetached)
				_, err = m.Objects()
				assert.ErrorIs(t, err, types.ErrDetached)
				_, err = m.Migrations()
				assert.ErrorIs(t, err, types.ErrDetached)
				_, err = m.Stats(ctx)
				assert.ErrorIs(t, err, types.ErrDetached)
			},
		},
		{
			name: "attach twice fails",
			check: func(t *testing.T, m *Manager) {
				require.NoError(t, m.Attach(ctx, cfg))
				assert.ErrorIs(t, m.Attach(ctx, cfg), types.ErrAlreadyAttached)
				require.NoError(t, m.Detach())
			},
		},
		{
			name: "detach is idempotent",
			check: func(t *testing.T, m *Manager) {
				require.NoError(t, m.Attach(ctx, cfg))
				require.NoError(t, m.Detach())
				assert.NoError(t, m.Detach())
			},
		},
		{
			name: "invalid config is rejected",
			check: func(t *testing.T, m *Manager) {
				err := m.Attach(ctx, types.Config{Backend: "oracle"})
				assert.ErrorIs(t, err, types.ErrBackendUnknown)
				_, err = m.Topology()
				assert.ErrorIs(t, err, types.ErrDetached)
			},
		},
		{
			name: "defaults fill zero tuning",
			check: func(t *testing.T, m *Manager) {
				require.NoError(t, m.Attach(ctx, types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
				defer m.Detach()
				got, err := m.Config()
				require.NoError(t, err)
				assert.Equal(t, types.DefaultImportBatchSize, got.Import.BatchSize)
				assert.Equal(t, types.DefaultMvIndicators, got.MvIndicators)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, NewManager(zaptest.NewLogger(t)))
		})
	}
}

func TestReattachKeepsContainers(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	m := NewManager(zaptest.NewLogger(t))
	require.NoError(t, m.Attach(ctx, cfg))
	tree, err := m.Topology()
	require.NoError(t, err)
	lab, err := m.CreateContainer(ctx, tree.Root(), "Lab")
	require.NoError(t, err)
	_, err = m.CreateContainer(ctx, lab.ID, "Assay")
	require.NoError(t, err)
	require.NoError(t, m.Detach())

	require.NoError(t, m.Attach(ctx, cfg))
	defer m.Detach()
	got, err := m.Resolve("/Lab/Assay")
	require.NoError(t, err)
	assert.Equal(t, lab.ID, got.ParentID)
}

func TestCreateContainerRejectsDuplicates(t *testing.T) {
	m := attached(t)
	ctx := context.Background()
	tree, err := m.Topology()
	require.NoError(t, err)

	_, err = m.CreateContainer(ctx, tree.Root(), "Lab")
	require.NoError(t, err)
	_, err = m.CreateContainer(ctx, tree.Root(), "Lab")
	assert.ErrorIs(t, err, topology.ErrDuplicateName)
	_, err = m.CreateContainer(ctx, tree.Root(), "")
	assert.ErrorIs(t, err, types.ErrValidation)

	s, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Containers, "root, shared and Lab")
}

func TestMoveContainerRelocatesDescriptors(t *testing.T) {
	m := attached(t)
	ctx := context.Background()
	tree, _ := m.Topology()
	descriptors, _ := m.Descriptors()
	objects, _ := m.Objects()

	lab, err := m.CreateContainer(ctx, tree.Root(), "Lab")
	require.NoError(t, err)
	assay, err := m.CreateContainer(ctx, lab.ID, "Assay")
	require.NoError(t, err)
	other, err := m.CreateContainer(ctx, tree.Root(), "Other")
	require.NoError(t, err)

	pd, err := descriptors.EnsurePropertyDescriptor(ctx, types.System, &types.PropertyDescriptor{
		PropertyURI: "urn:p:Weight", Name: "Weight", RangeURI: proptype.Double.URI(), Container: assay.ID,
	})
	require.NoError(t, err)
	require.NoError(t, objects.InsertProperties(ctx, assay.ID, types.System, objectprop.InsertOptions{},
		types.NewObjectProperty("urn:o:1", assay.ID, pd, 1.5)))

	require.NoError(t, m.MoveContainer(ctx, assay.ID, other.ID))
	assert.Equal(t, other.ID, tree.Project(assay.ID))

	moved, err := descriptors.GetPropertyDescriptorByID(ctx, pd.PropertyID)
	require.NoError(t, err)
	assert.Equal(t, other.ID, moved.Project)

	assert.NoError(t, m.MoveContainer(ctx, assay.ID, other.ID), "moving to the current parent is a no-op")
	assert.ErrorIs(t, m.MoveContainer(ctx, other.ID, assay.ID), topology.ErrCycle)
}

func TestDeleteContainer(t *testing.T) {
	m := attached(t)
	ctx := context.Background()
	tree, _ := m.Topology()
	objects, _ := m.Objects()

	lab, err := m.CreateContainer(ctx, tree.Root(), "Lab")
	require.NoError(t, err)
	assay, err := m.CreateContainer(ctx, lab.ID, "Assay")
	require.NoError(t, err)

	assert.ErrorIs(t, m.DeleteContainer(ctx, lab.ID), topology.ErrHasChildren)
	assert.ErrorIs(t, m.DeleteContainer(ctx, tree.Shared()), topology.ErrReserved)

	_, err = objects.EnsureObject(ctx, assay.ID, "urn:o:1", 0)
	require.NoError(t, err)
	require.NoError(t, m.DeleteContainer(ctx, assay.ID))

	_, err = m.Resolve("/Lab/Assay")
	assert.ErrorIs(t, err, types.ErrNotFound)
	s, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, s.Objects)
	assert.Equal(t, 3, s.Containers)
}

func TestGathererExposesStoreCounters(t *testing.T) {
	m := attached(t)
	ctx := context.Background()
	tree, _ := m.Topology()
	descriptors, _ := m.Descriptors()

	_, err := descriptors.GetPropertyDescriptor(ctx, "urn:p:Missing", tree.Shared())
	assert.ErrorIs(t, err, types.ErrNotFound)

	n, err := testutil.GatherAndCount(m.Gatherer(), "ontology_cache_loads_total")
	require.NoError(t, err)
	assert.Positive(t, n)
}
