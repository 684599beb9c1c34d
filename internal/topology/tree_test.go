package topology

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/ontology/internal/db/dbtest"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

func TestProjectResolution(t *testing.T) {
	tree := New()
	proj, err := tree.Create(tree.Root(), "Lab")
	require.NoError(t, err)
	folder, err := tree.Create(proj.ID, "Assays")
	require.NoError(t, err)
	sub, err := tree.Create(folder.ID, "Run 1")
	require.NoError(t, err)

	tests := []struct {
		name string
		id   string
		want string
	}{
		{"root is its own project", tree.Root(), tree.Root()},
		{"shared is its own project", tree.Shared(), tree.Shared()},
		{"project", proj.ID, proj.ID},
		{"folder", folder.ID, proj.ID},
		{"nested folder", sub.ID, proj.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tree.Project(tt.id))
		})
	}

	assert.True(t, tree.IsProject(proj.ID))
	assert.False(t, tree.IsProject(folder.ID))
	assert.Equal(t, "/Lab/Assays/Run 1", tree.Path(sub.ID))

	got, ok := tree.Lookup("/Lab/Assays")
	require.True(t, ok)
	assert.Equal(t, folder.ID, got.ID)
	assert.ElementsMatch(t, []string{folder.ID, sub.ID}, tree.Descendants(folder.ID))
}

func TestMove(t *testing.T) {
	tree := New()
	a, _ := tree.Create(tree.Root(), "A")
	b, _ := tree.Create(tree.Root(), "B")
	f, _ := tree.Create(a.ID, "F")

	assert.Equal(t, b.ID, tree.ProjectUnder(b.ID, f.ID))
	assert.Equal(t, f.ID, tree.ProjectUnder(tree.Root(), f.ID))

	old, err := tree.Move(f.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, old)
	assert.Equal(t, b.ID, tree.Project(f.ID))
	assert.Empty(t, tree.Children(a.ID))

	_, err = tree.Move(b.ID, f.ID)
	assert.ErrorIs(t, err, ErrCycle)
	_, err = tree.Move(tree.Shared(), a.ID)
	assert.ErrorIs(t, err, ErrReserved)
	_, err = tree.Move("missing", a.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRemove(t *testing.T) {
	tree := New()
	a, _ := tree.Create(tree.Root(), "A")
	f, _ := tree.Create(a.ID, "F")

	assert.ErrorIs(t, tree.Remove(a.ID), ErrHasChildren)
	require.NoError(t, tree.Remove(f.ID))
	require.NoError(t, tree.Remove(a.ID))
	_, ok := tree.Container(a.ID)
	assert.False(t, ok)

	_, err := tree.Create(tree.Root(), "Shared")
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestStoreRoundTrip(t *testing.T) {
	d := dbtest.Open(t)
	ctx := context.Background()
	store := NewStore(d)

	tree, err := store.Load(ctx)
	require.NoError(t, err)

	proj, err := tree.Create(tree.Root(), "Lab")
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, proj))
	folder, err := tree.Create(proj.ID, "Assays")
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, folder))

	reloaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, tree.Root(), reloaded.Root())
	assert.Equal(t, tree.Shared(), reloaded.Shared())
	assert.Equal(t, proj.ID, reloaded.Project(folder.ID))
	assert.Equal(t, "/Lab/Assays", reloaded.Path(folder.ID))
}
