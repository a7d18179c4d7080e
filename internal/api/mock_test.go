package api

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/cargoviz-realtime/internal/model"
)

func TestMockClient_SeedData(t *testing.T) {
	m := NewMockClient(nil)
	ctx := context.Background()

	resp, err := m.Login(ctx, "admin@cargoviz.com", "pw")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "org-1", resp.User.OrganizationID)

	areas, err := m.GetAreas(ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, areas, 3)

	cargo, err := m.GetCargo(ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, cargo, 3)

	none, err := m.GetCargo(ctx, "org-2")
	require.NoError(t, err)
	assert.Empty(t, none)

	projects, err := m.GetProjectsForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, projects, 2)
}

func TestMockClient_LoginRequiresCredentials(t *testing.T) {
	_, err := NewMockClient(nil).Login(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestMockClient_CargoLifecycle(t *testing.T) {
	m := NewMockClient(nil)
	ctx := context.Background()

	created, err := m.CreateCargo(ctx, model.CreateCargoRequest{Name: "Drum D-1", Type: "Drum", OrganizationID: "org-1"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, created.Status)

	status := model.StatusPlaced
	updated, err := m.UpdateCargo(ctx, created.ID, model.UpdateCargoRequest{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPlaced, updated.Status)
	assert.Equal(t, "Drum D-1", updated.Name)

	require.NoError(t, m.DeleteCargo(ctx, created.ID))

	err = m.DeleteCargo(ctx, created.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMockClient_UpdateAreaPartial(t *testing.T) {
	m := NewMockClient(nil)
	name := "Storage Area A2"

	area, err := m.UpdateArea(context.Background(), "area-1", model.UpdateAreaRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, area.Name)
	assert.Equal(t, "Concrete", area.Surface)
	assert.Equal(t, 2500.0, area.Area)

	_, err = m.UpdateArea(context.Background(), "area-404", model.UpdateAreaRequest{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}
