package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bete/backend/internal/models"
)

func TestPropertyService_OwnerOnlyMutation(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := NewUserService(db)
	events := &recordingPublisher{}
	props := NewPropertyService(db, NewPropertyCache(10, time.Minute, nil), events)

	owner := mustUser(t, users, "owner@example.com")
	other := mustUser(t, users, "other@example.com")
	p := mustProperty(t, props, owner.ID, "Bole apartment")

	// Warm the cache so the update must invalidate it.
	_, err := props.GetByID(ctx, p.ID)
	require.NoError(t, err)

	title := "Hijacked"
	_, err = props.Update(ctx, other.ID, p.ID, &models.UpdatePropertyRequest{Title: &title})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, props.Delete(ctx, other.ID, p.ID), ErrForbidden)

	price := 15000.0
	updated, err := props.Update(ctx, owner.ID, p.ID, &models.UpdatePropertyRequest{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, "Bole apartment", updated.Title)
	assert.Equal(t, 15000.0, updated.Price)

	got, err := props.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 15000.0, got.Price)

	require.NoError(t, props.Delete(ctx, owner.ID, p.ID))
	_, err = props.GetByID(ctx, p.ID)
	assert.ErrorIs(t, err, ErrPropertyNotFound)

	assert.Equal(t, []string{PropertyCreated, PropertyUpdated, PropertyDeleted}, events.actions())
}

func TestPropertyService_ListFilters(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	owner := mustUser(t, NewUserService(db), "owner@example.com")
	props := NewPropertyService(db, nil, nil)

	lat, lng := 9.01, 38.76
	_, err := props.Create(ctx, owner.ID, &models.CreatePropertyRequest{Title: "A", Price: 100, City: "Addis Ababa", Lat: &lat, Lng: &lng})
	require.NoError(t, err)
	_, err = props.Create(ctx, owner.ID, &models.CreatePropertyRequest{Title: "B", Price: 900, City: "Adama"})
	require.NoError(t, err)

	all, err := props.List(ctx, models.PropertyFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	inCity, err := props.List(ctx, models.PropertyFilter{City: "Adama"})
	require.NoError(t, err)
	require.Len(t, inCity, 1)
	assert.Equal(t, "B", inCity[0].Title)

	maxPrice := 500.0
	cheap, err := props.List(ctx, models.PropertyFilter{MaxPrice: &maxPrice})
	require.NoError(t, err)
	require.Len(t, cheap, 1)
	assert.Equal(t, "A", cheap[0].Title)

	inBounds, err := props.ListInBounds(ctx, models.Bounds{MinLat: 8.9, MaxLat: 9.1, MinLng: 38.7, MaxLng: 38.8}, 0)
	require.NoError(t, err)
	require.Len(t, inBounds, 1)
	assert.Equal(t, "A", inBounds[0].Title)
}

func TestPropertyService_ReplaceImageURL(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	owner := mustUser(t, NewUserService(db), "owner@example.com")
	props := NewPropertyService(db, nil, nil)

	p, err := props.Create(ctx, owner.ID, &models.CreatePropertyRequest{
		Title:  "With photos",
		Price:  100,
		Images: []string{"pending/a.jpg", "https://cdn/b.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pending/a.jpg", p.ImageURL)

	n, err := props.ReplaceImageURL(ctx, "pending/a.jpg", "https://cdn/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := props.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn/a.jpg", "https://cdn/b.jpg"}, []string(got.Images))
	assert.Equal(t, "https://cdn/a.jpg", got.ImageURL)

	n, err = props.RemoveImageURL(ctx, "https://cdn/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err = props.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn/b.jpg"}, []string(got.Images))
	assert.Equal(t, "https://cdn/b.jpg", got.ImageURL)
}
