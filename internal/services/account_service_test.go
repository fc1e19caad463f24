package services

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bete/backend/internal/models"
)

func TestAccountService_DeleteOwner(t *testing.T) {
	ctx := context.Background()
	f := newRentalFixture(t, time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC), nil)
	db := f.rentals.db

	dir := t.TempDir()
	blobs, err := NewLocalBlobStore(dir, "/uploads/")
	require.NoError(t, err)
	images := NewImageService(db, blobs)
	upload, err := images.Upload(ctx, f.owner.ID, "front.png", bytes.NewReader(append(pngHeader, make([]byte, 64)...)))
	require.NoError(t, err)

	rental := f.create(t, "2024-01-15", &f.tenant.ID)
	_, _, err = f.rentals.Pay(ctx, f.owner.ID, rental.ID, &models.PayRentalRequest{})
	require.NoError(t, err)

	favorites := NewGormFavoriteService(db, f.props)
	_, err = favorites.Add(ctx, f.tenant.ID, f.prop.ID)
	require.NoError(t, err)
	_, err = NewDeviceService(db).Register(ctx, f.owner.ID, &models.RegisterDeviceRequest{Token: "tok-1"})
	require.NoError(t, err)

	res, err := NewAccountService(db, favorites, images, nil).DeleteAccount(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{f.prop.ID}, res.PropertyIDs)
	assert.Equal(t, []string{rental.ID}, res.RentalIDs)
	assert.Equal(t, 1, res.ImagesRemoved)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", f.owner.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&models.Payment{}).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&models.Favorite{}).Count(&count).Error)
	assert.Zero(t, count, "favorites on deleted listings go too")
	require.NoError(t, db.Model(&models.Device{}).Count(&count).Error)
	assert.Zero(t, count)

	_, err = os.Stat(filepath.Join(dir, upload.Filename))
	assert.True(t, os.IsNotExist(err))

	_, err = NewUserService(db).GetByID(ctx, f.tenant.ID)
	assert.NoError(t, err, "other parties are untouched")
}

func TestAccountService_DeleteTenantDetachesRental(t *testing.T) {
	ctx := context.Background()
	f := newRentalFixture(t, time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC), nil)
	rental := f.create(t, "2024-01-15", &f.tenant.ID)

	res, err := NewAccountService(f.rentals.db, nil, nil, nil).DeleteAccount(ctx, f.tenant.ID)
	require.NoError(t, err)
	assert.Empty(t, res.RentalIDs)

	v, err := f.rentals.Get(ctx, f.owner.ID, rental.ID)
	require.NoError(t, err)
	assert.Nil(t, v.TenantID)
}

func TestAccountService_UnknownUser(t *testing.T) {
	_, err := NewAccountService(newTestDB(t), nil, nil, nil).DeleteAccount(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

type recordingFavorites struct {
	FavoriteService
	userID      string
	propertyIDs []string
	calls       int
}

func (r *recordingFavorites) DeleteForAccount(_ context.Context, userID string, propertyIDs []string) error {
	r.calls++
	r.userID = userID
	r.propertyIDs = propertyIDs
	return nil
}

func TestAccountService_PurgesExternalFavorites(t *testing.T) {
	ctx := context.Background()
	f := newRentalFixture(t, time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC), nil)
	favs := &recordingFavorites{}

	_, err := NewAccountService(f.rentals.db, favs, nil, nil).DeleteAccount(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, favs.calls)
	assert.Equal(t, f.owner.ID, favs.userID)
	assert.Equal(t, []string{f.prop.ID}, favs.propertyIDs)
}
