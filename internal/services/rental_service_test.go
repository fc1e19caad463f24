package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bete/backend/internal/models"
	"github.com/bete/backend/internal/rentcycle"
)

type rentalFixture struct {
	rentals *RentalService
	props   *PropertyService
	owner   *models.User
	tenant  *models.User
	other   *models.User
	prop    *models.Property
}

func newRentalFixture(t *testing.T, now time.Time, push *Pusher) *rentalFixture {
	t.Helper()
	db := newTestDB(t)
	users := NewUserService(db)
	props := NewPropertyService(db, nil, nil)
	f := &rentalFixture{
		props:   props,
		rentals: NewRentalService(db, props, fixedCycle(now), push),
		owner:   mustUser(t, users, "owner@example.com"),
		tenant:  mustUser(t, users, "tenant@example.com"),
		other:   mustUser(t, users, "other@example.com"),
	}
	f.prop = mustProperty(t, props, f.owner.ID, "Bole apartment")
	return f
}

func (f *rentalFixture) create(t *testing.T, due string, tenantID *string) *models.RentalView {
	t.Helper()
	v, err := f.rentals.Create(context.Background(), f.owner.ID, &models.CreateRentalRequest{
		PropertyID:  f.prop.ID,
		RentAmount:  12000,
		NextDueDate: due,
		TenantID:    tenantID,
	})
	require.NoError(t, err)
	return v
}

func TestRentalService_CreateOwnerOnly(t *testing.T) {
	ctx := context.Background()
	f := newRentalFixture(t, time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC), nil)

	_, err := f.rentals.Create(ctx, f.other.ID, &models.CreateRentalRequest{
		PropertyID:  f.prop.ID,
		NextDueDate: "2024-01-15",
	})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.rentals.Create(ctx, f.owner.ID, &models.CreateRentalRequest{
		PropertyID:  f.prop.ID,
		NextDueDate: "soon",
	})
	assert.ErrorIs(t, err, ErrInvalidDueDate)

	v := f.create(t, "2024-01-15", nil)
	assert.Equal(t, 30, v.CycleDays)
	assert.True(t, v.IsActive)
	assert.Equal(t, rentcycle.BandActive, v.Status.Band)
	assert.Equal(t, "Due in 5 days", v.Status.Label)
}

func TestRentalService_PayRollsDueDate(t *testing.T) {
	ctx := context.Background()
	f := newRentalFixture(t, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC), nil)
	v := f.create(t, "2024-01-15", &f.tenant.ID)
	assert.Equal(t, rentcycle.BandDueToday, v.Status.Band)

	payment, after, err := f.rentals.Pay(ctx, f.tenant.ID, v.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 12000.0, payment.Amount)
	assert.Equal(t, "2024-01-15", rentcycle.FormatDue(payment.CoveredDue, time.UTC))
	assert.Equal(t, "2024-02-14", rentcycle.FormatDue(after.NextDueDate, time.UTC))

	stored, err := f.rentals.Get(ctx, f.owner.ID, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-14", rentcycle.FormatDue(stored.NextDueDate, time.UTC))

	history, err := f.rentals.Payments(ctx, f.owner.ID, v.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	_, _, err = f.rentals.Pay(ctx, f.other.ID, v.ID, nil)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRentalService_PayMarksCoveredReminders(t *testing.T) {
	ctx := context.Background()
	f := newRentalFixture(t, time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC), nil)
	v := f.create(t, "2024-01-15", &f.tenant.ID)

	_, err := f.rentals.AddReminder(ctx, f.owner.ID, v.ID, &models.CreateRentalReminderRequest{DueDate: "2024-01-15"})
	require.NoError(t, err)
	_, err = f.rentals.AddReminder(ctx, f.owner.ID, v.ID, &models.CreateRentalReminderRequest{DueDate: "2024-02-14"})
	require.NoError(t, err)

	_, _, err = f.rentals.Pay(ctx, f.tenant.ID, v.ID, nil)
	require.NoError(t, err)

	rems, err := f.rentals.Reminders(ctx, f.tenant.ID, v.ID)
	require.NoError(t, err)
	require.Len(t, rems, 2)
	assert.Equal(t, models.ReminderStatusPaid, rems[0].Status)
	assert.Equal(t, models.ReminderStatusPending, rems[1].Status)
}

func TestRentalService_EndBlocksPay(t *testing.T) {
	ctx := context.Background()
	f := newRentalFixture(t, time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC), nil)
	v := f.create(t, "2024-01-15", &f.tenant.ID)

	_, err := f.rentals.End(ctx, f.tenant.ID, v.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	ended, err := f.rentals.End(ctx, f.owner.ID, v.ID)
	require.NoError(t, err)
	assert.False(t, ended.IsActive)
	assert.Equal(t, rentcycle.BandUnknown, ended.Status.Band)

	_, _, err = f.rentals.Pay(ctx, f.tenant.ID, v.ID, nil)
	assert.ErrorIs(t, err, ErrRentalEnded)
	_, err = f.rentals.End(ctx, f.owner.ID, v.ID)
	assert.ErrorIs(t, err, ErrRentalEnded)
}

func TestRentalService_InviteSingleUse(t *testing.T) {
	ctx := context.Background()
	f := newRentalFixture(t, time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC), nil)
	v := f.create(t, "2024-01-15", nil)

	_, err := f.rentals.CreateInvite(ctx, f.tenant.ID, v.ID, &models.CreateInviteRequest{})
	assert.ErrorIs(t, err, ErrForbidden)

	inv, err := f.rentals.CreateInvite(ctx, f.owner.ID, v.ID, &models.CreateInviteRequest{InviteeEmail: "tenant@example.com"})
	require.NoError(t, err)
	assert.Len(t, inv.Code, 8)

	_, err = f.rentals.AcceptInvite(ctx, f.owner.ID, inv.Code)
	assert.ErrorIs(t, err, ErrOwnInvite)

	accepted, err := f.rentals.AcceptInvite(ctx, f.tenant.ID, " "+inv.Code+" ")
	require.NoError(t, err)
	require.NotNil(t, accepted.TenantID)
	assert.Equal(t, f.tenant.ID, *accepted.TenantID)

	_, err = f.rentals.AcceptInvite(ctx, f.other.ID, inv.Code)
	assert.ErrorIs(t, err, ErrInviteUsed)
	_, err = f.rentals.AcceptInvite(ctx, f.other.ID, "NOPE0000")
	assert.ErrorIs(t, err, ErrInviteNotFound)

	mine, err := f.rentals.Mine(ctx, f.tenant.ID, models.RentalRoleRenter)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.NotNil(t, mine[0].Property)
	assert.Equal(t, "Bole apartment", mine[0].Property.Title)

	owned, err := f.rentals.Mine(ctx, f.owner.ID, models.RentalRoleOwner)
	require.NoError(t, err)
	assert.Len(t, owned, 1)

	invites, err := f.rentals.Invites(ctx, f.owner.ID, v.ID)
	require.NoError(t, err)
	require.Len(t, invites, 1)
	assert.True(t, invites[0].Used())
}

func TestRentalService_RemindNeedsTenant(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 13, 9, 0, 0, 0, time.UTC)
	notifier := &fakeNotifier{}
	db := newTestDB(t)
	users := NewUserService(db)
	props := NewPropertyService(db, nil, nil)
	devices := NewDeviceService(db)
	rentals := NewRentalService(db, props, fixedCycle(now), NewPusher(devices, notifier))

	owner := mustUser(t, users, "owner@example.com")
	tenant := mustUser(t, users, "tenant@example.com")
	prop := mustProperty(t, props, owner.ID, "Bole apartment")

	v, err := rentals.Create(ctx, owner.ID, &models.CreateRentalRequest{PropertyID: prop.ID, NextDueDate: "2024-01-15"})
	require.NoError(t, err)
	_, err = rentals.Remind(ctx, owner.ID, v.ID)
	assert.ErrorIs(t, err, ErrRentalNoTenant)

	_, err = devices.Register(ctx, tenant.ID, &models.RegisterDeviceRequest{Token: "tok-1", Platform: "android"})
	require.NoError(t, err)
	inv, err := rentals.CreateInvite(ctx, owner.ID, v.ID, &models.CreateInviteRequest{})
	require.NoError(t, err)
	_, err = rentals.AcceptInvite(ctx, tenant.ID, inv.Code)
	require.NoError(t, err)

	sent, err := rentals.Remind(ctx, owner.ID, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Equal(t, 1, notifier.count())
	assert.Equal(t, "Rent for Bole apartment: Due in 2 days", notifier.sent[0].Body)
	assert.Equal(t, []string{"tok-1"}, notifier.to[0])
}
