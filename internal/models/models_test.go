package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFavoriteSet_ToggleTwiceRestores(t *testing.T) {
	orig := FavoriteSet{"p1", "p2", "p3"}
	set := append(FavoriteSet(nil), orig...)

	assert.False(t, set.Toggle("p2"))
	assert.Equal(t, FavoriteSet{"p1", "p3"}, set)
	assert.True(t, set.Toggle("p2"))
	assert.ElementsMatch(t, orig, set)

	assert.True(t, set.Toggle("p9"))
	assert.True(t, set.Contains("p9"))
	assert.False(t, set.Toggle("p9"))
	assert.ElementsMatch(t, orig, set)
}

func TestFavoriteSet_ToggleDoesNotAliasOriginal(t *testing.T) {
	orig := FavoriteSet{"a", "b", "c"}
	set := orig[:]
	set.Toggle("a")
	assert.Equal(t, FavoriteSet{"a", "b", "c"}, orig)
}

func TestRegisterRequest_Validate(t *testing.T) {
	req := RegisterRequest{Email: "  Someone@Example.COM ", Password: "secret1"}
	assert.Empty(t, req.Validate())
	assert.Equal(t, "someone@example.com", req.Email)

	bad := RegisterRequest{Email: "nope", Password: "123", Role: "admin"}
	errs := bad.Validate()
	assert.Equal(t, "Invalid email address", errs["email"])
	assert.Equal(t, "password must be at least 6 characters", errs["password"])
	assert.Contains(t, errs["role"], "tenant, owner")
}

func TestCreateReminderRequest_Validate(t *testing.T) {
	ok := CreateReminderRequest{Role: RoleTenant, Amount: 1200, DueDate: "2024-01-15"}
	assert.Empty(t, ok.Validate())

	iso := CreateReminderRequest{Role: RoleOwner, DueDate: "2024-01-15T00:00:00.000Z"}
	assert.Empty(t, iso.Validate())

	bad := CreateReminderRequest{Role: "landlord", Amount: -1, DueDate: "someday"}
	errs := bad.Validate()
	assert.Contains(t, errs, "role")
	assert.Equal(t, "amount cannot be negative", errs["amount"])
	assert.Equal(t, "dueDate must be a date (YYYY-MM-DD)", errs["dueDate"])
}

func TestImportRemindersRequest_ValidatesEach(t *testing.T) {
	req := ImportRemindersRequest{Reminders: []CreateReminderRequest{
		{Role: RoleTenant, DueDate: "2024-02-01"},
		{Role: RoleTenant, DueDate: "bogus"},
	}}
	errs := req.Validate()
	assert.Len(t, errs, 1)
}

func TestCreatePropertyRequest_TitleAndPrice(t *testing.T) {
	assert.True(t, (&CreatePropertyRequest{Title: "Flat"}).MissingTitleOrPrice())
	assert.True(t, (&CreatePropertyRequest{Price: 100}).MissingTitleOrPrice())
	assert.False(t, (&CreatePropertyRequest{Title: "Flat", Price: 100}).MissingTitleOrPrice())

	lat := 123.0
	errs := (&CreatePropertyRequest{Title: "Flat", Price: 100, Lat: &lat}).Validate()
	assert.Equal(t, "lat is out of range", errs["lat"])
}

func TestPropertyFilter_ClampLimit(t *testing.T) {
	assert.Equal(t, DefaultPropertyLimit, (&PropertyFilter{}).ClampLimit())
	assert.Equal(t, MaxPropertyLimit, (&PropertyFilter{Limit: 500}).ClampLimit())
	assert.Equal(t, 10, (&PropertyFilter{Limit: 10}).ClampLimit())
}

func TestChat_Unread(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Minute)
	c := Chat{UserAID: "a", UserBID: "b", LastMessageAt: &now, UserALastRead: &now, UserBLastRead: &earlier}

	assert.False(t, c.Unread("a"))
	assert.True(t, c.Unread("b"))
	assert.Equal(t, "b", c.OtherParticipant("a"))
	assert.True(t, c.HasParticipant("b"))
	assert.False(t, c.HasParticipant("c"))
	assert.False(t, c.HasParticipant(""))
}

func TestRental_Parties(t *testing.T) {
	r := Rental{OwnerID: "o"}
	assert.True(t, r.IsParty("o"))
	assert.False(t, r.IsParty("t"))
	assert.Equal(t, "", r.Counterparty("o"))

	tenant := "t"
	r.TenantID = &tenant
	assert.True(t, r.IsParty("t"))
	assert.Equal(t, "t", r.Counterparty("o"))
	assert.Equal(t, "o", r.Counterparty("t"))
}

func TestDefaultCounterparty(t *testing.T) {
	assert.Equal(t, "Tenant", DefaultCounterparty(RoleOwner))
	assert.Equal(t, "Owner", DefaultCounterparty(RoleTenant))
}
