package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bete/backend/internal/models"
	"github.com/bete/backend/internal/services"
	"github.com/bete/backend/internal/storage"
)

type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Errors  map[string]string `json:"errors"`
}

type testAPI struct {
	t       *testing.T
	handler http.Handler
}

func newTestAPI(t *testing.T, authRateLimit int) *testAPI {
	t.Helper()
	db, err := storage.OpenDatabase(context.Background(), storage.DatabaseOptions{
		Driver: "sqlite",
		DSN:    "file:" + filepath.Join(t.TempDir(), "api.db"),
	})
	require.NoError(t, err)
	require.NoError(t, storage.AutoMigrate(db))
	t.Cleanup(func() { _ = storage.Close(db) })

	cache := services.NewPropertyCache(100, time.Minute, nil)
	t.Cleanup(cache.Stop)

	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	cycle := services.Cycle{
		Rollover:  "fixed",
		CycleDays: 30,
		Location:  time.UTC,
		Now:       func() time.Time { return now },
	}

	tokens := services.NewTokenIssuer("test-secret", time.Hour)
	users := services.NewUserService(db)
	properties := services.NewPropertyService(db, cache, nil)
	devices := services.NewDeviceService(db)
	pusher := services.NewPusher(devices, nil)
	blobs, err := services.NewLocalBlobStore(t.TempDir(), "/uploads")
	require.NoError(t, err)
	chats := services.NewGormChatService(db)
	rentals := services.NewRentalService(db, properties, cycle, pusher)
	images := services.NewImageService(db, blobs)
	favorites := services.NewGormFavoriteService(db, properties)

	handler := NewRouter(RouterConfig{
		Tokens:        tokens,
		Auth:          NewAuthHandler(users, tokens, nil),
		Users:         NewUserHandler(users),
		Accounts:      NewAccountHandler(services.NewAccountService(db, favorites, images, cache)),
		Properties:    NewPropertyHandler(properties),
		Favorites:     NewFavoriteHandler(favorites),
		Images:        NewImageHandler(images, 1, 3),
		Chats:         NewChatHandler(chats, users, nil),
		Rentals:       NewRentalHandler(rentals, users, properties, nil),
		Reminders:     NewReminderHandler(services.NewReminderService(db, cycle)),
		Devices:       NewDeviceHandler(devices),
		AuthRateLimit: authRateLimit,
	})
	return &testAPI{t: t, handler: handler}
}

func (a *testAPI) do(method, path, token string, body interface{}) (int, envelope) {
	a.t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return a.serve(req)
}

func (a *testAPI) serve(req *http.Request) (int, envelope) {
	a.t.Helper()
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	var env envelope
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (a *testAPI) signup(email, role string) (string, models.User) {
	a.t.Helper()
	code, env := a.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    email,
		"password": "secret123",
		"name":     email,
		"role":     role,
	})
	require.Equal(a.t, http.StatusCreated, code, env.Error)
	var auth models.AuthResponse
	require.NoError(a.t, json.Unmarshal(env.Data, &auth))
	return auth.Token, auth.User
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestAuthFlow(t *testing.T) {
	api := newTestAPI(t, 0)
	token, user := api.signup("Meron@Example.com", "owner")
	assert.Equal(t, "meron@example.com", user.Email)
	assert.Equal(t, models.RoleOwner, user.Role)

	code, env := api.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": "meron@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, models.ErrTagUserExists, env.Error)

	code, env = api.do(http.MethodPost, "/login", "", map[string]string{"email": "meron@example.com", "password": "wrong-one"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, models.ErrTagInvalidCredentials, env.Error)

	code, env = api.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": "not-an-email", "password": "1"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, models.ErrTagValidation, env.Error)
	assert.Contains(t, env.Errors, "email")
	assert.Contains(t, env.Errors, "password")

	code, env = api.do(http.MethodGet, "/me", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, user.ID, decode[models.User](t, env).ID)

	code, env = api.do(http.MethodPut, "/api/users/me", token, map[string]string{"avatarUrl": "https://cdn/x.png"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "https://cdn/x.png", decode[models.User](t, env).AvatarURL)

	code, env = api.do(http.MethodGet, "/api/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, models.ErrTagMissingAuth, env.Error)

	code, env = api.do(http.MethodGet, "/api/users/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, models.ErrTagInvalidToken, env.Error)
}

func TestDeleteAccount(t *testing.T) {
	api := newTestAPI(t, 0)
	token, _ := api.signup("owner@example.com", "owner")

	code, env := api.do(http.MethodPost, "/api/properties", token, map[string]interface{}{"title": "Kazanchis flat", "price": 9000})
	require.Equal(t, http.StatusCreated, code, env.Error)
	prop := decode[models.Property](t, env)

	code, _ = api.do(http.MethodGet, "/api/properties/"+prop.ID, "", nil)
	require.Equal(t, http.StatusOK, code)

	code, env = api.do(http.MethodDelete, "/api/users/me", token, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	res := decode[services.DeleteAccountResult](t, env)
	assert.Equal(t, []string{prop.ID}, res.PropertyIDs)

	code, _ = api.do(http.MethodGet, "/api/properties/"+prop.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = api.do(http.MethodGet, "/api/users/me", token, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, models.ErrTagNotFound, env.Error)
}

func TestAuthRateLimit(t *testing.T) {
	api := newTestAPI(t, 2)
	body := map[string]string{"email": "a@b.c", "password": "secret123"}
	for i := 0; i < 2; i++ {
		code, _ := api.do(http.MethodPost, "/api/auth/login", "", body)
		assert.Equal(t, http.StatusUnauthorized, code)
	}
	code, env := api.do(http.MethodPost, "/api/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, models.ErrTagRateLimited, env.Error)
}

func TestPropertyEndpoints(t *testing.T) {
	api := newTestAPI(t, 0)
	owner, _ := api.signup("owner@bete.app", "owner")
	other, _ := api.signup("other@bete.app", "tenant")

	code, env := api.do(http.MethodPost, "/api/properties", owner, map[string]interface{}{"title": "Flat"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, models.ErrTagTitlePriceRequired, env.Error)

	code, env = api.do(http.MethodPost, "/api/properties", owner, map[string]interface{}{
		"title": "Bole apartment", "price": 15000, "city": "Addis Ababa", "type": "apartment",
		"images": []string{"/uploads/a.jpg", "/uploads/b.jpg"},
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	prop := decode[models.Property](t, env)
	assert.Equal(t, "/uploads/a.jpg", prop.ImageURL)

	code, env = api.do(http.MethodPut, "/api/properties/"+prop.ID, other, map[string]interface{}{"price": 1})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, models.ErrTagForbidden, env.Error)

	code, env = api.do(http.MethodPut, "/api/properties/"+prop.ID, owner, map[string]interface{}{"price": 14000})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 14000.0, decode[models.Property](t, env).Price)

	code, env = api.do(http.MethodGet, "/api/properties?city=Addis%20Ababa&maxPrice=14500", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]models.Property](t, env), 1)

	code, env = api.do(http.MethodGet, "/api/properties?minPrice=cheap", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Errors, "minPrice")

	code, _ = api.do(http.MethodGet, "/api/properties/bounds?minLat=8&maxLat=10&minLng=38&maxLng=39", "", nil)
	assert.Equal(t, http.StatusOK, code)

	code, env = api.do(http.MethodDelete, "/api/properties/"+prop.ID, owner, nil)
	require.Equal(t, http.StatusOK, code)
	code, env = api.do(http.MethodGet, "/api/properties/"+prop.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, models.ErrTagNotFound, env.Error)
}

func TestFavoriteToggleTwice(t *testing.T) {
	api := newTestAPI(t, 0)
	owner, _ := api.signup("owner@bete.app", "owner")
	_, env := api.do(http.MethodPost, "/api/properties", owner, map[string]interface{}{"title": "Villa", "price": 30000})
	prop := decode[models.Property](t, env)

	code, env := api.do(http.MethodPost, "/api/favorites/"+prop.ID+"/toggle", owner, nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decode[models.ToggleResponse](t, env).Favorited)

	code, env = api.do(http.MethodPost, "/api/favorites/"+prop.ID, owner, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, models.ErrTagAlreadyFavorited, env.Error)

	code, env = api.do(http.MethodPost, "/api/favorites/"+prop.ID+"/toggle", owner, nil)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, decode[models.ToggleResponse](t, env).Favorited)

	code, env = api.do(http.MethodGet, "/api/favorites", owner, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[[]string](t, env))

	code, env = api.do(http.MethodDelete, "/api/favorites/"+prop.ID, owner, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, models.ErrTagFavoriteNotFound, env.Error)
}

func TestRentalInviteAndPay(t *testing.T) {
	api := newTestAPI(t, 0)
	owner, _ := api.signup("owner@bete.app", "owner")
	tenant, tenantUser := api.signup("tenant@bete.app", "tenant")

	_, env := api.do(http.MethodPost, "/api/properties", owner, map[string]interface{}{"title": "Bole apartment", "price": 15000})
	prop := decode[models.Property](t, env)

	code, env := api.do(http.MethodPost, "/api/rentals", tenant, map[string]interface{}{
		"propertyId": prop.ID, "rentAmount": 15000, "nextDueDate": "2024-01-15",
	})
	assert.Equal(t, http.StatusForbidden, code)

	code, env = api.do(http.MethodPost, "/api/rentals", owner, map[string]interface{}{
		"propertyId": prop.ID, "rentAmount": 15000, "nextDueDate": "2024-01-15",
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	rental := decode[models.RentalView](t, env)
	assert.Equal(t, "Due in 5 days", rental.Status.Label)

	code, env = api.do(http.MethodPost, "/api/rentals/"+rental.ID+"/remind", owner, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, models.ErrTagNoTenant, env.Error)

	code, env = api.do(http.MethodPost, "/api/rentals/"+rental.ID+"/invites", owner, map[string]string{"inviteeEmail": "tenant@bete.app"})
	require.Equal(t, http.StatusCreated, code, env.Error)
	invite := decode[models.InviteResponse](t, env)
	assert.Len(t, invite.Code, 8)
	assert.False(t, invite.EmailSent)

	code, env = api.do(http.MethodPost, "/api/rentals/invites/"+invite.Code+"/accept", owner, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, models.ErrTagOwnInvite, env.Error)

	code, env = api.do(http.MethodPost, "/api/rentals/invites/"+invite.Code+"/accept", tenant, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	accepted := decode[models.RentalView](t, env)
	require.NotNil(t, accepted.TenantID)
	assert.Equal(t, tenantUser.ID, *accepted.TenantID)

	code, env = api.do(http.MethodPost, "/api/rentals/invites/"+invite.Code+"/accept", tenant, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, models.ErrTagInviteUsed, env.Error)

	code, env = api.do(http.MethodGet, "/api/rentals/mine?role=renter", tenant, nil)
	require.Equal(t, http.StatusOK, code)
	mine := decode[[]models.RentalView](t, env)
	require.Len(t, mine, 1)
	require.NotNil(t, mine[0].Property)
	assert.Equal(t, "Bole apartment", mine[0].Property.Title)

	code, env = api.do(http.MethodPost, "/api/rentals/"+rental.ID+"/pay", tenant, nil)
	require.Equal(t, http.StatusCreated, code, env.Error)
	paid := decode[models.PayRentalResponse](t, env)
	assert.Equal(t, 15000.0, paid.Payment.Amount)
	assert.Equal(t, "2024-02-14", paid.Rental.NextDueDate.Format("2006-01-02"))

	code, env = api.do(http.MethodGet, "/api/rentals/"+rental.ID+"/payments", owner, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]models.Payment](t, env), 1)

	code, env = api.do(http.MethodGet, "/api/rentals/mine?role=landlord", owner, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Errors, "role")
}

func TestReminderEndpoints(t *testing.T) {
	api := newTestAPI(t, 0)
	token, _ := api.signup("guest@bete.app", "tenant")

	code, env := api.do(http.MethodPost, "/api/reminders", token, map[string]interface{}{
		"role": "tenant", "dueDate": "next week",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Errors, "dueDate")

	code, env = api.do(http.MethodPost, "/api/reminders/import", token, map[string]interface{}{
		"reminders": []map[string]interface{}{
			{"role": "tenant", "counterparty": "Abebe", "amount": 8000, "dueDate": "2024-01-10"},
			{"role": "owner", "dueDate": "2024-01-09T21:00:00.000Z"},
		},
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	imported := decode[[]models.ReminderView](t, env)
	require.Len(t, imported, 2)
	assert.Equal(t, "Due today", imported[0].Status.Label)
	assert.Equal(t, "Tenant", imported[1].Counterparty)

	code, env = api.do(http.MethodPost, "/api/reminders/"+imported[0].ID+"/pay", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2024-02-09", decode[models.ReminderView](t, env).DueDate.Format("2006-01-02"))

	code, env = api.do(http.MethodPatch, "/api/reminders/"+imported[0].ID, token, map[string]interface{}{"amount": 9000})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 9000.0, decode[models.ReminderView](t, env).Amount)

	other, _ := api.signup("other@bete.app", "tenant")
	code, env = api.do(http.MethodDelete, "/api/reminders/"+imported[0].ID, other, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = api.do(http.MethodDelete, "/api/reminders/"+imported[0].ID, token, nil)
	assert.Equal(t, http.StatusOK, code)

	code, env = api.do(http.MethodGet, "/api/reminders", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]models.ReminderView](t, env), 1)
}

func TestChatEndpoints(t *testing.T) {
	api := newTestAPI(t, 0)
	alice, aliceUser := api.signup("alice@bete.app", "tenant")
	bob, bobUser := api.signup("bob@bete.app", "owner")
	carol, _ := api.signup("carol@bete.app", "tenant")

	code, env := api.do(http.MethodPost, "/api/chats", alice, map[string]string{"otherUserId": aliceUser.ID})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, models.ErrTagChatWithSelf, env.Error)

	code, env = api.do(http.MethodPost, "/api/chats", alice, map[string]string{"otherUserId": "nobody"})
	assert.Equal(t, http.StatusNotFound, code)

	code, env = api.do(http.MethodPost, "/api/chats", alice, map[string]string{"otherUserId": bobUser.ID})
	require.Equal(t, http.StatusOK, code, env.Error)
	chat := decode[models.Chat](t, env)

	code, env = api.do(http.MethodPost, "/api/chats/"+chat.ID+"/messages", alice, map[string]string{"content": "Is it still available?"})
	require.Equal(t, http.StatusCreated, code, env.Error)

	code, env = api.do(http.MethodGet, "/api/chats", bob, nil)
	require.Equal(t, http.StatusOK, code)
	list := decode[[]models.ChatSummary](t, env)
	require.Len(t, list, 1)
	assert.True(t, list[0].Unread)
	require.NotNil(t, list[0].OtherUser)
	assert.Equal(t, aliceUser.ID, list[0].OtherUser.ID)

	code, env = api.do(http.MethodGet, "/api/chats/"+chat.ID+"/messages", carol, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, models.ErrTagNotParticipant, env.Error)

	code, _ = api.do(http.MethodPost, "/api/chats/"+chat.ID+"/read", bob, nil)
	require.Equal(t, http.StatusOK, code)
	_, env = api.do(http.MethodGet, "/api/chats", bob, nil)
	assert.False(t, decode[[]models.ChatSummary](t, env)[0].Unread)
}

func multipartRequest(t *testing.T, path, token, field string, files map[string][]byte, order []string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range order {
		part, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write(files[name])
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestImageUploads(t *testing.T) {
	api := newTestAPI(t, 0)
	token, _ := api.signup("owner@bete.app", "owner")
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

	code, env := api.serve(multipartRequest(t, "/api/upload/image", token, "image",
		map[string][]byte{"a.png": png}, []string{"a.png"}))
	require.Equal(t, http.StatusCreated, code, env.Error)
	single := decode[models.ImageUploadResponse](t, env)
	assert.Contains(t, single.ImageURL, "/uploads/")

	code, env = api.serve(multipartRequest(t, "/api/upload", token, "images",
		map[string][]byte{"1.png": png, "2.txt": []byte("hello there, not an image"), "3.png": png},
		[]string{"1.png", "2.txt", "3.png"}))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, models.ErrTagInvalidImage, env.Error)
	partial := decode[models.MultiUploadResponse](t, env)
	assert.Len(t, partial.URLs, 1, "files before the failure stay stored")

	code, env = api.serve(multipartRequest(t, "/api/upload", token, "images",
		map[string][]byte{"1.png": png, "2.png": png, "3.png": png, "4.png": png},
		[]string{"1.png", "2.png", "3.png", "4.png"}))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, models.ErrTagTooManyFiles, env.Error)

	code, env = api.do(http.MethodDelete, "/api/upload/"+single.Filename, token, nil)
	assert.Equal(t, http.StatusOK, code, env.Error)
}
