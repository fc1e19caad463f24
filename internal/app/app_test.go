package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bete/backend/internal/config"
	"github.com/bete/backend/internal/services"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{
			Address:         ":0",
			RequestTimeout:  5 * time.Second,
			ShutdownTimeout: time.Second,
		},
		Auth: config.AuthConfig{
			JWTSecret:     "test-secret",
			JWTExpiration: time.Hour,
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			DSN:    filepath.Join(dir, "app.db"),
		},
		Uploads: config.UploadConfig{
			Backend:    "local",
			Dir:        filepath.Join(dir, "uploads"),
			PublicBase: "/uploads/",
			MaxSizeMB:  1,
			MaxFiles:   2,
		},
		Reminders: config.ReminderConfig{
			Rollover:      "fixed",
			CycleDays:     30,
			SweepInterval: time.Hour,
			Timezone:      "UTC",
		},
		Cache: config.CacheConfig{
			PropertyTTL: time.Minute,
			LocalSize:   10,
		},
		Events: config.EventsConfig{Queue: "properties_queue"},
	}
}

func TestNew_WiresRelationalDefaults(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	_, gormFavorites := a.Favorites.(*services.GormFavoriteService)
	_, gormChats := a.Chats.(*services.GormChatService)
	assert.True(t, gormFavorites)
	assert.True(t, gormChats)
	assert.Nil(t, a.Mongo)
	assert.Nil(t, a.Moderation)
	assert.Equal(t, "UTC", a.Cycle.Location.String())
	assert.NotNil(t, a.Sweeper)
	assert.NotNil(t, a.Hub)
}

func TestRouter_HealthAndAuth(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NoError(t, a.Migrate())

	srv := httptest.NewServer(a.Router())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/users/me")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNew_BadTimezone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Reminders.Timezone = "Mars/Olympus"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestClose_Idempotent(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}
