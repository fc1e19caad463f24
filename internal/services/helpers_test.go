package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bete/backend/internal/models"
	"github.com/bete/backend/internal/storage"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := storage.OpenDatabase(context.Background(), storage.DatabaseOptions{
		Driver: "sqlite",
		DSN:    "file:" + filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	require.NoError(t, storage.AutoMigrate(db))
	t.Cleanup(func() { _ = storage.Close(db) })
	return db
}

func fixedCycle(now time.Time) Cycle {
	return Cycle{
		Rollover:  "fixed",
		CycleDays: 30,
		Location:  time.UTC,
		Now:       func() time.Time { return now },
	}
}

func mustUser(t *testing.T, users *UserService, email string) *models.User {
	t.Helper()
	u, err := users.Register(context.Background(), &models.RegisterRequest{
		Email:    email,
		Password: "secret123",
		Name:     email,
	})
	require.NoError(t, err)
	return u
}

func mustProperty(t *testing.T, props *PropertyService, ownerID, title string) *models.Property {
	t.Helper()
	p, err := props.Create(context.Background(), ownerID, &models.CreatePropertyRequest{
		Title: title,
		Price: 12000,
		City:  "Addis Ababa",
	})
	require.NoError(t, err)
	return p
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []PropertyEvent
}

func (p *recordingPublisher) PublishProperty(_ context.Context, ev PropertyEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Action)
	}
	return out
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []Notification
	to    [][]string
	stale []string
	err   error
}

func (f *fakeNotifier) Send(_ context.Context, tokens []string, n Notification) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	f.to = append(f.to, append([]string(nil), tokens...))
	return f.stale, f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
