package storage

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bete/backend/internal/models"
	"github.com/bete/backend/internal/rentcycle"
)

var ErrGuestReminderNotFound = errors.New("guest reminder not found")

// GuestReminder is a reminder kept on the device before the user signs in.
// NextDue keeps the raw string so a malformed value survives a round trip and
// is shown as unknown rather than rejected.
type GuestReminder struct {
	ID           string    `json:"id"`
	Role         string    `json:"role"`
	Counterparty string    `json:"counterparty"`
	Amount       float64   `json:"amount"`
	NextDue      string    `json:"nextDue"`
	CreatedAt    time.Time `json:"createdAt"`
}

// GuestReminderStore persists guest reminders in a single JSON file.
type GuestReminderStore struct {
	mu     sync.Mutex
	store  *JSONStore
	loc    *time.Location
	policy rentcycle.Policy
}

func NewGuestReminderStore(store *JSONStore, loc *time.Location, policy rentcycle.Policy) *GuestReminderStore {
	if policy == nil {
		policy = rentcycle.DefaultPolicy
	}
	return &GuestReminderStore{store: store, loc: loc, policy: policy}
}

func (s *GuestReminderStore) load() ([]GuestReminder, error) {
	var items []GuestReminder
	if err := s.store.Load(&items); err != nil {
		return nil, err
	}
	return items, nil
}

// List returns reminders ordered by due date, unreadable dates last.
func (s *GuestReminderStore) List() ([]GuestReminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, errA := rentcycle.ParseDue(items[i].NextDue, s.loc)
		b, errB := rentcycle.ParseDue(items[j].NextDue, s.loc)
		if errA != nil || errB != nil {
			return errA == nil
		}
		return a.Before(b)
	})
	return items, nil
}

func (s *GuestReminderStore) Add(req models.CreateReminderRequest) (*GuestReminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	due, err := rentcycle.ParseDue(req.DueDate, s.loc)
	if err != nil {
		return nil, err
	}
	counterparty := req.Counterparty
	if counterparty == "" {
		counterparty = models.DefaultCounterparty(req.Role)
	}

	items, err := s.load()
	if err != nil {
		return nil, err
	}
	rem := GuestReminder{
		ID:           uuid.New().String(),
		Role:         req.Role,
		Counterparty: counterparty,
		Amount:       req.Amount,
		NextDue:      rentcycle.FormatDue(due, s.loc),
		CreatedAt:    time.Now().UTC(),
	}
	items = append(items, rem)
	if err := s.store.Save(items); err != nil {
		return nil, err
	}
	return &rem, nil
}

// Pay advances the reminder by one cycle.
func (s *GuestReminderStore) Pay(id string) (*GuestReminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].ID != id {
			continue
		}
		due, err := rentcycle.ParseDue(items[i].NextDue, s.loc)
		if err != nil {
			return nil, err
		}
		items[i].NextDue = rentcycle.FormatDue(s.policy.Next(due), s.loc)
		if err := s.store.Save(items); err != nil {
			return nil, err
		}
		rem := items[i]
		return &rem, nil
	}
	return nil, ErrGuestReminderNotFound
}

func (s *GuestReminderStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return err
	}
	for i := range items {
		if items[i].ID == id {
			items = append(items[:i], items[i+1:]...)
			return s.store.Save(items)
		}
	}
	return ErrGuestReminderNotFound
}

// Clear drops every reminder, used after a successful sync.
func (s *GuestReminderStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Save([]GuestReminder{})
}

// ImportRequest converts the stored reminders into the server's bulk import payload.
func (s *GuestReminderStore) ImportRequest() (*models.ImportRemindersRequest, error) {
	items, err := s.List()
	if err != nil {
		return nil, err
	}
	req := &models.ImportRemindersRequest{Reminders: make([]models.CreateReminderRequest, 0, len(items))}
	for _, it := range items {
		r := models.CreateReminderRequest{
			Role:         it.Role,
			Counterparty: it.Counterparty,
			Amount:       it.Amount,
			DueDate:      it.NextDue,
		}
		if !it.CreatedAt.IsZero() {
			created := it.CreatedAt
			r.CreatedAt = &created
		}
		req.Reminders = append(req.Reminders, r)
	}
	return req, nil
}
