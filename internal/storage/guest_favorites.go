package storage

import (
	"errors"
	"strings"
	"sync"

	"github.com/bete/backend/internal/models"
)

// GuestFavoriteStore keeps the device's favorite property ids in a JSON file
// as an ordered set. A corrupt file reads as an empty set.
type GuestFavoriteStore struct {
	mu    sync.Mutex
	store *JSONStore
}

func NewGuestFavoriteStore(store *JSONStore) *GuestFavoriteStore {
	return &GuestFavoriteStore{store: store}
}

func (s *GuestFavoriteStore) load() (models.FavoriteSet, error) {
	set := models.FavoriteSet{}
	if err := s.store.Load(&set); err != nil {
		if errors.Is(err, ErrCorruptStore) {
			return models.FavoriteSet{}, nil
		}
		return nil, err
	}
	return set, nil
}

func (s *GuestFavoriteStore) List() (models.FavoriteSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Toggle flips membership of id and reports whether it is now a favorite.
func (s *GuestFavoriteStore) Toggle(id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, errors.New("property id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.load()
	if err != nil {
		return false, err
	}
	on := set.Toggle(id)
	if err := s.store.Save(set); err != nil {
		return false, err
	}
	return on, nil
}

// Clear empties the set, used after a successful sync.
func (s *GuestFavoriteStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Save(models.FavoriteSet{})
}
