package models

import (
	"time"
)

type Favorite struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	UserID     string    `json:"userId" gorm:"size:36;uniqueIndex:idx_favorites_user_property,priority:1;not null"`
	PropertyID string    `json:"propertyId" gorm:"size:36;uniqueIndex:idx_favorites_user_property,priority:2;not null"`
	CreatedAt  time.Time `json:"createdAt" gorm:"index"`
}

// FavoriteSet is an ordered membership list of property ids.
type FavoriteSet []string

// Contains reports membership.
func (s FavoriteSet) Contains(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Toggle removes id when present and appends it when absent. It reports
// whether id is a member afterwards.
func (s *FavoriteSet) Toggle(id string) bool {
	for i, v := range *s {
		if v == id {
			*s = append((*s)[:i:i], (*s)[i+1:]...)
			return false
		}
	}
	*s = append(*s, id)
	return true
}

// ToggleResponse is returned by the toggle endpoint.
type ToggleResponse struct {
	PropertyID string `json:"propertyId"`
	Favorited  bool   `json:"favorited"`
}
