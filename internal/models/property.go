package models

import (
	"time"

	"gorm.io/datatypes"
)

type Property struct {
	ID          string                      `json:"id" gorm:"primaryKey;size:36"`
	OwnerID     string                      `json:"ownerId" gorm:"size:36;index;not null"`
	Title       string                      `json:"title" gorm:"size:200;not null"`
	Description string                      `json:"description"`
	Price       float64                     `json:"price" gorm:"index"`
	Type        string                      `json:"type" gorm:"size:40;index"`
	City        string                      `json:"city" gorm:"size:120;index"`
	Address     string                      `json:"address"`
	Location    string                      `json:"location,omitempty"`
	Lat         *float64                    `json:"lat"`
	Lng         *float64                    `json:"lng"`
	ImageURL    string                      `json:"imageUrl,omitempty" gorm:"size:512"`
	Images      datatypes.JSONSlice[string] `json:"images"`
	CreatedAt   time.Time                   `json:"createdAt" gorm:"index"`
	UpdatedAt   time.Time                   `json:"updatedAt"`
}

// CreatePropertyRequest mirrors what the posting form sends. Price arrives as a
// number; lat/lng are optional.
type CreatePropertyRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description" validate:"max=5000"`
	Price       float64  `json:"price"`
	Type        string   `json:"type" validate:"max=40"`
	City        string   `json:"city" validate:"max=120"`
	Address     string   `json:"address"`
	Location    string   `json:"location"`
	Lat         *float64 `json:"lat" validate:"omitempty,latitude"`
	Lng         *float64 `json:"lng" validate:"omitempty,longitude"`
	ImageURL    string   `json:"imageUrl"`
	Images      []string `json:"images" validate:"max=20,dive,max=512"`
}

// MissingTitleOrPrice is checked before Validate; it has its own error tag.
func (r *CreatePropertyRequest) MissingTitleOrPrice() bool {
	return r.Title == "" || r.Price == 0
}

func (r *CreatePropertyRequest) Validate() map[string]string {
	errs := validationErrors(r)
	if r.Price < 0 {
		errs["price"] = "price cannot be negative"
	}
	return errs
}

// UpdatePropertyRequest is a partial update; nil fields are left alone.
type UpdatePropertyRequest struct {
	Title       *string   `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string   `json:"description" validate:"omitempty,max=5000"`
	Price       *float64  `json:"price" validate:"omitempty,gte=0"`
	Type        *string   `json:"type" validate:"omitempty,max=40"`
	City        *string   `json:"city" validate:"omitempty,max=120"`
	Address     *string   `json:"address"`
	Location    *string   `json:"location"`
	Lat         *float64  `json:"lat" validate:"omitempty,latitude"`
	Lng         *float64  `json:"lng" validate:"omitempty,longitude"`
	ImageURL    *string   `json:"imageUrl"`
	Images      *[]string `json:"images" validate:"omitempty,max=20"`
}

func (r *UpdatePropertyRequest) Validate() map[string]string {
	return validationErrors(r)
}

const (
	DefaultPropertyLimit = 50
	MaxPropertyLimit     = 100
)

// PropertyFilter narrows the public listing.
type PropertyFilter struct {
	City     string
	Type     string
	MinPrice *float64
	MaxPrice *float64
	OwnerID  string
	Limit    int
}

// ClampLimit applies the default and upper bound.
func (f *PropertyFilter) ClampLimit() int {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultPropertyLimit
	case f.Limit > MaxPropertyLimit:
		f.Limit = MaxPropertyLimit
	}
	return f.Limit
}

// Bounds is a lat/lng rectangle from the map screen.
type Bounds struct {
	MinLat float64 `validate:"latitude"`
	MaxLat float64 `validate:"latitude,gtefield=MinLat"`
	MinLng float64 `validate:"longitude"`
	MaxLng float64 `validate:"longitude,gtefield=MinLng"`
}

func (b *Bounds) Validate() map[string]string {
	return validationErrors(b)
}
