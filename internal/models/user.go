package models

import (
	"strings"
	"time"
)

const (
	RoleTenant = "tenant"
	RoleOwner  = "owner"
)

type User struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	Email        string    `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	Name         string    `json:"name" gorm:"size:120"`
	Role         string    `json:"role" gorm:"size:16;not null;default:tenant"`
	AvatarURL    string    `json:"avatarUrl,omitempty" gorm:"size:512"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserFlag counts images of a user that moderation rejected.
type UserFlag struct {
	UserID       string     `json:"userId" gorm:"primaryKey;size:36"`
	Strikes      int        `json:"strikes" gorm:"not null;default:0"`
	LastStrikeAt *time.Time `json:"lastStrikeAt,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"max=120"`
	Role     string `json:"role" validate:"omitempty,oneof=tenant owner"`

	// RecaptchaToken is checked only when the server has a reCAPTCHA secret.
	RecaptchaToken string `json:"recaptchaToken"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UpdateUserRequest is a partial update; nil fields are left alone.
type UpdateUserRequest struct {
	Name      *string `json:"name" validate:"omitempty,max=120"`
	AvatarURL *string `json:"avatarUrl" validate:"omitempty,max=512"`
	Role      *string `json:"role" validate:"omitempty,oneof=tenant owner"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// NormalizeEmail is the canonical form used for lookups and uniqueness.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *RegisterRequest) Validate() map[string]string {
	r.Email = NormalizeEmail(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	return validationErrors(r)
}

func (r *LoginRequest) Validate() map[string]string {
	r.Email = NormalizeEmail(r.Email)
	return validationErrors(r)
}

func (r *UpdateUserRequest) Validate() map[string]string {
	return validationErrors(r)
}
