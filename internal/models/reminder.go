package models

import (
	"time"

	"github.com/bete/backend/internal/rentcycle"
)

// Reminder is a standalone due-date record not tied to a rental. Its due date
// only moves when it is marked paid.
type Reminder struct {
	ID             string     `json:"id" gorm:"primaryKey;size:36"`
	UserID         string     `json:"userId" gorm:"size:36;index;not null"`
	Role           string     `json:"role" gorm:"size:16;not null"`
	Counterparty   string     `json:"counterparty" gorm:"size:120"`
	Amount         float64    `json:"amount"`
	DueDate        time.Time  `json:"dueDate" gorm:"index"`
	LastNotifiedAt *time.Time `json:"lastNotifiedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// DefaultCounterparty names the other side when the user left it blank.
func DefaultCounterparty(role string) string {
	if role == RoleOwner {
		return "Tenant"
	}
	return "Owner"
}

// ReminderView is a reminder with its classification attached.
type ReminderView struct {
	Reminder
	Status rentcycle.Status `json:"status"`
}

type CreateReminderRequest struct {
	Role         string  `json:"role" validate:"required,oneof=tenant owner"`
	Counterparty string  `json:"counterparty" validate:"max=120"`
	Amount       float64 `json:"amount" validate:"gte=0"`
	DueDate      string  `json:"dueDate" validate:"required,duedate"`
	// CreatedAt is honoured by import only, so guest reminders keep their age.
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

func (r *CreateReminderRequest) Validate() map[string]string {
	return validationErrors(r)
}

// UpdateReminderRequest edits the descriptive fields. The due date is changed
// only through pay.
type UpdateReminderRequest struct {
	Counterparty *string  `json:"counterparty" validate:"omitempty,max=120"`
	Amount       *float64 `json:"amount" validate:"omitempty,gte=0"`
}

func (r *UpdateReminderRequest) Validate() map[string]string {
	return validationErrors(r)
}

// ImportRemindersRequest carries guest reminders created before sign-in.
type ImportRemindersRequest struct {
	Reminders []CreateReminderRequest `json:"reminders" validate:"required,max=200,dive"`
}

func (r *ImportRemindersRequest) Validate() map[string]string {
	return validationErrors(r)
}

func isDueDate(s string) bool {
	_, err := rentcycle.ParseDue(s, time.UTC)
	return err == nil
}
