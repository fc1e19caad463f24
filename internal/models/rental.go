package models

import (
	"time"

	"github.com/bete/backend/internal/rentcycle"
)

const (
	ReminderStatusPending = "pending"
	ReminderStatusSent    = "sent"
	ReminderStatusPaid    = "paid"
)

// Rental links a property, its owner and (once an invite is accepted) a tenant.
type Rental struct {
	ID             string     `json:"id" gorm:"primaryKey;size:36"`
	PropertyID     string     `json:"propertyId" gorm:"size:36;index;not null"`
	OwnerID        string     `json:"ownerId" gorm:"size:36;index;not null"`
	TenantID       *string    `json:"tenantId,omitempty" gorm:"size:36;index"`
	RentAmount     float64    `json:"rentAmount"`
	CycleDays      int        `json:"cycleDays" gorm:"not null;default:30"`
	NextDueDate    time.Time  `json:"nextDueDate" gorm:"index"`
	IsActive       bool       `json:"isActive" gorm:"not null;default:true;index"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
	LastNotifiedAt *time.Time `json:"lastNotifiedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`

	Property *Property `json:"property,omitempty" gorm:"foreignKey:PropertyID"`
}

// IsParty reports whether userID is the owner or the tenant.
func (r *Rental) IsParty(userID string) bool {
	if userID == "" {
		return false
	}
	return r.OwnerID == userID || (r.TenantID != nil && *r.TenantID == userID)
}

// Counterparty returns the other side's id, or "" when there is no tenant yet.
func (r *Rental) Counterparty(userID string) string {
	if r.OwnerID == userID {
		if r.TenantID == nil {
			return ""
		}
		return *r.TenantID
	}
	return r.OwnerID
}

// RentalView is a rental with its due-date classification attached.
type RentalView struct {
	Rental
	Status rentcycle.Status `json:"status"`
}

type RentalReminder struct {
	ID             string     `json:"id" gorm:"primaryKey;size:36"`
	RentalID       string     `json:"rentalId" gorm:"size:36;index;not null"`
	DueDate        time.Time  `json:"dueDate"`
	Status         string     `json:"status" gorm:"size:16;not null;default:pending"`
	LastNotifiedAt *time.Time `json:"lastNotifiedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

type Payment struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	RentalID   string    `json:"rentalId" gorm:"size:36;index;not null"`
	PayerID    string    `json:"payerId" gorm:"size:36"`
	Amount     float64   `json:"amount"`
	PaidAt     time.Time `json:"paidAt" gorm:"index"`
	CoveredDue time.Time `json:"coveredDue"`
}

type RentalInvite struct {
	ID           string     `json:"id" gorm:"primaryKey;size:36"`
	RentalID     string     `json:"rentalId" gorm:"size:36;index;not null"`
	Code         string     `json:"code" gorm:"size:16;uniqueIndex;not null"`
	InviteeEmail string     `json:"inviteeEmail,omitempty" gorm:"size:255"`
	AcceptedBy   *string    `json:"acceptedBy,omitempty" gorm:"size:36"`
	AcceptedAt   *time.Time `json:"acceptedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Used reports whether the invite has been accepted.
func (i *RentalInvite) Used() bool {
	return i.AcceptedBy != nil
}

type CreateRentalRequest struct {
	PropertyID  string  `json:"propertyId" validate:"required"`
	RentAmount  float64 `json:"rentAmount" validate:"gte=0"`
	NextDueDate string  `json:"nextDueDate" validate:"required,duedate"`
	TenantID    *string `json:"tenantId"`
	CycleDays   int     `json:"cycleDays" validate:"omitempty,gt=0,lte=366"`
}

func (r *CreateRentalRequest) Validate() map[string]string {
	return validationErrors(r)
}

// PayRentalRequest records a payment. Amount defaults to the rent amount.
type PayRentalRequest struct {
	Amount *float64 `json:"amount" validate:"omitempty,gte=0"`
}

func (r *PayRentalRequest) Validate() map[string]string {
	return validationErrors(r)
}

type CreateRentalReminderRequest struct {
	DueDate string `json:"dueDate" validate:"required,duedate"`
	Status  string `json:"status" validate:"omitempty,oneof=pending sent paid"`
}

func (r *CreateRentalReminderRequest) Validate() map[string]string {
	return validationErrors(r)
}

type CreateInviteRequest struct {
	InviteeEmail string `json:"inviteeEmail" validate:"omitempty,email"`
}

func (r *CreateInviteRequest) Validate() map[string]string {
	r.InviteeEmail = NormalizeEmail(r.InviteeEmail)
	return validationErrors(r)
}

// RentalRole selects which side of the rental a listing is for.
const (
	RentalRoleRenter = "renter"
	RentalRoleOwner  = "owner"
)

// PayRentalResponse carries the recorded payment and the rolled rental.
type PayRentalResponse struct {
	Payment Payment    `json:"payment"`
	Rental  RentalView `json:"rental"`
}

// InviteResponse is a created invite and whether the code was emailed.
type InviteResponse struct {
	RentalInvite
	EmailSent bool `json:"emailSent"`
}
