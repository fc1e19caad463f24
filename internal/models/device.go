package models

import "time"

// Device is a push token registered by a signed-in client.
type Device struct {
	Token     string    `json:"token" gorm:"primaryKey;size:512"`
	UserID    string    `json:"userId" gorm:"size:36;index;not null"`
	Platform  string    `json:"platform" gorm:"size:16"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type RegisterDeviceRequest struct {
	Token    string `json:"token" validate:"required,max=512"`
	Platform string `json:"platform" validate:"omitempty,oneof=ios android web"`
}

func (r *RegisterDeviceRequest) Validate() map[string]string {
	return validationErrors(r)
}
