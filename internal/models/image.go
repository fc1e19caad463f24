package models

import "time"

// Image records an uploaded file so it can be deleted by its uploader later.
type Image struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	UserID    string    `json:"userId" gorm:"size:36;index;not null"`
	Backend   string    `json:"backend" gorm:"size:16"`
	Object    string    `json:"-" gorm:"size:512"`
	URL       string    `json:"imageUrl" gorm:"size:1024"`
	CreatedAt time.Time `json:"createdAt"`
}
