package models

import "time"

// Chat is a two-party conversation, optionally about a property. UserA is the
// participant that opened it.
type Chat struct {
	ID            string     `json:"id" gorm:"primaryKey;size:36"`
	UserAID       string     `json:"userAId" gorm:"column:user_a_id;size:36;index;not null"`
	UserBID       string     `json:"userBId" gorm:"column:user_b_id;size:36;index;not null"`
	PropertyID    *string    `json:"propertyId,omitempty" gorm:"size:36;index"`
	LastMessage   string     `json:"lastMessage,omitempty"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty" gorm:"index"`
	UserALastRead *time.Time `json:"-" gorm:"column:user_a_last_read"`
	UserBLastRead *time.Time `json:"-" gorm:"column:user_b_last_read"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// HasParticipant reports whether userID is one of the two sides.
func (c *Chat) HasParticipant(userID string) bool {
	return userID != "" && (c.UserAID == userID || c.UserBID == userID)
}

// OtherParticipant returns the id of the side that is not userID.
func (c *Chat) OtherParticipant(userID string) string {
	if c.UserAID == userID {
		return c.UserBID
	}
	return c.UserAID
}

// Unread is true when the last message is newer than userID's read marker.
func (c *Chat) Unread(userID string) bool {
	if c.LastMessageAt == nil {
		return false
	}
	read := c.UserALastRead
	if c.UserBID == userID {
		read = c.UserBLastRead
	}
	return read == nil || c.LastMessageAt.After(*read)
}

type Message struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	ChatID    string    `json:"chatId" gorm:"size:36;index:idx_messages_chat_created,priority:1;not null"`
	SenderID  string    `json:"senderId" gorm:"size:36;not null"`
	Content   string    `json:"content" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"index:idx_messages_chat_created,priority:2"`
}

// ChatSummary is a chat as listed for one participant.
type ChatSummary struct {
	Chat
	OtherUser *User `json:"otherUser,omitempty"`
	Unread    bool  `json:"unread"`
}

type CreateChatRequest struct {
	OtherUserID string  `json:"otherUserId" validate:"required"`
	PropertyID  *string `json:"propertyId"`
}

func (r *CreateChatRequest) Validate() map[string]string {
	return validationErrors(r)
}

type SendMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

func (r *SendMessageRequest) Validate() map[string]string {
	return validationErrors(r)
}
