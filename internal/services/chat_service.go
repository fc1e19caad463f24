package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bete/backend/internal/models"
)

const (
	DefaultMessagePage = 50
	MaxMessagePage     = 200
)

// ChatService persists two-party chats and their append-only messages.
type ChatService interface {
	// Open finds the chat between the two users about the same property, or creates it.
	Open(ctx context.Context, userID string, req *models.CreateChatRequest) (*models.Chat, error)
	List(ctx context.Context, userID string) ([]models.ChatSummary, error)
	Get(ctx context.Context, userID, chatID string) (*models.Chat, error)
	// Messages returns up to limit messages older than before (nil for latest), oldest first.
	Messages(ctx context.Context, userID, chatID string, limit int, before *time.Time) ([]models.Message, error)
	Send(ctx context.Context, userID, chatID, content string) (*models.Message, error)
	MarkRead(ctx context.Context, userID, chatID string) error
}

type GormChatService struct {
	db *gorm.DB
}

func NewGormChatService(db *gorm.DB) *GormChatService {
	return &GormChatService{db: db}
}

func (s *GormChatService) Open(ctx context.Context, userID string, req *models.CreateChatRequest) (*models.Chat, error) {
	other := strings.TrimSpace(req.OtherUserID)
	if other == userID {
		return nil, ErrChatWithSelf
	}
	propertyID := normalizePropertyID(req.PropertyID)

	q := s.db.WithContext(ctx).
		Where("(user_a_id = ? AND user_b_id = ?) OR (user_a_id = ? AND user_b_id = ?)", userID, other, other, userID)
	if propertyID == nil {
		q = q.Where("property_id IS NULL")
	} else {
		q = q.Where("property_id = ?", *propertyID)
	}

	var existing models.Chat
	err := q.First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find chat: %w", err)
	}

	chat := &models.Chat{
		ID:         uuid.New().String(),
		UserAID:    userID,
		UserBID:    other,
		PropertyID: propertyID,
	}
	if err := s.db.WithContext(ctx).Create(chat).Error; err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return chat, nil
}

func (s *GormChatService) List(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	var chats []models.Chat
	err := s.db.WithContext(ctx).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Order("COALESCE(last_message_at, created_at) DESC").
		Find(&chats).Error
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return summarize(chats, userID), nil
}

func (s *GormChatService) Get(ctx context.Context, userID, chatID string) (*models.Chat, error) {
	var chat models.Chat
	err := s.db.WithContext(ctx).First(&chat, "id = ?", chatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	if !chat.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return &chat, nil
}

func (s *GormChatService) Messages(ctx context.Context, userID, chatID string, limit int, before *time.Time) ([]models.Message, error) {
	if _, err := s.Get(ctx, userID, chatID); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Where("chat_id = ?", chatID)
	if before != nil {
		q = q.Where("created_at < ?", *before)
	}
	var msgs []models.Message
	if err := q.Order("created_at DESC").Limit(clampPage(limit)).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	reverseMessages(msgs)
	return msgs, nil
}

func (s *GormChatService) Send(ctx context.Context, userID, chatID, content string) (*models.Message, error) {
	chat, err := s.Get(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	msg := &models.Message{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		SenderID:  userID,
		Content:   content,
		CreatedAt: now,
	}
	updates := map[string]interface{}{
		"last_message":    preview(content),
		"last_message_at": now,
	}
	updates[readColumn(chat, userID)] = now
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Chat{}).Where("id = ?", chatID).Updates(updates).Error
	})
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return msg, nil
}

func (s *GormChatService) MarkRead(ctx context.Context, userID, chatID string) error {
	chat, err := s.Get(ctx, userID, chatID)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Model(&models.Chat{}).Where("id = ?", chatID).
		Update(readColumn(chat, userID), time.Now().UTC()).Error
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func readColumn(chat *models.Chat, userID string) string {
	if chat.UserBID == userID {
		return "user_b_last_read"
	}
	return "user_a_last_read"
}

func summarize(chats []models.Chat, userID string) []models.ChatSummary {
	out := make([]models.ChatSummary, 0, len(chats))
	for i := range chats {
		out = append(out, models.ChatSummary{Chat: chats[i], Unread: chats[i].Unread(userID)})
	}
	return out
}

func normalizePropertyID(id *string) *string {
	if id == nil {
		return nil
	}
	v := strings.TrimSpace(*id)
	if v == "" {
		return nil
	}
	return &v
}

func clampPage(limit int) int {
	switch {
	case limit <= 0:
		return DefaultMessagePage
	case limit > MaxMessagePage:
		return MaxMessagePage
	}
	return limit
}

func reverseMessages(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

const previewLen = 120

func preview(content string) string {
	r := []rune(content)
	if len(r) <= previewLen {
		return content
	}
	return string(r[:previewLen])
}
