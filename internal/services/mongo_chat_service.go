package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bete/backend/internal/models"
)

// MongoChatService stores chats and messages as documents. Used when a Mongo
// URI is configured; everything else stays relational.
type MongoChatService struct {
	chatsCol    *mongo.Collection
	messagesCol *mongo.Collection
}

type mongoChatDoc struct {
	ID            string     `bson:"_id"`
	UserAID       string     `bson:"user_a_id"`
	UserBID       string     `bson:"user_b_id"`
	PropertyID    *string    `bson:"property_id"`
	LastMessage   string     `bson:"last_message,omitempty"`
	LastMessageAt *time.Time `bson:"last_message_at,omitempty"`
	UserALastRead *time.Time `bson:"user_a_last_read,omitempty"`
	UserBLastRead *time.Time `bson:"user_b_last_read,omitempty"`
	SortAt        time.Time  `bson:"sort_at"`
	CreatedAt     time.Time  `bson:"created_at"`
}

type mongoMessageDoc struct {
	ID        string    `bson:"_id"`
	ChatID    string    `bson:"chat_id"`
	SenderID  string    `bson:"sender_id"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"created_at"`
}

func NewMongoChatService(ctx context.Context, db *mongo.Database) *MongoChatService {
	chats := db.Collection("chats")
	messages := db.Collection("messages")

	// Best-effort indexes.
	_, _ = chats.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_a_id", Value: 1}, {Key: "sort_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_b_id", Value: 1}, {Key: "sort_at", Value: -1}}},
	})
	_, _ = messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})

	return &MongoChatService{chatsCol: chats, messagesCol: messages}
}

func chatDocToModel(d mongoChatDoc) models.Chat {
	return models.Chat{
		ID:            d.ID,
		UserAID:       d.UserAID,
		UserBID:       d.UserBID,
		PropertyID:    d.PropertyID,
		LastMessage:   d.LastMessage,
		LastMessageAt: d.LastMessageAt,
		UserALastRead: d.UserALastRead,
		UserBLastRead: d.UserBLastRead,
		CreatedAt:     d.CreatedAt,
	}
}

func messageDocToModel(d mongoMessageDoc) models.Message {
	return models.Message{
		ID:        d.ID,
		ChatID:    d.ChatID,
		SenderID:  d.SenderID,
		Content:   d.Content,
		CreatedAt: d.CreatedAt,
	}
}

func (s *MongoChatService) Open(ctx context.Context, userID string, req *models.CreateChatRequest) (*models.Chat, error) {
	other := strings.TrimSpace(req.OtherUserID)
	if other == userID {
		return nil, ErrChatWithSelf
	}
	propertyID := normalizePropertyID(req.PropertyID)

	filter := bson.M{
		"$or": bson.A{
			bson.M{"user_a_id": userID, "user_b_id": other},
			bson.M{"user_a_id": other, "user_b_id": userID},
		},
		"property_id": propertyID,
	}
	var existing mongoChatDoc
	err := s.chatsCol.FindOne(ctx, filter).Decode(&existing)
	if err == nil {
		chat := chatDocToModel(existing)
		return &chat, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	now := time.Now().UTC()
	doc := mongoChatDoc{
		ID:         uuid.New().String(),
		UserAID:    userID,
		UserBID:    other,
		PropertyID: propertyID,
		SortAt:     now,
		CreatedAt:  now,
	}
	if _, err := s.chatsCol.InsertOne(ctx, doc); err != nil {
		return nil, err
	}
	chat := chatDocToModel(doc)
	return &chat, nil
}

func (s *MongoChatService) List(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	cur, err := s.chatsCol.Find(
		ctx,
		bson.M{"$or": bson.A{bson.M{"user_a_id": userID}, bson.M{"user_b_id": userID}}},
		options.Find().SetSort(bson.D{{Key: "sort_at", Value: -1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []mongoChatDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	chats := make([]models.Chat, 0, len(docs))
	for _, d := range docs {
		chats = append(chats, chatDocToModel(d))
	}
	return summarize(chats, userID), nil
}

func (s *MongoChatService) Get(ctx context.Context, userID, chatID string) (*models.Chat, error) {
	var doc mongoChatDoc
	err := s.chatsCol.FindOne(ctx, bson.M{"_id": chatID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	chat := chatDocToModel(doc)
	if !chat.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return &chat, nil
}

func (s *MongoChatService) Messages(ctx context.Context, userID, chatID string, limit int, before *time.Time) ([]models.Message, error) {
	if _, err := s.Get(ctx, userID, chatID); err != nil {
		return nil, err
	}
	filter := bson.M{"chat_id": chatID}
	if before != nil {
		filter["created_at"] = bson.M{"$lt": *before}
	}
	cur, err := s.messagesCol.Find(
		ctx,
		filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(clampPage(limit))),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []mongoMessageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]models.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, messageDocToModel(d))
	}
	reverseMessages(out)
	return out, nil
}

func (s *MongoChatService) Send(ctx context.Context, userID, chatID, content string) (*models.Message, error) {
	chat, err := s.Get(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := mongoMessageDoc{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		SenderID:  userID,
		Content:   content,
		CreatedAt: now,
	}
	if _, err := s.messagesCol.InsertOne(ctx, doc); err != nil {
		return nil, err
	}

	set := bson.M{
		"last_message":    preview(content),
		"last_message_at": now,
		"sort_at":         now,
	}
	set[readColumn(chat, userID)] = now
	if _, err := s.chatsCol.UpdateByID(ctx, chatID, bson.M{"$set": set}); err != nil {
		return nil, err
	}
	msg := messageDocToModel(doc)
	return &msg, nil
}

func (s *MongoChatService) MarkRead(ctx context.Context, userID, chatID string) error {
	chat, err := s.Get(ctx, userID, chatID)
	if err != nil {
		return err
	}
	_, err = s.chatsCol.UpdateByID(ctx, chatID, bson.M{"$set": bson.M{readColumn(chat, userID): time.Now().UTC()}})
	return err
}
