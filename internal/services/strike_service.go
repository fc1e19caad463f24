package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bete/backend/internal/models"
)

// StrikeService records moderation strikes against uploaders.
type StrikeService struct {
	db *gorm.DB
}

func NewStrikeService(db *gorm.DB) *StrikeService {
	return &StrikeService{db: db}
}

// AddStrike increments the user's strike counter and returns the updated record.
func (s *StrikeService) AddStrike(ctx context.Context, userID string) (*models.UserFlag, error) {
	now := time.Now().UTC()
	flag := models.UserFlag{UserID: userID, Strikes: 1, LastStrikeAt: &now, UpdatedAt: now}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"strikes":        gorm.Expr("user_flags.strikes + 1"),
			"last_strike_at": now,
			"updated_at":     now,
		}),
	}).Create(&flag).Error
	if err != nil {
		return nil, fmt.Errorf("add strike: %w", err)
	}
	return s.Get(ctx, userID)
}

// Get returns the user's flag record. A user without strikes gets a zero record.
func (s *StrikeService) Get(ctx context.Context, userID string) (*models.UserFlag, error) {
	var flag models.UserFlag
	err := s.db.WithContext(ctx).First(&flag, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.UserFlag{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user flag: %w", err)
	}
	return &flag, nil
}
