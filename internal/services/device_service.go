package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bete/backend/internal/models"
)

type DeviceService struct {
	db *gorm.DB
}

func NewDeviceService(db *gorm.DB) *DeviceService {
	return &DeviceService{db: db}
}

// Register upserts a push token. A token moves to the latest user that registers it.
func (s *DeviceService) Register(ctx context.Context, userID string, req *models.RegisterDeviceRequest) (*models.Device, error) {
	d := &models.Device{
		Token:     strings.TrimSpace(req.Token),
		UserID:    userID,
		Platform:  req.Platform,
		UpdatedAt: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "platform", "updated_at"}),
	}).Create(d).Error
	if err != nil {
		return nil, fmt.Errorf("register device: %w", err)
	}
	return d, nil
}

func (s *DeviceService) Delete(ctx context.Context, userID, token string) error {
	res := s.db.WithContext(ctx).Where("token = ? AND user_id = ?", token, userID).Delete(&models.Device{})
	if res.Error != nil {
		return fmt.Errorf("delete device: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (s *DeviceService) TokensFor(ctx context.Context, userID string) ([]string, error) {
	tokens := make([]string, 0)
	err := s.db.WithContext(ctx).Model(&models.Device{}).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Pluck("token", &tokens).Error
	if err != nil {
		return nil, fmt.Errorf("list device tokens: %w", err)
	}
	return tokens, nil
}

// Prune removes tokens the push provider no longer accepts.
func (s *DeviceService) Prune(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("token IN ?", tokens).Delete(&models.Device{}).Error; err != nil {
		return fmt.Errorf("prune devices: %w", err)
	}
	return nil
}
