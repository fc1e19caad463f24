package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bete/backend/internal/models"
)

// FavoriteService is implemented by the relational store and by Mongo.
type FavoriteService interface {
	// Toggle flips membership and reports whether the property is now a favorite.
	Toggle(ctx context.Context, userID, propertyID string) (bool, error)
	Add(ctx context.Context, userID, propertyID string) (*models.Favorite, error)
	Remove(ctx context.Context, userID, propertyID string) error
	ListIDs(ctx context.Context, userID string) (models.FavoriteSet, error)
	ListProperties(ctx context.Context, userID string) ([]models.Property, error)
	// DeleteForAccount drops the user's favorites and every favorite on propertyIDs.
	DeleteForAccount(ctx context.Context, userID string, propertyIDs []string) error
}

// PropertyLookup is the slice of PropertyService favorites depend on.
type PropertyLookup interface {
	GetByID(ctx context.Context, id string) (*models.Property, error)
}

type GormFavoriteService struct {
	db         *gorm.DB
	properties PropertyLookup
}

func NewGormFavoriteService(db *gorm.DB, properties PropertyLookup) *GormFavoriteService {
	return &GormFavoriteService{db: db, properties: properties}
}

func (s *GormFavoriteService) Toggle(ctx context.Context, userID, propertyID string) (bool, error) {
	if userID == "" || propertyID == "" {
		return false, ErrFavoriteBadInput
	}
	res := s.db.WithContext(ctx).Where("user_id = ? AND property_id = ?", userID, propertyID).Delete(&models.Favorite{})
	if res.Error != nil {
		return false, fmt.Errorf("remove favorite: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return false, nil
	}
	if _, err := s.Add(ctx, userID, propertyID); err != nil {
		if errors.Is(err, ErrAlreadyFavorited) {
			return true, nil
		}
		return false, err
	}
	return true, nil
}

func (s *GormFavoriteService) Add(ctx context.Context, userID, propertyID string) (*models.Favorite, error) {
	if userID == "" || propertyID == "" {
		return nil, ErrFavoriteBadInput
	}
	if _, err := s.properties.GetByID(ctx, propertyID); err != nil {
		if errors.Is(err, ErrPropertyNotFound) {
			return nil, ErrFavoritePropertyGone
		}
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Favorite{}).
		Where("user_id = ? AND property_id = ?", userID, propertyID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check favorite: %w", err)
	}
	if count > 0 {
		return nil, ErrAlreadyFavorited
	}

	fav := &models.Favorite{
		ID:         uuid.New().String(),
		UserID:     userID,
		PropertyID: propertyID,
	}
	if err := s.db.WithContext(ctx).Create(fav).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			return nil, ErrAlreadyFavorited
		}
		return nil, fmt.Errorf("create favorite: %w", err)
	}
	return fav, nil
}

func (s *GormFavoriteService) Remove(ctx context.Context, userID, propertyID string) error {
	if userID == "" || propertyID == "" {
		return ErrFavoriteBadInput
	}
	res := s.db.WithContext(ctx).Where("user_id = ? AND property_id = ?", userID, propertyID).Delete(&models.Favorite{})
	if res.Error != nil {
		return fmt.Errorf("remove favorite: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrFavoriteNotFound
	}
	return nil
}

func (s *GormFavoriteService) DeleteForAccount(ctx context.Context, userID string, propertyIDs []string) error {
	q := s.db.WithContext(ctx)
	if len(propertyIDs) > 0 {
		q = q.Where("user_id = ? OR property_id IN ?", userID, propertyIDs)
	} else {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.Delete(&models.Favorite{}).Error; err != nil {
		return fmt.Errorf("delete account favorites: %w", err)
	}
	return nil
}

// ListIDs returns favorited property ids in the order they were added.
func (s *GormFavoriteService) ListIDs(ctx context.Context, userID string) (models.FavoriteSet, error) {
	ids := make([]string, 0)
	err := s.db.WithContext(ctx).Model(&models.Favorite{}).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Pluck("property_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	return models.FavoriteSet(ids), nil
}

// ListProperties returns favorited properties, most recent first, skipping
// properties that were deleted since.
func (s *GormFavoriteService) ListProperties(ctx context.Context, userID string) ([]models.Property, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.Favorite{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Pluck("property_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	return resolveProperties(ctx, s.properties, ids)
}

func resolveProperties(ctx context.Context, lookup PropertyLookup, ids []string) ([]models.Property, error) {
	out := make([]models.Property, 0, len(ids))
	for _, id := range ids {
		p, err := lookup.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrPropertyNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}
