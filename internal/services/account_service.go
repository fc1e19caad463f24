package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/bete/backend/internal/logging"
	"github.com/bete/backend/internal/models"
)

// DeleteAccountResult lists what went away with the account.
type DeleteAccountResult struct {
	PropertyIDs   []string `json:"propertyIds"`
	RentalIDs     []string `json:"rentalIds"`
	ImagesRemoved int      `json:"imagesRemoved"`
	// ImageURLs are listing images not tracked as uploads, left for the client to clean up.
	ImageURLs []string `json:"imageUrls"`
}

// AccountService removes a user and everything they own.
type AccountService struct {
	db        *gorm.DB
	favorites accountFavorites
	images    *ImageService
	cache     *PropertyCache
}

type accountFavorites interface {
	DeleteForAccount(ctx context.Context, userID string, propertyIDs []string) error
}

// NewAccountService builds the service. favorites, images and cache may be
// nil. favorites is the store the favorite handlers use, which may live
// outside db.
func NewAccountService(db *gorm.DB, favorites FavoriteService, images *ImageService, cache *PropertyCache) *AccountService {
	s := &AccountService{db: db, images: images, cache: cache}
	if favorites != nil {
		s.favorites = favorites
	}
	return s
}

// DeleteAccount deletes the user's listings (with favorites pointing at
// them), rentals they own (with payments, reminders and invites), devices,
// reminders, favorites and flags, then the user. Rentals where the user is
// the tenant are detached rather than deleted. Uploaded files are removed
// after the rows are gone.
func (s *AccountService) DeleteAccount(ctx context.Context, userID string) (*DeleteAccountResult, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	res := &DeleteAccountResult{PropertyIDs: []string{}, RentalIDs: []string{}, ImageURLs: []string{}}

	var props []models.Property
	if err := s.db.WithContext(ctx).Where("owner_id = ?", userID).Find(&props).Error; err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	var uploads []models.Image
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&uploads).Error; err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	tracked := make(map[string]struct{}, len(uploads))
	for _, img := range uploads {
		tracked[img.URL] = struct{}{}
	}

	seen := map[string]struct{}{}
	addURL := func(u string) {
		if u == "" {
			return
		}
		if _, ok := tracked[u]; ok {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		res.ImageURLs = append(res.ImageURLs, u)
	}
	addURL(user.AvatarURL)
	for _, p := range props {
		res.PropertyIDs = append(res.PropertyIDs, p.ID)
		addURL(p.ImageURL)
		for _, u := range p.Images {
			addURL(u)
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Rental{}).Where("owner_id = ?", userID).Pluck("id", &res.RentalIDs).Error; err != nil {
			return err
		}
		if len(res.RentalIDs) > 0 {
			for _, m := range []interface{}{&models.Payment{}, &models.RentalReminder{}, &models.RentalInvite{}} {
				if err := tx.Where("rental_id IN ?", res.RentalIDs).Delete(m).Error; err != nil {
					return err
				}
			}
			if err := tx.Where("id IN ?", res.RentalIDs).Delete(&models.Rental{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&models.Rental{}).Where("tenant_id = ?", userID).Update("tenant_id", nil).Error; err != nil {
			return err
		}

		var favorites *gorm.DB
		if len(res.PropertyIDs) > 0 {
			favorites = tx.Where("user_id = ? OR property_id IN ?", userID, res.PropertyIDs)
		} else {
			favorites = tx.Where("user_id = ?", userID)
		}
		if err := favorites.Delete(&models.Favorite{}).Error; err != nil {
			return err
		}
		for _, m := range []interface{}{&models.Device{}, &models.Reminder{}, &models.UserFlag{}} {
			if err := tx.Where("user_id = ?", userID).Delete(m).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("owner_id = ?", userID).Delete(&models.Property{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, "id = ?", userID).Error
	})
	if err != nil {
		return nil, fmt.Errorf("delete account: %w", err)
	}

	if s.favorites != nil {
		if err := s.favorites.DeleteForAccount(ctx, userID, res.PropertyIDs); err != nil {
			logging.Warn().Err(err).Str("user_id", userID).Msg("remove favorites of deleted account")
		}
	}

	if s.cache != nil {
		for _, id := range res.PropertyIDs {
			s.cache.Invalidate(id)
		}
	}

	if s.images != nil {
		for _, img := range uploads {
			if err := s.images.Delete(ctx, userID, img.ID); err != nil {
				logging.Warn().Err(err).Str("image_id", img.ID).Msg("remove upload of deleted account")
				continue
			}
			res.ImagesRemoved++
		}
	}

	logging.Info().
		Str("user_id", userID).
		Int("properties", len(res.PropertyIDs)).
		Int("rentals", len(res.RentalIDs)).
		Msg("account deleted")
	return res, nil
}
