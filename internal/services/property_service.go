package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/bete/backend/internal/logging"
	"github.com/bete/backend/internal/models"
)

type PropertyService struct {
	db     *gorm.DB
	cache  *PropertyCache
	events EventPublisher
}

// NewPropertyService wires the store. cache may be nil; events defaults to a no-op.
func NewPropertyService(db *gorm.DB, cache *PropertyCache, events EventPublisher) *PropertyService {
	if events == nil {
		events = NoopPublisher{}
	}
	return &PropertyService{db: db, cache: cache, events: events}
}

// List returns properties newest first.
func (s *PropertyService) List(ctx context.Context, f models.PropertyFilter) ([]models.Property, error) {
	q := s.db.WithContext(ctx).Model(&models.Property{})
	if f.City != "" {
		q = q.Where("city = ?", f.City)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.MinPrice != nil {
		q = q.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}
	if f.OwnerID != "" {
		q = q.Where("owner_id = ?", f.OwnerID)
	}

	out := make([]models.Property, 0)
	if err := q.Order("created_at DESC").Limit(f.ClampLimit()).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	return out, nil
}

// ListInBounds returns properties with coordinates inside b.
func (s *PropertyService) ListInBounds(ctx context.Context, b models.Bounds, limit int) ([]models.Property, error) {
	f := models.PropertyFilter{Limit: limit}
	out := make([]models.Property, 0)
	err := s.db.WithContext(ctx).
		Where("lat IS NOT NULL AND lng IS NOT NULL").
		Where("lat BETWEEN ? AND ?", b.MinLat, b.MaxLat).
		Where("lng BETWEEN ? AND ?", b.MinLng, b.MaxLng).
		Order("created_at DESC").
		Limit(f.ClampLimit()).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list properties in bounds: %w", err)
	}
	return out, nil
}

func (s *PropertyService) GetByID(ctx context.Context, id string) (*models.Property, error) {
	if p, ok := s.cache.Get(id); ok {
		return p, nil
	}
	var p models.Property
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPropertyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get property: %w", err)
	}
	s.cache.Set(&p)
	return &p, nil
}

func (s *PropertyService) Create(ctx context.Context, ownerID string, req *models.CreatePropertyRequest) (*models.Property, error) {
	images := cleanImages(req.Images)
	p := &models.Property{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Price:       req.Price,
		Type:        req.Type,
		City:        strings.TrimSpace(req.City),
		Address:     req.Address,
		Location:    req.Location,
		Lat:         req.Lat,
		Lng:         req.Lng,
		ImageURL:    coverImage(req.ImageURL, images),
		Images:      datatypes.JSONSlice[string](images),
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, fmt.Errorf("create property: %w", err)
	}
	s.publish(ctx, PropertyCreated, p)
	return p, nil
}

// Update applies a partial update. Only the owner may modify a property.
func (s *PropertyService) Update(ctx context.Context, userID, id string, req *models.UpdatePropertyRequest) (*models.Property, error) {
	p, err := s.loadOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		p.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Price != nil {
		p.Price = *req.Price
	}
	if req.Type != nil {
		p.Type = *req.Type
	}
	if req.City != nil {
		p.City = strings.TrimSpace(*req.City)
	}
	if req.Address != nil {
		p.Address = *req.Address
	}
	if req.Location != nil {
		p.Location = *req.Location
	}
	if req.Lat != nil {
		p.Lat = req.Lat
	}
	if req.Lng != nil {
		p.Lng = req.Lng
	}
	if req.Images != nil {
		p.Images = datatypes.JSONSlice[string](cleanImages(*req.Images))
	}
	if req.ImageURL != nil {
		p.ImageURL = *req.ImageURL
	}
	p.ImageURL = coverImage(p.ImageURL, p.Images)

	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return nil, fmt.Errorf("update property: %w", err)
	}
	s.cache.Invalidate(id)
	s.publish(ctx, PropertyUpdated, p)
	return p, nil
}

func (s *PropertyService) Delete(ctx context.Context, userID, id string) error {
	p, err := s.loadOwned(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.Property{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete property: %w", err)
	}
	s.cache.Invalidate(id)
	s.publish(ctx, PropertyDeleted, p)
	return nil
}

// RemoveImageURL strips url from every property that references it and
// returns how many were changed. Used when moderation rejects an image after
// it was attached.
func (s *PropertyService) RemoveImageURL(ctx context.Context, url string) (int, error) {
	return s.ReplaceImageURL(ctx, url, "")
}

// ReplaceImageURL swaps old for repl in every property that references it.
// An empty repl removes the image.
func (s *PropertyService) ReplaceImageURL(ctx context.Context, old, repl string) (int, error) {
	var candidates []models.Property
	like := "%" + old + "%"
	if err := s.db.WithContext(ctx).Where("image_url = ? OR images LIKE ?", old, like).Find(&candidates).Error; err != nil {
		return 0, fmt.Errorf("find properties by image: %w", err)
	}

	changed := 0
	for i := range candidates {
		p := &candidates[i]
		hit := p.ImageURL == old
		images := make([]string, 0, len(p.Images))
		for _, img := range p.Images {
			if img != old {
				images = append(images, img)
				continue
			}
			hit = true
			if repl != "" {
				images = append(images, repl)
			}
		}
		if !hit {
			continue
		}
		p.Images = datatypes.JSONSlice[string](images)
		if p.ImageURL == old {
			p.ImageURL = repl
		}
		p.ImageURL = coverImage(p.ImageURL, p.Images)
		if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
			return changed, fmt.Errorf("update property %s: %w", p.ID, err)
		}
		s.cache.Invalidate(p.ID)
		s.publish(ctx, PropertyUpdated, p)
		changed++
	}
	return changed, nil
}

func (s *PropertyService) loadOwned(ctx context.Context, userID, id string) (*models.Property, error) {
	var p models.Property
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPropertyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get property: %w", err)
	}
	if p.OwnerID != userID {
		return nil, ErrForbidden
	}
	return &p, nil
}

func (s *PropertyService) publish(ctx context.Context, action string, p *models.Property) {
	ev := PropertyEvent{Action: action, PropertyID: p.ID, OwnerID: p.OwnerID, OccurredAt: time.Now().UTC()}
	if err := s.events.PublishProperty(ctx, ev); err != nil {
		logging.Warn().Err(err).Str("property_id", p.ID).Str("action", action).Msg("property event not published")
	}
}

func cleanImages(in []string) []string {
	out := make([]string, 0, len(in))
	for _, u := range in {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// coverImage keeps an explicit cover, otherwise falls back to the first image.
func coverImage(explicit string, images []string) string {
	if explicit != "" {
		return explicit
	}
	if len(images) > 0 {
		return images[0]
	}
	return ""
}
