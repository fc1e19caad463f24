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
	"github.com/bete/backend/internal/rentcycle"
)

// ReminderService stores custom reminders of signed-in users.
type ReminderService struct {
	db    *gorm.DB
	cycle Cycle
}

func NewReminderService(db *gorm.DB, cycle Cycle) *ReminderService {
	return &ReminderService{db: db, cycle: cycle}
}

// List returns the user's reminders, soonest due first.
func (s *ReminderService) List(ctx context.Context, userID string) ([]models.ReminderView, error) {
	var rems []models.Reminder
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("due_date ASC").Find(&rems).Error; err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	out := make([]models.ReminderView, 0, len(rems))
	for i := range rems {
		out = append(out, s.view(&rems[i]))
	}
	return out, nil
}

func (s *ReminderService) Get(ctx context.Context, userID, id string) (*models.ReminderView, error) {
	rem, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	v := s.view(rem)
	return &v, nil
}

func (s *ReminderService) Create(ctx context.Context, userID string, req *models.CreateReminderRequest) (*models.ReminderView, error) {
	rem, err := s.build(userID, req)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(rem).Error; err != nil {
		return nil, fmt.Errorf("create reminder: %w", err)
	}
	v := s.view(rem)
	return &v, nil
}

// Import bulk-creates reminders kept on a device before sign-in. All or nothing.
func (s *ReminderService) Import(ctx context.Context, userID string, req *models.ImportRemindersRequest) ([]models.ReminderView, error) {
	now := s.cycle.now()
	rems := make([]*models.Reminder, 0, len(req.Reminders))
	for i := range req.Reminders {
		rem, err := s.build(userID, &req.Reminders[i])
		if err != nil {
			return nil, err
		}
		// Creation times from the future are clock skew; let the insert stamp them.
		if at := req.Reminders[i].CreatedAt; at != nil && !at.IsZero() && !at.After(now) {
			rem.CreatedAt = at.UTC()
		}
		rems = append(rems, rem)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rem := range rems {
			if err := tx.Create(rem).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("import reminders: %w", err)
	}

	out := make([]models.ReminderView, 0, len(rems))
	for _, rem := range rems {
		out = append(out, s.view(rem))
	}
	return out, nil
}

// Update edits counterparty and amount. The due date only moves through Pay.
func (s *ReminderService) Update(ctx context.Context, userID, id string, req *models.UpdateReminderRequest) (*models.ReminderView, error) {
	rem, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if req.Counterparty != nil {
		rem.Counterparty = strings.TrimSpace(*req.Counterparty)
		if rem.Counterparty == "" {
			rem.Counterparty = models.DefaultCounterparty(rem.Role)
		}
	}
	if req.Amount != nil {
		rem.Amount = *req.Amount
	}
	if err := s.db.WithContext(ctx).Save(rem).Error; err != nil {
		return nil, fmt.Errorf("update reminder: %w", err)
	}
	v := s.view(rem)
	return &v, nil
}

func (s *ReminderService) Delete(ctx context.Context, userID, id string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Reminder{})
	if res.Error != nil {
		return fmt.Errorf("delete reminder: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrReminderNotFound
	}
	return nil
}

// Pay moves the due date forward one cycle and clears the notification stamp.
func (s *ReminderService) Pay(ctx context.Context, userID, id string) (*models.ReminderView, error) {
	rem, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	rem.DueDate = s.cycle.next(rem.DueDate, 0)
	rem.LastNotifiedAt = nil
	err = s.db.WithContext(ctx).Model(&models.Reminder{}).Where("id = ?", rem.ID).Updates(map[string]interface{}{
		"due_date":         rem.DueDate,
		"last_notified_at": nil,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("pay reminder: %w", err)
	}
	v := s.view(rem)
	return &v, nil
}

// DueForNotification returns reminders of every user due within the
// due-soon window, or already past.
func (s *ReminderService) DueForNotification(ctx context.Context) ([]models.Reminder, error) {
	horizon := s.cycle.now().AddDate(0, 0, rentcycle.DueSoonDays+1).UTC()
	out := make([]models.Reminder, 0)
	if err := s.db.WithContext(ctx).Where("due_date < ?", horizon).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	return out, nil
}

func (s *ReminderService) MarkNotified(ctx context.Context, id string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.Reminder{}).Where("id = ?", id).Update("last_notified_at", at.UTC()).Error
	if err != nil {
		return fmt.Errorf("mark reminder notified: %w", err)
	}
	return nil
}

func (s *ReminderService) build(userID string, req *models.CreateReminderRequest) (*models.Reminder, error) {
	due, err := s.cycle.parseDue(req.DueDate)
	if err != nil {
		return nil, err
	}
	counterparty := strings.TrimSpace(req.Counterparty)
	if counterparty == "" {
		counterparty = models.DefaultCounterparty(req.Role)
	}
	return &models.Reminder{
		ID:           uuid.New().String(),
		UserID:       userID,
		Role:         req.Role,
		Counterparty: counterparty,
		Amount:       req.Amount,
		DueDate:      due,
	}, nil
}

func (s *ReminderService) view(rem *models.Reminder) models.ReminderView {
	return models.ReminderView{Reminder: *rem, Status: s.cycle.classify(rem.DueDate, 0)}
}

// load hides other users' reminders behind not-found.
func (s *ReminderService) load(ctx context.Context, userID, id string) (*models.Reminder, error) {
	var rem models.Reminder
	err := s.db.WithContext(ctx).First(&rem, "id = ? AND user_id = ?", id, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReminderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return &rem, nil
}
