package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bete/backend/internal/logging"
	"github.com/bete/backend/internal/metrics"
	"github.com/bete/backend/internal/models"
	"github.com/bete/backend/internal/rentcycle"
)

const (
	inviteCodeLen      = 8
	inviteCodeAttempts = 3
)

type RentalService struct {
	db         *gorm.DB
	properties PropertyLookup
	cycle      Cycle
	push       *Pusher
}

// NewRentalService wires the store. push may be nil, which disables Remind.
func NewRentalService(db *gorm.DB, properties PropertyLookup, cycle Cycle, push *Pusher) *RentalService {
	return &RentalService{db: db, properties: properties, cycle: cycle, push: push}
}

// Create opens a rental on a property. Only the property owner may do so.
func (s *RentalService) Create(ctx context.Context, ownerID string, req *models.CreateRentalRequest) (*models.RentalView, error) {
	p, err := s.properties.GetByID(ctx, strings.TrimSpace(req.PropertyID))
	if err != nil {
		return nil, err
	}
	if p.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	due, err := s.cycle.parseDue(req.NextDueDate)
	if err != nil {
		return nil, err
	}

	r := &models.Rental{
		ID:          uuid.New().String(),
		PropertyID:  p.ID,
		OwnerID:     ownerID,
		TenantID:    normalizePropertyID(req.TenantID),
		RentAmount:  req.RentAmount,
		CycleDays:   s.cycle.days(req.CycleDays),
		NextDueDate: due,
		IsActive:    true,
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, fmt.Errorf("create rental: %w", err)
	}
	r.Property = p
	return s.view(r), nil
}

// Mine lists the caller's rentals as tenant (renter) or owner, soonest due first.
func (s *RentalService) Mine(ctx context.Context, userID, role string) ([]models.RentalView, error) {
	q := s.db.WithContext(ctx).Preload("Property")
	if role == models.RentalRoleOwner {
		q = q.Where("owner_id = ?", userID)
	} else {
		q = q.Where("tenant_id = ?", userID)
	}

	var rentals []models.Rental
	if err := q.Order("is_active DESC, next_due_date ASC").Find(&rentals).Error; err != nil {
		return nil, fmt.Errorf("list rentals: %w", err)
	}
	out := make([]models.RentalView, 0, len(rentals))
	for i := range rentals {
		out = append(out, *s.view(&rentals[i]))
	}
	return out, nil
}

func (s *RentalService) Get(ctx context.Context, userID, id string) (*models.RentalView, error) {
	r, err := s.loadParty(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.view(r), nil
}

// End closes an active rental. Owner only.
func (s *RentalService) End(ctx context.Context, userID, id string) (*models.RentalView, error) {
	r, err := s.loadOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !r.IsActive {
		return nil, ErrRentalEnded
	}
	now := time.Now().UTC()
	err = s.db.WithContext(ctx).Model(r).Updates(map[string]interface{}{
		"is_active": false,
		"ended_at":  now,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("end rental: %w", err)
	}
	r.IsActive = false
	r.EndedAt = &now
	return s.view(r), nil
}

// Pay records a payment for the current due date and rolls it forward one
// cycle. Both writes happen in one transaction.
func (s *RentalService) Pay(ctx context.Context, userID, id string, req *models.PayRentalRequest) (*models.Payment, *models.RentalView, error) {
	r, err := s.loadParty(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	if !r.IsActive {
		return nil, nil, ErrRentalEnded
	}

	var payment *models.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur models.Rental
		if err := tx.First(&cur, "id = ?", id).Error; err != nil {
			return err
		}
		amount := cur.RentAmount
		if req != nil && req.Amount != nil {
			amount = *req.Amount
		}
		payment = &models.Payment{
			ID:         uuid.New().String(),
			RentalID:   cur.ID,
			PayerID:    userID,
			Amount:     amount,
			PaidAt:     time.Now().UTC(),
			CoveredDue: cur.NextDueDate,
		}
		if err := tx.Create(payment).Error; err != nil {
			return err
		}

		next := s.cycle.next(cur.NextDueDate, cur.CycleDays)
		err := tx.Model(&models.Rental{}).Where("id = ?", cur.ID).Updates(map[string]interface{}{
			"next_due_date":    next,
			"last_notified_at": nil,
		}).Error
		if err != nil {
			return err
		}
		r.NextDueDate = next
		r.LastNotifiedAt = nil

		return tx.Model(&models.RentalReminder{}).
			Where("rental_id = ? AND due_date <= ? AND status <> ?", cur.ID, cur.NextDueDate, models.ReminderStatusPaid).
			Update("status", models.ReminderStatusPaid).Error
	})
	if err != nil {
		return nil, nil, fmt.Errorf("pay rental: %w", err)
	}
	return payment, s.view(r), nil
}

func (s *RentalService) Payments(ctx context.Context, userID, id string) ([]models.Payment, error) {
	if _, err := s.loadParty(ctx, userID, id); err != nil {
		return nil, err
	}
	out := make([]models.Payment, 0)
	if err := s.db.WithContext(ctx).Where("rental_id = ?", id).Order("paid_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return out, nil
}

func (s *RentalService) AddReminder(ctx context.Context, userID, id string, req *models.CreateRentalReminderRequest) (*models.RentalReminder, error) {
	if _, err := s.loadParty(ctx, userID, id); err != nil {
		return nil, err
	}
	due, err := s.cycle.parseDue(req.DueDate)
	if err != nil {
		return nil, err
	}
	status := req.Status
	if status == "" {
		status = models.ReminderStatusPending
	}
	rem := &models.RentalReminder{
		ID:       uuid.New().String(),
		RentalID: id,
		DueDate:  due,
		Status:   status,
	}
	if err := s.db.WithContext(ctx).Create(rem).Error; err != nil {
		return nil, fmt.Errorf("create rental reminder: %w", err)
	}
	return rem, nil
}

func (s *RentalService) Reminders(ctx context.Context, userID, id string) ([]models.RentalReminder, error) {
	if _, err := s.loadParty(ctx, userID, id); err != nil {
		return nil, err
	}
	out := make([]models.RentalReminder, 0)
	if err := s.db.WithContext(ctx).Where("rental_id = ?", id).Order("due_date ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list rental reminders: %w", err)
	}
	return out, nil
}

// Remind pushes the current status to the other party right away and
// returns the number of devices reached.
func (s *RentalService) Remind(ctx context.Context, userID, id string) (int, error) {
	r, err := s.loadParty(ctx, userID, id)
	if err != nil {
		return 0, err
	}
	if !r.IsActive {
		return 0, ErrRentalEnded
	}
	target := r.Counterparty(userID)
	if target == "" {
		return 0, ErrRentalNoTenant
	}
	if s.push == nil {
		return 0, nil
	}

	st := s.cycle.classify(r.NextDueDate, r.CycleDays)
	sent, err := s.push.NotifyUser(ctx, target, RentalNotification(r, st))
	if err != nil {
		metrics.RemindersSent.WithLabelValues("manual", "error").Inc()
		return 0, err
	}
	metrics.RemindersSent.WithLabelValues("manual", "sent").Inc()
	return sent, nil
}

// CreateInvite issues a single-use code for a tenant to join the rental.
func (s *RentalService) CreateInvite(ctx context.Context, userID, id string, req *models.CreateInviteRequest) (*models.RentalInvite, error) {
	r, err := s.loadOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !r.IsActive {
		return nil, ErrRentalEnded
	}

	inv := &models.RentalInvite{
		ID:           uuid.New().String(),
		RentalID:     r.ID,
		InviteeEmail: req.InviteeEmail,
	}
	for attempt := 1; ; attempt++ {
		inv.Code = newInviteCode()
		err = s.db.WithContext(ctx).Create(inv).Error
		if err == nil {
			return inv, nil
		}
		if attempt >= inviteCodeAttempts || !(errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err)) {
			return nil, fmt.Errorf("create invite: %w", err)
		}
	}
}

func (s *RentalService) Invites(ctx context.Context, userID, id string) ([]models.RentalInvite, error) {
	if _, err := s.loadOwned(ctx, userID, id); err != nil {
		return nil, err
	}
	out := make([]models.RentalInvite, 0)
	if err := s.db.WithContext(ctx).Where("rental_id = ?", id).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	return out, nil
}

// AcceptInvite makes userID the tenant. A code can be accepted once.
func (s *RentalService) AcceptInvite(ctx context.Context, userID, code string) (*models.RentalView, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	var inv models.RentalInvite
	err := s.db.WithContext(ctx).First(&inv, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find invite: %w", err)
	}
	if inv.Used() {
		return nil, ErrInviteUsed
	}

	r, err := s.load(ctx, inv.RentalID)
	if err != nil {
		return nil, err
	}
	if r.OwnerID == userID {
		return nil, ErrOwnInvite
	}
	if !r.IsActive {
		return nil, ErrRentalEnded
	}

	now := time.Now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RentalInvite{}).
			Where("id = ? AND accepted_by IS NULL", inv.ID).
			Updates(map[string]interface{}{"accepted_by": userID, "accepted_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInviteUsed
		}
		return tx.Model(&models.Rental{}).Where("id = ?", r.ID).Update("tenant_id", userID).Error
	})
	if errors.Is(err, ErrInviteUsed) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("accept invite: %w", err)
	}

	r.TenantID = &userID
	logging.Info().Str("rental_id", r.ID).Str("tenant_id", userID).Msg("invite accepted")
	return s.view(r), nil
}

// DueForNotification returns active rentals with a tenant whose due date is
// within the due-soon window of now, or already past.
func (s *RentalService) DueForNotification(ctx context.Context) ([]models.Rental, error) {
	horizon := s.cycle.now().AddDate(0, 0, rentcycle.DueSoonDays+1).UTC()
	out := make([]models.Rental, 0)
	err := s.db.WithContext(ctx).Preload("Property").
		Where("is_active = ? AND tenant_id IS NOT NULL AND next_due_date < ?", true, horizon).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list due rentals: %w", err)
	}
	return out, nil
}

func (s *RentalService) MarkNotified(ctx context.Context, id string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.Rental{}).Where("id = ?", id).Update("last_notified_at", at.UTC()).Error
	if err != nil {
		return fmt.Errorf("mark rental notified: %w", err)
	}
	return nil
}

func (s *RentalService) view(r *models.Rental) *models.RentalView {
	st := rentcycle.Neutral()
	if r.IsActive {
		st = s.cycle.classify(r.NextDueDate, r.CycleDays)
	}
	return &models.RentalView{Rental: *r, Status: st}
}

func (s *RentalService) load(ctx context.Context, id string) (*models.Rental, error) {
	var r models.Rental
	err := s.db.WithContext(ctx).Preload("Property").First(&r, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRentalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rental: %w", err)
	}
	return &r, nil
}

func (s *RentalService) loadParty(ctx context.Context, userID, id string) (*models.Rental, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.IsParty(userID) {
		return nil, ErrForbidden
	}
	return r, nil
}

func (s *RentalService) loadOwned(ctx context.Context, userID, id string) (*models.Rental, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.OwnerID != userID {
		return nil, ErrForbidden
	}
	return r, nil
}

func newInviteCode() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return strings.ToUpper(raw[:inviteCodeLen])
}
