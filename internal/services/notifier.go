package services

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/bete/backend/internal/logging"
	"github.com/bete/backend/internal/models"
	"github.com/bete/backend/internal/rentcycle"
)

type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Notifier delivers a push message to device tokens.
type Notifier interface {
	// Send returns the tokens the provider reported as unregistered.
	Send(ctx context.Context, tokens []string, n Notification) (stale []string, err error)
}

// LogNotifier only logs. Used when no push credentials are configured.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, tokens []string, n Notification) ([]string, error) {
	logging.Info().
		Int("tokens", len(tokens)).
		Str("title", n.Title).
		Str("body", n.Body).
		Msg("push notification (log only)")
	return nil, nil
}

// fcmBatch is the multicast limit of the FCM API.
const fcmBatch = 500

type FCMNotifier struct {
	client *messaging.Client
}

type FCMConfig struct {
	ProjectID       string
	CredentialsJSON string
	CredentialsFile string
}

func NewFCMNotifier(ctx context.Context, cfg FCMConfig) (*FCMNotifier, error) {
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	var conf *firebase.Config
	if cfg.ProjectID != "" {
		conf = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging: %w", err)
	}
	return &FCMNotifier{client: client}, nil
}

func (n *FCMNotifier) Send(ctx context.Context, tokens []string, note Notification) ([]string, error) {
	var stale []string
	for start := 0; start < len(tokens); start += fcmBatch {
		end := min(start+fcmBatch, len(tokens))
		batch := tokens[start:end]

		resp, err := n.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens: batch,
			Notification: &messaging.Notification{
				Title: note.Title,
				Body:  note.Body,
			},
			Data: note.Data,
		})
		if err != nil {
			return stale, fmt.Errorf("fcm send: %w", err)
		}
		for i, r := range resp.Responses {
			if !r.Success && messaging.IsUnregistered(r.Error) {
				stale = append(stale, batch[i])
			}
		}
	}
	return stale, nil
}

// Pusher fans a notification out to every device of a user.
type Pusher struct {
	devices  *DeviceService
	notifier Notifier
}

func NewPusher(devices *DeviceService, notifier Notifier) *Pusher {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Pusher{devices: devices, notifier: notifier}
}

// NotifyUser returns how many devices accepted the message.
func (p *Pusher) NotifyUser(ctx context.Context, userID string, n Notification) (int, error) {
	tokens, err := p.devices.TokensFor(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(tokens) == 0 {
		return 0, nil
	}

	stale, sendErr := p.notifier.Send(ctx, tokens, n)
	if len(stale) > 0 {
		if err := p.devices.Prune(ctx, stale); err != nil {
			logging.Warn().Err(err).Str("user_id", userID).Msg("prune stale tokens")
		} else {
			logging.Info().Int("count", len(stale)).Str("user_id", userID).Msg("pruned stale push tokens")
		}
	}
	if sendErr != nil {
		return 0, sendErr
	}
	return len(tokens) - len(stale), nil
}

func RentalNotification(r *models.Rental, st rentcycle.Status) Notification {
	subject := "Your rent"
	if r.Property != nil && strings.TrimSpace(r.Property.Title) != "" {
		subject = "Rent for " + r.Property.Title
	}
	return Notification{
		Title: "Rent reminder",
		Body:  subject + ": " + st.Label,
		Data: map[string]string{
			"type":     "rental",
			"rentalId": r.ID,
			"band":     string(st.Band),
		},
	}
}

func ReminderNotification(rem *models.Reminder, st rentcycle.Status) Notification {
	subject := "Rent to " + rem.Counterparty
	if rem.Role == models.RoleOwner {
		subject = "Rent from " + rem.Counterparty
	}
	return Notification{
		Title: "Rent reminder",
		Body:  subject + ": " + st.Label,
		Data: map[string]string{
			"type":       "reminder",
			"reminderId": rem.ID,
			"band":       string(st.Band),
		},
	}
}
