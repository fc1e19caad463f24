package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

const sendGridEndpoint = "https://api.sendgrid.com/v3/mail/send"

// InviteMailer sends rental invite codes.
type InviteMailer interface {
	SendInviteEmail(ctx context.Context, invite InviteEmail) error
}

type InviteEmail struct {
	To            string
	InviterName   string
	PropertyTitle string
	Code          string
}

// SendGridMailer delivers invite emails through the SendGrid v3 mail API.
type SendGridMailer struct {
	// Endpoint is the mail send URL, replaceable in tests.
	Endpoint string

	apiKey string
	from   string
	client *http.Client
}

// NewSendGridMailer returns nil when no API key is configured.
func NewSendGridMailer(apiKey, fromEmail string) *SendGridMailer {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil
	}
	return &SendGridMailer{
		Endpoint: sendGridEndpoint,
		apiKey:   apiKey,
		from:     strings.TrimSpace(fromEmail),
		client:   &http.Client{Timeout: webAPITimeout},
	}
}

type mailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mailRecipients struct {
	To         []mailAddress     `json:"to"`
	Subject    string            `json:"subject"`
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type mailMessage struct {
	Personalizations []mailRecipients `json:"personalizations"`
	From             mailAddress      `json:"from"`
	Content          []mailContent    `json:"content"`
}

// inviteMessage renders the invite as plain text and HTML.
func inviteMessage(from string, invite InviteEmail) mailMessage {
	inviter := strings.TrimSpace(invite.InviterName)
	if inviter == "" {
		inviter = "Your landlord"
	}
	place := strings.TrimSpace(invite.PropertyTitle)
	if place == "" {
		place = "a rental"
	}

	text := fmt.Sprintf("%s invited you to join %s on Bete.\n\n"+
		"Open the app, go to Rentals and enter this code:\n\n    %s\n\n"+
		"The code can be used once.\n", inviter, place, invite.Code)
	page := fmt.Sprintf("<p>%s invited you to join <strong>%s</strong> on Bete.</p>"+
		"<p>Open the app, go to Rentals and enter this code:</p>"+
		"<p style=\"font-size:24px;letter-spacing:4px\"><code>%s</code></p>"+
		"<p>The code can be used once.</p>",
		html.EscapeString(inviter), html.EscapeString(place), html.EscapeString(invite.Code))

	return mailMessage{
		Personalizations: []mailRecipients{{
			To:         []mailAddress{{Email: strings.TrimSpace(invite.To)}},
			Subject:    "Your rental invite code: " + invite.Code,
			CustomArgs: map[string]string{"invite_code": invite.Code},
		}},
		From: mailAddress{Email: from, Name: "Bete Rentals"},
		// SendGrid requires text/plain before text/html.
		Content: []mailContent{
			{Type: "text/plain", Value: text},
			{Type: "text/html", Value: page},
		},
	}
}

func (m *SendGridMailer) SendInviteEmail(ctx context.Context, invite InviteEmail) error {
	if m == nil {
		return ErrMailerNotConfigured
	}
	if m.from == "" {
		return errors.New("sendgrid: from address not configured")
	}
	if strings.TrimSpace(invite.To) == "" {
		return errors.New("sendgrid: missing invite recipient")
	}

	body, err := json.Marshal(inviteMessage(m.from, invite))
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, m.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	return callWebAPI(ctx, m.client, "sendgrid", req, nil)
}
