package services

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

const recaptchaEndpoint = "https://www.google.com/recaptcha/api/siteverify"

// CaptchaOutcome is the verdict on one signup token. Reason is empty when OK.
type CaptchaOutcome struct {
	OK       bool
	Reason   string
	Hostname string
}

// RecaptchaVerifier checks reCAPTCHA v2 checkbox tokens sent with signups.
type RecaptchaVerifier struct {
	// Endpoint is the siteverify URL, replaceable in tests.
	Endpoint string

	secret string
	client *http.Client
}

type siteVerifyResponse struct {
	Success    bool     `json:"success"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

// NewRecaptchaVerifier returns nil when no secret is configured, which turns
// the signup check off.
func NewRecaptchaVerifier(secret string) *RecaptchaVerifier {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	return &RecaptchaVerifier{
		Endpoint: recaptchaEndpoint,
		secret:   secret,
		client:   &http.Client{Timeout: webAPITimeout},
	}
}

func (v *RecaptchaVerifier) Enabled() bool {
	return v != nil
}

// Verify asks Google whether token is a solved challenge. A rejected token is
// not an error; err is set only when the verdict could not be obtained.
func (v *RecaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) (CaptchaOutcome, error) {
	if v == nil {
		return CaptchaOutcome{Reason: "verifier_not_configured"}, nil
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return CaptchaOutcome{Reason: "missing_token"}, nil
	}

	form := url.Values{"secret": {v.secret}, "response": {token}}
	if ip := strings.TrimSpace(remoteIP); ip != "" {
		form.Set("remoteip", ip)
	}
	req, err := http.NewRequest(http.MethodPost, v.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return CaptchaOutcome{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out siteVerifyResponse
	if err := callWebAPI(ctx, v.client, "recaptcha", req, &out); err != nil {
		return CaptchaOutcome{}, err
	}
	if out.Success {
		return CaptchaOutcome{OK: true, Hostname: out.Hostname}, nil
	}
	reason := "verification_failed"
	if len(out.ErrorCodes) > 0 {
		reason = strings.Join(out.ErrorCodes, ",")
	}
	return CaptchaOutcome{Reason: reason, Hostname: out.Hostname}, nil
}
