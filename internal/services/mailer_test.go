package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendGridMailer_SendInviteEmail(t *testing.T) {
	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	m := NewSendGridMailer("sg-key", "noreply@bete.app")
	require.NotNil(t, m)
	m.Endpoint = srv.URL

	err := m.SendInviteEmail(context.Background(), InviteEmail{
		To:            "tenant@example.com",
		InviterName:   "Meron",
		PropertyTitle: "Bole apartment",
		Code:          "AB12CD34",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer sg-key", gotAuth)
	assert.Contains(t, gotBody, `"email":"tenant@example.com"`)
	assert.Contains(t, gotBody, "AB12CD34")
	assert.Contains(t, gotBody, "Bole apartment")
	assert.Contains(t, gotBody, `"type":"text/html"`)
}

func TestSendGridMailer_Errors(t *testing.T) {
	assert.Nil(t, NewSendGridMailer("  ", "noreply@bete.app"))

	var m *SendGridMailer
	assert.ErrorIs(t, m.SendInviteEmail(context.Background(), InviteEmail{To: "a@b.c"}), ErrMailerNotConfigured)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	m = NewSendGridMailer("bad", "noreply@bete.app")
	m.Endpoint = srv.URL
	err := m.SendInviteEmail(context.Background(), InviteEmail{To: "a@b.c", Code: "X"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestRecaptchaVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("response") == "good" && r.PostForm.Get("secret") == "s3cret" {
			_, _ = io.WriteString(w, `{"success":true,"hostname":"bete.app"}`)
			return
		}
		_, _ = io.WriteString(w, `{"success":false,"error-codes":["invalid-input-response"]}`)
	}))
	defer srv.Close()

	assert.False(t, NewRecaptchaVerifier("").Enabled())

	v := NewRecaptchaVerifier("s3cret")
	require.True(t, v.Enabled())
	v.Endpoint = srv.URL

	verdict, err := v.Verify(context.Background(), "good", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, verdict.OK)
	assert.Equal(t, "bete.app", verdict.Hostname)

	verdict, err = v.Verify(context.Background(), "bad", "")
	require.NoError(t, err)
	assert.False(t, verdict.OK)
	assert.True(t, strings.Contains(verdict.Reason, "invalid-input-response"))

	verdict, err = v.Verify(context.Background(), "  ", "")
	require.NoError(t, err)
	assert.False(t, verdict.OK)
	assert.Equal(t, "missing_token", verdict.Reason)

	var off *RecaptchaVerifier
	verdict, err = off.Verify(context.Background(), "good", "")
	require.NoError(t, err)
	assert.False(t, verdict.OK)
}

func TestCallWebAPI_ErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"errors":[{"message":"slow down"}]}`)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	err = callWebAPI(context.Background(), nil, "test", req, nil)

	var apiErr *WebAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "slow down")
}
