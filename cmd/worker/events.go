package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/bete/backend/internal/logging"
	"github.com/bete/backend/internal/models"
	"github.com/bete/backend/internal/services"
)

const moderationTimeout = 60 * time.Second

// gcsFinalizeEvent is the part of a storage object finalize notification the
// worker reads.
type gcsFinalizeEvent struct {
	Bucket   string            `json:"bucket"`
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata"`
}

// Structured-mode CloudEvents nest the object under "data".
type cloudEventEnvelope struct {
	Data gcsFinalizeEvent `json:"data"`
}

type moderator interface {
	Bucket() string
	ModerateAndPromote(ctx context.Context, pendingPath string) (*services.ModerationResult, error)
}

type imageReferences interface {
	ReplaceImageURL(ctx context.Context, old, repl string) (int, error)
	RemoveImageURL(ctx context.Context, url string) (int, error)
}

type striker interface {
	AddStrike(ctx context.Context, userID string) (*models.UserFlag, error)
}

// finalizeHandler moderates objects written under pending/ and rewrites the
// listings that point at them.
type finalizeHandler struct {
	moderation moderator
	properties imageReferences
	strikes    striker
}

// pendingRef is how a listing refers to an image still awaiting moderation.
func pendingRef(bucket, name string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, name)
}

func decodeFinalizeEvent(body []byte) (gcsFinalizeEvent, error) {
	var ev gcsFinalizeEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, err
	}
	if ev.Bucket != "" && ev.Name != "" {
		return ev, nil
	}
	var envelope cloudEventEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Data.Bucket != "" && envelope.Data.Name != "" {
		return envelope.Data, nil
	}
	return ev, nil
}

func (h *finalizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	ev, err := decodeFinalizeEvent(body)
	if err != nil {
		logging.Warn().Err(err).Msg("undecodable finalize event")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	log := logging.With("moderation")
	log.Debug().
		Str("ce_type", r.Header.Get("Ce-Type")).
		Str("bucket", ev.Bucket).
		Str("name", ev.Name).
		Msg("finalize event received")

	// Anything not ours is acknowledged so the trigger does not retry it.
	if ev.Bucket == "" || ev.Name == "" || ev.Bucket != h.moderation.Bucket() || !strings.HasPrefix(ev.Name, services.PendingPrefix) {
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), moderationTimeout)
	defer cancel()

	ref := pendingRef(ev.Bucket, ev.Name)
	res, err := h.moderation.ModerateAndPromote(ctx, ev.Name)
	switch {
	case errors.Is(err, services.ErrImageRejected):
		n, err := h.properties.RemoveImageURL(ctx, ref)
		if err != nil {
			log.Error().Err(err).Str("name", ev.Name).Msg("clear rejected image references")
			http.Error(w, "update failed", http.StatusInternalServerError)
			return
		}
		log.Info().Str("name", ev.Name).Int("properties", n).Msg("image rejected")
		if uploader := ev.Metadata["userId"]; uploader != "" && h.strikes != nil {
			if flag, err := h.strikes.AddStrike(ctx, uploader); err != nil {
				log.Error().Err(err).Str("user_id", uploader).Msg("record strike")
			} else {
				log.Warn().Str("user_id", uploader).Int("strikes", flag.Strikes).Msg("strike recorded")
			}
		}
	case err != nil:
		// A 5xx makes the trigger redeliver.
		log.Error().Err(err).Str("name", ev.Name).Msg("moderation failed")
		http.Error(w, "moderation failed", http.StatusInternalServerError)
		return
	default:
		n, err := h.properties.ReplaceImageURL(ctx, ref, res.ApprovedURL)
		if err != nil {
			log.Error().Err(err).Str("name", ev.Name).Msg("point properties at approved image")
			http.Error(w, "update failed", http.StatusInternalServerError)
			return
		}
		log.Info().Str("name", ev.Name).Str("object", res.ObjectName).Int("properties", n).Msg("image approved")
	}
	w.WriteHeader(http.StatusOK)
}
