package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/bete/backend/internal/logging"
)

// PendingPrefix holds uploads that have not passed moderation yet.
const PendingPrefix = "pending/"

// ModerationResult holds the outcome of a successful moderation pass.
type ModerationResult struct {
	ObjectName  string
	ApprovedURL string
}

// SafeSearchFunc classifies the image at a gs:// URI.
type SafeSearchFunc func(ctx context.Context, gcsURI string) (*SafeSearchResult, error)

// ModerationService runs Vision SafeSearch on images in the bucket and
// promotes safe ones from pending/ to their final path.
type ModerationService struct {
	gcs    *storage.Client
	bucket string
	detect SafeSearchFunc
}

// NewModerationService reuses an existing storage client. detect defaults to DetectSafeSearch.
func NewModerationService(client *storage.Client, bucket string, detect SafeSearchFunc) *ModerationService {
	if detect == nil {
		detect = DetectSafeSearch
	}
	return &ModerationService{gcs: client, bucket: bucket, detect: detect}
}

func (m *ModerationService) Bucket() string {
	return m.bucket
}

// ModerateAndPromote runs SafeSearch on a pending/ path. If safe, promotes
// (copy to final path, delete pending, return download URL). If unsafe, deletes
// the pending object and returns ErrImageRejected.
func (m *ModerationService) ModerateAndPromote(ctx context.Context, pendingPath string) (*ModerationResult, error) {
	if !strings.HasPrefix(pendingPath, PendingPrefix) {
		return &ModerationResult{ObjectName: pendingPath, ApprovedURL: pendingPath}, nil
	}

	gcsURI := fmt.Sprintf("gs://%s/%s", m.bucket, pendingPath)
	ss, err := m.detect(ctx, gcsURI)
	if err != nil {
		return nil, fmt.Errorf("moderation: safesearch: %w", err)
	}

	logging.Debug().
		Str("path", pendingPath).
		Str("adult", ss.Adult).
		Str("violence", ss.Violence).
		Str("racy", ss.Racy).
		Strs("flagged", ss.Flagged()).
		Msg("safesearch result")

	if ss.IsUnsafe() {
		logging.Warn().Str("path", pendingPath).Strs("flagged", ss.Flagged()).Msg("image unsafe, deleting")
		if err := m.deleteObject(ctx, pendingPath); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			logging.Error().Err(err).Str("path", pendingPath).Msg("delete rejected image")
		}
		return nil, ErrImageRejected
	}

	finalName := strings.TrimPrefix(pendingPath, PendingPrefix)
	token := newToken()
	if err := m.promoteObject(ctx, pendingPath, finalName, token); err != nil {
		return nil, fmt.Errorf("moderation: promote: %w", err)
	}
	return &ModerationResult{
		ObjectName:  finalName,
		ApprovedURL: firebaseDownloadURL(m.bucket, finalName, token),
	}, nil
}

const promoteAttempts = 3

func (m *ModerationService) promoteObject(ctx context.Context, from, to, token string) error {
	b := m.gcs.Bucket(m.bucket)
	src := b.Object(from)
	dst := b.Object(to)

	// Freshly finalized objects can take a moment to become readable.
	var attrs *storage.ObjectAttrs
	var err error
	for attempt := 0; attempt < promoteAttempts; attempt++ {
		attrs, err = src.Attrs(ctx)
		if err == nil {
			break
		}
		if !errors.Is(err, storage.ErrObjectNotExist) || attempt == promoteAttempts-1 {
			return fmt.Errorf("source attrs: %w", err)
		}
		backoff := time.Duration(attempt+1) * 500 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	md := map[string]string{}
	for k, v := range attrs.Metadata {
		md[k] = v
	}
	md["moderation"] = "approved"
	md["firebaseStorageDownloadTokens"] = token

	if _, err := dst.CopierFrom(src).Run(ctx); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if _, err := dst.Update(ctx, storage.ObjectAttrsToUpdate{Metadata: md}); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	return src.Delete(ctx)
}

func (m *ModerationService) deleteObject(ctx context.Context, name string) error {
	return m.gcs.Bucket(m.bucket).Object(name).Delete(ctx)
}

// ObjectMetadata returns the custom metadata of an object.
func (m *ModerationService) ObjectMetadata(ctx context.Context, name string) (map[string]string, error) {
	attrs, err := m.gcs.Bucket(m.bucket).Object(name).Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("object attrs: %w", err)
	}
	return attrs.Metadata, nil
}

func newToken() string {
	return uuid.New().String()
}

func firebaseDownloadURL(bucket, objectName, token string) string {
	return fmt.Sprintf(
		"https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket,
		url.PathEscape(objectName),
		url.QueryEscape(token),
	)
}
