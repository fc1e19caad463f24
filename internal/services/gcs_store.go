package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
)

// GCSBlobStore writes images to a Cloud Storage bucket and serves them through
// Firebase download URLs. With moderation set, objects land under pending/ and
// are only promoted when SafeSearch passes.
type GCSBlobStore struct {
	client     *storage.Client
	bucket     string
	folder     string
	moderation *ModerationService
}

func NewGCSBlobStore(ctx context.Context, bucket, folder string, safeSearch bool) (*GCSBlobStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: storage client: %w", err)
	}
	s := &GCSBlobStore{client: client, bucket: bucket, folder: folder}
	if safeSearch {
		s.moderation = NewModerationService(client, bucket, nil)
	}
	return s, nil
}

func (s *GCSBlobStore) Backend() string { return "gcs" }

// Moderation is nil unless safe search is enabled.
func (s *GCSBlobStore) Moderation() *ModerationService { return s.moderation }

func (s *GCSBlobStore) objectName(name string) string {
	return path.Join(s.folder, path.Base(name))
}

func (s *GCSBlobStore) Put(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	object := s.objectName(name)
	if s.moderation == nil {
		token := newToken()
		md := map[string]string{"firebaseStorageDownloadTokens": token}
		if err := s.write(ctx, object, contentType, md, r); err != nil {
			return "", err
		}
		return firebaseDownloadURL(s.bucket, object, token), nil
	}

	pending := PendingPrefix + object
	if err := s.write(ctx, pending, contentType, map[string]string{"moderation": "pending"}, r); err != nil {
		return "", err
	}
	res, err := s.moderation.ModerateAndPromote(ctx, pending)
	if err != nil {
		return "", err
	}
	return res.ApprovedURL, nil
}

func (s *GCSBlobStore) write(ctx context.Context, object, contentType string, md map[string]string, r io.Reader) error {
	w := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = md
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs: finalize %s: %w", object, err)
	}
	return nil
}

func (s *GCSBlobStore) Remove(ctx context.Context, name string) error {
	err := s.client.Bucket(s.bucket).Object(s.objectName(name)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs: delete: %w", err)
	}
	return nil
}

func (s *GCSBlobStore) Close() error {
	return s.client.Close()
}
