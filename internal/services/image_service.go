package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bete/backend/internal/logging"
	"github.com/bete/backend/internal/metrics"
	"github.com/bete/backend/internal/models"
)

// BlobStore keeps image bytes under a generated object name.
type BlobStore interface {
	// Put stores r and returns the public URL.
	Put(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	Remove(ctx context.Context, name string) error
	Backend() string
}

// allowedImageTypes maps sniffed content types to stored extensions.
var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

const sniffLen = 512

type ImageService struct {
	db    *gorm.DB
	blobs BlobStore
}

func NewImageService(db *gorm.DB, blobs BlobStore) *ImageService {
	return &ImageService{db: db, blobs: blobs}
}

// Upload sniffs the content type, stores the bytes and records the owner.
func (s *ImageService) Upload(ctx context.Context, userID, filename string, file io.Reader) (*models.ImageUploadResponse, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, io.EOF) {
			return nil, ErrInvalidImage
		}
		return nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	contentType := http.DetectContentType(head)
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		s.record("invalid")
		return nil, ErrInvalidImage
	}

	imageID := uuid.New().String()
	name := imageID + ext
	url, err := s.blobs.Put(ctx, name, contentType, io.MultiReader(bytes.NewReader(head), file))
	if errors.Is(err, ErrImageRejected) {
		s.record("rejected")
		logging.Warn().Str("user_id", userID).Str("filename", filename).Msg("image rejected by moderation")
		return nil, err
	}
	if err != nil {
		s.record("error")
		return nil, fmt.Errorf("store image: %w", err)
	}

	img := &models.Image{
		ID:      imageID,
		UserID:  userID,
		Backend: s.blobs.Backend(),
		Object:  name,
		URL:     url,
	}
	if err := s.db.WithContext(ctx).Create(img).Error; err != nil {
		_ = s.blobs.Remove(ctx, name)
		s.record("error")
		return nil, fmt.Errorf("record image: %w", err)
	}
	s.record("stored")

	return &models.ImageUploadResponse{
		ID:       imageID,
		ImageURL: url,
		Filename: name,
	}, nil
}

// Delete removes an image. Only the uploader may delete it. imageID may carry
// the stored extension.
func (s *ImageService) Delete(ctx context.Context, userID, imageID string) error {
	imageID = strings.TrimSuffix(imageID, filepath.Ext(imageID))

	var img models.Image
	err := s.db.WithContext(ctx).First(&img, "id = ?", imageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrImageNotFound
	}
	if err != nil {
		return fmt.Errorf("get image: %w", err)
	}
	if img.UserID != userID {
		return ErrForbidden
	}

	if err := s.blobs.Remove(ctx, img.Object); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if err := s.db.WithContext(ctx).Delete(&img).Error; err != nil {
		return fmt.Errorf("delete image record: %w", err)
	}
	return nil
}

func (s *ImageService) record(outcome string) {
	metrics.ImageUploads.WithLabelValues(s.blobs.Backend(), outcome).Inc()
}

// LocalBlobStore writes files to a directory served at PublicBase.
type LocalBlobStore struct {
	dir        string
	publicBase string
}

func NewLocalBlobStore(dir, publicBase string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if !strings.HasSuffix(publicBase, "/") {
		publicBase += "/"
	}
	return &LocalBlobStore{dir: dir, publicBase: publicBase}, nil
}

func (s *LocalBlobStore) Backend() string { return "local" }

func (s *LocalBlobStore) Dir() string { return s.dir }

func (s *LocalBlobStore) Put(_ context.Context, name, _ string, r io.Reader) (string, error) {
	filePath := filepath.Join(s.dir, filepath.Base(name))
	dst, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(dst, r); err != nil {
		dst.Close()
		os.Remove(filePath)
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(filePath)
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return s.publicBase + filepath.Base(name), nil
}

func (s *LocalBlobStore) Remove(_ context.Context, name string) error {
	err := os.Remove(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
