package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bete/backend/internal/logging"
	"github.com/bete/backend/internal/models"
	"github.com/bete/backend/internal/services"
)

type ImageHandler struct {
	imageService *services.ImageService
	maxSizeMB    int64
	maxFiles     int
}

func NewImageHandler(imageService *services.ImageService, maxSizeMB int64, maxFiles int) *ImageHandler {
	if maxFiles <= 0 {
		maxFiles = 10
	}
	return &ImageHandler{
		imageService: imageService,
		maxSizeMB:    maxSizeMB,
		maxFiles:     maxFiles,
	}
}

// UploadMany stores the files of the "images" field one after another. A
// failure stops the batch; files stored before it stay stored and their URLs
// are returned with the error.
func (h *ImageHandler) UploadMany(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if !h.parseForm(w, r, int64(h.maxFiles)) {
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, models.ErrTagNoFiles)
		return
	}
	if len(files) > h.maxFiles {
		writeError(w, http.StatusBadRequest, models.ErrTagTooManyFiles)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout*time.Duration(len(files)))
	defer cancel()

	urls := make([]string, 0, len(files))
	for _, fh := range files {
		res, err := h.storeOne(ctx, userID, fh)
		if err != nil {
			status, tag := uploadErrorStatus(err)
			logging.Warn().Err(err).Str("user_id", userID).Int("stored", len(urls)).Msg("batch upload stopped")
			writeJSON(w, status, models.APIResponse{
				Success: false,
				Error:   tag,
				Data:    models.MultiUploadResponse{URLs: urls},
			})
			return
		}
		urls = append(urls, res.ImageURL)
	}

	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(models.MultiUploadResponse{URLs: urls}))
}

func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if !h.parseForm(w, r, 1) {
		return
	}

	files := r.MultipartForm.File["image"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, models.ErrTagNoFiles)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	response, err := h.storeOne(ctx, userID, files[0])
	if err != nil {
		status, tag := uploadErrorStatus(err)
		if status == http.StatusInternalServerError {
			logging.Error().Err(err).Str("user_id", userID).Msg("image upload failed")
		}
		writeError(w, status, tag)
		return
	}

	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(response))
}

func (h *ImageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	if err := h.imageService.Delete(ctx, userID, chi.URLParam(r, "imageId")); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]string{"message": "Image deleted successfully"}))
}

func (h *ImageHandler) parseForm(w http.ResponseWriter, r *http.Request, files int64) bool {
	limit := h.maxSizeMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit*files+1024*1024)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, models.ErrTagBadRequest)
			return false
		}
		writeError(w, http.StatusBadRequest, models.ErrTagNoFiles)
		return false
	}
	return true
}

func (h *ImageHandler) storeOne(ctx context.Context, userID string, fh *multipart.FileHeader) (*models.ImageUploadResponse, error) {
	if fh.Size > h.maxSizeMB*1024*1024 {
		return nil, errFileTooLarge
	}
	file, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return h.imageService.Upload(ctx, userID, fh.Filename, file)
}

var errFileTooLarge = errors.New("file too large")

func uploadErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrInvalidImage):
		return http.StatusBadRequest, models.ErrTagInvalidImage
	case errors.Is(err, services.ErrImageRejected):
		return http.StatusUnprocessableEntity, models.ErrTagImageRejected
	case errors.Is(err, errFileTooLarge):
		return http.StatusRequestEntityTooLarge, models.ErrTagUploadFailed
	default:
		return http.StatusInternalServerError, models.ErrTagUploadFailed
	}
}
