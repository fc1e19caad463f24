package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bete/backend/internal/models"
	"github.com/bete/backend/internal/services"
)

type PropertyHandler struct {
	propertyService *services.PropertyService
}

func NewPropertyHandler(propertyService *services.PropertyService) *PropertyHandler {
	return &PropertyHandler{propertyService: propertyService}
}

func (h *PropertyHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.PropertyFilter{
		City:    strings.TrimSpace(q.Get("city")),
		Type:    strings.TrimSpace(q.Get("type")),
		OwnerID: strings.TrimSpace(q.Get("ownerId")),
	}

	var ok bool
	if filter.MinPrice, ok = optionalFloat(q.Get("minPrice")); !ok {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(map[string]string{"minPrice": "minPrice must be a number"}))
		return
	}
	if filter.MaxPrice, ok = optionalFloat(q.Get("maxPrice")); !ok {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(map[string]string{"maxPrice": "maxPrice must be a number"}))
		return
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(map[string]string{"limit": "limit must be an integer"}))
			return
		}
		filter.Limit = limit
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	properties, err := h.propertyService.List(ctx, filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(properties))
}

// InBounds serves the map screen.
func (h *PropertyHandler) InBounds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var b models.Bounds
	errs := make(map[string]string)
	for name, dst := range map[string]*float64{
		"minLat": &b.MinLat,
		"maxLat": &b.MaxLat,
		"minLng": &b.MinLng,
		"maxLng": &b.MaxLng,
	} {
		v, err := strconv.ParseFloat(q.Get(name), 64)
		if err != nil {
			errs[name] = name + " must be a number"
			continue
		}
		*dst = v
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errs))
		return
	}
	if !validateRequest(w, &b) {
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	properties, err := h.propertyService.ListInBounds(ctx, b, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(properties))
}

func (h *PropertyHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	property, err := h.propertyService.GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(property))
}

func (h *PropertyHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.CreatePropertyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.MissingTitleOrPrice() {
		writeError(w, http.StatusBadRequest, models.ErrTagTitlePriceRequired)
		return
	}
	if !validateRequest(w, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	property, err := h.propertyService.Create(ctx, userID, &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(property))
}

func (h *PropertyHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req models.UpdatePropertyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	property, err := h.propertyService.Update(ctx, userID, chi.URLParam(r, "id"), &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(property))
}

func (h *PropertyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	if err := h.propertyService.Delete(ctx, userID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]string{"message": "Property deleted"}))
}

// optionalFloat parses an optional query value. Empty yields nil.
func optionalFloat(raw string) (*float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, false
	}
	return &v, true
}
