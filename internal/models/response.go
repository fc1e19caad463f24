package models

// APIResponse is a generic API response wrapper
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

// Error tags returned in APIResponse.Error. Clients switch on these.
const (
	ErrTagBadRequest          = "bad_request"
	ErrTagValidation          = "validation_failed"
	ErrTagNotFound            = "not_found"
	ErrTagForbidden           = "forbidden"
	ErrTagInternal            = "internal_error"
	ErrTagMissingAuth         = "missing_authorization"
	ErrTagInvalidAuth         = "invalid_authorization"
	ErrTagInvalidToken        = "invalid_token"
	ErrTagInvalidCredentials  = "invalid_credentials"
	ErrTagUserExists          = "user_exists"
	ErrTagTitlePriceRequired  = "title_and_price_required"
	ErrTagAlreadyFavorited    = "already_favorited"
	ErrTagFavoriteNotFound    = "favorite_not_found"
	ErrTagInviteUsed          = "invite_used"
	ErrTagOwnInvite           = "own_invite"
	ErrTagRentalEnded         = "rental_ended"
	ErrTagNoTenant            = "no_tenant"
	ErrTagNotParticipant      = "not_participant"
	ErrTagNoFiles             = "no_files"
	ErrTagTooManyFiles        = "too_many_files"
	ErrTagInvalidImage        = "invalid_image_type"
	ErrTagImageRejected       = "image_rejected"
	ErrTagUploadFailed        = "upload_failed"
	ErrTagRateLimited         = "rate_limited"
	ErrTagMailerNotConfigured = "mailer_not_configured"
	ErrTagCaptchaFailed       = "captcha_failed"
	ErrTagInvalidDueDate      = "invalid_due_date"
	ErrTagChatWithSelf        = "chat_with_self"
)

// NewSuccessResponse creates a success response
func NewSuccessResponse(data interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response carrying a tag
func NewErrorResponse(tag string) APIResponse {
	return APIResponse{
		Success: false,
		Error:   tag,
	}
}

// NewValidationErrorResponse creates a validation error response
func NewValidationErrorResponse(errors map[string]string) APIResponse {
	return APIResponse{
		Success: false,
		Error:   ErrTagValidation,
		Errors:  errors,
	}
}

// ImageUploadResponse is returned for a single stored image.
type ImageUploadResponse struct {
	ID       string `json:"id"`
	ImageURL string `json:"imageUrl"`
	Filename string `json:"filename"`
}

// MultiUploadResponse is returned by the batch upload endpoint.
type MultiUploadResponse struct {
	URLs []string `json:"urls"`
}
