package services

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")

	ErrPropertyNotFound = errors.New("property not found")
	ErrForbidden        = errors.New("not allowed to modify this resource")

	ErrFavoriteNotFound     = errors.New("favorite not found")
	ErrAlreadyFavorited     = errors.New("property already favorited")
	ErrFavoriteBadInput     = errors.New("user id and property id are required")
	ErrFavoritePropertyGone = errors.New("favorited property no longer exists")

	ErrChatNotFound   = errors.New("chat not found")
	ErrNotParticipant = errors.New("user is not a participant of this chat")
	ErrChatWithSelf   = errors.New("cannot open a chat with yourself")

	ErrRentalNotFound = errors.New("rental not found")
	ErrRentalEnded    = errors.New("rental has ended")
	ErrRentalNoTenant = errors.New("rental has no tenant")
	ErrInviteNotFound = errors.New("invite not found")
	ErrInviteUsed     = errors.New("invite already used")
	ErrOwnInvite      = errors.New("owner cannot accept own invite")
	ErrInvalidDueDate = errors.New("invalid due date")

	ErrReminderNotFound = errors.New("reminder not found")
	ErrDeviceNotFound   = errors.New("device not found")

	ErrImageNotFound = errors.New("image not found")
	ErrInvalidImage  = errors.New("invalid image file")
	ErrImageRejected = errors.New("image rejected: violates community guidelines")

	ErrMailerNotConfigured = errors.New("mailer not configured")
)
