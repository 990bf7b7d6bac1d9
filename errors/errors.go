package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Categories. Every error surfaced by the chat core wraps exactly one of them.
var (
	ErrAuthentication = errors.New("authentication error")
	ErrValidation     = errors.New("validation error")
	ErrAuthorization  = errors.New("authorization error")
	ErrNotFound       = errors.New("not found")
	ErrStorage        = errors.New("storage error")
)

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrConnectionClosed  = fmt.Errorf("connection closed")
	ErrConnectionBlocked = fmt.Errorf("connection outbound buffer full")
	ErrTokenGeneration   = fmt.Errorf("token generation failed")
	ErrEmptyWords        = fmt.Errorf("no censored words found")
)

var (
	ErrTokenMissing       = fmt.Errorf("%w: no token provided", ErrAuthentication)
	ErrTokenMalformed     = fmt.Errorf("%w: malformed token", ErrAuthentication)
	ErrTokenExpired       = fmt.Errorf("%w: token expired", ErrAuthentication)
	ErrTokenInvalid       = fmt.Errorf("%w: invalid token", ErrAuthentication)
	ErrUnknownUser        = fmt.Errorf("%w: user not found", ErrAuthentication)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrAuthentication)
)

var (
	ErrInvalidPayload     = fmt.Errorf("%w: invalid message data", ErrValidation)
	ErrUnknownEvent       = fmt.Errorf("%w: unknown event", ErrValidation)
	ErrInvalidParticipant = fmt.Errorf("%w: invalid participant identifier", ErrValidation)
	ErrSelfMessage        = fmt.Errorf("%w: sender and receiver are the same participant", ErrValidation)
	ErrInvalidPassword    = fmt.Errorf("%w: password does not meet complexity requirements", ErrValidation)
	ErrUserAlreadyExists  = fmt.Errorf("%w: user already exists", ErrValidation)
	ErrRateLimited        = fmt.Errorf("%w: too many messages", ErrValidation)
)

var (
	ErrSenderMismatch     = fmt.Errorf("%w: sender ID mismatch", ErrAuthorization)
	ErrUserMismatch       = fmt.Errorf("%w: user ID mismatch", ErrAuthorization)
	ErrNotMessageReceiver = fmt.Errorf("%w: not the receiver of the message", ErrAuthorization)
	ErrNotParticipant     = fmt.Errorf("%w: not a participant of the conversation", ErrAuthorization)
)

var (
	ErrRecipientNotFound = fmt.Errorf("%w: recipient not found", ErrNotFound)
	ErrMessageNotFound   = fmt.Errorf("%w: message not found", ErrNotFound)
	ErrUserNotFound      = fmt.Errorf("%w: user not found", ErrNotFound)
)

// Is and As forward to the standard library so callers importing this package
// don't need a second, aliased errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func Join(errs ...error) error { return errors.Join(errs...) }

// Storage wraps a low level persistence failure into ErrStorage.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

// clientMessages holds the text pushed to the client in an "error" event.
// Order matters: the most specific sentinel is checked first.
var clientMessages = []struct {
	err     error
	message string
}{
	{ErrInvalidPayload, "Invalid message data"},
	{ErrInvalidParticipant, "Invalid message data"},
	{ErrUnknownEvent, "Unknown event"},
	{ErrSelfMessage, "Cannot send a message to yourself"},
	{ErrSenderMismatch, "Sender ID mismatch"},
	{ErrUserMismatch, "User ID mismatch"},
	{ErrNotMessageReceiver, "Unauthorized to mark message as read"},
	{ErrRecipientNotFound, "Recipient not found"},
	{ErrMessageNotFound, "Message not found"},
	{ErrRateLimited, "Too many messages, slow down"},
}

// ClientMessage returns the stable, user facing text for err.
// Storage and unexpected failures collapse into fallback so internals never leak.
func ClientMessage(err error, fallback string) string {
	for _, m := range clientMessages {
		if errors.Is(err, m.err) {
			return m.message
		}
	}
	return fallback
}

// AuthReason converts an authentication failure into the reason code sent
// back when a connection is refused.
func AuthReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenMissing):
		return "missing"
	case errors.Is(err, ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrUnknownUser):
		return "unknown_user"
	default:
		return "invalid"
	}
}

// HTTPStatus maps an error category to a status code for the HTTP surface.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
