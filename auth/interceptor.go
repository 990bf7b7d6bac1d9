package auth

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/errors"

	"github.com/gofiber/fiber/v2"
)

const (
	// ParticipantKey must stay a string: websocket.Conn only copies string
	// keyed request locals.
	ParticipantKey = "participant"
	// TokenQueryParam carries the credential for clients that cannot set headers
	// on a WebSocket upgrade.
	TokenQueryParam = "token"
)

// Credential returns the raw credential of the request: the Authorization
// header first, then the token query parameter.
func Credential(c *fiber.Ctx) string {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		return header
	}
	return c.Query(TokenQueryParam)
}

// Middleware verifies the request credential and stores the resulting
// participant in the request locals. onFailure is called with the
// authentication error before the 401 is sent.
func Middleware(verifier contract.TokenVerifier, onFailure func(err error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		pid, err := verifier.Verify(Credential(c))
		if err != nil {
			if onFailure != nil {
				onFailure(err)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":  "authentication",
				"reason": errors.AuthReason(err),
			})
		}
		c.Locals(ParticipantKey, pid)
		return c.Next()
	}
}

// Participant returns the identity injected by Middleware.
func Participant(c *fiber.Ctx) (chat.ParticipantID, bool) {
	pid, ok := c.Locals(ParticipantKey).(chat.ParticipantID)
	return pid, ok
}
