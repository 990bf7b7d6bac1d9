package server

import (
	"chat-relay/auth"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/repositories"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
)

type historyResponse struct {
	Messages []event.MessageRecord `json:"messages"`
	Cursor   *string               `json:"cursor"`
}

// history serves GET /api/messages?userId1=&userId2=&cursor=, newest first.
func (s *Server) history(c *fiber.Ctx) error {
	caller, ok := auth.Participant(c)
	if !ok {
		return errors.ErrTokenMissing
	}
	var cursor *string
	if value := c.Query("cursor"); value != "" {
		cursor = &value
	}
	messages, next, err := s.chatService.History(c.UserContext(), caller,
		chat.ParticipantID(c.Query("userId1")), chat.ParticipantID(c.Query("userId2")), cursor)
	if err != nil {
		return err
	}
	return c.JSON(historyResponse{
		Messages: lo.Map(messages, func(m chat.Message, _ int) event.MessageRecord {
			return event.NewMessageRecord(m)
		}),
		Cursor: next,
	})
}

func (s *Server) listUsers(c *fiber.Ctx) error {
	users, err := s.users.ListUsers(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(lo.Map(users, func(u repositories.User, _ int) userResponse {
		return toUserResponse(u)
	}))
}
