package server

import (
	"chat-relay/auth"
	"chat-relay/errors"
	"chat-relay/repositories"
	"chat-relay/services"

	"github.com/gofiber/fiber/v2"
)

type userResponse struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Username       string `json:"username"`
	Online         bool   `json:"online"`
	ProfilePicture string `json:"profilePicture"`
}

type authResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

func toUserResponse(user repositories.User) userResponse {
	return userResponse{
		ID:             user.ID,
		Email:          user.Email,
		Username:       user.Username,
		Online:         user.Online,
		ProfilePicture: user.ProfilePicture,
	}
}

func toAuthResponse(result services.AuthResult) authResponse {
	return authResponse{User: toUserResponse(result.User), Token: result.Token.String()}
}

func (s *Server) register(c *fiber.Ctx) error {
	var req auth.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.Join(errors.ErrInvalidPayload, err)
	}
	result, err := s.authService.Register(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toAuthResponse(result))
}

func (s *Server) login(c *fiber.Ctx) error {
	var req auth.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.Join(errors.ErrInvalidPayload, err)
	}
	result, err := s.authService.Login(c.UserContext(), req)
	if err != nil {
		s.countAuthFailure(err)
		return err
	}
	return c.JSON(toAuthResponse(result))
}
