package auth

import (
	"fmt"
	"strings"
	"time"

	"chat-relay/domain/chat"
	"chat-relay/errors"

	"github.com/golang-jwt/jwt/v5"
)

const defaultIssuer = "chat-relay"

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 tokens. It is the concrete
// credential verifier used by the transport.
type TokenService struct {
	secret   []byte
	duration time.Duration
	issuer   string
	now      func() time.Time
}

func NewTokenService(secret string, duration time.Duration) *TokenService {
	return &TokenService{
		secret:   []byte(secret),
		duration: duration,
		issuer:   defaultIssuer,
		now:      time.Now,
	}
}

// WithClock replaces the time source, used by tests to mint expired tokens.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// GenerateToken creates a signed JWT for a specific user.
func (s *TokenService) GenerateToken(userID, email string, roles []string) (string, error) {
	issuedAt := s.now()
	claims := &CustomClaims{
		UserID: userID,
		Email:  email,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.duration)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			Issuer:    s.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrTokenGeneration, err)
	}
	return signed, nil
}

// ValidateToken parses and validates the signature and expiration of a JWT string.
func (s *TokenService) ValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, errors.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, errors.ErrTokenMalformed
	default:
		return nil, fmt.Errorf("%w: %v", errors.ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, errors.ErrTokenInvalid
	}
	return claims, nil
}

// Verify resolves a raw credential, with or without its "Bearer " prefix,
// into the participant it was issued to.
func (s *TokenService) Verify(credential string) (chat.ParticipantID, error) {
	tokenString := ExtractBearer(credential)
	if tokenString == "" {
		return "", errors.ErrTokenMissing
	}
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	pid := chat.ParticipantID(strings.ToLower(claims.Email))
	if err = pid.Validate(); err != nil {
		return "", fmt.Errorf("%w: no usable identity in claims", errors.ErrTokenInvalid)
	}
	return pid, nil
}

// ExtractBearer strips an optional, case-insensitive "Bearer " prefix.
func ExtractBearer(value string) string {
	value = strings.TrimSpace(value)
	if strings.EqualFold(value, "bearer") {
		return ""
	}
	if len(value) >= 7 && strings.EqualFold(value[:7], "bearer ") {
		value = strings.TrimSpace(value[7:])
	}
	return value
}
