package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shopflow/backend/internal/domain"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is the verified subject of a bearer token. Mutating cart and order
// operations trust this exclusively, never a user id from a request body.
type Identity struct {
	UserID string
	RoleID int
}

type claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Email    string `json:"email"`
	RoleID   int    `json:"role"`
}

type Service struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewService(signingKey []byte, ttl time.Duration) *Service {
	return &Service{key: signingKey, ttl: ttl, now: time.Now}
}

func (s *Service) Issue(user *domain.User) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Username: user.Username,
		Email:    user.Email,
		RoleID:   user.RoleID,
	})
	return token.SignedString(s.key)
}

func (s *Service) Verify(tokenString string) (*Identity, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.key, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid || c.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &Identity{UserID: c.Subject, RoleID: c.RoleID}, nil
}
