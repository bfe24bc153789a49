package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleTeacher is the only role the login stub hands out.
const RoleTeacher = "teacher"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrForbidden    = errors.New("role not allowed")
)

// Claims carried by presenter tokens.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 tokens. Login is a stub: it labels a role and
// checks no credentials.
type TokenService struct {
	secret []byte
	expire time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, expire time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), expire: expire, now: time.Now}
}

// TeacherLogin mints a fresh presenter identity, teacher_<unix ms>, and its token.
func (s *TokenService) TeacherLogin() (username, token string, err error) {
	now := s.now()
	username = fmt.Sprintf("teacher_%d", now.UnixMilli())
	token, err = s.Issue(username, RoleTeacher)
	if err != nil {
		return "", "", err
	}
	return username, token, nil
}

func (s *TokenService) Issue(username, role string) (string, error) {
	now := s.now()
	claims := Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expire)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *TokenService) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
