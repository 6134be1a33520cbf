package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"dreamscape/internal/domain"
)

// TokenService emite y valida tokens de sesion firmados.
type TokenService struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	denylist SessionDenylist
}

type Claims struct {
	UserID   string `json:"uid"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

// NewTokenService crea el servicio con un denylist en memoria.
// El TTL es el unico valor de expiracion de sesion del servicio.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &TokenService{
		secret:   []byte(secret),
		ttl:      ttl,
		issuer:   "dreamscape",
		denylist: NewMemorySessionDenylist(),
	}
}

func NewTokenServiceWithDenylist(secret string, ttl time.Duration, denylist SessionDenylist) *TokenService {
	svc := NewTokenService(secret, ttl)
	if denylist != nil {
		svc.denylist = denylist
	}
	return svc
}

// TTL devuelve la vigencia configurada de las sesiones.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue firma un token de sesion para la cuenta dada.
func (s *TokenService) Issue(user domain.User) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrTokenInvalid
	}
	now := time.Now().UTC()
	claims := Claims{
		UserID:   user.ID,
		Email:    user.Email,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse valida firma, emisor, expiracion y revocacion, y devuelve los claims.
func (s *TokenService) Parse(tokenString string) (Claims, error) {
	if len(s.secret) == 0 {
		return Claims{}, ErrTokenInvalid
	}
	if strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrTokenInvalid
	}
	claims, err := s.parseToken(tokenString)
	if err != nil {
		return Claims{}, err
	}
	if !s.isValidClaims(claims) {
		return Claims{}, ErrTokenInvalid
	}
	if s.denylist != nil && claims.ID != "" {
		revoked, err := s.denylist.IsRevoked(claims.ID)
		if err != nil || revoked {
			return Claims{}, ErrTokenInvalid
		}
	}
	return claims, nil
}

// Revoke invalida el token presentado hasta su expiracion natural.
// Un token ya expirado o malformado no necesita revocacion.
func (s *TokenService) Revoke(tokenString string) error {
	if strings.TrimSpace(tokenString) == "" {
		return ErrTokenInvalid
	}
	claims, err := s.parseToken(tokenString)
	if err != nil {
		return err
	}
	if !s.isValidClaims(claims) || claims.ID == "" {
		return ErrTokenInvalid
	}
	if s.denylist == nil {
		return nil
	}
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		return nil
	}
	return s.denylist.Revoke(claims.ID, remaining)
}

func (s *TokenService) parseToken(tokenString string) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	return claims, nil
}

func (s *TokenService) isValidClaims(claims Claims) bool {
	if strings.TrimSpace(claims.UserID) == "" {
		return false
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return false
	}
	if claims.Subject != claims.UserID {
		return false
	}
	return strings.TrimSpace(claims.Issuer) == s.issuer
}
