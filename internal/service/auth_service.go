package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"dreamscape/internal/domain"
	"dreamscape/internal/email"
	"dreamscape/internal/repository"
)

// AuthService orquesta el flujo signup -> verify -> register y el login,
// ademas del reseteo de contraseña.
type AuthService struct {
	logger      *zap.Logger
	users       repository.UserRepository
	emailSender email.Sender
	codeLimiter CodeRateLimiter
	baseURL     string
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrInvalidCode        = errors.New("invalid verification code")
	ErrNotVerified        = errors.New("email not verified")
	ErrAlreadyRegistered  = errors.New("account already exists")
	ErrUsernameTaken      = errors.New("username taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrResetTokenInvalid  = errors.New("reset token invalid or expired")
	ErrEmailSendFailure   = errors.New("email send failed")
	ErrRateLimited        = errors.New("rate limited")
	ErrInvalidEmail       = errors.New("invalid email")
)

const (
	resetTokenTTL  = 15 * time.Minute
	codeSendWindow = 10 * time.Minute
	codeSendMax    = 3
)

func NewAuthService(logger *zap.Logger, users repository.UserRepository, emailSender email.Sender, codeLimiter CodeRateLimiter, baseURL string) *AuthService {
	if codeLimiter == nil {
		codeLimiter = NewCodeRateLimiter(codeSendWindow, codeSendMax)
	}
	return &AuthService{
		logger:      logger,
		users:       users,
		emailSender: emailSender,
		codeLimiter: codeLimiter,
		baseURL:     strings.TrimRight(baseURL, "/"),
	}
}

// Signup genera un codigo de verificacion para el email, creando el registro
// parcial si no existe, y envia exactamente un correo con el codigo.
// Una nueva emision sobreescribe el codigo anterior.
func (s *AuthService) Signup(ctx context.Context, emailAddr string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("auth service not configured")
	}

	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return domain.User{}, ErrInvalidEmail
	}

	if s.codeLimiter != nil && !s.codeLimiter.Allow(emailAddr) {
		return domain.User{}, ErrRateLimited
	}

	code, err := generateVerificationCode()
	if err != nil {
		return domain.User{}, err
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	switch {
	case err == nil:
		if user.Verified {
			return domain.User{}, ErrAlreadyVerified
		}
		if err := s.users.SetVerificationCode(ctx, user.ID, code); err != nil {
			return domain.User{}, err
		}
		user.VerificationCode = code
	case errors.Is(err, pgx.ErrNoRows):
		user = domain.User{
			ID:               uuid.NewString(),
			Email:            emailAddr,
			VerificationCode: code,
			CreatedAt:        time.Now().UTC(),
		}
		if err := s.users.Create(ctx, user); err != nil {
			return domain.User{}, err
		}
	default:
		return domain.User{}, err
	}

	if s.emailSender == nil {
		return domain.User{}, ErrEmailSendFailure
	}
	if err := s.emailSender.SendVerificationCode(ctx, emailAddr, code); err != nil {
		if s.logger != nil {
			s.logger.Warn("send verification code failed", zap.Error(err), zap.String("email", emailAddr))
		}
		return domain.User{}, ErrEmailSendFailure
	}

	return user, nil
}

// ResendCode reenvia un codigo fresco. Es la misma transicion que Signup:
// sobreescritura idempotente, sin exigir que el registro exista.
func (s *AuthService) ResendCode(ctx context.Context, emailAddr string) (domain.User, error) {
	return s.Signup(ctx, emailAddr)
}

// VerifyCode consume el codigo pendiente. La transicion es de un solo uso:
// una vez verificada la cuenta, ningun codigo vuelve a aceptarse.
func (s *AuthService) VerifyCode(ctx context.Context, emailAddr, code string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("auth service not configured")
	}

	emailAddr = normalizeEmail(emailAddr)
	code = strings.TrimSpace(code)
	if emailAddr == "" {
		return domain.User{}, ErrInvalidEmail
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	if user.Verified {
		return domain.User{}, ErrAlreadyVerified
	}
	if !isValidCode(code) {
		return domain.User{}, ErrInvalidCode
	}

	// Comparacion y consumo en una sola actualizacion condicional: un codigo
	// viejo que corre contra un reenvio pierde y se rechaza.
	ok, err := s.users.ConsumeVerificationCode(ctx, emailAddr, code)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, ErrInvalidCode
	}

	user.Verified = true
	user.VerificationCode = ""
	return user, nil
}

// CompleteRegistration es la puerta final del registro: exige cuenta
// verificada, username libre y que la cuenta no este ya registrada.
func (s *AuthService) CompleteRegistration(ctx context.Context, emailAddr, username, password string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("auth service not configured")
	}

	emailAddr = normalizeEmail(emailAddr)
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if emailAddr == "" {
		return domain.User{}, ErrInvalidEmail
	}
	if username == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrNotVerified
		}
		return domain.User{}, err
	}
	if !user.Verified {
		return domain.User{}, ErrNotVerified
	}
	if user.Registered() {
		return domain.User{}, ErrAlreadyRegistered
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return domain.User{}, ErrUsernameTaken
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	ok, err := s.users.CompleteRegistration(ctx, user.ID, username, string(hashBytes))
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, ErrAlreadyRegistered
	}

	user.Username = username
	user.PasswordHash = string(hashBytes)
	return user, nil
}

// Login autentica por username (o email) y contraseña.
func (s *AuthService) Login(ctx context.Context, usernameOrEmail, password string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("auth service not configured")
	}

	usernameOrEmail = strings.TrimSpace(usernameOrEmail)
	password = strings.TrimSpace(password)
	if usernameOrEmail == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByUsername(ctx, usernameOrEmail)
	if errors.Is(err, pgx.ErrNoRows) && strings.Contains(usernameOrEmail, "@") {
		user, err = s.users.GetByEmail(ctx, normalizeEmail(usernameOrEmail))
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}

	if !user.Verified {
		return domain.User{}, ErrNotVerified
	}
	if user.PasswordHash == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// RequestReset emite un token de reseteo de un solo uso con vigencia de 15
// minutos y envia el enlace por correo. Una nueva solicitud sobreescribe el
// token anterior.
func (s *AuthService) RequestReset(ctx context.Context, emailAddr string) error {
	if s.users == nil {
		return errors.New("auth service not configured")
	}

	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return ErrInvalidEmail
	}

	if s.codeLimiter != nil && !s.codeLimiter.Allow(emailAddr) {
		return ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}

	token, err := generateResetToken()
	if err != nil {
		return err
	}
	expiry := time.Now().UTC().Add(resetTokenTTL)
	if err := s.users.SetResetToken(ctx, user.ID, token, expiry); err != nil {
		return err
	}

	if s.emailSender == nil {
		return ErrEmailSendFailure
	}
	resetURL := fmt.Sprintf("%s/reset-password/%s", s.baseURL, token)
	if err := s.emailSender.SendPasswordReset(ctx, emailAddr, resetURL); err != nil {
		if s.logger != nil {
			s.logger.Warn("send password reset failed", zap.Error(err), zap.String("email", emailAddr))
		}
		return ErrEmailSendFailure
	}
	return nil
}

// ResetPassword consume el token: coincidencia exacta y vigencia se evaluan
// en la misma actualizacion que limpia token y expiracion.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if s.users == nil {
		return errors.New("auth service not configured")
	}

	token = strings.TrimSpace(token)
	newPassword = strings.TrimSpace(newPassword)
	if token == "" || newPassword == "" {
		return ErrResetTokenInvalid
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	ok, err := s.users.ConsumeResetToken(ctx, token, string(hashBytes), time.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return ErrResetTokenInvalid
	}
	return nil
}

// generateVerificationCode devuelve un codigo de 6 digitos uniforme en
// [100000, 999999].
func generateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// generateResetToken devuelve un token opaco de 256 bits de entropia.
func generateResetToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isValidCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
