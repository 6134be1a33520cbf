package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dreamscape/internal/domain"
	"dreamscape/internal/service"
)

const (
	sessionCookie     = "session"
	displayNameCookie = "user_name"
)

// AuthHandler mantiene dependencias para los endpoints de autenticacion.
type AuthHandler struct {
	logger   *zap.Logger
	authServ *service.AuthService
	tokens   *service.TokenService
}

// NewAuthHandler crea una instancia de AuthHandler con dependencias necesarias.
func NewAuthHandler(logger *zap.Logger, authServ *service.AuthService, tokens *service.TokenService) *AuthHandler {
	return &AuthHandler{
		logger:   logger,
		authServ: authServ,
		tokens:   tokens,
	}
}

// Signup maneja POST /api/auth/signup.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid signup request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"message": "Valid email is required"})
		return
	}

	user, err := h.authServ.Signup(c.Request.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyVerified):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Email already verified. Please login."})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"message": "Too many requests. Please try again later."})
		case errors.Is(err, service.ErrInvalidEmail):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Valid email is required"})
		case errors.Is(err, service.ErrEmailSendFailure):
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error sending email"})
		default:
			h.logger.Error("signup failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error sending email"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Verification email sent", "email": user.Email})
}

// ResendCode maneja POST /api/auth/resend.
func (h *AuthHandler) ResendCode(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid resend request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"message": "Valid email is required"})
		return
	}

	user, err := h.authServ.ResendCode(c.Request.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyVerified):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Email already verified. Please login."})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"message": "Too many requests. Please try again later."})
		case errors.Is(err, service.ErrEmailSendFailure):
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error sending email"})
		default:
			h.logger.Error("resend code failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error sending email"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Verification code resent", "email": user.Email})
}

// VerifyCode maneja POST /api/auth/verify.
func (h *AuthHandler) VerifyCode(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid verify request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"message": "Email and code are required"})
		return
	}

	_, err := h.authServ.VerifyCode(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Email not found"})
		case errors.Is(err, service.ErrAlreadyVerified):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Already verified"})
		case errors.Is(err, service.ErrInvalidCode):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid verification code"})
		default:
			h.logger.Error("verify code failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Verification failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Email verified successfully"})
}

// Register maneja POST /api/auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Username string `json:"username" binding:"required,min=3"`
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"message": "Email, username and password are required"})
		return
	}

	user, err := h.authServ.CompleteRegistration(c.Request.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotVerified):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Email not verified. Please verify first."})
		case errors.Is(err, service.ErrAlreadyRegistered):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Account already exists."})
		case errors.Is(err, service.ErrUsernameTaken):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Username is already taken"})
		default:
			h.logger.Error("register failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Registration failed"})
		}
		return
	}

	// El registro exitoso tambien establece sesion.
	if err := h.setSession(c, user); err != nil {
		h.logger.Error("session issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Registration failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user":    user.Public(),
	})
}

// Login maneja POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		UsernameOrEmail string `json:"usernameOrEmail" binding:"required"`
		Password        string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"message": "Username and password are required"})
		return
	}

	user, err := h.authServ.Login(c.Request.Context(), req.UsernameOrEmail, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "Username not found"})
		case errors.Is(err, service.ErrNotVerified):
			c.JSON(http.StatusForbidden, gin.H{"message": "Account not verified"})
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Incorrect password"})
		default:
			h.logger.Error("login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Login failed"})
		}
		return
	}

	token, err := h.issueSession(c, user)
	if err != nil {
		h.logger.Error("session issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   token,
		"user":    user.Public(),
	})
}

// ForgotPassword maneja POST /api/auth/forgot-password.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid forgot password request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"message": "Valid email is required"})
		return
	}

	if err := h.authServ.RequestReset(c.Request.Context(), req.Email); err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "Email not found"})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"message": "Too many requests. Please try again later."})
		case errors.Is(err, service.ErrEmailSendFailure):
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error sending email"})
		default:
			h.logger.Error("forgot password failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error sending email"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password reset email sent"})
}

// ResetPassword maneja POST /api/auth/reset-password/:token.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid reset password request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"message": "Password is required"})
		return
	}

	if err := h.authServ.ResetPassword(c.Request.Context(), c.Param("token"), req.Password); err != nil {
		if errors.Is(err, service.ErrResetTokenInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid or expired reset token"})
			return
		}
		h.logger.Error("reset password failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Password reset failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password reset successful"})
}

// Logout maneja POST /api/auth/logout: revoca el token presentado (si hay) y
// limpia ambas cookies.
func (h *AuthHandler) Logout(c *gin.Context) {
	if token := extractToken(c); token != "" && h.tokens != nil {
		if err := h.tokens.Revoke(token); err != nil {
			h.logger.Warn("token revoke failed", zap.Error(err))
		}
	}

	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.SetCookie(displayNameCookie, "", -1, "/", "", false, false)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Profile maneja GET /api/auth/profile.
func (h *AuthHandler) Profile(c *gin.Context) {
	claims, ok := GetSessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"userName": claims.Username})
}

func (h *AuthHandler) issueSession(c *gin.Context, user domain.User) (string, error) {
	if h.tokens == nil {
		return "", errors.New("token service not configured")
	}
	token, err := h.tokens.Issue(user)
	if err != nil {
		return "", err
	}
	maxAge := int(h.tokens.TTL().Seconds())
	c.SetCookie(sessionCookie, token, maxAge, "/", "", false, true)
	// user_name no es httpOnly: la UI lo lee para mostrar el nombre.
	c.SetCookie(displayNameCookie, user.Username, maxAge, "/", "", false, false)
	return token, nil
}

func (h *AuthHandler) setSession(c *gin.Context, user domain.User) error {
	_, err := h.issueSession(c, user)
	return err
}
