package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"dreamscape/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	authH *AuthHandler,
	journalH *JournalHandler,
	tokens *service.TokenService,
	authLimiter *IPRateLimiter,
	metrics *Metrics,
	registry *prometheus.Registry,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())
	if metrics != nil {
		r.Use(metrics.Middleware())
	}

	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"success": true, "message": "DreamScape API live", "timestamp": time.Now().UTC()})
	})
	if registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	auth := r.Group("/api/auth")
	if authLimiter != nil {
		auth.Use(authLimiter.Middleware())
	}
	auth.POST("/signup", authH.Signup)
	auth.POST("/verify", authH.VerifyCode)
	auth.POST("/resend", authH.ResendCode)
	auth.POST("/register", authH.Register)
	auth.POST("/login", authH.Login)
	auth.POST("/forgot-password", authH.ForgotPassword)
	auth.POST("/reset-password/:token", authH.ResetPassword)
	auth.POST("/logout", authH.Logout)
	auth.GET("/profile", SessionMiddleware(tokens), authH.Profile)

	journal := r.Group("/api/journal", SessionMiddleware(tokens))
	journal.POST("", journalH.CreateEntry)
	journal.GET("", journalH.ListEntries)
	journal.PUT("/:id", journalH.UpdateEntry)
	journal.DELETE("/:id", journalH.DeleteEntry)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
