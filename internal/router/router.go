package router

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"lending-gateway/internal/config"
	"lending-gateway/internal/handlers"
	"lending-gateway/internal/middleware"
)

// Handlers groups everything the router mounts
type Handlers struct {
	Health    *handlers.HealthHandler
	Auth      *handlers.AuthHandler
	Admin     *handlers.AdminHandler
	Lending   *handlers.LendingHandler
	WebSocket *handlers.WebSocketHandler

	UserAuth  *middleware.AuthMiddleware
	AdminAuth *middleware.AdminAuthMiddleware
}

// corsMiddleware a single "*" entry, or no entries, allows every origin
func corsMiddleware(cfg config.CORSConfig, logger *logrus.Logger) gin.HandlerFunc {
	allowAll := len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*")
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.TrimSpace(o)] = true
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 3600
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		case origin != "":
			logger.WithFields(logrus.Fields{
				"request_origin": origin,
				"path":           c.Request.URL.Path,
				"method":         c.Request.Method,
				"remote_addr":    c.ClientIP(),
			}).Warn("🚫 CORS: Request blocked - Origin not in whitelist")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept")
		if cfg.AllowCredentials && !allowAll {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// SetupRouter builds the HTTP API
func SetupRouter(cfg *config.Config, h Handlers, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	r.Use(corsMiddleware(cfg.CORS, logger))

	if len(cfg.Admin.AllowedIPs) > 0 {
		logger.WithFields(logrus.Fields{
			"allowed_ips": cfg.Admin.AllowedIPs,
			"count":       len(cfg.Admin.AllowedIPs),
		}).Info("Admin API IP whitelist configured")
	} else {
		logger.Info("No admin.allowedIPs configured, using localhost-only mode")
	}
	localhostOnly := middleware.NewLocalhostOnly(logger, cfg.Admin.AllowedIPs)

	// ============ Check ============
	r.GET("/ping", handlers.PingHandler)
	r.GET("/health", h.Health.HealthCheckHandler)
	r.GET("/api/health", h.Health.HealthCheckHandler)

	// ============ Prometheus Metrics ============
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ============ WebSocket ============
	r.GET("/ws", h.WebSocket.HandleWebSocket)

	api := r.Group("/api")
	{
		api.GET("/network", h.Lending.NetworkHandler)

		authGroup := api.Group("/auth")
		authGroup.GET("/nonce", h.Auth.GetNonceHandler)
		authGroup.POST("/login", h.Auth.LoginHandler)

		lendingGroup := api.Group("/lending", h.UserAuth.RequireAuth())
		lendingGroup.POST("/deposit", h.Lending.DepositHandler)
		lendingGroup.POST("/borrow", h.Lending.BorrowHandler)
		lendingGroup.POST("/redeem", h.Lending.RedeemHandler)
		lendingGroup.POST("/supply-collateral", h.Lending.SupplyCollateralHandler)
		lendingGroup.POST("/supply-collateral-and-borrow", h.Lending.SupplyCollateralAndBorrowHandler)
		lendingGroup.POST("/repay", h.Lending.RepayHandler)
		lendingGroup.POST("/withdraw-collateral", h.Lending.WithdrawCollateralHandler)
		lendingGroup.POST("/repay-and-withdraw-collateral", h.Lending.RepayAndWithdrawCollateralHandler)
		lendingGroup.GET("/operations", h.Lending.ListOperationsHandler)
		lendingGroup.GET("/operations/:id", h.Lending.GetOperationHandler)

		adminGroup := api.Group("/admin", localhostOnly.Restrict())
		adminGroup.POST("/login", h.Admin.AdminLoginHandler)
		adminGroup.GET("/operations", h.AdminAuth.RequireAdminAuth(), h.Admin.ListOperationsHandler)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"message":    "API endpoint not found",
			"path":       c.Request.URL.Path,
			"suggestion": "Check documentation for available /api endpoints",
		})
	})

	return r
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Request.URL.Path == "/metrics" || c.Request.URL.Path == "/health" {
			return
		}
		logger.WithFields(logrus.Fields{
			"path":      c.Request.URL.Path,
			"method":    c.Request.Method,
			"status":    c.Writer.Status(),
			"client_ip": c.ClientIP(),
		}).Debug("HTTP request")
	}
}
