package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"lending-gateway/internal/auth"
	"lending-gateway/internal/clients"
	"lending-gateway/internal/config"
	"lending-gateway/internal/db"
	"lending-gateway/internal/events"
	"lending-gateway/internal/handlers"
	"lending-gateway/internal/lending"
	"lending-gateway/internal/logger"
	"lending-gateway/internal/middleware"
	"lending-gateway/internal/repository"
	"lending-gateway/internal/router"
	"lending-gateway/internal/services"
	"lending-gateway/internal/wallet"
)

const operationStream = "LENDING_OPERATIONS"

// ServiceContainer owns every long-lived component of the gateway
type ServiceContainer struct {
	Config  *config.Config
	Logger  *logrus.Logger
	Network config.NetworkAddresses

	// Submission path
	TACClient  *clients.TACClient
	KMSClient  *clients.KMSClient
	Wallet     *wallet.Connector
	Dispatcher *lending.Dispatcher

	// Journal
	DB            *gorm.DB
	OperationRepo repository.LendingOperationRepository
	NonceRepo     repository.AuthNonceRepository

	// Events & push
	NATSClient     *clients.NATSClient
	Publisher      events.Publisher
	PushService    *services.WebSocketPushService
	LendingService *services.LendingService

	UserTokens  *auth.JWTManager
	AdminTokens *auth.JWTManager
}

// NewDispatcherContainer builds only what direct submission needs: network
// addresses, sequencer client, wallet and dispatcher.
func NewDispatcherContainer(cfg *config.Config, logger *logrus.Logger) (*ServiceContainer, error) {
	c := &ServiceContainer{Config: cfg, Logger: logger}

	network, err := config.ResolveNetwork(cfg.Network)
	if err != nil {
		return nil, err
	}
	c.Network = network

	c.TACClient, err = clients.NewTACClient(cfg.TAC, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create sequencer client: %w", err)
	}

	var signer wallet.KMSSigner
	if cfg.KMS.Enabled {
		c.KMSClient = clients.NewKMSClient(cfg.KMS)
		signer = c.KMSClient
	}
	c.Wallet, err = wallet.NewConnector(cfg.Wallet, signer, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create wallet connector: %w", err)
	}

	c.Dispatcher = lending.NewDispatcher(c.TACClient, c.Wallet, lending.Network{
		Proxy:       network.Proxy,
		NativeAsset: network.NativeAsset,
	}, logger)

	logger.WithFields(logrus.Fields{
		"network": network.Mode,
		"proxy":   network.Proxy.Hex(),
		"native":  network.NativeAsset.Hex(),
		"wallet":  cfg.Wallet.Mode,
	}).Info("✅ Dispatcher initialized")
	return c, nil
}

// NewServiceContainer builds the full server: dispatcher, journal, events,
// push service and auth.
func NewServiceContainer(cfg *config.Config, logger *logrus.Logger) (*ServiceContainer, error) {
	logger.Info("🚀 Initializing Service Container...")

	c, err := NewDispatcherContainer(cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := c.initJournal(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}

	// Events are optional; the gateway keeps serving without NATS.
	if err := c.initEvents(); err != nil {
		logger.WithError(err).Warn("⚠️ Event publishing disabled")
		c.Publisher = events.NoopPublisher{}
	}

	c.PushService = services.NewWebSocketPushService(cfg.CORS.AllowedOrigins, logger)
	c.LendingService = services.NewLendingService(c.Dispatcher, c.OperationRepo, c.Publisher, c.PushService, c.Network.Mode, logger)

	if err := c.initAuth(); err != nil {
		c.Close()
		return nil, err
	}

	logger.Info("✅ Service Container initialized successfully")
	return c, nil
}

func (c *ServiceContainer) initJournal() error {
	if !c.Config.Database.Enabled || c.Config.Database.DSN == "" {
		return errors.New("database.dsn is required to serve the API")
	}
	gdb, err := db.InitDB(c.Config.Database, c.Logger)
	if err != nil {
		return err
	}
	c.DB = gdb
	c.OperationRepo = repository.NewLendingOperationRepository(gdb)
	c.NonceRepo = repository.NewAuthNonceRepository(gdb)
	return nil
}

func (c *ServiceContainer) initEvents() error {
	if c.Config.NATS.URL == "" {
		return errors.New("nats.url not configured")
	}
	prefix := c.Config.NATS.SubjectPrefix
	client, err := clients.NewNATSClient(c.Config.NATS, operationStream, events.StreamSubjects(prefix), c.Logger)
	if err != nil {
		return err
	}
	c.NATSClient = client
	c.Publisher = events.NewNATSPublisher(client, prefix, c.Logger)
	return nil
}

func (c *ServiceContainer) initAuth() error {
	ttl := time.Duration(c.Config.Auth.TokenTTL) * time.Hour

	users, err := auth.NewJWTManager(c.Config.Auth.JWTSecret, ttl, c.Config.Auth.Issuer, auth.RoleUser)
	if err != nil {
		return fmt.Errorf("auth.jwtSecret: %w", err)
	}
	c.UserTokens = users

	adminSecret := c.Config.Admin.JWTSecret
	if adminSecret == "" {
		c.Logger.Warn("⚠️ admin.jwtSecret not set, reusing auth.jwtSecret for admin tokens")
		adminSecret = c.Config.Auth.JWTSecret
	}
	admins, err := auth.NewJWTManager(adminSecret, 8*time.Hour, c.Config.Auth.Issuer, auth.RoleAdmin)
	if err != nil {
		return fmt.Errorf("admin.jwtSecret: %w", err)
	}
	c.AdminTokens = admins
	return nil
}

// Router mounts every handler on a new gin engine
func (c *ServiceContainer) Router() *gin.Engine {
	logger := c.Logger
	return router.SetupRouter(c.Config, router.Handlers{
		Health:  handlers.NewHealthHandler(c.healthChecks()),
		Auth:    handlers.NewAuthHandler(c.NonceRepo, c.UserTokens, logger),
		Lending: handlers.NewLendingHandler(c.LendingService, logger),
		Admin: handlers.NewAdminHandler(auth.AdminCredentials{
			Username:     c.Config.Admin.Username,
			PasswordHash: c.Config.Admin.PasswordHash,
			TOTPSecret:   c.Config.Admin.TOTPSecret,
		}, c.AdminTokens, c.LendingService, logger),
		WebSocket: handlers.NewWebSocketHandler(c.PushService, c.UserTokens, logger),
		UserAuth:  middleware.NewAuthMiddleware(c.UserTokens, logger),
		AdminAuth: middleware.NewAdminAuthMiddleware(c.AdminTokens, logger),
	}, logger)
}

func (c *ServiceContainer) healthChecks() map[string]handlers.HealthChecker {
	checks := map[string]handlers.HealthChecker{}
	if c.DB != nil {
		checks["database"] = func() error {
			sqlDB, err := c.DB.DB()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return sqlDB.PingContext(ctx)
		}
	}
	if c.NATSClient != nil {
		checks["nats"] = func() error {
			if !c.NATSClient.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}
	}
	if c.KMSClient != nil {
		checks["kms"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return c.KMSClient.HealthCheck(ctx)
		}
	}
	return checks
}

// StartMaintenance purges expired login nonces and refreshes pool gauges
// until ctx is done.
func (c *ServiceContainer) StartMaintenance(ctx context.Context, every time.Duration) {
	if c.DB == nil {
		return
	}
	log := logger.WithComponent(c.Logger, "maintenance")
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.RecordPoolStats(c.DB)
				n, err := c.NonceRepo.DeleteExpired(ctx, time.Now())
				if err != nil {
					log.WithError(err).Warn("⚠️ Failed to purge expired nonces")
					continue
				}
				if n > 0 {
					log.WithField("rows", n).Debug("Purged expired nonces")
				}
			}
		}
	}()
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down.
func (c *ServiceContainer) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", c.Config.Server.Host, c.Config.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           c.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		c.Logger.WithField("addr", addr).Info("🌐 HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	c.Logger.Info("🛑 Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close releases every component that was created
func (c *ServiceContainer) Close() {
	if c.PushService != nil {
		c.PushService.Close()
	}
	if c.NATSClient != nil {
		c.NATSClient.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	if c.TACClient != nil {
		c.TACClient.Close()
	}
}
