package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Network  NetworkConfig  `yaml:"network"`
	TAC      TACConfig      `yaml:"tac"`
	Wallet   WalletConfig   `yaml:"wallet"`
	KMS      KMSConfig      `yaml:"kms"`
	Auth     AuthConfig     `yaml:"auth"`
	Admin    AdminConfig    `yaml:"admin"`
	CORS     CORSConfig     `yaml:"cors"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig Database configuration
type DatabaseConfig struct {
	DSN     string `yaml:"dsn"`
	Enabled bool   `yaml:"enabled"`
}

// NATSConfig NATS message server configuration
type NATSConfig struct {
	URL             string `yaml:"url"`
	Timeout         int    `yaml:"timeout"`
	ReconnectWait   int    `yaml:"reconnect_wait"`
	MaxReconnects   int    `yaml:"max_reconnects"`
	EnableJetStream bool   `yaml:"enable_jetstream"`
	SubjectPrefix   string `yaml:"subject_prefix"`
}

// NetworkConfig selects the deployment the proxy messages target.
// Mode is "mainnet" or "testnet"; the address fields override the built-in table.
type NetworkConfig struct {
	Mode               string `yaml:"mode"`
	ProxyAddress       string `yaml:"proxyAddress"`
	NativeAssetAddress string `yaml:"nativeAssetAddress"`
	ContractsFile      string `yaml:"contractsFile"`
}

// TACConfig cross-chain sequencer client configuration
type TACConfig struct {
	BaseURL           string `yaml:"baseUrl"`
	APIKey            string `yaml:"apiKey"`
	Timeout           int    `yaml:"timeout"`           // request timeout (seconds)
	RequestsPerSecond int    `yaml:"requestsPerSecond"` // outbound rate limit, 0 = unlimited
	Burst             int    `yaml:"burst"`
	TokenCacheSize    int64  `yaml:"tokenCacheSize"` // max cached EVM->TVM token mappings
}

// WalletConfig configures the connector that hands out senders.
// Mode is "private_key" or "kms".
type WalletConfig struct {
	Mode        string `yaml:"mode"`
	Address     string `yaml:"address"`    // TVM sender address; derived from the key when empty
	PrivateKey  string `yaml:"privateKey"` // hex, with or without 0x
	KMSKeyAlias string `yaml:"kmsKeyAlias"`
	KMSK1       string `yaml:"kmsK1"` // transport key (Base64)
	ChainID     int    `yaml:"chainId"`
}

// KMSConfig KMS service configuration
type KMSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ServiceURL string `yaml:"serviceUrl"`
	AuthToken  string `yaml:"authToken"`
	Timeout    int    `yaml:"timeout"` // request timeout (seconds)
}

// AuthConfig user JWT configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
	TokenTTL  int    `yaml:"tokenTtl"` // hours
	Issuer    string `yaml:"issuer"`
}

// AdminConfig admin API access control configuration
type AdminConfig struct {
	Username     string   `yaml:"username"`
	PasswordHash string   `yaml:"passwordHash"` // bcrypt
	TOTPSecret   string   `yaml:"totpSecret"`
	JWTSecret    string   `yaml:"jwtSecret"`
	AllowedIPs   []string `yaml:"allowedIPs"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// LoggingConfig logger configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
	Output string `yaml:"output"` // stdout | stderr | file path
	MaxAge int    `yaml:"maxAge"` // days kept when writing to a file
}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		NATS: NATSConfig{
			Timeout:       10,
			ReconnectWait: 5,
			MaxReconnects: -1,
			SubjectPrefix: "lending",
		},
		Network: NetworkConfig{Mode: ModeMainnet},
		TAC: TACConfig{
			Timeout:        30,
			Burst:          1,
			TokenCacheSize: 1024,
		},
		Wallet: WalletConfig{Mode: WalletModePrivateKey},
		KMS:    KMSConfig{Timeout: 30},
		Auth: AuthConfig{
			TokenTTL: 24,
			Issuer:   "lending-gateway",
		},
		Admin:   AdminConfig{Username: "admin"},
		CORS:    CORSConfig{AllowCredentials: true, MaxAge: 3600},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
	}
}

const (
	WalletModePrivateKey = "private_key"
	WalletModeKMS        = "kms"
)

// LoadConfig Load configuration file
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("failed to load .env file")
	}

	// if configuration file path is empty, use default path
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			logrus.Info("🔧 Using local configuration file: config.local.yaml")
		}
	}

	config := Default()

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		logrus.WithField("path", configPath).Info("✅ Loading configuration from config file")
	case os.IsNotExist(err):
		logrus.WithField("path", configPath).Warn("config file not found, using defaults and environment")
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	overrideFromEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"network": config.Network.Mode,
		"wallet":  config.Wallet.Mode,
		"tac":     config.TAC.BaseURL,
	}).Info("📋 [Config] configuration loaded")

	return config, nil
}

// Validate checks values that would otherwise fail much later.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Network.Mode) {
	case ModeMainnet, ModeTestnet:
	default:
		return fmt.Errorf("unknown network mode %q (want %s or %s)", c.Network.Mode, ModeMainnet, ModeTestnet)
	}
	switch c.Wallet.Mode {
	case WalletModePrivateKey, WalletModeKMS:
	default:
		return fmt.Errorf("unknown wallet mode %q", c.Wallet.Mode)
	}
	if c.Wallet.Mode == WalletModeKMS && !c.KMS.Enabled {
		return fmt.Errorf("wallet mode %q requires kms.enabled", WalletModeKMS)
	}
	return nil
}

// overrideFromEnv Override configuration from environment variables
func overrideFromEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
		config.Database.Enabled = true
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if natsTimeout := os.Getenv("NATS_TIMEOUT"); natsTimeout != "" {
		if t, err := strconv.Atoi(natsTimeout); err == nil {
			config.NATS.Timeout = t
		}
	}

	// Network mode and address overrides
	if mode := os.Getenv("NETWORK_MODE"); mode != "" {
		config.Network.Mode = strings.ToLower(mode)
	}
	if proxy := os.Getenv("LENDING_PROXY"); proxy != "" {
		config.Network.ProxyAddress = proxy
	}
	if native := os.Getenv("NATIVE_ASSET_ADDRESS"); native != "" {
		config.Network.NativeAssetAddress = native
	}

	if baseURL := os.Getenv("TAC_BASE_URL"); baseURL != "" {
		config.TAC.BaseURL = baseURL
	}
	if apiKey := os.Getenv("TAC_API_KEY"); apiKey != "" {
		config.TAC.APIKey = apiKey
	}
	if rps := os.Getenv("TAC_REQUESTS_PER_SECOND"); rps != "" {
		if r, err := strconv.Atoi(rps); err == nil {
			config.TAC.RequestsPerSecond = r
		}
	}

	if mode := os.Getenv("WALLET_MODE"); mode != "" {
		config.Wallet.Mode = mode
	}
	if address := os.Getenv("WALLET_ADDRESS"); address != "" {
		config.Wallet.Address = address
	}
	if privateKey := os.Getenv("PRIVATE_KEY"); privateKey != "" {
		config.Wallet.PrivateKey = privateKey
	}
	if kmsKeyAlias := os.Getenv("KMS_KEY_ALIAS"); kmsKeyAlias != "" {
		config.Wallet.KMSKeyAlias = kmsKeyAlias
	}
	if k1 := os.Getenv("KMS_K1"); k1 != "" {
		config.Wallet.KMSK1 = k1
	}

	if kmsEnabled := os.Getenv("KMS_ENABLED"); kmsEnabled != "" {
		config.KMS.Enabled = kmsEnabled == "true"
	}
	if kmsServiceURL := os.Getenv("KMS_SERVICE_URL"); kmsServiceURL != "" {
		config.KMS.ServiceURL = kmsServiceURL
	}
	if kmsAuthToken := os.Getenv("KMS_AUTH_TOKEN"); kmsAuthToken != "" {
		config.KMS.AuthToken = kmsAuthToken
	}
	if kmsTimeout := os.Getenv("KMS_TIMEOUT"); kmsTimeout != "" {
		if t, err := strconv.Atoi(kmsTimeout); err == nil {
			config.KMS.Timeout = t
		}
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}

	if username := os.Getenv("ADMIN_USERNAME"); username != "" {
		config.Admin.Username = username
	}
	if hash := os.Getenv("ADMIN_PASSWORD_HASH"); hash != "" {
		config.Admin.PasswordHash = hash
	}
	if totpSecret := os.Getenv("ADMIN_TOTP_SECRET"); totpSecret != "" {
		config.Admin.TOTPSecret = totpSecret
	}
	if secret := os.Getenv("ADMIN_JWT_SECRET"); secret != "" {
		config.Admin.JWTSecret = secret
	}

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		origins := strings.Split(corsOrigins, ",")
		config.CORS.AllowedOrigins = make([]string, 0, len(origins))
		for _, origin := range origins {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, trimmed)
			}
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}
