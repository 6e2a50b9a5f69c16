package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Environment represents the runtime environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
	EnvTest        Environment = "test"
)

// Config holds all service configuration
type Config struct {
	Environment Environment
	Server      ServerConfig
	Database    DatabaseConfig
	Chain       ChainConfig
	EIP712      EIP712Config
	Executor    ExecutorConfig
	RateLimit   RateLimitConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	ProxyHeader    string
	TrustedProxies []string
}

// DatabaseConfig holds PostgreSQL database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

// ChainConfig holds the Scroll chain connection and coordinator contract address.
type ChainConfig struct {
	ChainID            int64
	CoordinatorAddress string
	RPCURL             string
}

// EIP712Config holds the typed-data domain parameters used to build and
// verify ApproveSplit signatures.
type EIP712Config struct {
	Name    string
	Version string
}

// ExecutorConfig holds the optional executor private key used to sign
// createSplit/settleSplit transactions. Absence disables the write handle.
type ExecutorConfig struct {
	PrivateKeyHex string
	KMSKeyID      string
	KMSRegion     string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled       bool
	WindowSeconds int
	MaxRequests   int
}

// Load loads configuration from environment variables
func Load() *Config {
	// Default to production for security - explicit opt-in to development mode
	env := Environment(getEnv("ENV", "production"))
	if env != EnvDevelopment && env != EnvProduction && env != EnvTest {
		env = EnvProduction
	}

	return &Config{
		Environment: env,
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			ReadTimeout:    getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ProxyHeader:    getEnv("PROXY_HEADER", "X-Forwarded-For"),
			TrustedProxies: getEnvSlice("TRUSTED_PROXIES", nil),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "splitcoord"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "splitcoord"),
			SSLMode:  getEnv("DB_SSLMODE", "require"),
			MaxConns: int32(getInt("DB_MAX_CONNS", 0)),
		},
		Chain: ChainConfig{
			ChainID:            int64(getInt("CHAIN_ID", 534352)),
			CoordinatorAddress: getEnv("SPLIT_COORDINATOR_ADDRESS", ""),
			RPCURL:             getEnv("RPC_URL_SCROLL", ""),
		},
		EIP712: EIP712Config{
			Name:    getEnv("EIP712_NAME", "Accountant"),
			Version: getEnv("EIP712_VERSION", "1"),
		},
		Executor: ExecutorConfig{
			PrivateKeyHex: getEnv("EXECUTOR_PRIVATE_KEY", ""),
			KMSKeyID:      getEnv("KMS_KEY_ID", ""),
			KMSRegion:     getEnv("KMS_REGION", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getBool("RATE_LIMIT_ENABLED", true),
			WindowSeconds: getInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			MaxRequests:   getInt("RATE_LIMIT_MAX_REQUESTS", 100),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// Validate checks that all required configuration is present and well formed.
// The chain settings and any executor key are checked in every environment;
// the database password is required only in production.
func (c *Config) Validate() error {
	var errs []string

	if c.Chain.CoordinatorAddress == "" {
		errs = append(errs, "SPLIT_COORDINATOR_ADDRESS is required")
	} else if !common.IsHexAddress(c.Chain.CoordinatorAddress) {
		errs = append(errs, "SPLIT_COORDINATOR_ADDRESS must be a valid EVM address")
	}

	if c.Chain.RPCURL == "" {
		errs = append(errs, "RPC_URL_SCROLL is required")
	}

	if c.Chain.ChainID <= 0 {
		errs = append(errs, "CHAIN_ID must be a positive integer")
	}

	if c.Executor.PrivateKeyHex != "" {
		key := strings.TrimPrefix(c.Executor.PrivateKeyHex, "0x")
		if _, err := crypto.HexToECDSA(key); err != nil {
			errs = append(errs, "EXECUTOR_PRIVATE_KEY is not a valid ECDSA private key: "+err.Error())
		}
	}

	if c.Environment == EnvProduction {
		if c.Database.Password == "" {
			errs = append(errs, "DB_PASSWORD is required in production")
		}
	}

	if len(errs) > 0 {
		return errors.New("configuration errors: " + strings.Join(errs, "; "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}
