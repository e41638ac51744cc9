package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port                    int    `env:"PORT" envDefault:"8080"`
	DatabaseURL             string `env:"DATABASE_URL,required"`
	RedisURL                string `env:"REDIS_URL,required"`
	JWTSecret               string `env:"JWT_SECRET"`
	QRSigningSecret         string `env:"QR_SIGNING_SECRET"`
	ReviewerTokenHash       string `env:"REVIEWER_TOKEN_HASH"`
	OracleURL               string `env:"ORACLE_URL"`
	OracleAPIKey            string `env:"ORACLE_API_KEY"`
	OracleTimeoutSeconds    int    `env:"ORACLE_TIMEOUT_SECONDS" envDefault:"10"`
	OracleRequestsPerSecond int    `env:"ORACLE_RPS" envDefault:"5"`
	QRTTLSeconds            int    `env:"QR_TTL_SECONDS" envDefault:"1800"`
	MaxVerificationAttempts int    `env:"MAX_VERIFICATION_ATTEMPTS" envDefault:"3"`
	JoinRateLimitPerMin     int    `env:"JOIN_RATE_LIMIT_PER_MIN" envDefault:"10"`
	StatusRateLimitPerMin   int    `env:"STATUS_RATE_LIMIT_PER_MIN" envDefault:"60"`
	LogLevel                string `env:"LOG_LEVEL" envDefault:"info"`
	OTLPEndpoint            string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure            bool   `env:"OTEL_EXPORTER_OTLP_INSECURE"`
}

func (c *Config) QRTTL() time.Duration {
	return time.Duration(c.QRTTLSeconds) * time.Second
}

func (c *Config) OracleTimeout() time.Duration {
	return time.Duration(c.OracleTimeoutSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.ReviewerTokenHash != "" {
		if !strings.HasPrefix(c.ReviewerTokenHash, "$2a$") &&
			!strings.HasPrefix(c.ReviewerTokenHash, "$2b$") &&
			!strings.HasPrefix(c.ReviewerTokenHash, "$2y$") {
			return fmt.Errorf("REVIEWER_TOKEN_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <token>)")
		}
	}
	if c.QRTTLSeconds <= 0 {
		return fmt.Errorf("QR_TTL_SECONDS must be positive")
	}
	if c.MaxVerificationAttempts <= 0 {
		return fmt.Errorf("MAX_VERIFICATION_ATTEMPTS must be positive")
	}

	if isProduction {
		if err := validateSecret("JWT_SECRET", c.JWTSecret); err != nil {
			return err
		}
		if err := validateSecret("QR_SIGNING_SECRET", c.QRSigningSecret); err != nil {
			return err
		}

		if c.OracleURL == "" {
			log.Warn().Msg("ORACLE_URL is empty in production: every biometric check will route to manual review")
		}
		if c.ReviewerTokenHash == "" {
			log.Warn().Msg("REVIEWER_TOKEN_HASH is empty in production: manual review endpoints are disabled")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
