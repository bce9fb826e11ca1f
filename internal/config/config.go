package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL    string        `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	PhotoDir       string `mapstructure:"PHOTO_DIR"`
	PhotoStore     string `mapstructure:"PHOTO_STORE"`
	PhotoURLPrefix string `mapstructure:"PHOTO_URL_PREFIX"`
	MaxUploadSize  int64  `mapstructure:"MAX_UPLOAD_SIZE"`

	PhotoTargetHeight   int `mapstructure:"PHOTO_TARGET_HEIGHT"`
	PhotoByteBudget     int `mapstructure:"PHOTO_BYTE_BUDGET"`
	PhotoInitialQuality int `mapstructure:"PHOTO_INITIAL_QUALITY"`
	PhotoMinQuality     int `mapstructure:"PHOTO_MIN_QUALITY"`
	PhotoQualityStep    int `mapstructure:"PHOTO_QUALITY_STEP"`
	SignatureThreshold  int `mapstructure:"SIGNATURE_THRESHOLD"`
	SignaturePadding    int `mapstructure:"SIGNATURE_PADDING"`

	WatermarkFontPath string `mapstructure:"WATERMARK_FONT_PATH"`
	WatermarkTimezone string `mapstructure:"WATERMARK_TIMEZONE"`

	JanitorInterval time.Duration `mapstructure:"JANITOR_INTERVAL"`
	TempMaxAge      time.Duration `mapstructure:"TEMP_MAX_AGE"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"PHOTO_DIR", "PHOTO_STORE", "PHOTO_URL_PREFIX", "MAX_UPLOAD_SIZE",
	"PHOTO_TARGET_HEIGHT", "PHOTO_BYTE_BUDGET", "PHOTO_INITIAL_QUALITY",
	"PHOTO_MIN_QUALITY", "PHOTO_QUALITY_STEP",
	"SIGNATURE_THRESHOLD", "SIGNATURE_PADDING",
	"WATERMARK_FONT_PATH", "WATERMARK_TIMEZONE",
	"JANITOR_INTERVAL", "TEMP_MAX_AGE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("REQUEST_TIMEOUT", "60s")
	v.SetDefault("PHOTO_DIR", "./uploads/photos")
	v.SetDefault("PHOTO_STORE", "disk")
	v.SetDefault("PHOTO_URL_PREFIX", "/uploads/photos")
	v.SetDefault("MAX_UPLOAD_SIZE", 10*1024*1024)
	v.SetDefault("PHOTO_TARGET_HEIGHT", 720)
	v.SetDefault("PHOTO_BYTE_BUDGET", 100*1024)
	v.SetDefault("PHOTO_INITIAL_QUALITY", 80)
	v.SetDefault("PHOTO_MIN_QUALITY", 50)
	v.SetDefault("PHOTO_QUALITY_STEP", 10)
	v.SetDefault("SIGNATURE_THRESHOLD", 250)
	v.SetDefault("SIGNATURE_PADDING", 15)
	v.SetDefault("JANITOR_INTERVAL", "6h")
	v.SetDefault("TEMP_MAX_AGE", "15m")

	// Bind env vars explicitly so Unmarshal picks up keys without defaults.
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}
	cfg.PhotoURLPrefix = "/" + strings.Trim(cfg.PhotoURLPrefix, "/")

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// UsesDatabase reports whether the upload log is kept in PostgreSQL.
func (c *Config) UsesDatabase() bool {
	return c.DatabaseURL != ""
}

// Location resolves WATERMARK_TIMEZONE. Empty means the process local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.WatermarkTimezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.WatermarkTimezone)
	if err != nil {
		return nil, fmt.Errorf("WATERMARK_TIMEZONE %q: %w", c.WatermarkTimezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run. Outside development
// a token verifier must be configured: AUTH_SIGNING_KEY for HS256 tokens or
// AUTH_ISSUER/AUTH_JWKS_URL for RS256 tokens, and WATERMARK_FONT_PATH must
// name a font with CJK glyphs.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" && c.AuthJWKSURL == "" && c.AuthIssuer == "" {
		return fmt.Errorf(
			"AUTH_SIGNING_KEY or AUTH_ISSUER must be set when ENV=%q. "+
				"Refusing to start without authentication configuration", c.Env)
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 && c.IsProduction() {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes in production")
	}
	if !c.IsDev() && c.WatermarkFontPath == "" {
		return fmt.Errorf(
			"WATERMARK_FONT_PATH must be set when ENV=%q. "+
				"The embedded font cannot draw CJK captions", c.Env)
	}

	switch c.PhotoStore {
	case "disk":
		if c.PhotoDir == "" {
			return fmt.Errorf("PHOTO_DIR is required when PHOTO_STORE is \"disk\"")
		}
	case "memory":
	default:
		return fmt.Errorf("PHOTO_STORE must be \"disk\" or \"memory\", got %q", c.PhotoStore)
	}

	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive, got %d", c.MaxUploadSize)
	}
	if c.PhotoMinQuality < 1 || c.PhotoInitialQuality > 100 || c.PhotoMinQuality > c.PhotoInitialQuality {
		return fmt.Errorf("photo quality range [%d, %d] is invalid", c.PhotoMinQuality, c.PhotoInitialQuality)
	}
	if c.PhotoQualityStep <= 0 || c.PhotoTargetHeight <= 0 || c.PhotoByteBudget <= 0 {
		return fmt.Errorf("PHOTO_QUALITY_STEP, PHOTO_TARGET_HEIGHT and PHOTO_BYTE_BUDGET must be positive")
	}
	if c.SignatureThreshold < 0 || c.SignatureThreshold > 256 {
		return fmt.Errorf("SIGNATURE_THRESHOLD must be within 0..256, got %d", c.SignatureThreshold)
	}
	if c.SignaturePadding < 0 {
		return fmt.Errorf("SIGNATURE_PADDING must not be negative, got %d", c.SignaturePadding)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	return nil
}
