// Package config loads the agentauth-server configuration: defaults, an optional TOML
// file, then environment overrides. The result is validated once and passed explicitly.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/fieldops/agentauth"
	"github.com/fieldops/agentauth/internal/logging"
	"github.com/fieldops/agentauth/jwt"
)

// Duration is a time.Duration that decodes from "90s" style strings.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the server configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	JWT      JWTConfig      `toml:"jwt"`
	Mail     MailConfig     `toml:"mail"`
	Auth     AuthConfig     `toml:"auth"`
}

type ServerConfig struct {
	Addr            string   `toml:"addr"`
	ReadTimeout     Duration `toml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout"`
	IdleTimeout     Duration `toml:"idle_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// DatabaseConfig selects the credential store. A postgres:// URL selects PostgreSQL;
// anything else is treated as a SQLite file path.
type DatabaseConfig struct {
	URL string `toml:"url"`
}

type RedisConfig struct {
	URL       string `toml:"url"`
	KeyPrefix string `toml:"key_prefix"`
}

type JWTConfig struct {
	Secret    string   `toml:"secret"`
	Algorithm string   `toml:"algorithm"`
	AccessTTL Duration `toml:"access_ttl"`
	Issuer    string   `toml:"issuer"`
	Audience  string   `toml:"audience"`
}

// MailConfig configures SMTP delivery. An empty Host selects the log mailer.
type MailConfig struct {
	Host     string   `toml:"host"`
	Port     int      `toml:"port"`
	Sender   string   `toml:"sender"`
	Username string   `toml:"username"`
	Password string   `toml:"password"`
	StartTLS bool     `toml:"starttls"`
	Timeout  Duration `toml:"timeout"`
}

type AuthConfig struct {
	OTPTTL             Duration `toml:"otp_ttl"`
	ResetGrantTTL      Duration `toml:"reset_grant_ttl"`
	EnumerationSafe    bool     `toml:"enumeration_safe"`
	RequireVerifiedOTP bool     `toml:"require_verified_otp"`
	BindTokens         bool     `toml:"bind_tokens"`
	BcryptCost         int      `toml:"bcrypt_cost"`
	MinPasswordLength  int      `toml:"min_password_length"`
	AuditEnabled       bool     `toml:"audit_enabled"`
	MetricsEnabled     bool     `toml:"metrics_enabled"`
}

// Default returns the server defaults. JWT.Secret has no default.
func Default() *Config {
	engine := agentauth.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration{10 * time.Second},
			WriteTimeout:    Duration{15 * time.Second},
			IdleTimeout:     Duration{60 * time.Second},
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Log: LogConfig{
			Level: "info",
		},
		Database: DatabaseConfig{
			URL: "agentauth.db",
		},
		Redis: RedisConfig{
			URL:       "redis://localhost:6379/0",
			KeyPrefix: engine.Cache.KeyPrefix,
		},
		JWT: JWTConfig{
			Algorithm: engine.JWT.SigningMethod,
			AccessTTL: Duration{engine.JWT.AccessTTL},
		},
		Mail: MailConfig{
			Port:     587,
			StartTLS: true,
			Timeout:  Duration{10 * time.Second},
		},
		Auth: AuthConfig{
			OTPTTL:             Duration{engine.OTP.TTL},
			ResetGrantTTL:      Duration{engine.PasswordReset.GrantTTL},
			EnumerationSafe:    engine.PasswordReset.EnumerationSafe,
			RequireVerifiedOTP: engine.PasswordReset.RequireVerifiedOTP,
			BindTokens:         engine.JWT.BindCredentialVersion,
			BcryptCost:         engine.Password.BcryptCost,
			MinPasswordLength:  engine.Password.MinLength,
			AuditEnabled:       true,
			MetricsEnabled:     true,
		},
	}
}

// Load builds the configuration: defaults, then the TOML file at path (skipped when
// path is empty), then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.fillDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTOML overlays the file at path onto cfg. Keys absent from the file keep their
// current values.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnvOverrides reads the environment. The unprefixed names are the ones existing
// deployments already set; everything else uses the AGENTAUTH_ prefix.
func (c *Config) ApplyEnvOverrides() error {
	var errs []error

	setString(&c.JWT.Secret, "JWT_SECRET")
	setString(&c.JWT.Algorithm, "JWT_ALGORITHM")
	setString(&c.Mail.Sender, "SENDER_MAIL")
	setString(&c.Mail.Host, "EMAIL_HOST")
	setString(&c.Mail.Username, "EMAIL_HOST_USER")
	setString(&c.Mail.Password, "EMAIL_HOST_PASSWORD")
	setString(&c.Redis.URL, "REDIS_URL")
	setString(&c.Database.URL, "DATABASE_URL")
	errs = append(errs, setInt(&c.Mail.Port, "EMAIL_PORT"))

	setString(&c.Server.Addr, "AGENTAUTH_ADDR")
	setString(&c.Log.Level, "AGENTAUTH_LOG_LEVEL")
	setString(&c.Redis.KeyPrefix, "AGENTAUTH_REDIS_PREFIX")
	setString(&c.JWT.Issuer, "AGENTAUTH_JWT_ISSUER")
	setString(&c.JWT.Audience, "AGENTAUTH_JWT_AUDIENCE")
	errs = append(errs,
		setDuration(&c.JWT.AccessTTL, "AGENTAUTH_ACCESS_TTL"),
		setDuration(&c.Auth.OTPTTL, "AGENTAUTH_OTP_TTL"),
		setDuration(&c.Auth.ResetGrantTTL, "AGENTAUTH_RESET_GRANT_TTL"),
		setBool(&c.Mail.StartTLS, "AGENTAUTH_MAIL_STARTTLS"),
		setBool(&c.Auth.EnumerationSafe, "AGENTAUTH_ENUMERATION_SAFE"),
		setBool(&c.Auth.RequireVerifiedOTP, "AGENTAUTH_REQUIRE_VERIFIED_OTP"),
		setBool(&c.Auth.BindTokens, "AGENTAUTH_BIND_TOKENS"),
		setBool(&c.Auth.AuditEnabled, "AGENTAUTH_AUDIT"),
		setBool(&c.Auth.MetricsEnabled, "AGENTAUTH_METRICS"),
		setInt(&c.Auth.BcryptCost, "AGENTAUTH_BCRYPT_COST"),
		setInt(&c.Auth.MinPasswordLength, "AGENTAUTH_MIN_PASSWORD_LENGTH"),
	)

	return errors.Join(errs...)
}

// fillDerived sets values that follow from others. Relays authenticate as the sender
// unless a separate user is configured.
func (c *Config) fillDerived() {
	if c.Mail.Username == "" && c.Mail.Password != "" {
		c.Mail.Username = c.Mail.Sender
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	dst.Duration = d
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError is one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is every invalid setting found by Validate.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Fields returns the offending field names in order.
func (e ValidateErrors) Fields() []string {
	out := make([]string, 0, len(e))
	for _, err := range e {
		out = append(out, err.Field)
	}
	return out
}

// Validate reports every invalid setting, or nil. Settings the engine owns are checked
// again by agentauth.Config.Validate at Build.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	if strings.TrimSpace(c.Server.Addr) == "" {
		add("server.addr", "is required")
	}
	if c.Server.ShutdownTimeout.Duration <= 0 {
		add("server.shutdown_timeout", "must be > 0")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		add("log.level", err.Error())
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		add("database.url", "is required")
	}
	if c.Redis.URL == "" {
		add("redis.url", "is required")
	} else if u, err := url.Parse(c.Redis.URL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
		add("redis.url", "must be a redis:// or rediss:// URL")
	}

	method, err := jwt.ParseSigningMethod(c.JWT.Algorithm)
	switch {
	case err != nil:
		add("jwt.algorithm", fmt.Sprintf("unsupported algorithm %q", c.JWT.Algorithm))
	case method == jwt.MethodEd25519:
		add("jwt.algorithm", "ed25519 keys are not configurable from the server; use an HMAC algorithm")
	}
	if c.JWT.Secret == "" {
		add("jwt.secret", "is required (JWT_SECRET)")
	}
	if c.JWT.AccessTTL.Duration <= 0 {
		add("jwt.access_ttl", "must be > 0")
	}

	if c.Mail.Host != "" {
		if c.Mail.Port <= 0 || c.Mail.Port > 65535 {
			add("mail.port", "must be between 1 and 65535")
		}
		if c.Mail.Sender == "" {
			add("mail.sender", "is required when mail.host is set (SENDER_MAIL)")
		}
	}

	if c.Auth.OTPTTL.Duration <= 0 {
		add("auth.otp_ttl", "must be > 0")
	}
	if c.Auth.RequireVerifiedOTP && c.Auth.ResetGrantTTL.Duration <= 0 {
		add("auth.reset_grant_ttl", "must be > 0 when require_verified_otp is set")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		add("auth.bcrypt_cost", "must be between 4 and 31")
	}
	if c.Auth.MinPasswordLength < 0 {
		add("auth.min_password_length", "must be >= 0")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// LogLevel returns the parsed log level. Call after Validate.
func (c *Config) LogLevel() slog.Level {
	lvl, _ := logging.ParseLevel(c.Log.Level)
	return lvl
}

// UsesPostgres reports whether Database.URL selects the PostgreSQL store.
func (c *Config) UsesPostgres() bool {
	u, err := url.Parse(c.Database.URL)
	if err != nil {
		return false
	}
	return u.Scheme == "postgres" || u.Scheme == "postgresql"
}

// EngineConfig maps the server settings onto the engine configuration.
func (c *Config) EngineConfig() agentauth.Config {
	cfg := agentauth.DefaultConfig()

	cfg.JWT.PrivateKey = []byte(c.JWT.Secret)
	cfg.JWT.SigningMethod = c.JWT.Algorithm
	cfg.JWT.AccessTTL = c.JWT.AccessTTL.Duration
	cfg.JWT.Issuer = c.JWT.Issuer
	cfg.JWT.Audience = c.JWT.Audience
	cfg.JWT.BindCredentialVersion = c.Auth.BindTokens

	cfg.Password.BcryptCost = c.Auth.BcryptCost
	cfg.Password.MinLength = c.Auth.MinPasswordLength

	cfg.OTP.TTL = c.Auth.OTPTTL.Duration
	cfg.PasswordReset.GrantTTL = c.Auth.ResetGrantTTL.Duration
	cfg.PasswordReset.RequireVerifiedOTP = c.Auth.RequireVerifiedOTP
	cfg.PasswordReset.EnumerationSafe = c.Auth.EnumerationSafe

	if c.Redis.KeyPrefix != "" {
		cfg.Cache.KeyPrefix = c.Redis.KeyPrefix
	}
	cfg.Audit.Enabled = c.Auth.AuditEnabled
	cfg.Metrics.Enabled = c.Auth.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = c.Auth.MetricsEnabled

	return cfg
}
