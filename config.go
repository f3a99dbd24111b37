package agentauth

import (
	"errors"
	"strings"
	"time"

	"github.com/fieldops/agentauth/jwt"
	"github.com/fieldops/agentauth/password"
)

// Config is the process-wide engine configuration. It is copied into the Engine at
// [Builder.Build] and never read again, so later mutation by the caller has no effect.
type Config struct {
	JWT           JWTConfig
	Password      PasswordConfig
	OTP           OTPConfig
	PasswordReset PasswordResetConfig
	Cache         CacheConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls session token signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default), "hs384", "hs512", "ed25519"
	PrivateKey    []byte // HMAC secret or ed25519 private key
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string

	// BindCredentialVersion makes ValidateToken compare the token's credential version with
	// the stored one, so a password reset invalidates tokens minted before it.
	BindCredentialVersion bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig controls password hashing and policy.
type PasswordConfig struct {
	Algorithm        string // "bcrypt" (default) or "argon2id"
	BcryptCost       int
	Memory           uint32 // argon2id, in KB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MinLength        int
	MaxPasswordBytes int
	UpgradeOnLogin   bool
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls the emailed one-time passcode.
type OTPConfig struct {
	TTL     time.Duration
	CodeMin int
	CodeMax int
	Subject string
	// BodyTemplate may reference {code} and {minutes}.
	BodyTemplate string

	// RollbackOnDeliveryFailure removes the stored challenge when the mailer fails, so a code
	// the agent never received cannot be verified.
	RollbackOnDeliveryFailure bool
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

// PasswordResetConfig controls ResetPassword and RequestPasswordReset.
type PasswordResetConfig struct {
	RequireVerifiedOTP bool
	GrantTTL           time.Duration
	EnumerationSafe    bool
}

// CacheConfig controls the Redis key namespace.
type CacheConfig struct {
	KeyPrefix string
}

// AuditConfig controls async audit dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the defaults. JWT.PrivateKey must still be set before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	argon := password.DefaultArgon2Config()
	return Config{
		JWT: JWTConfig{
			AccessTTL:             600 * time.Second,
			SigningMethod:         string(jwt.MethodHS256),
			BindCredentialVersion: true,
		},
		Password: PasswordConfig{
			Algorithm:        string(password.AlgorithmBcrypt),
			BcryptCost:       10,
			Memory:           argon.Memory,
			Time:             argon.Time,
			Parallelism:      argon.Parallelism,
			SaltLength:       argon.SaltLength,
			KeyLength:        argon.KeyLength,
			MinLength:        1,
			MaxPasswordBytes: password.DefaultMaxPasswordBytes,
			UpgradeOnLogin:   true,
		},
		OTP: OTPConfig{
			TTL:                       300 * time.Second,
			CodeMin:                   1000,
			CodeMax:                   9999,
			Subject:                   "OTP Verification",
			BodyTemplate:              "Your OTP is: {code}, valid for {minutes} minutes",
			RollbackOnDeliveryFailure: true,
		},
		PasswordReset: PasswordResetConfig{
			RequireVerifiedOTP: true,
			GrantTTL:           10 * time.Minute,
			EnumerationSafe:    false,
		},
		Cache: CacheConfig{
			KeyPrefix: "aa",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error, if any.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	method, err := jwt.ParseSigningMethod(c.JWT.SigningMethod)
	if err != nil {
		return errors.New("unsupported JWT signing method")
	}
	switch method {
	case jwt.MethodEd25519:
		if len(c.JWT.PrivateKey) == 0 && len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey or PublicKey")
		}
	default:
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("HMAC signing requires PrivateKey")
		}
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Password
	switch password.Algorithm(c.Password.Algorithm) {
	case password.AlgorithmBcrypt, password.AlgorithmArgon2id:
	default:
		return errors.New("Password Algorithm must be 'bcrypt' or 'argon2id'")
	}
	if c.Password.MinLength < 0 {
		return errors.New("Password MinLength must be >= 0")
	}
	if c.Password.MaxPasswordBytes < 0 {
		return errors.New("Password MaxPasswordBytes must be >= 0")
	}
	if c.Password.MaxPasswordBytes > 0 && c.Password.MinLength > c.Password.MaxPasswordBytes {
		return errors.New("Password MinLength exceeds MaxPasswordBytes")
	}

	// OTP
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.CodeMin < 0 || c.OTP.CodeMax <= c.OTP.CodeMin {
		return errors.New("OTP CodeMax must be > CodeMin >= 0")
	}
	if c.OTP.CodeMax > 0xFFFF {
		return errors.New("OTP CodeMax must be <= 65535")
	}
	if strings.TrimSpace(c.OTP.Subject) == "" {
		return errors.New("OTP Subject is required")
	}
	if !strings.Contains(c.OTP.BodyTemplate, "{code}") {
		return errors.New("OTP BodyTemplate must contain {code}")
	}

	// Password Reset
	if c.PasswordReset.RequireVerifiedOTP && c.PasswordReset.GrantTTL <= 0 {
		return errors.New("PasswordReset GrantTTL must be > 0 when RequireVerifiedOTP is true")
	}

	// Cache
	if strings.TrimSpace(c.Cache.KeyPrefix) == "" {
		return errors.New("Cache KeyPrefix is required")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning is a configuration choice that is valid but weaker than the defaults.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of [Config.Lint].
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports valid-but-risky settings. It never fails; call Validate for hard errors.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if !c.JWT.BindCredentialVersion {
		add("token_not_bound", "tokens stay valid after a password reset until they expire")
	}
	if c.JWT.AccessTTL > time.Hour {
		add("access_ttl_long", "session tokens live longer than one hour")
	}
	if method, err := jwt.ParseSigningMethod(c.JWT.SigningMethod); err == nil && method != jwt.MethodEd25519 && len(c.JWT.PrivateKey) < 32 {
		add("hmac_secret_short", "HMAC secret is shorter than 32 bytes")
	}
	if !c.OTP.RollbackOnDeliveryFailure {
		add("otp_kept_on_delivery_failure", "an undelivered passcode stays verifiable")
	}
	if c.OTP.TTL > 15*time.Minute {
		add("otp_ttl_long", "passcodes live longer than 15 minutes")
	}
	if c.OTP.CodeMax-c.OTP.CodeMin+1 < 9000 {
		add("otp_space_small", "passcode space has fewer than 9000 values")
	}
	if !c.PasswordReset.RequireVerifiedOTP {
		add("reset_without_otp", "ResetPassword does not require a confirmed passcode")
	}
	if !c.PasswordReset.EnumerationSafe {
		add("reset_enumerable", "RequestPasswordReset reveals whether an email is registered")
	}
	if c.Password.Algorithm == string(password.AlgorithmBcrypt) && c.Password.BcryptCost > 0 && c.Password.BcryptCost < 10 {
		add("bcrypt_cost_low", "bcrypt cost is below 10")
	}
	if c.Password.MinLength < 8 {
		add("password_min_length_low", "minimum password length is below 8")
	}

	return ws
}
