package agentauth

import (
	"errors"
	"io"
	"log/slog"

	internalaudit "github.com/fieldops/agentauth/internal/audit"
	"github.com/fieldops/agentauth/internal/cache"
	"github.com/fieldops/agentauth/internal/stores"
	"github.com/fieldops/agentauth/jwt"
	"github.com/fieldops/agentauth/password"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder may be used for exactly one Build.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store     CredentialStore
	mailer    Mailer
	logger    *slog.Logger
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The Builder keeps its own copy.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the OTP and reset-grant cache.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the identity store.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithMailer sets the passcode delivery collaborator.
func (b *Builder) WithMailer(mailer Mailer) *Builder {
	b.mailer = mailer
	return b
}

// WithLogger sets the structured logger for operational errors. The default discards.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets where audit events go when Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the ValidateToken latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration, requires a redis client, a credential store and a
// mailer, and returns a ready Engine. Build performs no network I/O.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	// -------- PASSWORD HASHER --------
	hasher, err := password.New(password.Config{
		Algorithm:  password.Algorithm(cfg.Password.Algorithm),
		BcryptCost: cfg.Password.BcryptCost,
		Argon2: password.Argon2Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		},
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}
	dummyHash, err := hasher.Hash("agentauth-timing-equalizer")
	if err != nil {
		return nil, err
	}

	// -------- TOKEN ISSUER --------
	method, err := jwt.ParseSigningMethod(cfg.JWT.SigningMethod)
	if err != nil {
		return nil, err
	}
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: method,
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
	})
	if err != nil {
		return nil, err
	}

	// -------- CHALLENGE CACHE --------
	kv := cache.NewRedis(b.redis, cfg.Cache.KeyPrefix)

	engine := &Engine{
		config:     cloneConfig(cfg),
		store:      b.store,
		mailer:     b.mailer,
		logger:     logger,
		hasher:     hasher,
		dummyHash:  dummyHash,
		jwtManager: jm,
		otpStore:   stores.NewOTPStore(kv),
		grantStore: stores.NewResetGrantStore(kv),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
	}

	b.built = true

	return engine, nil
}
