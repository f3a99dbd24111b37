package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod defines a public type used by agentauth APIs.
type SigningMethod string

const (
	// MethodHS256 signs with HMAC-SHA256 over a shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodHS384 signs with HMAC-SHA384 over a shared secret.
	MethodHS384 SigningMethod = "hs384"
	// MethodHS512 signs with HMAC-SHA512 over a shared secret.
	MethodHS512 SigningMethod = "hs512"
	// MethodEd25519 signs with an Ed25519 private key and verifies with its public key.
	MethodEd25519 SigningMethod = "ed25519"
)

const (
	minHMACKeyBytes = 16
	maxFutureIAT    = 10 * time.Minute
)

// ParseSigningMethod accepts the lowercase names above as well as JOSE names such as "HS256"
// and "EdDSA", matching how the algorithm is usually written in environment files.
func ParseSigningMethod(s string) (SigningMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hs256":
		return MethodHS256, nil
	case "hs384":
		return MethodHS384, nil
	case "hs512":
		return MethodHS512, nil
	case "ed25519", "eddsa":
		return MethodEd25519, nil
	default:
		return "", fmt.Errorf("unsupported signing method %q", s)
	}
}

// Config defines a public type used by agentauth APIs.
//
// For HMAC methods PrivateKey holds the shared secret and PublicKey is ignored.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

// Manager defines a public type used by agentauth APIs.
//
// Manager instances are immutable after NewManager and safe for concurrent use.
type Manager struct {
	config    Config
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
}

// Claims is the signed session payload. Subject carries the agent email.
type Claims struct {
	AgentUID          string `json:"uid,omitempty"`
	CredentialVersion uint32 `json:"cv"`
	jwt.RegisteredClaims
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager validates the key material for the selected method once, so Issue and Parse never
// re-parse keys on the request path.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg}

	switch cfg.SigningMethod {
	case MethodHS256, MethodHS384, MethodHS512:
		if len(cfg.PrivateKey) < minHMACKeyBytes {
			return nil, fmt.Errorf("%s requires a secret of at least %d bytes", cfg.SigningMethod, minHMACKeyBytes)
		}
		secret := append([]byte(nil), cfg.PrivateKey...)
		m.signKey = secret
		m.verifyKey = secret
		switch cfg.SigningMethod {
		case MethodHS384:
			m.method = jwt.SigningMethodHS384
		case MethodHS512:
			m.method = jwt.SigningMethodHS512
		default:
			m.method = jwt.SigningMethodHS256
		}
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.signKey = priv
			m.verifyKey = priv.Public().(ed25519.PublicKey)
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verifyKey = pub
		}
		if m.verifyKey == nil {
			return nil, errors.New("ed25519 requires a private or public key")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return m, nil
}

// TTL returns the configured token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.config.AccessTTL
}

// Issue describes the issue operation and its observable behavior.
//
// Issue signs {sub, uid, cv, iat, exp = iat + AccessTTL} and returns the token with its
// absolute expiry. Managers built with only a public key cannot issue.
func (m *Manager) Issue(subject, agentUID string, credentialVersion uint32) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("token subject required")
	}
	if m.signKey == nil {
		return "", time.Time{}, errors.New("manager has no signing key")
	}

	now := time.Now()
	expiresAt := now.Add(m.config.AccessTTL)

	claims := Claims{
		AgentUID:          agentUID,
		CredentialVersion: credentialVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}

	signed, err := token.SignedString(m.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	// The exp claim has second precision; report what the token actually carries.
	return signed, claims.ExpiresAt.Time, nil
}

// Parse describes the parse operation and its observable behavior.
//
// Parse accepts only the configured algorithm, requires exp and iat, and enforces issuer,
// audience, and kid when configured.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if m.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != m.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return m.verifyKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return nil, errors.New("token subject missing")
	}
	if claims.IssuedAt == nil || claims.IssuedAt.Time.After(time.Now().Add(maxFutureIAT)) {
		return nil, errors.New("token iat too far in the future")
	}

	return claims, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
