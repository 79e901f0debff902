package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the algorithm used to sign and verify credentials.
type SigningMethod string

const (
	// MethodEd25519 signs with an Ed25519 private key (EdDSA). Default.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodRS256 signs with an RSA private key (RS256).
	MethodRS256 SigningMethod = "rs256"
	// MethodHS256 signs with a shared secret. Intended for tests and local development.
	MethodHS256 SigningMethod = "hs256"
)

// Kind tags a credential as access or refresh. It is carried in the signed
// payload and checked explicitly after signature and expiry verification.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var (
	// ErrMalformed is returned when a token cannot be decoded or lacks required claims.
	ErrMalformed = errors.New("jwt: malformed token")
	// ErrInvalidSignature is returned when the signature, algorithm, issuer or audience does not verify.
	ErrInvalidSignature = errors.New("jwt: invalid signature")
	// ErrExpired is returned when a correctly signed token is past its expiry.
	ErrExpired = errors.New("jwt: token expired")
	// ErrWrongKind is returned by VerifyKind when the token verifies but carries another kind.
	ErrWrongKind = errors.New("jwt: wrong token kind")
	// ErrNoSigningKey is returned by Sign on a verify-only manager.
	ErrNoSigningKey = errors.New("jwt: no signing key configured")
)

// Config holds issuer settings. PrivateKey and PublicKey accept raw Ed25519
// key bytes or PEM; RS256 keys must be PEM. For HS256 PrivateKey is the secret.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string

	// Now overrides the clock used for iat/exp and for verification.
	Now func() time.Time
}

// Identity is what a credential asserts about its holder.
type Identity struct {
	Subject    string
	Email      string
	Permission string
}

// Claims is the signed credential payload.
type Claims struct {
	Email      string `json:"email,omitempty"`
	Permission string `json:"permission"`
	Kind       Kind   `json:"type"`
	jwt.RegisteredClaims
}

// Pair is an access credential and its matching refresh credential.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// Manager signs and verifies credentials. A Manager is immutable after
// NewManager and safe for concurrent use.
type Manager struct {
	config    Config
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
}

// NewManager validates cfg and parses key material once.
//
// A manager configured with only a public key can verify but not sign.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL must not be shorter than access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodEd25519
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
		m.method = jwt.SigningMethodHS256
		m.signKey = cfg.PrivateKey
		m.verifyKey = cfg.PrivateKey
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.signKey = priv
			m.verifyKey = priv.Public()
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verifyKey = pub
		}
	case MethodRS256:
		m.method = jwt.SigningMethodRS256
		if len(cfg.PrivateKey) > 0 {
			priv, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKey)
			if err != nil {
				return nil, errors.New("invalid rsa private key")
			}
			m.signKey = priv
			m.verifyKey = &priv.PublicKey
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := jwt.ParseRSAPublicKeyFromPEM(cfg.PublicKey)
			if err != nil {
				return nil, errors.New("invalid rsa public key")
			}
			m.verifyKey = pub
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if m.verifyKey == nil {
		return nil, fmt.Errorf("%s requires public key or private key", cfg.SigningMethod)
	}

	return m, nil
}

// CanSign reports whether the manager holds a private key.
func (m *Manager) CanSign() bool {
	return m.signKey != nil
}

// TTL returns the configured lifetime for kind.
func (m *Manager) TTL(kind Kind) time.Duration {
	if kind == KindRefresh {
		return m.config.RefreshTTL
	}
	return m.config.AccessTTL
}

// Sign mints a credential for identity. A non-positive ttl selects the
// configured lifetime for kind. Every token carries a fresh jti, so two
// tokens minted within the same second never compare equal.
func (m *Manager) Sign(identity Identity, kind Kind, ttl time.Duration) (string, error) {
	if m.signKey == nil {
		return "", ErrNoSigningKey
	}
	if identity.Subject == "" {
		return "", errors.New("jwt: empty subject")
	}
	if kind != KindAccess && kind != KindRefresh {
		return "", fmt.Errorf("jwt: unknown kind %q", kind)
	}
	if ttl <= 0 {
		ttl = m.TTL(kind)
	}

	now := m.config.Now()
	claims := Claims{
		Email:      identity.Email,
		Permission: identity.Permission,
		Kind:       kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
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
	return token.SignedString(m.signKey)
}

// IssuePair mints an access and a refresh credential for the same identity.
func (m *Manager) IssuePair(identity Identity) (Pair, error) {
	access, err := m.Sign(identity, KindAccess, 0)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := m.Sign(identity, KindRefresh, 0)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// Verify checks signature, algorithm, issuer, audience and expiry, and
// returns the decoded claims. Failures are reported as ErrMalformed,
// ErrInvalidSignature or ErrExpired. The kind is not checked here.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.config.Now),
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
			if kid, _ := t.Header["kid"].(string); kid != m.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return m.verifyKey, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}
	if claims.Subject == "" || claims.Kind == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

// VerifyKind is Verify followed by an explicit kind check.
func (m *Manager) VerifyKind(tokenStr string, kind Kind) (*Claims, error) {
	claims, err := m.Verify(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, ErrWrongKind
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrMalformed
	}
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
