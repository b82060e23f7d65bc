package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultTokenTTL = time.Hour

	RolePublic  = "public"
	RolePrivate = "private"
)

var (
	ErrMissingProjectID  = errors.New("JWT_PROJECT_ID environment variable is required")
	ErrMissingKeyID      = errors.New("JWT_KEY_ID environment variable is required")
	ErrMissingPrivateKey = errors.New("JWT_PRIVATE_KEY environment variable is required")
	ErrTokenExpired      = errors.New("token expired")
	ErrInvalidToken      = errors.New("invalid token")
)

// Config carries the signing material for tokens forwarded to the payments API.
type Config struct {
	ProjectID     string
	KeyID         string
	PrivateKeyPEM string
	TTL           time.Duration
}

// Claims is the JWT body: sub is the entity id, iss the project id.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// ClaimsView is the flat claim shape returned to the browser.
type ClaimsView struct {
	Sub   string   `json:"sub"`
	Iss   string   `json:"iss"`
	Roles []string `json:"roles"`
	Exp   int64    `json:"exp"`
	Iat   int64    `json:"iat"`
}

// IssuedToken is a freshly minted token together with its decoded claims.
type IssuedToken struct {
	JWT       string     `json:"jwt"`
	ExpiresAt string     `json:"expiresAt"`
	Claims    ClaimsView `json:"claims"`
}

type JWTService struct {
	projectID  string
	keyID      string
	ttl        time.Duration
	privateKey *rsa.PrivateKey
	now        func() time.Time
}

// ValidateConfig checks the required settings in the order they are documented.
func ValidateConfig(cfg Config) error {
	if cfg.ProjectID == "" {
		return ErrMissingProjectID
	}
	if cfg.KeyID == "" {
		return ErrMissingKeyID
	}
	if cfg.PrivateKeyPEM == "" {
		return ErrMissingPrivateKey
	}
	return nil
}

func NewJWTService(cfg Config) (*JWTService, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parsing RSA private key: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	return &JWTService{
		projectID:  cfg.ProjectID,
		keyID:      cfg.KeyID,
		ttl:        ttl,
		privateKey: key,
		now:        time.Now,
	}, nil
}

// GenerateToken signs an RS256 token for userID. A nil role list means
// private; an empty one is signed as is.
func (j *JWTService) GenerateToken(userID string, roles []string) (string, error) {
	if roles == nil {
		roles = []string{RolePrivate}
	}

	now := j.now().Truncate(time.Second)
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    j.projectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = j.keyID

	signed, err := token.SignedString(j.privateKey)
	if err != nil {
		return "", fmt.Errorf("JWT generation failed: %w", err)
	}
	return signed, nil
}

// Issue mints a token and decodes it back for display.
func (j *JWTService) Issue(userID string, roles []string) (*IssuedToken, error) {
	signed, err := j.GenerateToken(userID, roles)
	if err != nil {
		return nil, err
	}

	view, err := DecodeToken(signed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode generated JWT: %w", err)
	}

	return &IssuedToken{
		JWT:       signed,
		ExpiresAt: FormatExpiry(view.Exp),
		Claims:    *view,
	}, nil
}

// ValidateToken checks signature, algorithm, issuer and expiry.
func (j *JWTService) ValidateToken(tokenString string) (*ClaimsView, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return &j.privateKey.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(j.projectID),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims.view(), nil
}

// KeyID is the kid placed in every token header.
func (j *JWTService) KeyID() string {
	return j.keyID
}

// PublicJWK returns the verification key in JWK form.
func (j *JWTService) PublicJWK() JWK {
	pub := j.privateKey.PublicKey
	return JWK{
		Kty: "RSA",
		Kid: j.keyID,
		Alg: jwt.SigningMethodRS256.Alg(),
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// JWK is a single RSA public key in RFC 7517 form.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// DecodeToken reads the claims without checking the signature.
func DecodeToken(tokenString string) (*ClaimsView, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.view(), nil
}

// FormatExpiry renders a unix expiry the way browsers print Date.toISOString.
func FormatExpiry(exp int64) string {
	return time.Unix(exp, 0).UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func (c *Claims) view() *ClaimsView {
	v := &ClaimsView{
		Sub:   c.Subject,
		Iss:   c.Issuer,
		Roles: c.Roles,
	}
	if c.ExpiresAt != nil {
		v.Exp = c.ExpiresAt.Unix()
	}
	if c.IssuedAt != nil {
		v.Iat = c.IssuedAt.Unix()
	}
	if v.Roles == nil {
		v.Roles = []string{}
	}
	return v
}
