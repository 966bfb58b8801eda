// Package identity provides the credential verifiers the hub authenticates
// connections with.
package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wricardo/mcp-training/roomhub/realtime/hub"
)

var (
	ErrEmptyCredential = errors.New("empty credential")
	ErrUnknownToken    = errors.New("unknown token")
	ErrMissingSubject  = errors.New("token has no user id")
)

// Static accepts a fixed set of tokens, each bound to a user id.
type Static struct {
	tokens map[string]string
}

// NewStatic copies tokens (token -> user id).
func NewStatic(tokens map[string]string) *Static {
	s := &Static{tokens: make(map[string]string, len(tokens))}
	for token, user := range tokens {
		s.tokens[token] = user
	}
	return s
}

func (s *Static) Verify(_ context.Context, credential string) (hub.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return hub.Identity{}, ErrEmptyCredential
	}
	for token, user := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(credential)) == 1 {
			return hub.Identity{UserID: user}, nil
		}
	}
	return hub.Identity{}, ErrUnknownToken
}

// Claims are the JWT claims roomhub understands. UserID falls back to the
// registered subject when absent.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// JWT verifies HMAC-signed bearer tokens.
type JWT struct {
	secret []byte
	parser *jwt.Parser
}

// JWTConfig configures a JWT verifier. Issuer and Audience are checked only
// when set.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// NewJWT creates a verifier for tokens signed with cfg.Secret.
func NewJWT(cfg JWTConfig) (*JWT, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}

	return &JWT{secret: []byte(cfg.Secret), parser: jwt.NewParser(opts...)}, nil
}

func (v *JWT) Verify(_ context.Context, credential string) (hub.Identity, error) {
	credential = strings.TrimSpace(strings.TrimPrefix(credential, "Bearer "))
	if credential == "" {
		return hub.Identity{}, ErrEmptyCredential
	}

	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return hub.Identity{}, err
	}
	if !token.Valid {
		return hub.Identity{}, errors.New("invalid token")
	}

	user := claims.UserID
	if user == "" {
		user = claims.Subject
	}
	if user == "" {
		return hub.Identity{}, ErrMissingSubject
	}

	ident := hub.Identity{UserID: user, Claims: map[string]any{}}
	if claims.Issuer != "" {
		ident.Claims["iss"] = claims.Issuer
	}
	if claims.ExpiresAt != nil {
		ident.Claims["exp"] = claims.ExpiresAt.Time
	}
	return ident, nil
}

// Sign issues a token for userID valid for ttl. wsprobe and the tests use it
// to mint credentials.
func Sign(secret, userID, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
