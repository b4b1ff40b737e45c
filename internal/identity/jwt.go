package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zhouzirui/companion-academy/backend/internal/model/caller"
)

// Claims carries the caller identity and entitlements. Plan and features may
// appear at the top level or under app_metadata, as Supabase issues them.
type Claims struct {
	Plan        string                 `json:"plan,omitempty"`
	Features    []string               `json:"features,omitempty"`
	AppMetadata map[string]interface{} `json:"app_metadata,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider validates HS256 tokens signed with a shared secret.
type JWTProvider struct {
	secret []byte
	issuer string
}

// NewJWTProvider returns a provider verifying tokens with secret. A non-empty
// issuer is enforced on every token.
func NewJWTProvider(secret, issuer string) (*JWTProvider, error) {
	if secret == "" {
		return nil, errors.New("secret key required for HS256")
	}
	return &JWTProvider{secret: []byte(secret), issuer: issuer}, nil
}

// Authenticate validates token and returns its caller.
func (p *JWTProvider) Authenticate(_ context.Context, token string) (caller.Caller, error) {
	if token == "" {
		return caller.Caller{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		return caller.Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return caller.Caller{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	plan, features := claims.Plan, claims.Features
	if metaPlan, metaFeatures := entitlements(claims.AppMetadata); plan == "" && len(features) == 0 {
		plan, features = metaPlan, metaFeatures
	}

	return caller.Caller{UserID: claims.Subject, Plan: plan, Features: features}, nil
}

// Issue signs a token for c valid for ttl.
func (p *JWTProvider) Issue(c caller.Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Plan:     c.Plan,
		Features: c.Features,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   c.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}
