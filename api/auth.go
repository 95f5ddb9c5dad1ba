package api

import (
	"context"
	"errors"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	gocache "github.com/patrickmn/go-cache"
)

const defaultJWKSCacheTTL = 15 * time.Minute

// Principal is the authenticated caller.
type Principal struct {
	UserID  string
	Email   string
	TokenID string
	Token   string
}

// Revocations reports signed out token ids.
type Revocations interface {
	Revoked(ctx context.Context, jti string) (bool, error)
}

// AuthOptions configures token validation. Secret selects HS256 shared
// secret mode; otherwise JWKS must be set for RS256 tokens.
type AuthOptions struct {
	JWKS        *keyfunc.JWKS
	Secret      []byte
	Audience    string
	Issuer      string
	KeyCacheTTL time.Duration
	Revocations Revocations
}

// Auth validates incoming JWT tokens.
type Auth struct {
	opts     AuthOptions
	parser   *jwt.Parser
	keyCache *gocache.Cache
	now      func() time.Time
}

// NewAuth creates a new Auth instance.
func NewAuth(opts AuthOptions) *Auth {
	if opts.KeyCacheTTL == 0 {
		opts.KeyCacheTTL = defaultJWKSCacheTTL
	}
	a := &Auth{opts: opts, now: time.Now}
	if len(opts.Secret) > 0 {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	} else {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
		if opts.KeyCacheTTL > 0 {
			a.keyCache = gocache.New(opts.KeyCacheTTL, 2*opts.KeyCacheTTL)
		}
	}
	return a
}

// PrincipalFromAuthHeader validates the bearer token of an Authorization
// header.
func (a *Auth) PrincipalFromAuthHeader(ctx context.Context, h string) (Principal, error) {
	if h == "" {
		return Principal{}, errMissingAuthorization
	}
	token, err := bearerTokenFromString(h)
	if err != nil {
		return Principal{}, err
	}
	return a.PrincipalFromBearer(ctx, token)
}

// PrincipalFromBearer validates a raw bearer token.
func (a *Auth) PrincipalFromBearer(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, errBadAuthorization
	}
	parsed, err := a.parser.Parse(token, func(t *jwt.Token) (any, error) {
		if len(a.opts.Secret) > 0 {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.opts.Secret, nil
		}
		return a.keyForToken(t)
	})
	if err != nil {
		return Principal{}, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, errors.New("invalid claims")
	}

	now := a.now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return Principal{}, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return Principal{}, errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now, false) {
		return Principal{}, errors.New("token used before issued")
	}
	if a.opts.Audience != "" && !claims.VerifyAudience(a.opts.Audience, false) {
		return Principal{}, errors.New("invalid audience")
	}
	if a.opts.Issuer != "" && !claims.VerifyIssuer(a.opts.Issuer, false) {
		return Principal{}, errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Principal{}, errors.New("missing sub")
	}
	p := Principal{UserID: sub, Token: token}
	p.Email, _ = claims["email"].(string)
	p.TokenID, _ = claims["jti"].(string)

	if a.opts.Revocations != nil && p.TokenID != "" {
		revoked, err := a.opts.Revocations.Revoked(ctx, p.TokenID)
		if err != nil {
			return Principal{}, err
		}
		if revoked {
			return Principal{}, errors.New("token revoked")
		}
	}
	return p, nil
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.opts.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCache != nil {
		if key, ok := a.keyCache.Get(kid); ok {
			return key, nil
		}
	}

	key, err := a.opts.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && a.keyCache != nil {
		a.keyCache.SetDefault(kid, key)
	}
	return key, nil
}
