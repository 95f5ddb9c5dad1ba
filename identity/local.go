package identity

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// User is a signed-in account.
type User struct {
	ID    string `json:"id" yaml:"id"`
	Email string `json:"email" yaml:"email"`
	Name  string `json:"name,omitempty" yaml:"name"`
}

// Session is an issued sign-in.
type Session struct {
	Token     string    `json:"token"`
	User      User      `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Claims are carried by session tokens.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Config tunes the local provider.
type Config struct {
	Secret     []byte
	Issuer     string
	SessionTTL time.Duration
	// Attempts per minute allowed for one email, with the same burst.
	AttemptsPerMinute int
}

// Local is an email and password provider backed by Redis. Password hashes
// use bcrypt; sessions are HS256 tokens that can be revoked before expiry.
type Local struct {
	redis    *redis.Client
	cfg      Config
	parser   *jwt.Parser
	limiters *gocache.Cache
	now      func() time.Time
}

func NewLocal(client *redis.Client, cfg Config) *Local {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	if cfg.AttemptsPerMinute <= 0 {
		cfg.AttemptsPerMinute = 5
	}
	return &Local{
		redis:    client,
		cfg:      cfg,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
		limiters: gocache.New(10*time.Minute, 20*time.Minute),
		now:      time.Now,
	}
}

// Secret returns the signing key so token validators can share it.
func (l *Local) Secret() []byte { return l.cfg.Secret }

// SignIn checks the credentials and issues a session.
func (l *Local) SignIn(ctx context.Context, email, password string) (Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, err
	}
	if !l.limiter(email).Allow() {
		return Session{}, &Error{Code: CodeTooManyRequests}
	}
	vals, err := l.redis.HGetAll(ctx, userKey(email)).Result()
	if err != nil {
		return Session{}, &Error{Code: CodeUnknown, Err: err}
	}
	if len(vals) == 0 {
		return Session{}, &Error{Code: CodeUserNotFound}
	}
	if vals["disabled"] == "1" {
		return Session{}, &Error{Code: CodeUserDisabled}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(vals["hash"]), []byte(password)); err != nil {
		return Session{}, &Error{Code: CodeWrongPassword}
	}
	user := User{ID: vals["id"], Email: email, Name: vals["name"]}
	sess, err := l.issue(user)
	if err != nil {
		return Session{}, &Error{Code: CodeUnknown, Err: err}
	}
	log.WithField("user", user.ID).Info("user signed in")
	return sess, nil
}

func (l *Local) issue(user User) (Session, error) {
	now := l.now()
	exp := now.Add(l.cfg.SessionTTL)
	claims := Claims{
		Email: user.Email,
		Name:  user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Issuer:    l.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.cfg.Secret)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: user, ExpiresAt: exp}, nil
}

// Parse validates a session token and returns its claims. Revoked tokens are
// rejected.
func (l *Local) Parse(ctx context.Context, token string) (*Claims, error) {
	claims := &Claims{}
	_, err := l.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return l.cfg.Secret, nil
	})
	if err != nil {
		return nil, &Error{Code: CodeInvalidToken, Err: err}
	}
	revoked, err := l.Revoked(ctx, claims.ID)
	if err != nil {
		return nil, &Error{Code: CodeUnknown, Err: err}
	}
	if revoked {
		return nil, &Error{Code: CodeInvalidToken, Err: errors.New("token revoked")}
	}
	return claims, nil
}

// CurrentUser returns the user of a valid session token.
func (l *Local) CurrentUser(ctx context.Context, token string) (User, error) {
	claims, err := l.Parse(ctx, token)
	if err != nil {
		return User{}, err
	}
	return User{ID: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}

// SignOut revokes the token until it would have expired anyway.
func (l *Local) SignOut(ctx context.Context, token string) error {
	claims, err := l.Parse(ctx, token)
	if err != nil {
		return err
	}
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		if d := claims.ExpiresAt.Sub(l.now()); d > 0 {
			ttl = d
		}
	}
	if err := l.redis.Set(ctx, revokedKey(claims.ID), "1", ttl).Err(); err != nil {
		return &Error{Code: CodeUnknown, Err: err}
	}
	log.WithField("user", claims.Subject).Info("user signed out")
	return nil
}

// Revoked reports whether a token id was signed out.
func (l *Local) Revoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	n, err := l.redis.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Account is a user record as imported by operators.
type Account struct {
	Email    string `yaml:"email"`
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
	Disabled bool   `yaml:"disabled"`
}

// PutUser creates or replaces an account. The id of an existing account is
// kept.
func (l *Local) PutUser(ctx context.Context, a Account) (User, error) {
	email, err := normalizeEmail(a.Email)
	if err != nil {
		return User{}, err
	}
	if a.Password == "" {
		return User{}, errors.New("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(a.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	id, err := l.redis.HGet(ctx, userKey(email), "id").Result()
	if err == redis.Nil || id == "" {
		id = uuid.NewString()
	} else if err != nil {
		return User{}, err
	}
	disabled := "0"
	if a.Disabled {
		disabled = "1"
	}
	err = l.redis.HSet(ctx, userKey(email), map[string]any{
		"id":       id,
		"name":     a.Name,
		"hash":     string(hash),
		"disabled": disabled,
	}).Err()
	if err != nil {
		return User{}, err
	}
	return User{ID: id, Email: email, Name: a.Name}, nil
}

func (l *Local) limiter(email string) *rate.Limiter {
	if v, ok := l.limiters.Get(email); ok {
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rate.Limit(float64(l.cfg.AttemptsPerMinute)/60), l.cfg.AttemptsPerMinute)
	if err := l.limiters.Add(email, lim, gocache.DefaultExpiration); err != nil {
		if v, ok := l.limiters.Get(email); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", &Error{Code: CodeInvalidEmail, Err: err}
	}
	return email, nil
}

func userKey(email string) string {
	return "user:" + email
}

func revokedKey(jti string) string {
	return "revoked:" + jti
}
