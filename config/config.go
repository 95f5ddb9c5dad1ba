// Package config reads service settings from the environment. A .env file in
// the working directory is loaded first when present.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendTables = "tables"
	BackendMongo  = "mongo"
)

// Auth modes.
const (
	AuthLocal = "local"
	AuthJWKS  = "jwks"
)

type Config struct {
	Debug      bool
	ListenAddr string
	BoardID    string

	Backend          string
	StorageConnStr   string
	TasksTable       string
	MetaTable        string
	ChangeQueue      string
	MongoURI         string
	MongoDatabase    string
	RedisConnStr     string
	CacheTTL         time.Duration
	IdempotencyTTL   time.Duration
	UpdatesChannel   string
	RefreshSchedule  string
	CORSAllowOrigins []string

	AuthMode          string
	AuthSecret        string
	AuthIssuer        string
	AuthAudience      string
	AuthDomain        string
	JWKSCacheTTL      time.Duration
	SessionTTL        time.Duration
	AttemptsPerMinute int
}

// Load reads the configuration. Files named in files are loaded into the
// environment first; with none given, .env is tried.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			files = []string{".env"}
		}
	}
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Config{}, fmt.Errorf("load env files: %w", err)
		}
	}

	var errs []error
	cfg := Config{
		ListenAddr:       ":" + envStr("PORT", envStr("FUNCTIONS_CUSTOMHANDLER_PORT", "8080")),
		BoardID:          envStr("BOARD_ID", "default"),
		Backend:          strings.ToLower(envStr("STORE_BACKEND", BackendMemory)),
		StorageConnStr:   os.Getenv("STORAGE_CONNECTION_STRING"),
		TasksTable:       envStr("TASKS_TABLE", "boardtasks"),
		MetaTable:        envStr("BOARD_META_TABLE", "boardmeta"),
		ChangeQueue:      os.Getenv("CHANGE_QUEUE"),
		MongoURI:         os.Getenv("MONGODB_URI"),
		MongoDatabase:    envStr("MONGODB_DATABASE", "taskboard"),
		RedisConnStr:     os.Getenv("REDIS_CONNECTION_STRING"),
		UpdatesChannel:   envStr("BOARD_UPDATES_CHANNEL", "board-updates"),
		RefreshSchedule:  os.Getenv("REFRESH_SCHEDULE"),
		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{"*"}),
		AuthMode:         strings.ToLower(envStr("AUTH_MODE", AuthLocal)),
		AuthSecret:       os.Getenv("LOCAL_AUTH_SHARED_SECRET"),
		AuthIssuer:       envStr("AUTH_ISSUER", "task-board"),
		AuthAudience:     os.Getenv("AUTH0_AUDIENCE"),
		AuthDomain:       os.Getenv("AUTH0_DOMAIN"),
	}
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil {
		cfg.Debug = dbg
	}
	cfg.CacheTTL = envDur("CACHE_TTL", 30*time.Second, &errs)
	cfg.IdempotencyTTL = envDur("IDEMPOTENCY_TTL", 24*time.Hour, &errs)
	cfg.JWKSCacheTTL = envDur("JWKS_CACHE_TTL", 15*time.Minute, &errs)
	cfg.SessionTTL = envDur("SESSION_TTL", 12*time.Hour, &errs)
	cfg.AttemptsPerMinute = envInt("LOGIN_ATTEMPTS_PER_MINUTE", 5, &errs)

	switch cfg.Backend {
	case BackendMemory:
	case BackendTables:
		if cfg.StorageConnStr == "" {
			errs = append(errs, errors.New("STORAGE_CONNECTION_STRING is required for the tables backend"))
		}
	case BackendMongo:
		if cfg.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required for the mongo backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORE_BACKEND %q", cfg.Backend))
	}
	switch cfg.AuthMode {
	case AuthLocal:
		if cfg.AuthSecret == "" {
			errs = append(errs, errors.New("LOCAL_AUTH_SHARED_SECRET must be set when AUTH_MODE=local"))
		}
		if cfg.RedisConnStr == "" {
			errs = append(errs, errors.New("REDIS_CONNECTION_STRING is required when AUTH_MODE=local"))
		}
	case AuthJWKS:
		if cfg.AuthAudience == "" || cfg.AuthDomain == "" {
			errs = append(errs, errors.New("AUTH0_AUDIENCE and AUTH0_DOMAIN are required when AUTH_MODE=jwks"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported AUTH_MODE %q", cfg.AuthMode))
	}
	if cfg.ChangeQueue != "" && cfg.Backend != BackendTables {
		errs = append(errs, errors.New("CHANGE_QUEUE is only used with the tables backend"))
	}
	return cfg, errors.Join(errs...)
}

// RedisOptions parses a redis:// URL or an Azure style
// "host:port,password=...,ssl=True" connection string.
func RedisOptions(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, errors.New("missing redis config")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		*errs = append(*errs, fmt.Errorf("invalid %s: must be a positive integer", key))
		return def
	}
	return n
}

func envDur(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("invalid %s: %q", key, v))
		return def
	}
	return d
}
