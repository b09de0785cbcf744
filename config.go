package main

import (
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type config struct {
	Debug      bool
	JSONLogs   bool
	ListenAddr string

	Backend     string
	StorePath   string
	StorageConn string
	BoardTable  string
	ChangeQueue string

	RedisConn      string
	CacheTTL       time.Duration
	ChangesChannel string
	DeduperTTL     time.Duration

	WriteQueue   int
	WriteRetries int
	WriteTimeout time.Duration

	AuthSecret   string
	AuthJWKSURL  string
	AuthAudience string
	AuthIssuer   string
	AuthDisabled bool
}

// loadConfig reads the environment through getenv so tests can supply their
// own.
func loadConfig(getenv func(string) string) (config, error) {
	cfg := config{
		ListenAddr:     ":8080",
		Backend:        "memory",
		StorePath:      getenv("STORE_PATH"),
		StorageConn:    getenv("STORAGE_CONNECTION_STRING"),
		BoardTable:     "boards",
		ChangeQueue:    getenv("CHANGES_QUEUE"),
		RedisConn:      getenv("REDIS_CONNECTION_STRING"),
		CacheTTL:       5 * time.Minute,
		ChangesChannel: "board-changes",
		DeduperTTL:     24 * time.Hour,
		WriteQueue:     256,
		WriteRetries:   5,
		WriteTimeout:   10 * time.Second,
		AuthSecret:     getenv("AUTH_SECRET"),
		AuthJWKSURL:    getenv("AUTH_JWKS_URL"),
		AuthAudience:   getenv("AUTH_AUDIENCE"),
		AuthIssuer:     getenv("AUTH_ISSUER"),
	}
	var err error
	if cfg.Debug, err = boolEnv(getenv, "DEBUG"); err != nil {
		return config{}, err
	}
	if cfg.AuthDisabled, err = boolEnv(getenv, "AUTH_DISABLED"); err != nil {
		return config{}, err
	}
	switch strings.ToLower(getenv("LOG_FORMAT")) {
	case "", "text":
	case "json":
		cfg.JSONLogs = true
	default:
		return config{}, fmt.Errorf("invalid LOG_FORMAT %q", getenv("LOG_FORMAT"))
	}
	if v := getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := getenv("FUNCTIONS_CUSTOMHANDLER_PORT"); v != "" {
		cfg.ListenAddr = ":" + v
	}
	if v := getenv("BOARD_TABLE"); v != "" {
		cfg.BoardTable = v
	}
	if v := getenv("CHANGES_CHANNEL"); v != "" {
		cfg.ChangesChannel = v
	}

	if v := getenv("STORE_BACKEND"); v != "" {
		cfg.Backend = strings.ToLower(v)
	}
	switch cfg.Backend {
	case "memory":
	case "file":
		if cfg.StorePath == "" {
			cfg.StorePath = "board.json"
		}
	case "sqlite":
		if cfg.StorePath == "" {
			cfg.StorePath = "board.db"
		}
	case "tables":
		if cfg.StorageConn == "" {
			return config{}, fmt.Errorf("STORE_BACKEND=tables needs STORAGE_CONNECTION_STRING")
		}
	default:
		return config{}, fmt.Errorf("invalid STORE_BACKEND %q", cfg.Backend)
	}
	if cfg.ChangeQueue != "" && cfg.StorageConn == "" {
		return config{}, fmt.Errorf("CHANGES_QUEUE needs STORAGE_CONNECTION_STRING")
	}

	if cfg.CacheTTL, err = durationEnv(getenv, "SNAPSHOT_CACHE_TTL", cfg.CacheTTL); err != nil {
		return config{}, err
	}
	if cfg.DeduperTTL, err = durationEnv(getenv, "DEDUPER_TTL", cfg.DeduperTTL); err != nil {
		return config{}, err
	}
	if cfg.WriteTimeout, err = durationEnv(getenv, "WRITE_TIMEOUT", cfg.WriteTimeout); err != nil {
		return config{}, err
	}
	if cfg.WriteQueue, err = intEnv(getenv, "WRITE_QUEUE", cfg.WriteQueue, 1); err != nil {
		return config{}, err
	}
	if cfg.WriteRetries, err = intEnv(getenv, "WRITE_RETRIES", cfg.WriteRetries, 0); err != nil {
		return config{}, err
	}
	if cfg.WriteRetries == 0 {
		// storage.Options treats 0 as the default.
		cfg.WriteRetries = -1
	}

	if !cfg.AuthDisabled && cfg.AuthSecret == "" && cfg.AuthJWKSURL == "" {
		return config{}, fmt.Errorf("missing auth config: set AUTH_SECRET, AUTH_JWKS_URL or AUTH_DISABLED")
	}
	return cfg, nil
}

func boolEnv(getenv func(string) string, name string) (bool, error) {
	v := getenv(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return b, nil
}

func durationEnv(getenv func(string) string, name string, def time.Duration) (time.Duration, error) {
	v := getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be greater than zero", name)
	}
	return d, nil
}

func intEnv(getenv func(string) string, name string, def, min int) (int, error) {
	v := getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if n < min {
		return 0, fmt.Errorf("invalid %s: must be at least %d", name, min)
	}
	return n, nil
}

// redisOptions accepts a redis:// URL or the Azure style
// "host:port,password=...,ssl=True".
func redisOptions(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
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
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts
}
