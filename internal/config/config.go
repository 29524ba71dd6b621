package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"pollhub.org/internal/comments"
	"pollhub.org/internal/moderation"
)

// Config is the process configuration, read from the environment.
type Config struct {
	HTTPAddr         string
	GRPCAddr         string
	PGDSN            string
	PGPrivilegedDSN  string
	AuthSecret       string
	TokenIssuer      string
	RedisURL         string
	AuditRingSize    int
	Moderation       moderation.Policy
	OrphanPolicy     comments.OrphanPolicy
	CommentMaxLength int
	RateLimitRPS     float64
	RateLimitBurst   int
	LogLevel         string
	// BootstrapAdmin is seeded as an active administrator when no database
	// is configured.
	BootstrapAdmin   string
}

// Load reads an optional .env file (a missing file is ignored) and then the
// process environment. Variables already set in the environment win.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary variable source.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	r := reader{lookup: lookup}
	cfg := Config{
		HTTPAddr:        r.str("POLLHUB_HTTP_ADDR", ":8080"),
		GRPCAddr:        r.str("POLLHUB_GRPC_ADDR", ":9090"),
		PGDSN:           r.str("POLLHUB_PG_DSN", ""),
		PGPrivilegedDSN: r.str("POLLHUB_PG_PRIVILEGED_DSN", ""),
		AuthSecret:      r.str("POLLHUB_AUTH_SECRET", ""),
		TokenIssuer:     r.str("POLLHUB_TOKEN_ISSUER", "pollhub"),
		RedisURL:        r.str("POLLHUB_REDIS_URL", ""),
		AuditRingSize:   r.integer("POLLHUB_AUDIT_RING_SIZE", 1000),
		Moderation: moderation.Policy{
			AutoApprove:         r.boolean("POLLHUB_AUTO_APPROVE", true),
			AllowSelfModeration: r.boolean("POLLHUB_SELF_MODERATION", true),
		},
		CommentMaxLength: r.integer("POLLHUB_COMMENT_MAX_LENGTH", comments.DefaultMaxLength),
		RateLimitRPS:     r.number("POLLHUB_RATE_LIMIT_RPS", 20),
		RateLimitBurst:   r.integer("POLLHUB_RATE_LIMIT_BURST", 40),
		LogLevel:         r.str("POLLHUB_LOG_LEVEL", "info"),
		BootstrapAdmin:   r.str("POLLHUB_BOOTSTRAP_ADMIN", ""),
	}
	orphans, err := comments.ParseOrphanPolicy(r.str("POLLHUB_ORPHAN_POLICY", string(comments.OrphanKeep)))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("POLLHUB_ORPHAN_POLICY: %w", err))
	}
	cfg.OrphanPolicy = orphans

	if cfg.AuditRingSize <= 0 {
		r.errs = append(r.errs, errors.New("POLLHUB_AUDIT_RING_SIZE must be positive"))
	}
	if cfg.CommentMaxLength <= 0 {
		r.errs = append(r.errs, errors.New("POLLHUB_COMMENT_MAX_LENGTH must be positive"))
	}
	if cfg.RateLimitRPS <= 0 || cfg.RateLimitBurst <= 0 {
		r.errs = append(r.errs, errors.New("rate limit settings must be positive"))
	}
	if len(r.errs) > 0 {
		return Config{}, errors.Join(r.errs...)
	}
	return cfg, nil
}

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) raw(key string) (string, bool) {
	v, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *reader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (r *reader) number(key string, def float64) float64 {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (r *reader) boolean(key string, def bool) bool {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}
