package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pollhub.org/internal/comments"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(nil))
	if err != nil {
		t.Fatalf("FromLookup: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.GRPCAddr != ":9090" {
		t.Fatalf("unexpected addresses %q %q", cfg.HTTPAddr, cfg.GRPCAddr)
	}
	if !cfg.Moderation.AutoApprove || !cfg.Moderation.AllowSelfModeration {
		t.Fatalf("unexpected moderation defaults %+v", cfg.Moderation)
	}
	if cfg.OrphanPolicy != comments.OrphanKeep || cfg.CommentMaxLength != 2000 || cfg.AuditRingSize != 1000 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.RateLimitRPS != 20 || cfg.RateLimitBurst != 40 || cfg.LogLevel != "info" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestOverridesAndErrors(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"POLLHUB_AUTO_APPROVE":    "false",
		"POLLHUB_SELF_MODERATION": "0",
		"POLLHUB_ORPHAN_POLICY":   "hide",
		"POLLHUB_RATE_LIMIT_RPS":  "2.5",
	}))
	if err != nil {
		t.Fatalf("FromLookup: %v", err)
	}
	if cfg.Moderation.AutoApprove || cfg.Moderation.AllowSelfModeration || cfg.OrphanPolicy != comments.OrphanHide || cfg.RateLimitRPS != 2.5 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}

	_, err = FromLookup(lookupFrom(map[string]string{
		"POLLHUB_AUDIT_RING_SIZE": "lots",
		"POLLHUB_ORPHAN_POLICY":   "reparent",
	}))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "POLLHUB_AUDIT_RING_SIZE") || !strings.Contains(err.Error(), "POLLHUB_ORPHAN_POLICY") {
		t.Fatalf("expected both problems reported, got %v", err)
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("POLLHUB_GRPC_ADDR=:7070\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("POLLHUB_GRPC_ADDR", "")
	os.Unsetenv("POLLHUB_GRPC_ADDR")

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":7070" {
		t.Fatalf("expected value from env file, got %q", cfg.GRPCAddr)
	}
}
