package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"pollhub.org/internal/access"
	"pollhub.org/internal/audit"
	"pollhub.org/internal/auth"
	"pollhub.org/internal/comments"
	"pollhub.org/internal/config"
	"pollhub.org/internal/httpapi"
	"pollhub.org/internal/moderation"
	"pollhub.org/internal/obs"
	"pollhub.org/internal/store/memory"
	"pollhub.org/internal/store/pg"
	"pollhub.org/internal/stream"
	"pollhub.org/internal/votes"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

const redisAuditMaxLen = 10000

// backend bundles the storage collaborators of one deployment mode.
type backend struct {
	profiles   auth.ProfileStore
	writer     auth.ProfileWriter
	privileged auth.ProfileStore
	directory  auth.ProfileDirectory
	content    auth.ContentCounter
	resources  moderation.Store
	comments   comments.Store
	votes      votes.Store
	ready      httpapi.ReadyProbe
	sinks      []audit.Sink
	closers    []func() error
}

func (b *backend) close() {
	for _, c := range b.closers {
		_ = c()
	}
}

func openBackend(cfg config.Config, log logrus.FieldLogger) (*backend, error) {
	if cfg.PGDSN == "" {
		mem := memory.New()
		if cfg.BootstrapAdmin != "" {
			mem.PutProfile(auth.Profile{IdentityID: cfg.BootstrapAdmin, Role: auth.RoleAdministrator, IsActive: true})
		}
		log.Warn("POLLHUB_PG_DSN not set; using in-memory storage")
		return &backend{
			profiles:  mem,
			writer:    mem,
			directory: mem,
			content:   mem,
			resources: mem,
			comments:  mem,
			votes:     mem,
		}, nil
	}

	std, err := pg.Open(cfg.PGDSN)
	if err != nil {
		return nil, err
	}
	b := &backend{
		profiles:  std,
		writer:    std,
		directory: std,
		content:   std,
		resources: std,
		comments:  std,
		votes:     std,
		ready:     httpapi.ReadyProbe{Pinger: std},
		sinks:     []audit.Sink{pg.NewAuditSink(std)},
		closers:   []func() error{std.Close},
	}
	if cfg.PGPrivilegedDSN != "" {
		priv, err := pg.Open(cfg.PGPrivilegedDSN)
		if err != nil {
			b.close()
			return nil, err
		}
		b.privileged = priv
		b.closers = append(b.closers, priv.Close)
	}
	return b, nil
}

func main() {
	log := obs.Logger()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	obs.SetLevel(cfg.LogLevel)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	b, err := openBackend(cfg, log)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer b.close()

	ring, err := audit.NewRingSink(cfg.AuditRingSize)
	if err != nil {
		log.Fatalf("audit ring: %v", err)
	}
	events := stream.New()
	sinks := append(audit.MultiSink{ring, events, audit.NewLogSink()}, b.sinks...)
	var auditLog audit.Reader = ring
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis url: %v", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		rs, err := audit.NewRedisSink(client, "", redisAuditMaxLen)
		if err != nil {
			log.Fatalf("redis audit sink: %v", err)
		}
		sinks = append(sinks, rs)
		auditLog = rs
	}

	tokens, err := auth.NewTokenManager(cfg.AuthSecret, auth.WithIssuer(cfg.TokenIssuer))
	if err != nil {
		log.Fatalf("token manager: %v", err)
	}
	gateOpts := []auth.GateOption{}
	if b.privileged != nil {
		gateOpts = append(gateOpts, auth.WithPrivilegedStore(b.privileged))
	}
	gate, err := auth.NewGate(b.profiles, gateOpts...)
	if err != nil {
		log.Fatalf("profile gate: %v", err)
	}
	rbac, err := auth.NewRBACService(gate, b.writer,
		auth.WithAuditSink(sinks),
		auth.WithDirectory(b.directory),
		auth.WithContentCounter(b.content),
	)
	if err != nil {
		log.Fatalf("rbac: %v", err)
	}
	mod, err := moderation.NewService(b.resources,
		moderation.WithPolicy(cfg.Moderation),
		moderation.WithSink(sinks),
	)
	if err != nil {
		log.Fatalf("moderation: %v", err)
	}
	cs, err := comments.NewService(b.comments, b.resources, gate,
		comments.WithModerationPolicy(cfg.Moderation),
		comments.WithOrphanPolicy(cfg.OrphanPolicy),
		comments.WithMaxLength(cfg.CommentMaxLength),
		comments.WithSink(sinks),
	)
	if err != nil {
		log.Fatalf("comments: %v", err)
	}
	vs, err := votes.NewService(b.votes, b.resources, votes.WithSink(sinks))
	if err != nil {
		log.Fatalf("votes: %v", err)
	}

	api, err := httpapi.New(httpapi.Deps{
		Tokens:     tokens,
		Gate:       gate,
		RBAC:       rbac,
		Moderation: mod,
		Comments:   cs,
		Votes:      vs,
		AuditLog:   auditLog,
		Events:     events,
		Ready:      b.ready,
	}, version, httpapi.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	if err != nil {
		log.Fatalf("http api: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	accessSrv, err := access.NewServer(gate, b.resources)
	if err != nil {
		log.Fatalf("access server: %v", err)
	}
	grpcSrv := grpc.NewServer()
	access.Register(grpcSrv, accessSrv)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, hs)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go access.WatchHealth(ctx, hs, b.ready, 15*time.Second)

	log.WithFields(logrus.Fields{
		"version":   version,
		"http_addr": srv.Addr,
		"grpc_addr": cfg.GRPCAddr,
	}).Info("starting pollhub-api")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()
	go func() {
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Fatalf("grpc serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	grpcSrv.GracefulStop()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("stopped")
}
