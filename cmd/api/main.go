package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"authcore.dev/internal/audit"
	"authcore.dev/internal/authz"
	"authcore.dev/internal/httpapi"
	"authcore.dev/internal/obs"
	"authcore.dev/internal/store"
	"authcore.dev/internal/store/pg"
	"authcore.dev/internal/stream"
	"authcore.dev/internal/sweeper"
	"authcore.dev/internal/token"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	// .env is a development convenience; absence is fine.
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	dir, err := authz.LoadDirectory(requireEnv("AUTHCORE_DIRECTORY"))
	if err != nil {
		log.Fatalf("load directory: %v", err)
	}

	issuer, err := buildIssuer()
	if err != nil {
		log.Fatalf("configure token issuer: %v", err)
	}

	var (
		sessions   authz.Store
		auditSink  audit.Store
		readyProbe httpapi.ReadyProbe
		closeStore func()
	)
	if dsn := os.Getenv("AUTHCORE_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		sessions = pgStore
		auditSink = pgStore
		readyProbe = httpapi.ReadyProbe{DB: pgStore.DB()}
		closeStore = func() { _ = pgStore.Close() }
	} else {
		sessions = store.NewMemory()
		auditSink = audit.NewMemoryStore()
		closeStore = func() {}
		log.Println("AUTHCORE_PG_DSN not set, using in-memory store")
	}

	auditor := audit.NewRecorder(auditSink)
	broadcast := stream.New()
	authn := authz.NewAuthenticator(dir, nil, nil, auditor)

	svc, err := authz.NewService(dir, sessions, issuer, authn, auditor, broadcast,
		authz.WithSessionTTL(durationEnv("AUTHCORE_SESSION_TTL", 30*24*time.Hour)),
		authz.WithRefreshTTL(durationEnv("AUTHCORE_REFRESH_TTL", 14*24*time.Hour)),
	)
	if err != nil {
		log.Fatalf("build service: %v", err)
	}

	api := httpapi.New(readyProbe, version, dir, svc, issuer, auditor, broadcast)

	addr := os.Getenv("AUTHCORE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweep := sweeper.New(sessions, durationEnv("AUTHCORE_CLEANUP_INTERVAL", time.Hour))
	go sweep.Run(sweepCtx)

	log.Printf("Starting authcore-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	stopSweep()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	closeStore()
	log.Println("Stopped")
}

func buildIssuer() (*token.Issuer, error) {
	issuerName := os.Getenv("AUTHCORE_ISSUER")
	if issuerName == "" {
		issuerName = "authcore"
	}
	ttl := durationEnv("AUTHCORE_ACCESS_TTL", 15*time.Minute)
	kid := os.Getenv("AUTHCORE_KEY_ID")

	switch strings.ToLower(os.Getenv("AUTHCORE_SIGNING_MODE")) {
	case "", "hs256":
		return token.NewHS256(issuerName, []byte(requireEnv("AUTHCORE_HS256_SECRET")), ttl, token.WithKeyID(kid))
	case "rs256":
		priv, err := os.ReadFile(requireEnv("AUTHCORE_RS256_PRIVATE_KEY"))
		if err != nil {
			return nil, err
		}
		pub, err := os.ReadFile(requireEnv("AUTHCORE_RS256_PUBLIC_KEY"))
		if err != nil {
			return nil, err
		}
		return token.NewRS256(issuerName, string(priv), string(pub), ttl, token.WithKeyID(kid))
	default:
		log.Fatalf("unknown AUTHCORE_SIGNING_MODE %q", os.Getenv("AUTHCORE_SIGNING_MODE"))
		return nil, nil
	}
}

func requireEnv(name string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		log.Fatalf("missing required environment variable %s", name)
	}
	return v
}

func durationEnv(name string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %q", name, raw)
	}
	return d
}
