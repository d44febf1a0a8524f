package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codesan-git/blasting-be/internal/audit"
	"github.com/codesan-git/blasting-be/internal/auth"
	"github.com/codesan-git/blasting-be/internal/blast"
	"github.com/codesan-git/blasting-be/internal/config"
	"github.com/codesan-git/blasting-be/internal/dispatch"
	"github.com/codesan-git/blasting-be/internal/httpapi"
	"github.com/codesan-git/blasting-be/internal/messagelog"
	"github.com/codesan-git/blasting-be/internal/migrate"
	"github.com/codesan-git/blasting-be/internal/obs"
	"github.com/codesan-git/blasting-be/internal/retention"
	"github.com/codesan-git/blasting-be/internal/store/pg"
	"github.com/codesan-git/blasting-be/internal/webhook"
)

var version = "0.3.0"

func main() {
	obs.Init()
	cfg := config.Load()

	if cfg.PostgresDSN == "" {
		log.Fatal("BLAST_PG_DSN is required")
	}
	if cfg.AuthSecret == "" {
		log.Fatal("BLAST_AUTH_SECRET is required")
	}

	store, err := pg.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	mgr := migrate.NewManager(store.DB(), cfg.MigrationsDir, cfg.SeedsDir)
	if err := mgr.Up(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	if err := mgr.Seed(ctx); err != nil {
		log.Fatalf("seeds: %v", err)
	}

	audit.AttachSink(store)

	perms, err := auth.NewPermissionService(store.RolePermissions(ctx))
	if err != nil {
		log.Fatalf("permission service: %v", err)
	}
	authSvc, err := auth.NewService(store, perms, cfg.AuthSecret,
		auth.WithAccessTTL(cfg.AccessTokenTTL),
		auth.WithRefreshTTL(cfg.RefreshTokenTTL),
		auth.WithMaxSuperAdmins(cfg.MaxSuperAdmins),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	if err := bootstrapSuperAdmin(ctx, authSvc); err != nil {
		log.Fatalf("bootstrap super admin: %v", err)
	}

	logs := store.MessageLogs()
	tracker, err := messagelog.NewTracker(logs)
	if err != nil {
		log.Fatalf("tracker: %v", err)
	}

	jobQueue := store.JobQueue()
	templates := store.Templates()
	blastSvc, err := blast.NewService(jobQueue, logs, templates)
	if err != nil {
		log.Fatalf("blast service: %v", err)
	}

	poolCtx, stopPools := context.WithCancel(ctx)
	var pools []*dispatch.Pool
	for _, channel := range messagelog.AllChannels {
		pool, err := dispatch.NewPool(channel, jobQueue, tracker, dispatch.NewDevSender(channel), dispatch.Config{
			Concurrency: cfg.WorkerConcurrency,
			PerSecond:   cfg.DispatchPerSecond,
			BaseBackoff: cfg.RetryBaseBackoff,
		})
		if err != nil {
			log.Fatalf("worker pool %s: %v", channel, err)
		}
		pool.Start(poolCtx)
		pools = append(pools, pool)
	}

	channels := make([]string, 0, len(messagelog.AllChannels))
	for _, c := range messagelog.AllChannels {
		channels = append(channels, string(c))
	}
	retentionSvc := retention.NewService(logs, store.APILogs(), store.SystemLogs(), jobQueue, channels, cfg.RetentionDays)
	if err := retentionSvc.Start(retention.DefaultSchedule); err != nil {
		log.Fatalf("retention scheduler: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, version, httpapi.Deps{
		Auth:      authSvc,
		Blast:     blastSvc,
		Templates: templates,
		Logs:      logs,
		APILogs:   store.APILogs(),
		Retention: retentionSvc,
		Webhook:   webhook.NewProcessor(tracker),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting blasting-api %s on %s", version, srv.Addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	retentionSvc.Stop()
	stopPools()
	for _, pool := range pools {
		pool.Stop()
	}
	log.Println("Stopped")
}

// bootstrapSuperAdmin creates the first super admin from the environment when
// the user table is empty. Without it a fresh deployment has no way in.
func bootstrapSuperAdmin(ctx context.Context, svc *auth.Service) error {
	email := os.Getenv("BLAST_BOOTSTRAP_EMAIL")
	password := os.Getenv("BLAST_BOOTSTRAP_PASSWORD")
	if email == "" || password == "" {
		return nil
	}
	users, err := svc.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}
	_, err = svc.Register(ctx, auth.RegisterInput{
		Email:    email,
		Name:     "Bootstrap Admin",
		Password: password,
		Roles:    []string{auth.RoleSuperAdmin},
	})
	if err != nil {
		return err
	}
	log.Printf("Bootstrapped super admin %s", email)
	return nil
}
