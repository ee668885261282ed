package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/stridehq/sportiva-adapter/internal/api"
	"github.com/stridehq/sportiva-adapter/internal/gateway"
	"github.com/stridehq/sportiva-adapter/internal/legacy"
	"github.com/stridehq/sportiva-adapter/internal/publisher"
	"github.com/stridehq/sportiva-adapter/internal/rabbitmq"
	"github.com/stridehq/sportiva-adapter/internal/rate"
	intsecrets "github.com/stridehq/sportiva-adapter/internal/secrets"
	"github.com/stridehq/sportiva-adapter/internal/session"
	"github.com/stridehq/sportiva-adapter/internal/sportiva"
	"github.com/stridehq/sportiva-adapter/internal/store"
	"github.com/stridehq/sportiva-adapter/pkg/config"
	"github.com/stridehq/sportiva-adapter/pkg/logger"
	pkgsecrets "github.com/stridehq/sportiva-adapter/pkg/secrets"
	"github.com/stridehq/sportiva-adapter/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [sportiva-adapter]...")
	logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logg.Fatalw("failed to connect to NATS", "error", err)
	}
	defer nc.Drain() //nolint:errcheck

	// --- Secrets cache + AWS Secrets Manager provider ---
	cache := pkgsecrets.NewCache[pkgsecrets.Credentials](cfg.CacheTTL)
	go cache.StartCleaner(cfg.CleanupFreq, ctx.Done())

	awsProvider, err := pkgsecrets.NewAWSProvider(ctx, cfg.AWSRegion)
	if err != nil {
		logg.Fatalw("failed to init AWS provider", "error", err)
	}

	resolver := intsecrets.NewAWSResolver(
		logg.Desugar(),
		cfg.Env,
		awsProvider,
		cache,
	)

	// --- Session store (shared token pair in Redis) ---
	sessions, err := session.NewRedisStore(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err != nil {
		logg.Fatalw("failed to init session store", "error", err)
	}

	// --- Auth manager (service-account login) ---
	authMgr := sportiva.NewAuthManager(logg.Desugar(), cfg.SportivaBaseURL, sessions)

	clubs := parseClubIDs(cfg.ClubIDs)
	if len(clubs) == 0 {
		discovered, derr := resolver.DiscoverClubs(ctx)
		if derr != nil {
			logg.Warnw("club discovery failed", "error", derr)
		}
		clubs = discovered
	}
	if len(clubs) == 0 {
		logg.Fatal("no clubs configured; set CLUB_IDS or provision club secrets")
	}

	login := func(clubID string) error {
		creds, cerr := resolver.Resolve(ctx, clubID)
		if cerr != nil {
			return cerr
		}
		return authMgr.Login(ctx, creds)
	}
	if err := login(clubs[0]); err != nil {
		logg.Fatalw("initial login failed", "club", clubs[0], "error", err)
	}

	// --- Authenticated gateway ---
	gw := gateway.New(logg.Desugar(), cfg.SportivaBaseURL, sessions)
	gw.OnAuthFailure = func(err error) {
		logg.Warnw("session lost; re-login", "error", err)
		if lerr := login(clubs[0]); lerr != nil {
			logg.Errorw("re-login failed", "error", lerr)
		}
	}

	// --- Publisher ---
	pub, err := publisher.New(nc, cfg.OutboundSubject, cfg.ServiceName)
	if err != nil {
		logg.Fatalw("failed to init publisher", "error", err)
	}

	// --- Rate limiter ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: 5,
		Burst:             10,
	})

	// --- Store (Redis + Postgres hybrid) ---
	st, err := store.NewHybrid(cfg.RedisAddr, cfg.RedisDB, cfg.DatabaseURL, store.PGPoolConfig{}, logg.Desugar())
	if err != nil {
		logg.Fatalw("failed to init store", "error", err)
	}
	defer st.Close() //nolint:errcheck

	attendanceWriter := legacy.NewAttendanceWriter(st.(*store.HybridStore).PG, logger.L(), cfg.ServiceName)

	// --- Sportiva service (core adapter logic) ---
	client := sportiva.NewClient(logg.Desugar(), gw, rateMgr)
	svc := sportiva.NewService(logg.Desugar(), client, pub, st, attendanceWriter)

	// --- Command consumer ---
	consumer, err := rabbitmq.NewConsumer(cfg.AMQPURL, cfg.CheckinQueue, cfg.AnnounceQueue, svc, logg.Desugar())
	if err != nil {
		logg.Fatalw("failed to init RabbitMQ consumer", "error", err)
	}
	defer consumer.Close() //nolint:errcheck
	if err := consumer.Start(ctx); err != nil {
		logg.Fatalw("failed to start RabbitMQ consumer", "error", err)
	}

	// --- HTTP API ---
	app := fiber.New()
	clubHandler := api.NewClubHandler(logg.Desugar(), svc, st)
	api.RegisterRoutes(app, nc, st, clubHandler)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	// --- Poller (catalog + attendance sync fallback) ---
	poller := sportiva.NewPoller(logg.Desugar(), svc, cfg.PollInterval)
	go poller.Start(ctx, clubs)

	// --- Live updates stream ---
	stream := sportiva.NewStream(logg.Desugar(), cfg.SportivaWSURL, sessions, svc)
	go stream.Run(ctx)

	logg.Infow("[sportiva-adapter] running",
		"nats", cfg.NATSURL,
		"clubs", clubs,
		"poll_interval", cfg.PollInterval)

	<-ctx.Done()
	stop()
	logg.Info("shutting down [sportiva-adapter]...")
	poller.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app.ShutdownWithContext(shutdownCtx) //nolint:errcheck
}

// parseClubIDs safely splits and trims a comma-separated list of club IDs.
func parseClubIDs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if id := strings.TrimSpace(p); id != "" {
			out = append(out, id)
		}
	}
	return out
}
