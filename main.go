package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"poker-league/config"
	"poker-league/handlers"
	"poker-league/logger"
	"poker-league/metrics"
	"poker-league/middleware"
	"poker-league/models"
	"poker-league/services"
	"poker-league/utils"
	"poker-league/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jonboulle/clockwork"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := logger.Init(); err != nil {
		panic(err)
	}
	log := logger.Named("main")

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal(ctx, "failed to load config", logger.Error(err))
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "unknown log level, keeping info", logger.String("level", cfg.LogLevel))
	}
	if cfg.DatabaseURL == "" {
		log.Fatal(ctx, "database_url is not set")
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal(ctx, "failed to connect to database", logger.Error(err))
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatal(ctx, "failed to migrate database", logger.Error(err))
	}

	var m *metrics.Manager
	if cfg.MetricsEnabled {
		m = metrics.NewManager()
	}

	var notifier services.Notifier = services.NopNotifier{}
	if cfg.NotifyURL != "" {
		notifier = services.NewPushNotifier(cfg.NotifyURL, cfg.NotifyToken)
	}

	var archiver services.ResultArchiver
	if cfg.R2Enabled() {
		r2, err := utils.NewR2Client(ctx, utils.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2AccessKeySecret,
			Bucket:          cfg.R2Bucket,
			CDNBaseURL:      cfg.R2CDNBaseURL,
		})
		if err != nil {
			log.Fatal(ctx, "failed to initialize R2 client", logger.Error(err))
		}
		archiver = services.NewBucketArchiver(r2)
	}

	clock := clockwork.NewRealClock()
	players := services.NewPlayerRepository(db)
	timers := services.NewTimerService(db, clock, notifier, m)
	gameDates := services.NewGameDateService(db, timers, players, archiver, clock, m, cfg.AutoStartClock)
	ledger := services.NewEliminationLedger(db, players, gameDates, clock, m)
	broadcaster := services.NewTimerBroadcaster(timers, clock, cfg.StreamInterval(), m)

	if cfg.SweepInterval() > 0 {
		sched, err := timers.StartTimerSweepScheduler(ctx, cfg.SweepInterval())
		if err != nil {
			log.Fatal(ctx, "failed to start timer sweep", logger.Error(err))
		}
		defer func() { _ = sched.Shutdown() }()
	}

	if cfg.PlayerSyncURL != "" {
		workers.NewPlayerSyncWorker(db, cfg.PlayerSyncURL, cfg.PlayerSyncPath, cfg.GatewayToken, cfg.PlayerSyncInterval()).Start(ctx)
	} else {
		log.Warn(ctx, "player_sync_url not set, players table will not be refreshed")
	}

	app := fiber.New(fiber.Config{
		AppName:               "poker-league",
		DisableStartupMessage: true,
	})

	handlers.SetupSystemRoutes(app, m)

	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken))

	origins := strings.Split(cfg.AllowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(origins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, X-User-ID, X-User-Roles",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupGameDateRoutes(app,
		&handlers.GameDateHandler{GameDates: gameDates, Ledger: ledger},
		&handlers.TimerHandler{Timers: timers, Broadcaster: broadcaster},
	)
	handlers.SetupPlayerRoutes(app, &handlers.PlayerHandler{Players: players})

	go func() {
		if err := app.Listen(cfg.Addr); err != nil {
			log.Error(ctx, "server error", logger.Error(err))
			stop()
		}
	}()
	log.Info(ctx, "server running", logger.String("addr", cfg.Addr))

	<-ctx.Done()
	log.Info(context.Background(), "shutting down server")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error(context.Background(), "shutdown failed", logger.Error(err))
	}
	timers.Wait()
}
