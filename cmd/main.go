package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/ShedrackAmodu/school-comm-service/internal/cache"
	"github.com/ShedrackAmodu/school-comm-service/internal/config"
	"github.com/ShedrackAmodu/school-comm-service/internal/directory"
	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
	"github.com/ShedrackAmodu/school-comm-service/internal/gateway"
	"github.com/ShedrackAmodu/school-comm-service/internal/middleware"
	"github.com/ShedrackAmodu/school-comm-service/internal/notify"
	"github.com/ShedrackAmodu/school-comm-service/internal/registry"
	"github.com/ShedrackAmodu/school-comm-service/internal/repository"
	"github.com/ShedrackAmodu/school-comm-service/internal/room"
	"github.com/ShedrackAmodu/school-comm-service/internal/router"
	"github.com/ShedrackAmodu/school-comm-service/pkg/database"
	pkgjwt "github.com/ShedrackAmodu/school-comm-service/pkg/jwt"
	pkglog "github.com/ShedrackAmodu/school-comm-service/pkg/log"
	"github.com/ShedrackAmodu/school-comm-service/pkg/pubsub"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: "school-comm-service"})
	logger := pkglog.L()

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("instance_id", cfg.Server.InstanceID).
		Msg("starting school-comm-service")

	// Pick the persistence backend
	var (
		db          *gorm.DB
		roomRepo    repository.RoomRepository
		messageRepo repository.MessageRepository
		noteRepo    repository.NotificationRepository
		prefRepo    repository.PreferenceRepository
	)
	switch cfg.Storage.Driver {
	case "", "memory":
		roomRepo = repository.NewMemoryRoomRepository()
		messageRepo = repository.NewMemoryMessageRepository()
		noteRepo = repository.NewMemoryNotificationRepository()
		prefRepo = repository.NewMemoryPreferenceRepository()
		logger.Info().Msg("using in-memory storage")
	default:
		db, err = database.New(&database.Config{
			Driver:          cfg.Storage.Driver,
			Host:            cfg.Storage.Database.Host,
			Port:            cfg.Storage.Database.Port,
			User:            cfg.Storage.Database.User,
			Password:        cfg.Storage.Database.Password,
			DBName:          cfg.Storage.Database.DBName,
			SSLMode:         cfg.Storage.Database.SSLMode,
			FilePath:        cfg.Storage.Database.FilePath,
			MaxIdleConns:    cfg.Storage.Database.MaxIdleConns,
			MaxOpenConns:    cfg.Storage.Database.MaxOpenConns,
			ConnMaxLifetime: cfg.Storage.Database.ConnMaxLifetime,
		})
		if err != nil {
			logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("failed to connect to database")
		}
		if err := database.AutoMigrate(db,
			&domain.RoomModel{},
			&domain.ParticipantModel{},
			&domain.MessageModel{},
			&domain.MessageReadModel{},
			&domain.NotificationModel{},
			&domain.PreferencesModel{},
		); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		roomRepo = repository.NewGormRoomRepository(db)
		messageRepo = repository.NewGormMessageRepository(db)
		noteRepo = repository.NewGormNotificationRepository(db)
		prefRepo = repository.NewGormPreferenceRepository(db)
		logger.Info().Str("driver", cfg.Storage.Driver).Msg("using database storage")
	}

	// Message history can live on Cassandra while everything else stays
	// on the relational store.
	if cfg.Storage.MessageStore == "cassandra" {
		cassRepo, err := repository.NewCassandraMessageRepository(cfg.Cassandra)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to cassandra")
		}
		defer cassRepo.Close()
		messageRepo = cassRepo
		logger.Info().Strs("hosts", cfg.Cassandra.Hosts).Msg("message history on cassandra")
	}

	// Optional read-through cache for room history
	var historyCache cache.HistoryCache
	if cfg.Cache.Enabled {
		redisCache, err := cache.NewRedisHistoryCache(cfg.Cache)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to history cache")
		}
		defer redisCache.Close()
		historyCache = redisCache
		logger.Info().Str("address", cfg.Cache.Address).Msg("history cache enabled")
	}

	// Session registry and frame router
	reg := registry.New()
	rt := router.NewLocal(reg, router.Config{
		SendTimeout: cfg.WebSocket.SendTimeout,
		InstanceID:  cfg.Server.InstanceID,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cross-instance bridge so frames reach sessions on peer instances
	var bridge *router.PubSubBridge
	if cfg.Bridge.Driver != "" && cfg.Bridge.Driver != "local" {
		bus, err := pubsub.NewPubSub(cfg.Bridge)
		if err != nil {
			logger.Fatal().Err(err).Str("driver", cfg.Bridge.Driver).Msg("failed to create bridge bus")
		}
		bridge = router.NewPubSubBridge(bus, cfg.Server.InstanceID, rt)
		rt.AttachBridge(bridge)
		go bridge.Run(ctx)
		logger.Info().Str("driver", cfg.Bridge.Driver).Msg("cross-instance bridge attached")
	}

	// User directory for display names and role targeting
	var dir directory.Directory
	if cfg.Directory.Driver == "database" && db != nil {
		dir = directory.NewGormDirectory(db)
		logger.Info().Msg("using database user directory")
	} else {
		if cfg.Directory.Driver == "database" {
			logger.Warn().Msg("database directory requires database storage, falling back to static")
		}
		dir = directory.NewStaticDirectory()
	}

	// Room service and typing sweeper
	roomSvc := room.NewService(roomRepo, messageRepo, rt, reg, dir, historyCache, room.Config{
		HistoryLimit:  cfg.Room.HistoryLimit,
		TypingTTL:     cfg.Room.TypingTTL,
		SweepInterval: cfg.Room.TypingInterval,
		CacheTTL:      cfg.Cache.TTL,
	})
	go roomSvc.RunTypingSweeper(ctx)

	// Notification service and delivery scheduler
	notifySvc := notify.NewService(noteRepo, prefRepo, dir, rt, notify.Config{
		ReplayLimit: cfg.Notify.ReplayLimit,
		DueBatch:    cfg.Notify.SchedulerBatch,
	})

	var scheduler *notify.Scheduler
	if cfg.Notify.SchedulerEnabled {
		scheduler = notify.NewScheduler(notifySvc, cfg.Notify.SchedulerInterval)
		scheduler.Start(ctx)
	}

	// Auth middleware over the platform's JWT public key
	verifier, err := pkgjwt.LoadVerifier(cfg.Auth.PublicKeyPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Auth.PublicKeyPath).Msg("failed to load jwt public key")
	}
	authmw := middleware.NewAuth(verifier)

	// WebSocket gateway
	gw := gateway.New(reg, roomSvc, notifySvc, dir, cfg.WebSocket)

	// Setup routes
	r := mux.NewRouter()
	gw.RegisterRoutes(r, authmw)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      pkglog.HTTPMiddleware(logger)(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("addr", addr).Msg("school-comm-service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down school-comm-service")

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		cancel() // 1. stop typing sweeper, scheduler ticks and bridge consumer

		if scheduler != nil {
			scheduler.Stop()
			<-scheduler.Done() // 2. wait for an in-flight delivery pass
		}
		if bridge != nil {
			if err := bridge.Close(); err != nil {
				logger.Warn().Err(err).Msg("bridge close error")
			}
			<-bridge.Done() // 3. wait for the consume goroutine
		}

		// 4. stop accepting handshakes and drain HTTP
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
	}()

	select {
	case <-shutdownDone:
		logger.Info().Msg("school-comm-service stopped")
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("shutdown timed out after 30s")
	}
}
