package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	apirest "github.com/questtime/server/api/rest"
	"github.com/questtime/server/api/sse"
	apiws "github.com/questtime/server/api/ws"
	"github.com/questtime/server/audit"
	"github.com/questtime/server/cache"
	"github.com/questtime/server/config"
	dbadapter "github.com/questtime/server/db"
	"github.com/questtime/server/game/activity"
	"github.com/questtime/server/game/events"
	"github.com/questtime/server/game/presence"
	"github.com/questtime/server/game/progression"
	"github.com/questtime/server/game/quest"
	"github.com/questtime/server/game/timer"
	mw "github.com/questtime/server/middleware"
	"github.com/questtime/server/model"
	"github.com/questtime/server/resource"
	"github.com/questtime/server/scheduler"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(nil)

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Content seeding ----
	if cfg.Game.ContentDir != "" {
		loader := resource.NewLoader(cfg.Game.ContentDir)
		if err := loader.Load(); err != nil {
			log.Fatalf("content: %v", err)
		}
		if err := loader.Seed(db); err != nil {
			log.Fatalf("content seed: %v", err)
		}
		logger.Info("content seeded",
			zap.Int("quests", len(loader.Quests)),
			zap.Int("buffs", len(loader.Buffs)))
	}

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	// ---- Game services ----
	bus := events.NewBus()
	effects := progression.NewEffectRegistry()

	timerSvc := timer.NewService(db, bus, logger)
	questSvc := quest.NewService(db, timerSvc, effects, bus, auditSvc, logger)
	activitySvc := activity.NewService(db, timerSvc, bus, auditSvc, logger)
	presenceSvc := presence.NewService(db, timerSvc, logger)

	// ---- Periodic maintenance ----
	sched.AddTicker("quest_window_refresh", cfg.Game.QuestWindowRefresh, func() {
		if err := questSvc.RefreshActiveWindows(context.Background()); err != nil {
			logger.Error("quest window refresh failed", zap.Error(err))
		}
	})
	sched.AddTicker("buff_gc", cfg.Game.BuffGCInterval, func() {
		removed, err := progression.GCExpiredBuffs(context.Background(), db, timerSvc.Machine().Now())
		if err != nil {
			logger.Error("buff gc failed", zap.Error(err))
			return
		}
		if removed > 0 {
			logger.Info("buff gc", zap.Int64("removed", removed))
		}
	})

	// ---- WS layer ----
	sm := apiws.NewSessionManager(logger)
	defer sm.CloseAllSessions()

	wsRouter := apiws.NewRouter(logger)
	apiws.RegisterTimerHandlers(wsRouter, timerSvc, questSvc, activitySvc, logger)

	hub := apiws.NewHub(sm, pubsub, bus, questSvc, logger)
	if err := hub.Start(context.Background()); err != nil {
		log.Fatalf("hub: %v", err)
	}
	defer hub.Stop()

	// ---- Gin HTTP server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, c, cfg.Security)
	timerH := apirest.NewTimerHandler(timerSvc, questSvc, activitySvc, logger)
	questH := apirest.NewQuestHandler(questSvc, logger)
	activityH := apirest.NewActivityHandler(activitySvc, logger)
	profileH := apirest.NewProfileHandler(db, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

		timersG := api.Group("/timers")
		timersG.Use(mw.Auth(cfg.Security, c))
		timersG.POST("/activity/attach", timerH.AttachActivity)
		timersG.POST("/activity/start", timerH.StartActivity)
		timersG.POST("/activity/pause", timerH.PauseActivity)
		timersG.POST("/activity/reset", timerH.ResetActivity)
		timersG.POST("/activity/complete", timerH.CompleteActivity)
		timersG.GET("/activity", timerH.SnapshotActivity)
		timersG.POST("/quest/attach", timerH.AttachQuest)
		timersG.POST("/quest/start", timerH.StartQuest)
		timersG.POST("/quest/pause", timerH.PauseQuest)
		timersG.POST("/quest/reset", timerH.ResetQuest)
		timersG.POST("/quest/complete", timerH.CompleteQuest)
		timersG.GET("/quest", timerH.SnapshotQuest)

		questsG := api.Group("/quests")
		questsG.Use(mw.Auth(cfg.Security, c))
		questsG.GET("/eligible", questH.Eligible)

		activitiesG := api.Group("/activities")
		activitiesG.Use(mw.Auth(cfg.Security, c))
		activitiesG.GET("", activityH.List)
		activitiesG.POST("", activityH.Create)

		meG := api.Group("")
		meG.Use(mw.Auth(cfg.Security, c))
		meG.GET("/profile", profileH.GetProfile)
		meG.GET("/character", profileH.GetCharacter)
	}

	// ---- WebSocket ----
	wsH := apiws.NewHandler(c, cfg.Security, sm, presenceSvc, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, c, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	logger.Info("server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
