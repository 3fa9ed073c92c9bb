package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/terravale/api/internal/auth"
	"github.com/terravale/api/internal/config"
	"github.com/terravale/api/internal/handler"
	"github.com/terravale/api/internal/logger"
	"github.com/terravale/api/internal/middleware"
	"github.com/terravale/api/internal/repository/postgres"
	redisrepo "github.com/terravale/api/internal/repository/redis"
	"github.com/terravale/api/internal/service"
)

func main() {
	logger.Init()
	cfg := config.Load()
	log.Info().Str("databaseURL", cfg.DatabaseURL).Msg("Config loaded")

	// Database
	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	// Redis
	redisClient, err := redisrepo.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	// Enable Redis keyspace notifications for timer expiry events.
	if err := redisClient.Underlying().ConfigSet(context.Background(), "notify-keyspace-events", "Ex").Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to set Redis keyspace notifications (timer expiry may not work)")
	}

	// Repos
	userRepo := postgres.NewUserRepo(db)
	villageRepo := postgres.NewVillageRepo(db)
	resourceRepo := postgres.NewResourceRepo(db)
	buildingRepo := postgres.NewBuildingRepo(db)
	upgradeStore := postgres.NewUpgradeStore(db)

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)
	googleOAuth := auth.NewGoogleOAuth(
		os.Getenv("GOOGLE_CLIENT_ID"),
		os.Getenv("GOOGLE_CLIENT_SECRET"),
		os.Getenv("GOOGLE_REDIRECT_URL"),
	)

	// WebSocket hub
	wsHub := handler.NewHub()

	// Services
	villageSvc := service.NewVillageService(villageRepo, resourceRepo, buildingRepo)
	upgradeSvc := service.NewUpgradeService(villageRepo, resourceRepo, upgradeStore, redisClient, wsHub)

	// Completion sweep (fires due orders on timer expiry)
	sweeper := service.NewUpgradeSweeper(redisClient.Underlying(), upgradeSvc, buildingRepo, cfg.SweepInterval)

	// Handlers
	authHandler := handler.NewAuthHandler(googleOAuth, jwtMgr, userRepo, villageSvc)
	userHandler := handler.NewUserHandler(userRepo)
	villageHandler := handler.NewVillageHandler(villageSvc)
	upgradeHandler := handler.NewUpgradeHandler(upgradeSvc)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr)

	// Router
	mux := http.NewServeMux()
	authMw := auth.Middleware(jwtMgr)

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth (public)
	mux.HandleFunc("GET /auth/google/login", authHandler.GoogleLogin)
	mux.HandleFunc("GET /auth/google/callback", authHandler.GoogleCallback)
	mux.HandleFunc("POST /auth/refresh", authHandler.RefreshToken)
	mux.HandleFunc("GET /auth/dev", authHandler.DevLogin)

	// Protected API routes
	api := http.NewServeMux()
	api.HandleFunc("GET /users/me", userHandler.GetMe)
	api.HandleFunc("PATCH /users/me", userHandler.UpdateMe)
	api.HandleFunc("GET /villages", villageHandler.ListVillages)
	api.HandleFunc("POST /villages", villageHandler.CreateVillage)
	api.HandleFunc("GET /villages/{id}", villageHandler.GetVillage)
	api.HandleFunc("GET /villages/{id}/resources", villageHandler.GetResources)
	api.HandleFunc("POST /villages/{id}/upgrades/start", upgradeHandler.StartUpgrade)
	api.HandleFunc("POST /villages/{id}/upgrades/complete", upgradeHandler.CompleteUpgrade)
	api.HandleFunc("POST /villages/{id}/upgrades/cancel", upgradeHandler.CancelUpgrade)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(api)))

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)

	// Apply global middleware
	root := middleware.Chain(mux, middleware.Logger, middleware.CORS("*"), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start the completion sweep
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.Start(ctx)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}
