package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gridkeep/internal/api"
	"gridkeep/internal/auth"
	"gridkeep/internal/config"
	"gridkeep/internal/game"
	"gridkeep/internal/logging"
	"gridkeep/internal/presence"
	"gridkeep/internal/store"
	"gridkeep/internal/world"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		_ = godotenv.Load(".env")
	}

	// Load centralized configuration (SSOT - Single Source of Truth)
	appConfig := config.Load()

	logging.Init(appConfig.Server.LogFile, appConfig.Server.LogDebug)
	defer logging.Sync()

	log := logging.L()
	log.Infof("🏰 ================================")
	log.Infof("🏰  GRIDKEEP - SESSION CORE")
	log.Infof("🏰 ================================")

	// Extra CORS/WebSocket origins for production deployments
	if extra := os.Getenv("EXTRA_ORIGINS"); extra != "" {
		for _, origin := range strings.Split(extra, ",") {
			if o := strings.TrimSpace(origin); o != "" {
				api.AllowedOrigins = append(api.AllowedOrigins, o)
			}
		}
	}

	// Durable snapshot store
	var snapStore store.Store
	s, err := store.OpenSQLite(appConfig.Store.Path)
	if err != nil {
		log.Warnf("⚠️ SQLite unavailable (%v); snapshots held in memory only", err)
		snapStore = store.NewMemStore()
	} else {
		snapStore = s
		log.Infof("💾 Snapshot store: %s", appConfig.Store.Path)
	}

	// Identity verification (optional; guests work without it)
	var verifier auth.Verifier
	if appConfig.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier(appConfig.Auth.JWTSecret)
		log.Infof("🔐 Identity token verification enabled")
	} else {
		log.Infof("👤 No JWT_SECRET set; all joins resolve as guests")
	}

	// Glyph palette, with optional YAML override
	palette := world.DefaultPalette()
	if appConfig.World.PalettePath != "" {
		p, err := world.LoadPalette(appConfig.World.PalettePath)
		if err != nil {
			log.Warnf("⚠️ Palette load failed (%v); using defaults", err)
		} else {
			palette = p
			log.Infof("🎨 Palette loaded from %s", appConfig.World.PalettePath)
		}
	}

	// Process-wide presence tracker: one per process, shared by every room
	tracker := presence.NewTracker(appConfig.Presence)

	manager := game.NewRoomManager(game.RoomDeps{
		Cfg:      appConfig.Room,
		AuthCfg:  appConfig.Auth,
		WorldCfg: appConfig.World,
		Verifier: verifier,
		Presence: tracker,
		Store:    snapStore,
		Palette:  palette,
		Metrics:  api.GameMetrics{},
	})

	// Start debug server
	if os.Getenv("DISABLE_DEBUG_SERVER") != "true" {
		if err := api.StartDebugServer(api.DefaultObservabilityConfig()); err != nil {
			log.Warnf("⚠️ Debug server disabled: %v", err)
		}
	}

	server := api.NewServer(manager)
	go func() {
		if err := server.Start(appConfig.Server.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Infof("✅ Server ready on port %d! Press Ctrl+C to stop.", appConfig.Server.Port)
	<-quit

	log.Infof("🛑 Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warnf("⚠️ Server shutdown: %v", err)
	}

	manager.DisposeAll()
	tracker.Stop()
	if err := snapStore.Close(); err != nil {
		log.Warnf("⚠️ Store close: %v", err)
	}

	log.Infof("👋 Goodbye!")
}
