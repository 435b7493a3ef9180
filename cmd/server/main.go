package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"lanternfall/internal/api"
	"lanternfall/internal/config"
	"lanternfall/internal/store"
	"lanternfall/internal/world"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("💡 No .env file found, using environment variables only")
	}

	log.Println("🏮 ================================")
	log.Println("🏮  LANTERNFALL - WORLD SERVER")
	log.Println("🏮 ================================")

	appConfig := config.Load()
	worldCfg := appConfig.World
	serverCfg := appConfig.Server

	log.Printf("🌍 Config: %d TPS, %d realms, boundary %.0f, session timeout %ds",
		worldCfg.TickRate, len(appConfig.Realms.Realms), worldCfg.SoftBoundary, worldCfg.SessionTimeoutSec)
	log.Printf("🛡️ Resource limits: %d sessions, %d echoes/realm, %d stars/realm",
		appConfig.Limits.MaxSessions, appConfig.Limits.MaxEchoesPerRealm, appConfig.Limits.MaxStarsPerRealm)

	// Open persistence. A broken database degrades to an in-memory world
	// rather than refusing to start.
	var worldStore world.Store
	var asyncStore *store.Async
	db, err := store.Open(serverCfg.DBPath)
	if err != nil {
		log.Printf("⚠️ Persistence disabled: %v", err)
		worldStore = world.NopStore{}
	} else {
		asyncStore = store.NewAsync(db, 256)
		asyncStore.SetErrorHook(api.RecordStoreFailure)
		worldStore = asyncStore
		log.Printf("💾 Database: %s", serverCfg.DBPath)
	}

	w := world.New(world.Options{
		Config: worldCfg,
		Limits: appConfig.Limits,
		Realms: appConfig.Realms,
		Store:  worldStore,
	})
	w.SetTickObserver(api.RecordTick)
	w.SetActionObserver(api.RecordAction)

	debugCfg := api.DefaultObservabilityConfig()
	debugCfg.ListenAddr = serverCfg.DebugListenAddr
	debugCfg.Enabled = !serverCfg.DisableDebugHTTP
	if err := api.StartDebugServer(debugCfg); err != nil {
		log.Printf("⚠️ Debug server disabled: %v", err)
	}

	server := api.NewServer(w, appConfig)

	w.Start()
	log.Println("✅ World started")

	go func() {
		addr := ":" + strconv.Itoa(serverCfg.Port)
		if err := server.Start(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	server.Stop()
	w.Stop()
	if asyncStore != nil {
		if err := asyncStore.Close(); err != nil {
			log.Printf("⚠️ Store close: %v", err)
		}
	}
	log.Println("👋 Goodbye!")
}
