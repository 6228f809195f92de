package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/flover-luffy/newboy/api"
	"github.com/flover-luffy/newboy/config"
	"github.com/flover-luffy/newboy/handlers"
	"github.com/flover-luffy/newboy/models"
	"github.com/flover-luffy/newboy/services/cookies"
	"github.com/flover-luffy/newboy/services/fetch"
	"github.com/flover-luffy/newboy/services/gateway"
	"github.com/flover-luffy/newboy/services/monitor"
	"github.com/flover-luffy/newboy/services/platform"
	"github.com/flover-luffy/newboy/utils"

	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	fmt.Println("🚀 newboy Backend Starting...")

	// Determine config path (env or default)
	configPath := os.Getenv("NEWBOY_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			multiWriter := io.MultiWriter(os.Stdout, fileWriter)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	// Apply port override if specified
	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	// Generate PIN if missing
	settings.Server.PIN = strings.TrimSpace(settings.Server.PIN)
	if settings.Server.PIN == "" {
		pin, err := utils.GeneratePIN()
		if err != nil {
			log.Fatalf("failed to generate PIN: %v", err)
		}
		settings.Server.PIN = pin
		if err := cfgManager.Save(settings); err != nil {
			log.Fatalf("failed to persist generated PIN: %v", err)
		}
		fmt.Println("📱 Configure your client to use this 6-digit PIN for authentication.")
	}
	fmt.Printf("🔑 newboy PIN: %s\n", settings.Server.PIN)

	// Cookie store, seeded from config so restarts keep credentials
	store := cookies.NewStore()
	var seeds []models.Credential
	for _, p := range settings.Providers {
		if !p.Enabled || len(p.Cookies) == 0 {
			continue
		}
		seeds = append(seeds, models.Credential{
			Provider:  p.Name,
			Cookies:   p.Cookies,
			ExpiresAt: p.ExpiresAt,
		})
	}
	store.Seed(seeds)

	// Outbound HTTP gateway shared by every provider
	gw := gateway.New(gateway.Config{
		MaxAttempts:    settings.Gateway.MaxAttempts,
		AttemptTimeout: time.Duration(settings.Gateway.AttemptTimeoutSec) * time.Second,
		RequestTimeout: time.Duration(settings.Gateway.RequestTimeoutSec) * time.Second,
		MaxInFlight:    settings.Gateway.MaxInFlight,
		BaseDelay:      time.Duration(settings.Gateway.BaseDelayMs) * time.Millisecond,
		MaxJitter:      time.Duration(settings.Gateway.MaxJitterMs) * time.Millisecond,
	}, nil)

	registry, err := platform.NewRegistry(
		platform.NewDouyinAdapter(),
		platform.NewWeiboAdapter(),
	)
	if err != nil {
		log.Fatalf("failed to build provider registry: %v", err)
	}
	fetchService := fetch.NewService(store, registry, gw, settings.Gateway.MaxInFlight)

	// Feed monitor; new items land in the log until a push channel is wired
	notifier := monitor.NotifierFunc(func(sub monitor.Subscription, items []models.ContentItem) {
		for _, item := range items {
			log.Printf("[notify] %s %s: %s (%s)", sub.Provider, item.Author, item.Title, item.Link)
		}
	})
	monitorService := monitor.NewService(fetchService, notifier,
		time.Duration(settings.Monitor.PollIntervalSeconds)*time.Second)
	for _, seed := range settings.Monitor.Subscriptions {
		if _, err := monitorService.Subscribe(seed.Provider, seed.UserID, seed.Nickname); err != nil {
			log.Printf("warning: could not restore subscription %s/%s: %v", seed.Provider, seed.UserID, err)
		}
	}
	if settings.Monitor.Enabled {
		if err := monitorService.Start(context.Background()); err != nil {
			log.Fatalf("failed to start monitor: %v", err)
		}
	}

	// Construct router and register API routes
	r := utils.NewRouter()
	api.Register(
		r,
		settings.Server.PIN,
		handlers.NewFetchHandler(fetchService),
		handlers.NewCredentialsHandler(store),
		handlers.NewMonitorHandler(monitorService),
		handlers.NewSettingsHandler(cfgManager),
	)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Setup graceful shutdown
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("🛑 Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := monitorService.Stop(shutdownCtx); err != nil {
		log.Printf("Monitor shutdown error: %v", err)
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
