package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"polymarket-copy-bot-go/internal/bot"
	"polymarket-copy-bot-go/internal/config"
	"polymarket-copy-bot-go/internal/database"
	"polymarket-copy-bot-go/internal/idgen"
	"polymarket-copy-bot-go/internal/logger"
	"polymarket-copy-bot-go/internal/polymarket"
	"polymarket-copy-bot-go/internal/store"
	"polymarket-copy-bot-go/internal/web"

	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	st := store.NewStore(db, log)
	client := polymarket.NewClient(&cfg.Polymarket, log)
	ids := idgen.NewGenerator()

	hub := web.NewHub(log)
	manager := bot.NewManager(client, st, ids, hub, bot.Options{
		PollInterval:  time.Duration(cfg.Bot.PollInterval) * time.Second,
		ActivityLimit: cfg.Bot.ActivityLimit,
		SeenCap:       cfg.Bot.SeenCap,
	}, log)

	// Register runtimes for all stored bots so their IDs are reserved and
	// previously active bots resume polling.
	rows, err := st.GetAllBots("")
	if err != nil {
		log.Fatal("Failed to load stored bots", zap.Error(err))
	}
	for i := range rows {
		row := rows[i]
		b := manager.CreateBot(&row)
		if row.IsActive() {
			if err := b.Start(row.Status); err != nil {
				log.Error("Failed to resume bot",
					zap.String("bot_id", row.BotID),
					zap.Error(err))
			}
		}
	}
	log.Info("Bots registered", zap.Int("count", manager.Count()))

	api := web.NewAPIServer(cfg.Server.Port, manager, st, ids, hub, cfg.Bot.InitialPaperBalance, log)
	api.Start()

	// Snapshot active bots' aggregates hourly for the performance history.
	snapCtx, stopSnapshots := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-snapCtx.Done():
				return
			case <-ticker.C:
				active, err := st.GetAllBots("")
				if err != nil {
					log.Error("Failed to list bots for snapshot", zap.Error(err))
					continue
				}
				for _, row := range active {
					if !row.IsActive() {
						continue
					}
					if _, err := st.SnapshotPerformance(row.BotID, "hourly"); err != nil {
						log.Error("Failed to snapshot performance",
							zap.String("bot_id", row.BotID),
							zap.Error(err))
					}
				}
			}
		}
	}()

	// Setup context for graceful shutdown
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	<-sigchan
	log.Info("Shutdown signal received, gracefully shutting down...")
	stopSnapshots()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := api.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}
	manager.Cleanup()

	log.Info("Server has been shut down.")
}
