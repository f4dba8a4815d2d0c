package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/vthunder/rollup/internal/config"
	"github.com/vthunder/rollup/internal/graph"
	"github.com/vthunder/rollup/internal/service"
)

func main() {
	log.Println("rollup - time-windowed graph consolidation")
	log.Println("==========================================")

	configPath := flag.String("config", "rollup.yaml", "Path to config file")
	flag.Parse()

	// Load .env file (optional - won't error if missing)
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, using environment variables")
	} else {
		log.Println("[config] Loaded .env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := graph.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open graph database: %v", err)
	}
	defer store.Close()
	log.Printf("[main] Database: %s", cfg.DBPath)

	svc := service.New(store, cfg)
	svc.Start()

	log.Println("[main] Consolidation service started. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("[main] Shutting down...")
	svc.Stop()
}
