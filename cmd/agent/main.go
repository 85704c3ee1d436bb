package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"InternAgent/internal/chain"
	"InternAgent/internal/config"
	"InternAgent/internal/loop"
	"InternAgent/internal/notifier"
	"InternAgent/internal/recorder"
	"InternAgent/internal/state"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] InternAgent starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init state store. A data directory we cannot create is fatal:
	// nothing can proceed without persistence.
	store, err := state.NewStore(cfg.State.FilePath)
	if err != nil {
		log.Fatalf("[FATAL] init state store: %v", err)
	}

	// Init chain reader
	reader, err := chain.NewEthReader(ctx, cfg.Chain.RPCURL, cfg.Chain.WalletAddress, cfg.Chain.TokenAddress)
	if err != nil {
		log.Fatalf("[FATAL] init chain reader: %v", err)
	}
	defer reader.Close()
	log.Printf("[INFO] chain reader: %s", reader.Name())

	// Init Telegram notifier
	var tn *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
	}

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	// Init tick loop. Trade execution, posting, and mention collaborators
	// are wired by the deployment that provides them; with none present
	// the loop still evaluates and audits every decision.
	runner := loop.NewRunner(ctx, cfg, store, reader, nil, nil, nil, nil, nil, nil, tn, rec)
	if err := runner.Register(); err != nil {
		log.Fatalf("[FATAL] register tick job: %v", err)
	}
	runner.Start()
	defer runner.Stop()

	// Start operator command polling
	if tn != nil {
		go tn.StartPolling(ctx, runner.HandleCommand)
		log.Println("[INFO] Telegram polling started")
	}

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, executing tick now")
		go runner.RunTickNow()
	}

	log.Println("[INFO] InternAgent is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()
	log.Println("[INFO] InternAgent stopped")
}
