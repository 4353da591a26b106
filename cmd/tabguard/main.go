package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/tabguard-ai/tabguard/internal/config"
	"github.com/tabguard-ai/tabguard/internal/server"
	"github.com/tabguard-ai/tabguard/internal/triage"
)

func main() {
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides config)")
	configPath := flag.String("config", "tabguard.yaml", "Path to TabGuard config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	addr := cfg.Server.Addr
	if *addrFlag != "" {
		addr = *addrFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := triage.New(ctx, cfg, triage.Options{})
	if err != nil {
		log.Fatalf("failed to assemble engine: %v", err)
	}
	defer engine.Close(context.Background())

	go engine.RunFlusher(ctx)

	srv := server.NewServer(engine)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(addr) }()

	select {
	case err := <-errCh:
		log.Fatalf("server error: %v", err)
	case <-ctx.Done():
		log.Printf("shutting down")
	}
}
