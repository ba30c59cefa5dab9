package main

import (
	"context"
	"flag"
	"os"

	"go.uber.org/zap"

	"gnest/internal/app"
	"gnest/internal/config"
	"gnest/internal/pkg/port"
)

func main() {
	path := flag.String("config", os.Getenv("GNEST_CONFIG"), "config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := config.LoadConfig(*path)
	if err != nil {
		panic("load config failed: " + err.Error())
	}
	server, err := app.Setup(cfg)
	if err != nil {
		panic("service setup failed: " + err.Error())
	}
	log := server.Logger()

	// providers are initialized before the port accepts connections
	if err := server.Init(context.Background()); err != nil {
		log.Fatal("service init failed", zap.Error(err))
	}
	ln, err := port.Listen(cfg.App.Addr, cfg.App.PortScan)
	if err != nil {
		_ = server.Shutdown(context.Background())
		log.Fatal("listen failed", zap.String("addr", cfg.App.Addr), zap.Error(err))
	}

	// blocks until SIGINT or SIGTERM, then runs the shutdown hooks
	if err := server.Serve(context.Background(), ln); err != nil {
		log.Fatal("service stopped", zap.Error(err))
	}
}
