package main

import (
	"context"
	"flag"
	"os"

	"github.com/ecodeli/delivery-tracking-system/config"
	"github.com/ecodeli/delivery-tracking-system/internal/app"
	"github.com/ecodeli/delivery-tracking-system/pkg/logger"
)

var (
	helpFlag   = flag.Bool("help", false, "Show help message")
	configPath = flag.String("config-path", "config.yaml", "Path to the config yaml file")
)

func main() {
	flag.Parse()
	if *helpFlag {
		config.PrintHelp()
		return
	}

	ctx := context.Background()

	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		log := logger.InitLogger("tracking-service", logger.LevelDebug)
		log.Error(ctx, "failed to configure application", err)
		config.PrintHelp()
		os.Exit(1)
	}

	log := logger.InitLogger("tracking-service", cfg.Log.Level)

	application, err := app.NewApplication(ctx, *cfg, log)
	if err != nil {
		log.Error(ctx, "failed to init application", err)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		log.Error(ctx, "application exited with error", err)
		os.Exit(1)
	}
}
