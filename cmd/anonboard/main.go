package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"anonboard/internal/app"
	"anonboard/pkg/banner"
	"anonboard/pkg/config"
	"anonboard/pkg/logger"
	"anonboard/pkg/shutdown"
)

// version is set via ldflags at release time.
var version = "dev"

func main() {
	_ = godotenv.Load(".env")

	flags := config.ParseConfigFlags()
	eff, err := config.LoadEffective(flags)
	if err != nil {
		logger.Init()
		shutdown.Abort("load config", err, flags.DB)
	}
	logger.InitWithLevel(eff.Config.Logging.Level)

	a, err := app.New(eff, version)
	if err != nil {
		shutdown.Abort("startup", err, eff.DBPath)
	}

	banner.Print(eff, version)

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()
	if err := a.Run(ctx); err != nil {
		logger.Error("server_failed", "error", err)
		os.Exit(1)
	}
}
