package main

import (
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"

	"SalesCast/internal/di"
	"SalesCast/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the config")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("env file load failed: %v", err)
	}

	path := *configPath
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		log.Printf("config %s not found, using defaults and environment", path)
		path = ""
	}
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
