package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/tillberg/autorestart"

	"github.com/DasMonkey/mindly-core/internal/cli"
)

func main() {
	// Optional .env for local development; missing file is fine.
	_ = godotenv.Load()

	go autorestart.RestartOnChange()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
