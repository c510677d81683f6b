package main

import (
	"github.com/joho/godotenv"

	"caucion-alerts/internal/cli"
)

func main() {
	// Load .env before anything reads the environment; a missing file is fine.
	_ = godotenv.Load()
	cli.Execute()
}
