package main

import (
	"github.com/joho/godotenv"

	"flood-watcher/internal/cli"
)

func main() {
	// Optional .env for local development; environment wins in production.
	_ = godotenv.Load()

	cli.Execute()
}
