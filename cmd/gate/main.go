package main

import (
	"log"

	"github.com/joho/godotenv"

	"gate/cmd/internal/app"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
