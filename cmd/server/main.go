package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/ingestkeeper/internal/server"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/config"
	"github.com/joho/godotenv"
)

func main() {

	_ = godotenv.Load()

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}

}
