package main

import (
	"log"

	"repairshop-backend/internal/api"
	"repairshop-backend/internal/api/router"
	"repairshop-backend/internal/database"
	"repairshop-backend/internal/env"
	"repairshop-backend/internal/queue"
)

func main() {
	if err := env.Load(); err != nil {
		log.Fatalf("env init failed: %v", err)
	}

	queueManager := queue.NewRequestQueueManager(10, 10)
	db, err := database.NewDatabase()
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}

	server := api.NewAPIServer(
		env.GetOrDefault(env.StorefrontAddr, ":81"),
		queueManager,
		db,
		router.UtilsRoutes("/api/storefront/v1"),
		router.CustomerAuthRoutes("/api/storefront/v1"),
		router.StorefrontChatRoutes("/api/storefront/v1"),
	)

	server.Run()
}
