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
		env.GetOrDefault(env.AdminAddr, ":82"),
		queueManager,
		db,
		router.UtilsRoutes("/api/admin/v1"),
		router.AdminAuthRoutes("/api/admin/v1"),
		router.AdminChatRoutes("/api/admin/v1"),
	)

	server.Run()
}
