package main

import (
	"log"

	"github.com/JonasWeigert/SubHub/internal/pkg/database"
	"github.com/JonasWeigert/SubHub/internal/pkg/env"
)

func main() {
	env.SetupEnvFile()
	database.SetupDatabase()

	if err := database.SeedSubscriptionPlans(database.GetDB()); err != nil {
		log.Fatalf("Failed to seed subscription plans: %v", err)
	}
	log.Println("Subscription plans seeded successfully")
}
