package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/JonasWeigert/SubHub/app/models"
	"github.com/JonasWeigert/SubHub/app/repository"
	"github.com/JonasWeigert/SubHub/internal/pkg/billing"
	"github.com/JonasWeigert/SubHub/internal/pkg/cache"
	"github.com/JonasWeigert/SubHub/internal/pkg/database"
	"github.com/JonasWeigert/SubHub/internal/pkg/env"
	"github.com/JonasWeigert/SubHub/internal/pkg/router"
	"github.com/JonasWeigert/SubHub/internal/pkg/scheduler"
)

func main() {
	app := NewApplication()

	// Graceful shutdown on SIGINT/SIGTERM
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		scheduler.GetManager(nil).Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())

	if err := database.SeedSubscriptionPlans(database.GetDB()); err != nil {
		log.Fatalf("failed to seed subscription plans: %v", err)
	}

	// Background trial sweep
	engine := billing.NewServiceFromDB(
		database.GetDB(),
		billing.NewStripeClientFromEnv(),
		env.GetIntEnv("TRIAL_PERIOD_DAYS", models.DefaultTrialDays),
	)
	scheduler.GetManager(engine).Start()

	app := fiber.New(fiber.Config{
		AppName:   "SubHub",
		BodyLimit: 1 * 1024 * 1024, // webhook and API payloads are small
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
