package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/mindsetalert/backoffice/app/repository"
	"github.com/mindsetalert/backoffice/internal/pkg/billing"
	"github.com/mindsetalert/backoffice/internal/pkg/cache"
	"github.com/mindsetalert/backoffice/internal/pkg/community"
	"github.com/mindsetalert/backoffice/internal/pkg/database"
	"github.com/mindsetalert/backoffice/internal/pkg/downloads"
	"github.com/mindsetalert/backoffice/internal/pkg/env"
	"github.com/mindsetalert/backoffice/internal/pkg/licensing"
	"github.com/mindsetalert/backoffice/internal/pkg/mail"
	"github.com/mindsetalert/backoffice/internal/pkg/metrics/counter"
	"github.com/mindsetalert/backoffice/internal/pkg/oauth"
	"github.com/mindsetalert/backoffice/internal/pkg/router"
)

// Redis databases for rate-limit counters and OAuth sessions; the cache uses 0.
const (
	limiterDatabase = 1
	sessionDatabase = 2
)

func main() {
	app, err := NewApplication()
	if err != nil {
		log.Fatalf("[Startup] %v", err)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("[Startup] shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Errorf("[Startup] shutdown: %v", err)
		}
	}()

	if err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))); err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, error) {
	env.SetupEnvFile()
	if err := database.SetupDatabase(); err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	cache.SetupCache()

	if err := env.Require("DOWNLOAD_SECRET"); err != nil {
		// Issuing and redeeming links answer 500 until this is fixed.
		log.Errorf("[Startup] %v", err)
	}

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/backoffice to project root
		"../../../", // Fallback
	}
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	services, err := buildServices()
	if err != nil {
		return nil, err
	}

	cfg := router.ConfigFromEnv()
	app := fiber.New(router.FiberConfig(cfg))

	// recovery and logging
	app.Use(recover.New(), logger.New())

	if user, pass := env.GetEnv("METRICS_USER", "admin"), env.GetEnv("METRICS_PASSWORD", ""); pass != "" {
		auth := basicauth.New(basicauth.Config{
			Users: map[string]string{user: pass},
		})
		app.Get("/metrics", auth, adaptor.HTTPHandler(counter.Handler()))
		app.Get("/monitor", auth, monitor.New())
	} else {
		log.Warn("[Startup] METRICS_PASSWORD not set, /metrics and /monitor are disabled")
	}

	// SWAGGER / OPENAPI
	if basePath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: basePath + "public/docs/v1/openapi.yml",
			Path:     "v1",
		}))
	}

	discordCfg := oauth.ConfigFromEnv()
	if cache.Ping(context.Background()) == nil {
		cfg.LimiterStorage = cache.NewFiberStorage(limiterDatabase)
		discordCfg.Storage = cache.NewFiberStorage(sessionDatabase)
	} else {
		log.Warn("[Startup] cache unavailable, rate limits and OAuth sessions are kept in memory")
	}
	if linker := oauth.Setup(discordCfg); linker != nil {
		services.DiscordFlow = linker
	}

	// ROUTER
	router.InstallRouter(app, cfg, services)

	return app, nil
}

func buildServices() (router.Services, error) {
	repos := repository.NewFactory(database.GetDB()).GetRepositories()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	resolver, err := downloads.NewResolverFromEnv(ctx)
	if err != nil {
		return router.Services{}, fmt.Errorf("download storage: %w", err)
	}

	dl := downloads.NewService(downloads.ConfigFromEnv(), repos.DownloadToken, resolver)
	licenses := licensing.NewService(licensing.Deps{
		Clients:  repos.Client,
		Licenses: repos.License,
		Tokens:   dl,
		Mailer:   mail.NewSMTPMailer(mail.SMTPConfigFromEnv()),
		Roles:    community.NewRoleSyncerFromEnv(),
	})
	webhooks := billing.NewServiceFromDB(billing.ConfigFromEnv(), database.GetDB(), licenses)

	return router.Services{
		Licenses:  licenses,
		Admin:     licenses,
		Account:   licenses,
		Tokens:    dl,
		Downloads: dl,
		Billing:   webhooks,
		Discord:   licenses,
		Database:  database.Ping,
		Cache:     cache.Ping,
	}, nil
}
