package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"

	"github.com/jazanet/backend/internal/config"
	"github.com/jazanet/backend/internal/database"
	"github.com/jazanet/backend/internal/handlers"
	"github.com/jazanet/backend/internal/logging"
	"github.com/jazanet/backend/internal/middleware"
	"github.com/jazanet/backend/internal/models"
	"github.com/jazanet/backend/internal/radius"
	"github.com/jazanet/backend/internal/services"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogPretty)

	log.Info().Msg("starting JazaNet API server")

	if err := database.Connect(cfg); err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer database.Close()

	if err := models.Migrate(database.DB); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	if err := models.SeedDefaults(database.DB, os.Getenv("ADMIN_PASSWORD")); err != nil {
		log.Fatal().Err(err).Msg("seeding failed")
	}

	archiver := services.NewArchiver(cfg, log)
	archiver.Start()

	// Outbound CoA runs from this process too; it is plain client-side
	// UDP and needs nothing from the RADIUS listeners.
	coa := radius.NewCoAClient(log, nil, nil)

	app := fiber.New(fiber.Config{
		AppName:      "JazaNet API",
		ServerHeader: "JazaNet",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		},
	})

	app.Use(middleware.Recovery(log))
	app.Use(compress.New())
	app.Use(middleware.Logger(log))
	app.Use(middleware.CORS())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "jazanet-api",
		})
	})

	authHandler := handlers.NewAuthHandler(cfg)
	subscriberHandler := handlers.NewSubscriberHandler(coa)
	packageHandler := handlers.NewPackageHandler()
	nasHandler := handlers.NewNasHandler()
	sessionHandler := handlers.NewSessionHandler()
	voucherHandler := handlers.NewVoucherHandler()
	dashboardHandler := handlers.NewDashboardHandler(cfg)
	userHandler := handlers.NewUserHandler()
	tenantHandler := handlers.NewTenantHandler()
	auditHandler := handlers.NewAuditHandler()

	api := app.Group("/api")

	// Login carries its own tight limit against credential guessing
	api.Post("/auth/login", middleware.RateLimiter(10, time.Minute), authHandler.Login)

	protected := api.Group("", middleware.AuthRequired(cfg), middleware.AuditLogger())

	protected.Post("/auth/logout", authHandler.Logout)
	protected.Get("/auth/me", authHandler.Me)
	protected.Put("/auth/password", authHandler.ChangePassword)
	protected.Post("/auth/2fa/setup", authHandler.Setup2FA)
	protected.Post("/auth/2fa/enable", authHandler.Enable2FA)
	protected.Post("/auth/2fa/disable", authHandler.Disable2FA)

	protected.Get("/dashboard/stats", dashboardHandler.Stats)
	protected.Get("/dashboard/recent-sessions", dashboardHandler.RecentSessions)

	write := middleware.WriteRequired()

	protected.Get("/subscribers", subscriberHandler.List)
	protected.Get("/subscribers/:id", subscriberHandler.Get)
	protected.Get("/subscribers/:id/sessions", subscriberHandler.Sessions)
	protected.Post("/subscribers", write, subscriberHandler.Create)
	protected.Put("/subscribers/:id", write, subscriberHandler.Update)
	protected.Delete("/subscribers/:id", write, subscriberHandler.Delete)
	protected.Post("/subscribers/:id/renew", write, subscriberHandler.Renew)
	protected.Post("/subscribers/:id/disconnect", write, subscriberHandler.Disconnect)

	protected.Get("/packages", packageHandler.List)
	protected.Get("/packages/:id", packageHandler.Get)
	protected.Post("/packages", write, packageHandler.Create)
	protected.Put("/packages/:id", write, packageHandler.Update)
	protected.Delete("/packages/:id", write, packageHandler.Delete)

	protected.Get("/nas", nasHandler.List)
	protected.Get("/nas/:id", nasHandler.Get)
	protected.Post("/nas", write, nasHandler.Create)
	protected.Put("/nas/:id", write, nasHandler.Update)
	protected.Delete("/nas/:id", write, nasHandler.Delete)

	protected.Get("/sessions", sessionHandler.List)
	protected.Get("/sessions/history", sessionHandler.History)
	protected.Get("/sessions/:id", sessionHandler.Get)

	protected.Post("/vouchers/generate", write, voucherHandler.Generate)
	protected.Post("/vouchers/:id/lock", write, voucherHandler.Lock)
	protected.Post("/vouchers/:id/unlock", write, voucherHandler.Unlock)

	protected.Get("/audit", auditHandler.List)

	admin := protected.Group("", middleware.AdminOnly())
	admin.Get("/users", userHandler.List)
	admin.Post("/users", userHandler.Create)
	admin.Put("/users/:id", userHandler.Update)
	admin.Delete("/users/:id", userHandler.Delete)
	admin.Get("/tenants", tenantHandler.List)
	admin.Post("/tenants", tenantHandler.Create)
	admin.Put("/tenants/:id", tenantHandler.Update)
	admin.Delete("/tenants/:id", tenantHandler.Delete)

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			log.Fatal().Err(err).Msg("api server failed")
		}
	}()
	log.Info().Int("port", cfg.APIPort).Msg("api server listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	archiver.Stop()
	app.ShutdownWithTimeout(5 * time.Second)
}
