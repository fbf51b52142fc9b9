// Package server assembles the Fiber application and its route table.
package server

import (
	"errors"
	"strings"

	"nexile-backend/internal/admin"
	"nexile-backend/internal/audit"
	"nexile-backend/internal/auth"
	"nexile-backend/internal/config"
	"nexile-backend/internal/dashboard"
	"nexile-backend/internal/database"
	"nexile-backend/internal/insight"
	"nexile-backend/internal/inventory"
	"nexile-backend/internal/middleware"
	"nexile-backend/internal/models"
	"nexile-backend/internal/reports"
	"nexile-backend/internal/sales"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

type Deps struct {
	Config   *config.Config
	Log      *zap.Logger
	Recorder *sales.Recorder
	Insight  *insight.Service
}

func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var e *fiber.Error
		if errors.As(err, &e) {
			return c.Status(e.Code).JSON(fiber.Map{
				"error": e.Message,
			})
		}
		log.Error("unexpected error", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unexpected server error",
		})
	}
}

func NewApp(d Deps) (*fiber.App, error) {
	cfg := d.Config
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	if d.Recorder == nil {
		d.Recorder = sales.NewRecorder(database.DB, cfg.SalesAtomic, log)
	}
	if d.Insight == nil {
		d.Insight = insight.NewService(nil, nil, 0, log)
	}

	app := fiber.New(fiber.Config{
		AppName:      "nexile-backend",
		BodyLimit:    10 * 1024 * 1024,
		ErrorHandler: errorHandler(log),
	})

	app.Use(recover.New())
	app.Use(middleware.RequestLogger(log))

	// CORS origins virgülle ayrılmış gelir
	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	authLimit, err := middleware.RateLimit(cfg.AuthRateLimit)
	if err != nil {
		return nil, err
	}

	api := app.Group("/api")

	api.Get("/health", func(c *fiber.Ctx) error {
		status := "ok"
		if sqlDB, err := database.DB.DB(); err != nil || sqlDB.PingContext(c.UserContext()) != nil {
			status = "degraded"
		}
		return c.JSON(fiber.Map{"status": status})
	})

	// Public auth
	api.Post("/auth/register", authLimit, auth.RegisterHandler(cfg))
	api.Post("/auth/login", authLimit, auth.LoginHandler(cfg))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler(cfg))

	ownerOnly := auth.RequireRole(models.RoleOwner)
	managers := auth.RequireRole(models.RoleManager, models.RoleOwner)

	// Şubeler
	protected.Get("/branches", admin.ListBranchesHandler())
	protected.Get("/branches/:id", admin.GetBranchHandler())
	protected.Post("/branches", ownerOnly, admin.CreateBranchHandler())
	protected.Put("/branches/:id", ownerOnly, admin.UpdateBranchHandler())

	// Kullanıcı yönetimi
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(ownerOnly)
	adminRoutes.Get("/users", admin.ListUsersHandler())
	adminRoutes.Put("/users/:id/branches", admin.SetManagedBranchesHandler())

	// Envanter
	protected.Get("/inventory", inventory.ListProductsHandler(cfg))
	protected.Post("/inventory", inventory.CreateProductHandler(cfg))
	protected.Post("/inventory/import", inventory.ImportProductsHandler())
	protected.Get("/inventory/write-offs", inventory.ListWriteOffsHandler())
	protected.Post("/inventory/:id/write-offs", inventory.CreateWriteOffHandler())
	protected.Get("/inventory/:id", inventory.GetProductHandler(cfg))
	protected.Put("/inventory/:id", inventory.UpdateProductHandler(cfg))
	protected.Delete("/inventory/:id", inventory.DeleteProductHandler())

	// Satışlar
	protected.Get("/transactions", sales.ListTransactionsHandler())
	protected.Post("/transactions", sales.CreateTransactionHandler(d.Recorder))
	protected.Get("/transactions/:id", sales.GetTransactionHandler())

	// Dashboard
	protected.Get("/dashboard/summary", dashboard.SummaryHandler(cfg))
	protected.Get("/dashboard/sales-chart", dashboard.SalesChartHandler())
	protected.Get("/dashboard/insight", dashboard.InsightHandler(d.Insight))

	// Raporlar
	protected.Get("/reports/:type", reports.ReportHandler(cfg))
	protected.Get("/reports/:type/share", reports.ShareHandler())

	// Audit log
	protected.Get("/audit-logs", managers, audit.ListAuditLogsHandler())
	protected.Post("/audit-logs/:id/undo", managers, audit.UndoAuditLogHandler())

	return app, nil
}
