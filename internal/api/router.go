package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"cobrapyme/morosidad/internal/api/handlers"
	"cobrapyme/morosidad/internal/api/middleware"
	"cobrapyme/morosidad/internal/config"
	"cobrapyme/morosidad/internal/email"
	"cobrapyme/morosidad/internal/services"
	"cobrapyme/morosidad/internal/storage"
)

// SetupRouter configures and returns the main Gin engine. The email sender is
// injected: API processes usually enqueue deliveries rather than talk to SMTP
// themselves.
func SetupRouter(cfg *config.Config, db *mongo.Database, rdb *redis.Client, emailSender email.Sender) *gin.Engine {
	userService := services.NewUserService(db, cfg)
	customerService := services.NewCustomerService(db)
	invoiceService := services.NewInvoiceService(db, cfg)
	reminderService := services.NewReminderService(db, cfg, emailSender)
	dashboardService := services.NewDashboardService(cfg, invoiceService)

	importArchive, err := storage.NewS3ImportArchive(cfg)
	if err != nil {
		log.Fatalf("CRITICAL: Failed to initialize import archive: %v", err)
	}
	importService := services.NewImportService(cfg, rdb, customerService, invoiceService, importArchive)

	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)
	r.Use(middleware.CORSMiddleware())
	r.Use(rateLimiter.Limit())

	authHandler := handlers.NewAuthHandler(userService)
	customerHandler := handlers.NewCustomerHandler(customerService)
	invoiceHandler := handlers.NewInvoiceHandler(invoiceService, customerService, reminderService)
	importHandler := handlers.NewImportHandler(cfg, importService)
	dashboardHandler := handlers.NewDashboardHandler(dashboardService, invoiceService, customerService, reminderService)

	v1 := r.Group("/v1")
	{
		// Public routes
		v1.POST("/register", authHandler.Register)
		v1.POST("/login", authHandler.Login)
		v1.GET("/currencies", dashboardHandler.Currencies)
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Authenticated routes
		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.GET("/dashboard", dashboardHandler.Summary)

			authRequired.POST("/customers", customerHandler.Create)
			authRequired.GET("/customers", customerHandler.List)
			authRequired.GET("/customers/:id", customerHandler.Get)
			authRequired.PUT("/customers/:id", customerHandler.Update)
			authRequired.DELETE("/customers/:id", customerHandler.Deactivate)

			authRequired.POST("/invoices", invoiceHandler.Create)
			authRequired.GET("/invoices", invoiceHandler.List)
			authRequired.GET("/invoices/:id", invoiceHandler.Get)
			authRequired.POST("/invoices/:id/pay", invoiceHandler.MarkPaid)
			authRequired.POST("/invoices/:id/void", invoiceHandler.Void)
			authRequired.POST("/invoices/:id/reminder", invoiceHandler.SendReminder)
			authRequired.GET("/invoices/:id/reminders", invoiceHandler.ReminderHistory)

			authRequired.GET("/reminder-config", dashboardHandler.GetReminderConfig)
			authRequired.PUT("/reminder-config", dashboardHandler.UpdateReminderConfig)

			authRequired.POST("/import/preview", importHandler.Preview)
			authRequired.POST("/import/commit", importHandler.Commit)

			authRequired.GET("/export/xlsx", dashboardHandler.ExportXLSX)
		}
	}

	return r
}
