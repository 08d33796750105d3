package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"ottoseguridad_backend/internal/middleware"
	"ottoseguridad_backend/pkg/pipeline"
	"ottoseguridad_backend/pkg/utils/validation"
)

type AppOptions struct {
	CORSOrigins string
	// RequestLog enables the per-request access log.
	RequestLog bool
}

// NewApp builds the Fiber app with the shared middleware and every route.
func NewApp(opts AppOptions) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler,
		BodyLimit:    int(validation.MaxVideoSize) + 1024*1024,
	})

	app.Use(recover.New())
	if opts.RequestLog {
		app.Use(logger.New())
	}
	origins := opts.CORSOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowCredentials: origins != "*",
	}))

	SetupRoutes(app)
	return app
}

func SetupRoutes(app *fiber.App) {
	app.Get("/health", Health)
	app.Get("/bulletin/:date", BulletinPage)

	api := app.Group("/api")

	// Auth Routes
	auth := api.Group("/auth")
	auth.Post("/login", limiter.New(limiter.Config{Max: 10, Expiration: time.Minute}), Login)
	auth.Post("/logout", Logout)

	// Public newsletter routes
	subscribe := limiter.New(limiter.Config{Max: 5, Expiration: time.Minute})
	api.Post("/subscribers/subscribe", subscribe, PublicSubscribe)
	api.Get("/subscribers/unsubscribe/:token", Unsubscribe)

	// Email tracking
	track := api.Group("/track")
	track.Get("/open/:trackingId", TrackOpen)
	track.Get("/click/:trackingId", TrackClick)

	// Public bulletins
	public := api.Group("/public/bulletins")
	public.Get("/", ListPublicBulletins)
	public.Get("/latest", GetLatestBulletin)
	public.Get("/:date", GetPublicBulletin)

	// Protected Routes
	protected := api.Group("", middleware.AuthMiddleware(), middleware.AuditLog())

	me := protected.Group("/auth")
	me.Get("/me", GetMe)
	me.Put("/password", ChangePassword)
	me.Put("/profile", UpdateProfile)

	users := protected.Group("/users", middleware.AdminOnly())
	users.Get("/", ListUsers)
	users.Post("/", CreateUser)
	users.Get("/:id", GetUser)
	users.Put("/:id", UpdateUser)
	users.Delete("/:id", DeleteUser)

	categories := protected.Group("/categories")
	categories.Get("/", ListCategories)
	categories.Post("/", CreateCategory)
	categories.Put("/:id", UpdateCategory)
	categories.Delete("/:id", DeleteCategory)

	sources := protected.Group("/sources")
	sources.Get("/", ListSources)
	sources.Post("/", CreateSource)
	sources.Put("/:id", UpdateSource)
	sources.Delete("/:id", DeleteSource)
	sources.Post("/:id/test", TestSource)

	subscribers := protected.Group("/subscribers")
	subscribers.Get("/", ListSubscribers)
	subscribers.Post("/", CreateSubscriber)
	subscribers.Post("/import", ImportSubscribers)
	subscribers.Get("/export", ExportSubscribers)
	subscribers.Put("/:id", UpdateSubscriber)
	subscribers.Delete("/:id", DeleteSubscriber)

	bulletins := protected.Group("/bulletins")
	bulletins.Get("/", ListBulletins)
	bulletins.Post("/", CreateBulletin)
	bulletins.Get("/:id", GetBulletin)
	bulletins.Put("/:id", UpdateBulletin)
	bulletins.Delete("/:id", DeleteBulletin)
	bulletins.Get("/:id/status", GetBulletinStatus)
	bulletins.Get("/:id/emails", GetBulletinEmails)
	bulletins.Post("/:id/scrape", StartStep(pipeline.StepScrape))
	bulletins.Post("/:id/classify", StartStep(pipeline.StepClassify))
	bulletins.Post("/:id/summarize", StartStep(pipeline.StepSummarize))
	bulletins.Post("/:id/run", StartStep(pipeline.StepRun))
	bulletins.Post("/:id/video", StartStep(pipeline.StepVideo))
	bulletins.Post("/:id/publish", PublishBulletin)
	bulletins.Post("/:id/send", SendBulletin)
	bulletins.Post("/:id/send-test", SendTestBulletin)

	templates := protected.Group("/templates")
	templates.Get("/", ListTemplates)
	templates.Get("/:name", GetTemplate)
	templates.Put("/:name", UpsertTemplate)
	templates.Delete("/:name", DeleteTemplate)

	upload := protected.Group("/upload")
	upload.Post("/image", UploadImage)
	upload.Post("/video", UploadVideo)

	protected.Get("/audit-logs", middleware.AdminOnly(), ListAuditLogs)

	dashboard := protected.Group("/dashboard")
	dashboard.Get("/stats", GetDashboardStats)
}
