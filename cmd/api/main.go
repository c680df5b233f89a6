package main

import (
	"log"
	"time"

	"github.com/edusoko/course_market/database"
	"github.com/edusoko/course_market/handlers"
	"github.com/edusoko/course_market/jobs"
	"github.com/edusoko/course_market/notifications"
	"github.com/edusoko/course_market/payments"
	"github.com/edusoko/course_market/routes"
	"github.com/edusoko/course_market/services"
	"github.com/edusoko/course_market/settlement"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"
)

func main() {
	database.ConnectDB()
	database.Migrate()
	database.SeedAdmin()
	notifications.InitEmailService()

	go services.FetchRates()

	gateway := payments.NewStripeGateway()

	processor := settlement.NewProcessor(database.DB)
	processor.OnSettled = services.GenerateInvoiceForPayment

	jobs.InitPayoutJobs(gateway)

	dispatcher := settlement.NewDispatcher(database.DB, gateway, processor, jobs.Executor())
	handlers.InitWebhookHandler(dispatcher)
	handlers.InitPaymentHandlers(gateway)

	c := cron.New()
	c.AddFunc("0 * * * *", jobs.SchedulePayouts)
	c.AddFunc("*/5 * * * *", jobs.ProcessPayouts)
	go c.Start()
	log.Println("✅ Payout cron jobs scheduled successfully.")

	app := fiber.New(fiber.Config{
		Prefork:           false,
		AppName:           "Course Market",
		CaseSensitive:     true,
		StrictRouting:     true,
		EnablePrintRoutes: true,
		PassLocalsToViews: true,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Printf("[ERROR] %v | Path: %s | Method: %s", err, c.Path(), c.Method())
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": err.Error(),
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Stripe-Signature",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "UTC",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "success",
			"message": "Welcome to Course Market API",
		})
	})

	routes.PublicRoutes(app)
	routes.AuthRoutes(app)
	routes.TeacherRoutes(app)
	routes.AdminRoutes(app)
	routes.PaymentRoutes(app)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})

	log.Println("✅ Server is running on port 8080")
	err := app.Listen(":8080")
	if err != nil {
		log.Fatalf("🔥 Server failed to start: %v", err)
	}
}
