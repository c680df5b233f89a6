package routes

import (
	"github.com/edusoko/course_market/handlers"
	"github.com/edusoko/course_market/middleware"
	"github.com/gofiber/fiber/v2"
)

func PaymentRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	// Gateway webhook verifies its own signature, so it stays outside the
	// authenticated group.
	api.Post("/payments/webhook", handlers.HandleStripeWebhook)

	payments := api.Group("/payments", middleware.Protected())
	payments.Post("/checkout/:courseId", handlers.CreateCheckoutHandler)
	payments.Get("/me", handlers.GetMyPayments)
}
