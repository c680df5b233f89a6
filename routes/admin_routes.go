package routes

import (
	"github.com/edusoko/course_market/handlers"
	"github.com/edusoko/course_market/middleware"
	"github.com/gofiber/fiber/v2"
)

func AdminRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	admin := api.Group("/admin", middleware.Protected(), middleware.AdminRequired())

	admin.Get("/applications/pending", handlers.ListPendingApplications)
	admin.Put("/applications/:teacherId", handlers.ManageApplication)
	admin.Get("/dashboard-analytics", handlers.GetDashboardAnalytics)

	reports := admin.Group("/reports")
	reports.Get("/settlements", handlers.GenerateSettlementReport)

	users := admin.Group("/users")
	users.Get("", handlers.GetAllUsers)
	users.Put("/:userId/status", handlers.ToggleUserStatus)

	admin.Get("/payments", handlers.AdminGetPayments)

	payouts := admin.Group("/payouts")
	payouts.Get("", handlers.AdminListPayouts)
	payouts.Get("/:payoutId", handlers.AdminGetPayout)
	payouts.Post("/:payoutId/cancel", handlers.AdminCancelPayout)
	payouts.Post("/:payoutId/retry", handlers.AdminRetryPayout)
}
