package routes

import (
	"github.com/edusoko/course_market/handlers"
	"github.com/edusoko/course_market/middleware"
	"github.com/gofiber/fiber/v2"
)

func TeacherRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	api.Get("/teachers/:teacherId", handlers.GetTeacherProfile)

	teacher := api.Group("/teacher", middleware.Protected())
	teacher.Post("/apply", handlers.ApplyToBeATeacher)

	profile := teacher.Group("/profile")
	profile.Get("/me", handlers.GetMyTeacherProfile)
	profile.Put("/me", handlers.UpdateMyTeacherProfile)

	earnings := teacher.Group("/earnings", middleware.TeacherRequired())
	earnings.Get("", handlers.GetMyEarnings)
	earnings.Get("/summaries", handlers.GetMyMonthlySummaries)
	teacher.Get("/analytics", middleware.TeacherRequired(), handlers.GetTeacherAnalytics)

	courses := teacher.Group("/courses", middleware.TeacherRequired())
	courses.Post("", handlers.CreateCourse)
	courses.Get("", handlers.GetMyCourses)
	courses.Put("/:courseId", handlers.UpdateCourse)

	payouts := teacher.Group("/payouts", middleware.TeacherRequired())
	payouts.Post("/connect", handlers.ConnectPayoutAccount)
	payouts.Get("/account-status", handlers.GetPayoutAccountStatus)
	payouts.Get("/preference", handlers.GetPayoutPreference)
	payouts.Put("/preference", handlers.UpdatePayoutPreference)
	payouts.Post("/request", handlers.RequestManualPayout)
	payouts.Get("", handlers.ListMyPayouts)
	payouts.Get("/:payoutId", handlers.GetMyPayout)
}
