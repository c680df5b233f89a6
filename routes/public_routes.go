package routes

import (
	"github.com/edusoko/course_market/handlers"
	"github.com/edusoko/course_market/middleware"
	"github.com/gofiber/fiber/v2"
)

func PublicRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	api.Get("/currency/rate", handlers.GetConversionRate)

	api.Get("/courses", handlers.ListCourses)
	api.Get("/courses/:courseId", handlers.GetCourse)

	me := api.Group("/me", middleware.Protected())
	me.Get("/enrollments", handlers.GetMyEnrollments)
}
