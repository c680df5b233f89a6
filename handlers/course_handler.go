package handlers

import (
	"errors"

	"github.com/edusoko/course_market/database"
	"github.com/edusoko/course_market/models"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CreateCourseRequest struct {
	Title       string  `json:"title" validate:"required,min=3"`
	Description string  `json:"description" validate:"required"`
	Price       float64 `json:"price" validate:"required,gt=0"`
}

func CreateCourse(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	teacherID, _ := uuid.Parse(claims["user_id"].(string))

	var req CreateCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var teacher models.Teacher
	if err := database.DB.First(&teacher, "user_id = ? AND status = ?", teacherID, "active").Error; err != nil {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only approved teachers can publish courses"})
	}

	course := models.Course{
		TeacherID:   teacherID,
		Title:       req.Title,
		Description: &req.Description,
		Price:       req.Price,
		Currency:    "USD",
		IsActive:    true,
	}
	if err := database.DB.Create(&course).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create course"})
	}

	return c.Status(fiber.StatusCreated).JSON(course)
}

type UpdateCourseRequest struct {
	Title       string   `json:"title" validate:"omitempty,min=3"`
	Description string   `json:"description"`
	Price       *float64 `json:"price" validate:"omitempty,gt=0"`
	IsActive    *bool    `json:"is_active"`
}

func UpdateCourse(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	teacherID, _ := uuid.Parse(claims["user_id"].(string))

	var req UpdateCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var course models.Course
	if err := database.DB.First(&course, "id = ? AND teacher_id = ?", c.Params("courseId"), teacherID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Course not found or you do not have permission to edit it"})
	}

	if req.Title != "" {
		course.Title = req.Title
	}
	if req.Description != "" {
		course.Description = &req.Description
	}
	if req.Price != nil {
		course.Price = *req.Price
	}
	if req.IsActive != nil {
		course.IsActive = *req.IsActive
	}
	database.DB.Save(&course)

	return c.JSON(course)
}

func ListCourses(c *fiber.Ctx) error {
	query := database.DB.Preload("Teacher").Where("is_active = ?", true)

	if teacherID := c.Query("teacher_id"); teacherID != "" {
		query = query.Where("teacher_id = ?", teacherID)
	}
	if search := c.Query("search"); search != "" {
		query = query.Where("title ILIKE ?", "%"+search+"%")
	}

	var courses []models.Course
	if err := query.Order("created_at desc").Find(&courses).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to retrieve courses"})
	}

	return c.JSON(courses)
}

func GetCourse(c *fiber.Ctx) error {
	var course models.Course
	err := database.DB.Preload("Teacher").First(&course, "id = ?", c.Params("courseId")).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Course not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}

	return c.JSON(course)
}

func GetMyCourses(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	teacherID, _ := uuid.Parse(claims["user_id"].(string))

	var courses []models.Course
	database.DB.Where("teacher_id = ?", teacherID).Order("created_at desc").Find(&courses)

	return c.JSON(courses)
}

// GetMyEnrollments lists the courses the authenticated student has purchased.
func GetMyEnrollments(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	studentIDStr := claims["user_id"].(string)

	var user models.User
	if err := database.DB.Preload("EnrolledCourses.Teacher").First(&user, "id = ?", studentIDStr).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}

	return c.JSON(user.EnrolledCourses)
}
