package handlers

import (
	"errors"
	"fmt"
	"log"
	"math"

	config "github.com/edusoko/course_market/configs"
	"github.com/edusoko/course_market/database"
	"github.com/edusoko/course_market/models"
	"github.com/edusoko/course_market/payments"
	"github.com/edusoko/course_market/settlement"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var gateway payments.Gateway

// InitPaymentHandlers injects the gateway used by checkout and onboarding.
func InitPaymentHandlers(g payments.Gateway) {
	gateway = g
}

// CreateCheckoutHandler starts a gateway checkout session for a course. The
// split metadata embedded here is what the webhook settlement validates later.
func CreateCheckoutHandler(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	studentIDStr := claims["user_id"].(string)
	studentID, _ := uuid.Parse(studentIDStr)

	courseID, err := uuid.Parse(c.Params("courseId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid course ID format"})
	}

	var course models.Course
	if err := database.DB.First(&course, "id = ? AND is_active = ?", courseID, true).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Course not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}

	var enrolled int64
	database.DB.Model(&models.Enrollment{}).
		Where("user_id = ? AND course_id = ?", studentID, courseID).
		Count(&enrolled)
	if enrolled > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "You are already enrolled in this course"})
	}

	var student models.User
	if err := database.DB.First(&student, "id = ?", studentID).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}

	grossCents := int64(math.Round(course.Price * 100))
	split, err := settlement.CalculateSplit(grossCents, config.PlatformFeePercent(), settlement.SplitBounds{
		MinCents: config.MinPaymentCents(),
		MaxCents: config.MaxPaymentCents(),
	})
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Course price is outside the accepted payment range"})
	}

	baseURL := config.Config("FRONTEND_BASE_URL")
	sess, err := gateway.CreateCheckoutSession(c.Context(), payments.CheckoutParams{
		CourseTitle:   course.Title,
		AmountCents:   split.GrossCents,
		Currency:      "usd",
		CustomerEmail: student.Email,
		SuccessURL:    baseURL + "/courses/" + course.ID.String() + "?payment=success",
		CancelURL:     baseURL + "/courses/" + course.ID.String() + "?payment=cancelled",
		Metadata: map[string]string{
			"student_id":    studentID.String(),
			"course_id":     course.ID.String(),
			"teacher_id":    course.TeacherID.String(),
			"teacher_share": fmt.Sprintf("%d", split.TeacherCents),
			"platform_fee":  fmt.Sprintf("%d", split.PlatformCents),
		},
	})
	if err != nil {
		log.Printf("🔥 Checkout session creation failed for course %s: %v", course.ID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Failed to start checkout"})
	}

	return c.JSON(fiber.Map{"checkout_url": sess.URL, "session_id": sess.ID})
}

// GetMyPayments lists the authenticated student's payment history.
func GetMyPayments(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	studentIDStr := claims["user_id"].(string)

	var paymentsList []models.Payment
	if err := database.DB.Where("student_id = ?", studentIDStr).
		Order("created_at DESC").Find(&paymentsList).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}

	return c.JSON(paymentsList)
}
