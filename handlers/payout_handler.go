package handlers

import (
	"errors"

	"github.com/edusoko/course_market/database"
	"github.com/edusoko/course_market/jobs"
	"github.com/edusoko/course_market/models"
	"github.com/edusoko/course_market/services"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func GetPayoutPreference(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	teacherID, _ := uuid.Parse(claims["user_id"].(string))

	var pref models.PayoutPreference
	err := database.DB.First(&pref, "teacher_id = ?", teacherID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		pref = models.DefaultPayoutPreference(teacherID)
		if err := database.DB.Create(&pref).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
		}
	} else if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}

	return c.JSON(pref)
}

type UpdatePayoutPreferenceRequest struct {
	Schedule      string  `json:"schedule" validate:"required,oneof=daily weekly biweekly monthly manual"`
	MinimumAmount float64 `json:"minimum_amount" validate:"gte=0"`
	AutoPayout    *bool   `json:"auto_payout"`
	AnchorDay     int     `json:"anchor_day" validate:"gte=0,lte=28"`
	AnchorHour    int     `json:"anchor_hour" validate:"gte=0,lte=23"`
}

func UpdatePayoutPreference(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	teacherID, _ := uuid.Parse(claims["user_id"].(string))

	var req UpdatePayoutPreferenceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var pref models.PayoutPreference
	err := database.DB.First(&pref, "teacher_id = ?", teacherID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		pref = models.DefaultPayoutPreference(teacherID)
	} else if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}

	pref.Schedule = req.Schedule
	pref.MinimumAmount = req.MinimumAmount
	if req.AutoPayout != nil {
		pref.AutoPayout = *req.AutoPayout
	}
	if req.AnchorDay > 0 {
		pref.AnchorDay = req.AnchorDay
	}
	pref.AnchorHour = req.AnchorHour
	// Changing the schedule invalidates the previously computed run time.
	pref.NextPayoutAt = nil

	if err := database.DB.Save(&pref).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update preference"})
	}

	return c.JSON(pref)
}

// RequestManualPayout immediately claims the teacher's pending earnings into a
// new payout, bypassing the minimum-amount threshold.
func RequestManualPayout(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	teacherID, _ := uuid.Parse(claims["user_id"].(string))

	var teacher models.Teacher
	if err := database.DB.First(&teacher, "user_id = ?", teacherID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Teacher profile not found"})
	}
	if teacher.StripeAccountID == nil || !teacher.PayoutsEnabled {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Connect and complete your payout account before requesting a payout"})
	}

	var pref models.PayoutPreference
	if err := database.DB.First(&pref, "teacher_id = ?", teacherID).Error; err != nil {
		pref = models.DefaultPayoutPreference(teacherID)
	}

	payout, err := jobs.Scheduler().CreatePayoutFor(c.Context(), teacherID, pref, true)
	if err != nil {
		if errors.Is(err, services.ErrNoPendingEarnings) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "No pending earnings available for payout"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create payout"})
	}

	return c.Status(fiber.StatusCreated).JSON(payout)
}

func ListMyPayouts(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	teacherID, _ := uuid.Parse(claims["user_id"].(string))

	var payouts []models.Payout
	database.DB.Where("teacher_id = ?", teacherID).Order("created_at desc").Find(&payouts)

	return c.JSON(payouts)
}

func GetMyPayout(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	teacherID, _ := uuid.Parse(claims["user_id"].(string))

	var payout models.Payout
	if err := database.DB.First(&payout, "id = ? AND teacher_id = ?", c.Params("payoutId"), teacherID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Payout not found"})
	}

	return c.JSON(payout)
}
