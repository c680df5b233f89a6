package handlers

import (
	"errors"
	"log"

	config "github.com/edusoko/course_market/configs"
	"github.com/edusoko/course_market/database"
	"github.com/edusoko/course_market/models"
	"github.com/edusoko/course_market/services"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TeacherApplicationRequest struct {
	Headline string `json:"headline" validate:"required"`
	Bio      string `json:"bio" validate:"required"`
}

func ApplyToBeATeacher(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	userIDStr := claims["user_id"].(string)
	userID, _ := uuid.Parse(userIDStr)

	var req TeacherApplicationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var existingTeacher models.Teacher
	err := database.DB.Where("user_id = ?", userID).First(&existingTeacher).Error
	if err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "You have already submitted an application."})
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}

	newApplication := models.Teacher{
		UserID:   userID,
		Headline: &req.Headline,
		Bio:      &req.Bio,
	}

	if err := database.DB.Create(&newApplication).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create application"})
	}

	return c.Status(fiber.StatusCreated).JSON(newApplication)
}

// ConnectPayoutAccount creates (or reuses) the teacher's express account and
// returns a hosted onboarding link. The account status fields are kept fresh
// by the account.updated webhook afterwards.
func ConnectPayoutAccount(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	teacherID, _ := uuid.Parse(claims["user_id"].(string))

	var teacher models.Teacher
	if err := database.DB.Preload("User").First(&teacher, "user_id = ?", teacherID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Teacher profile not found"})
	}
	if teacher.Status != "active" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Your teacher application has not been approved yet"})
	}

	accountID := ""
	if teacher.StripeAccountID != nil {
		accountID = *teacher.StripeAccountID
	} else {
		var err error
		accountID, err = gateway.CreateExpressAccount(c.Context(), teacher.User.Email)
		if err != nil {
			log.Printf("🔥 Express account creation failed for teacher %s: %v", teacherID, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Failed to create payout account"})
		}
		teacher.StripeAccountID = &accountID
		if err := database.DB.Save(&teacher).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
		}
	}

	baseURL := config.Config("FRONTEND_BASE_URL")
	linkURL, err := gateway.CreateAccountLink(c.Context(), accountID,
		baseURL+"/teacher/payouts/connect?refresh=true",
		baseURL+"/teacher/payouts/connect?complete=true")
	if err != nil {
		log.Printf("🔥 Account link creation failed for teacher %s: %v", teacherID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Failed to create onboarding link"})
	}

	return c.JSON(fiber.Map{"onboarding_url": linkURL})
}

// GetPayoutAccountStatus returns the live gateway account status and syncs the
// local capability flags from it.
func GetPayoutAccountStatus(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	teacherID, _ := uuid.Parse(claims["user_id"].(string))

	var teacher models.Teacher
	if err := database.DB.First(&teacher, "user_id = ?", teacherID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Teacher profile not found"})
	}
	if teacher.StripeAccountID == nil {
		return c.JSON(fiber.Map{"connected": false})
	}

	status, err := gateway.GetAccount(c.Context(), *teacher.StripeAccountID)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Failed to retrieve account status"})
	}

	database.DB.Model(&teacher).Updates(map[string]interface{}{
		"payouts_enabled":     status.PayoutsEnabled,
		"charges_enabled":     status.ChargesEnabled,
		"onboarding_complete": status.DetailsSubmitted,
	})

	return c.JSON(fiber.Map{
		"connected":           true,
		"payouts_enabled":     status.PayoutsEnabled,
		"charges_enabled":     status.ChargesEnabled,
		"onboarding_complete": status.DetailsSubmitted,
	})
}

// GetMyEarnings returns the running earnings counters, optionally converted
// from USD into the teacher's display currency.
func GetMyEarnings(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	teacherID, _ := uuid.Parse(claims["user_id"].(string))

	var teacher models.Teacher
	if err := database.DB.First(&teacher, "user_id = ?", teacherID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Teacher profile not found"})
	}

	currency := c.Query("currency", "USD")
	total, err := services.ConvertFromUSD(teacher.TotalEarnings, currency)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	weekly, _ := services.ConvertFromUSD(teacher.WeeklyEarnings, currency)
	monthly, _ := services.ConvertFromUSD(teacher.MonthlyEarnings, currency)
	yearly, _ := services.ConvertFromUSD(teacher.YearlyEarnings, currency)

	var pendingUSD float64
	database.DB.Model(&models.Transaction{}).
		Where("teacher_id = ? AND transfer_status = ? AND payout_id IS NULL AND status = ?", teacherID, "pending", "success").
		Select("COALESCE(SUM(teacher_earning), 0)").Scan(&pendingUSD)
	pending, _ := services.ConvertFromUSD(pendingUSD, currency)

	return c.JSON(fiber.Map{
		"currency":         currency,
		"total_earnings":   total,
		"weekly_earnings":  weekly,
		"monthly_earnings": monthly,
		"yearly_earnings":  yearly,
		"pending_payout":   pending,
	})
}

// GetMyMonthlySummaries returns the aggregated per-month settlement summaries.
func GetMyMonthlySummaries(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	teacherID, _ := uuid.Parse(claims["user_id"].(string))

	var summaries []models.PayoutSummary
	database.DB.Where("teacher_id = ?", teacherID).Order("month desc").Find(&summaries)

	return c.JSON(summaries)
}

func GetMyTeacherProfile(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	teacherID, _ := uuid.Parse(claims["user_id"].(string))

	var teacher models.Teacher
	if err := database.DB.Preload("User").First(&teacher, "user_id = ?", teacherID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Teacher profile not found"})
	}
	return c.JSON(teacher)
}

func UpdateMyTeacherProfile(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	teacherID, _ := uuid.Parse(claims["user_id"].(string))

	type UpdateRequest struct {
		Headline string `json:"headline" validate:"required"`
		Bio      string `json:"bio" validate:"required"`
	}
	var req UpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var teacher models.Teacher
	if err := database.DB.First(&teacher, "user_id = ?", teacherID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Teacher profile not found"})
	}

	teacher.Headline = &req.Headline
	teacher.Bio = &req.Bio
	database.DB.Save(&teacher)

	return c.JSON(teacher)
}

func GetTeacherProfile(c *fiber.Ctx) error {
	teacherID := c.Params("teacherId")

	var teacher models.Teacher
	if err := database.DB.Preload("User").First(&teacher, "user_id = ? AND status = ?", teacherID, "active").Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Active teacher not found"})
	}

	return c.JSON(teacher)
}

type MonthlyEarning struct {
	Month    string  `json:"month"`
	Earnings float64 `json:"earnings"`
}

func GetTeacherAnalytics(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	teacherID, _ := uuid.Parse(claims["user_id"].(string))

	var teacher models.Teacher
	if err := database.DB.First(&teacher, "user_id = ?", teacherID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Teacher profile not found"})
	}

	var totalSales int64
	database.DB.Model(&models.Transaction{}).
		Where("teacher_id = ? AND status = ?", teacherID, "success").
		Count(&totalSales)

	var monthlyEarnings []MonthlyEarning
	database.DB.Model(&models.Transaction{}).
		Select("TO_CHAR(created_at, 'YYYY-MM') as month, SUM(teacher_earning) as earnings").
		Where("teacher_id = ? AND status = ?", teacherID, "success").
		Group("month").
		Order("month asc").
		Scan(&monthlyEarnings)

	return c.JSON(fiber.Map{
		"total_earnings":        teacher.TotalEarnings,
		"total_sales":           totalSales,
		"monthly_earnings_data": monthlyEarnings,
	})
}
