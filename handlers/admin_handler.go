package handlers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/edusoko/course_market/database"
	"github.com/edusoko/course_market/models"
	"github.com/edusoko/course_market/notifications"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func ListPendingApplications(c *fiber.Ctx) error {
	var pendingTeachers []models.Teacher
	if err := database.DB.Preload("User").Where("status = ?", "pending").Find(&pendingTeachers).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	return c.JSON(pendingTeachers)
}

func ManageApplication(c *fiber.Ctx) error {
	type MgtRequest struct {
		Status string `json:"status" validate:"required,oneof=active rejected"`
	}

	var req MgtRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	teacherUserID := c.Params("teacherId")

	var teacherApp models.Teacher
	if err := database.DB.Where("user_id = ?", teacherUserID).First(&teacherApp).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Application not found"})
	}

	var user models.User
	if err := database.DB.Where("id = ?", teacherUserID).First(&user).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Associated user not found"})
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		teacherApp.Status = req.Status
		if err := tx.Save(&teacherApp).Error; err != nil {
			return err
		}
		if req.Status == "active" {
			user.Role = "teacher"
			if err := tx.Save(&user).Error; err != nil {
				return err
			}
			pref := models.DefaultPayoutPreference(teacherApp.UserID)
			if err := tx.Where("teacher_id = ?", teacherApp.UserID).FirstOrCreate(&pref).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update application status"})
	}

	switch req.Status {
	case "active":
		go notifications.SendEmail(
			user.FullName,
			user.Email,
			"Your Teacher Application has been Approved!",
			"<h1>Congratulations!</h1><p>Your application to become a teacher has been approved. You can now publish courses and connect your payout account.</p>",
		)
	case "rejected":
		go notifications.SendEmail(
			user.FullName,
			user.Email,
			"Update on Your Teacher Application",
			"<h1>Application Update</h1><p>We regret to inform you that after careful review, your teacher application was not approved at this time.</p>",
		)
	}

	return c.JSON(fiber.Map{"message": "Application status updated successfully"})
}

type DashboardAnalyticsResponse struct {
	TotalStudents       int64           `json:"total_students"`
	TotalActiveTeachers int64           `json:"total_active_teachers"`
	TotalRevenue        float64         `json:"total_revenue"`
	PlatformEarnings    float64         `json:"platform_earnings"`
	SalesLast30Days     int64           `json:"sales_last_30_days"`
	PendingPayouts      int64           `json:"pending_payouts"`
	FailedPayouts       int64           `json:"failed_payouts"`
	RecentPayouts       []models.Payout `json:"recent_payouts"`
}

func GetDashboardAnalytics(c *fiber.Ctx) error {
	var response DashboardAnalyticsResponse

	database.DB.Model(&models.User{}).Where("role = ?", "student").Count(&response.TotalStudents)
	database.DB.Model(&models.Teacher{}).Where("status = ?", "active").Count(&response.TotalActiveTeachers)

	database.DB.Model(&models.Payment{}).Where("status = ?", "success").
		Select("COALESCE(SUM(amount), 0)").Row().Scan(&response.TotalRevenue)
	database.DB.Model(&models.Transaction{}).Where("status = ?", "success").
		Select("COALESCE(SUM(platform_earning), 0)").Row().Scan(&response.PlatformEarnings)

	thirtyDaysAgo := time.Now().AddDate(0, 0, -30)
	database.DB.Model(&models.Transaction{}).Where("created_at > ?", thirtyDaysAgo).Count(&response.SalesLast30Days)

	database.DB.Model(&models.Payout{}).
		Where("status IN ?", []string{models.PayoutStatusScheduled, models.PayoutStatusProcessing, models.PayoutStatusInTransit}).
		Count(&response.PendingPayouts)
	database.DB.Model(&models.Payout{}).Where("status = ?", models.PayoutStatusFailed).Count(&response.FailedPayouts)

	database.DB.Order("created_at desc").Limit(5).Preload("Teacher").Find(&response.RecentPayouts)

	return c.JSON(response)
}

func GetAllUsers(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "10"))
	search := strings.TrimSpace(c.Query("search"))
	offset := (page - 1) * limit

	var users []models.User
	var totalUsers int64

	query := database.DB.Model(&models.User{})
	countQuery := database.DB.Model(&models.User{})

	if search != "" {
		searchTerm := "%" + search + "%"
		query = query.Where("full_name ILIKE ? OR email ILIKE ?", searchTerm, searchTerm)
		countQuery = countQuery.Where("full_name ILIKE ? OR email ILIKE ?", searchTerm, searchTerm)
	}

	countQuery.Count(&totalUsers)
	query.Offset(offset).Limit(limit).Find(&users)

	return c.JSON(fiber.Map{
		"data": users,
		"meta": fiber.Map{
			"total_users":  totalUsers,
			"total_pages":  int(math.Ceil(float64(totalUsers) / float64(limit))),
			"current_page": page,
		},
	})
}

func ToggleUserStatus(c *fiber.Ctx) error {
	userID := c.Params("userId")
	type Request struct {
		IsActive bool `json:"is_active"`
	}
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}

	if err := database.DB.Model(&models.User{}).Where("id = ?", userID).Update("is_active", req.IsActive).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}

	return c.JSON(fiber.Map{"message": "User status updated successfully."})
}

func AdminGetPayments(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "10"))
	offset := (page - 1) * limit

	query := database.DB.Model(&models.Payment{})
	countQuery := database.DB.Model(&models.Payment{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
		countQuery = countQuery.Where("status = ?", status)
	}
	if teacherID := c.Query("teacher_id"); teacherID != "" {
		query = query.Where("teacher_id = ?", teacherID)
		countQuery = countQuery.Where("teacher_id = ?", teacherID)
	}

	var total int64
	var payments []models.Payment
	countQuery.Count(&total)
	query.Order("created_at desc").Offset(offset).Limit(limit).Find(&payments)

	return c.JSON(fiber.Map{
		"data": payments,
		"meta": fiber.Map{"total": total, "page": page, "last_page": int(math.Ceil(float64(total) / float64(limit)))},
	})
}

func AdminListPayouts(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "10"))
	offset := (page - 1) * limit

	query := database.DB.Model(&models.Payout{})
	countQuery := database.DB.Model(&models.Payout{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
		countQuery = countQuery.Where("status = ?", status)
	}
	if teacherID := c.Query("teacher_id"); teacherID != "" {
		query = query.Where("teacher_id = ?", teacherID)
		countQuery = countQuery.Where("teacher_id = ?", teacherID)
	}

	var total int64
	var payouts []models.Payout
	countQuery.Count(&total)
	query.Order("created_at desc").Offset(offset).Limit(limit).Preload("Teacher").Find(&payouts)

	return c.JSON(fiber.Map{
		"data": payouts,
		"meta": fiber.Map{"total": total, "page": page, "last_page": int(math.Ceil(float64(total) / float64(limit)))},
	})
}

func AdminGetPayout(c *fiber.Ctx) error {
	var payout models.Payout
	if err := database.DB.Preload("Teacher").First(&payout, "id = ?", c.Params("payoutId")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Payout not found"})
	}
	return c.JSON(payout)
}

// AdminCancelPayout cancels a payout that has not been submitted to the
// gateway and releases its claimed transactions back into the pending pool.
func AdminCancelPayout(c *fiber.Ctx) error {
	type CancelRequest struct {
		Reason string `json:"reason"`
	}
	var req CancelRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}

	var payout models.Payout
	if err := database.DB.First(&payout, "id = ?", c.Params("payoutId")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Payout not found"})
	}

	if payout.Status != models.PayoutStatusScheduled && payout.Status != models.PayoutStatusFailed {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": fmt.Sprintf("Cannot cancel a payout in status '%s'", payout.Status)})
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Transaction{}).
			Where("payout_id = ? AND transfer_status = ?", payout.ID, "pending").
			Update("payout_id", nil).Error; err != nil {
			return err
		}

		payout.Status = models.PayoutStatusCancelled
		payout.NextRetryAt = nil
		if req.Reason != "" {
			payout.AdminNotes = &req.Reason
		}
		return tx.Save(&payout).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to cancel payout"})
	}

	return c.JSON(payout)
}

// AdminRetryPayout puts a terminally failed payout back on the executor's
// queue with its retry count reset.
func AdminRetryPayout(c *fiber.Ctx) error {
	var payout models.Payout
	if err := database.DB.First(&payout, "id = ?", c.Params("payoutId")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Payout not found"})
	}

	if payout.Status != models.PayoutStatusFailed && payout.Status != models.PayoutStatusCancelled {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": fmt.Sprintf("Cannot retry a payout in status '%s'", payout.Status)})
	}

	payout.Status = models.PayoutStatusScheduled
	payout.RetryCount = 0
	payout.NextRetryAt = nil
	if err := database.DB.Save(&payout).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to reschedule payout"})
	}

	return c.JSON(payout)
}

func GenerateSettlementReport(c *fiber.Ctx) error {
	startDateStr := c.Query("start_date", time.Now().AddDate(0, -1, 0).Format("2006-01-02"))
	endDateStr := c.Query("end_date", time.Now().Format("2006-01-02"))

	startDate, err := time.Parse("2006-01-02", startDateStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid start_date format. Use YYYY-MM-DD."})
	}
	endDate, err := time.Parse("2006-01-02", endDateStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid end_date format. Use YYYY-MM-DD."})
	}
	endDate = endDate.Add(23*time.Hour + 59*time.Minute + 59*time.Second)

	var transactions []models.Transaction
	database.DB.
		Where("status = ? AND created_at BETWEEN ? AND ?", "success", startDate, endDate).
		Order("created_at desc").
		Find(&transactions)

	b := new(bytes.Buffer)
	w := csv.NewWriter(b)

	headers := []string{"Transaction ID", "Date", "Course ID", "Teacher ID", "Gross", "Teacher Share", "Platform Fee", "Transfer Status", "Gateway Reference"}
	if err := w.Write(headers); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to write CSV header"})
	}

	for _, t := range transactions {
		row := []string{
			t.ID.String(),
			t.CreatedAt.Format("2006-01-02 15:04"),
			t.CourseID.String(),
			t.TeacherID.String(),
			fmt.Sprintf("%.2f", t.TotalAmount),
			fmt.Sprintf("%.2f", t.TeacherEarning),
			fmt.Sprintf("%.2f", t.PlatformEarning),
			t.TransferStatus,
			t.StripeTransactionID,
		}
		if err := w.Write(row); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to write CSV row"})
		}
	}
	w.Flush()

	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"settlements_%s_to_%s.csv\"", startDate.Format("2006-01-02"), endDate.Format("2006-01-02")))

	return c.Send(b.Bytes())
}
