package services

import (
	"bytes"
	"log"
	"os"
	"testing"

	"github.com/edusoko/course_market/database"
	"github.com/edusoko/course_market/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The teacher row is keyed by user ID, so the sale notice has to resolve the
// recipient through that key, not a surrogate teacher ID.
func TestSendSaleEmails_ResolvesTeacherUser(t *testing.T) {
	db := newSchedulerDB(t, "invoice_emails")
	require.NoError(t, db.AutoMigrate(&models.Course{}, &models.Payment{}))

	prev := database.DB
	database.DB = db
	defer func() { database.DB = prev }()

	student := models.User{ID: uuid.New(), FullName: "Buying Student", Email: uuid.New().String() + "@example.com", Password: "x"}
	require.NoError(t, db.Create(&student).Error)

	teacher := seedConnectedTeacher(t, db)

	course := models.Course{ID: uuid.New(), TeacherID: teacher.UserID, Title: "Repro Course", Price: 100, Currency: "USD", IsActive: true}
	require.NoError(t, db.Create(&course).Error)

	payment := models.Payment{
		ID:           uuid.New(),
		StudentID:    student.ID,
		CourseID:     course.ID,
		TeacherID:    teacher.UserID,
		Amount:        100,
		TeacherShare:  70,
		PlatformShare: 30,
		Currency:      "USD",
		Status:        "success",
	}
	require.NoError(t, db.Create(&payment).Error)

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	sendSaleEmails(student, course, payment)

	assert.NotContains(t, buf.String(), "Failed to load teacher")
}
