package models

import (
	"time"

	"github.com/google/uuid"
)

// Enrollment is the join row behind User.EnrolledCourses. Settlement reads and
// writes it directly: an existing row is the idempotency marker that makes a
// redelivered payment event a safe no-op.
type Enrollment struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	CourseID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"course_id"`
	CreatedAt time.Time `json:"created_at"`
}
