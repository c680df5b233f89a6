package models

import (
	"time"

	"github.com/google/uuid"
)

type Course struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	TeacherID   uuid.UUID `gorm:"not null" json:"teacher_id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description *string   `gorm:"type:text" json:"description"`
	Price       float64   `gorm:"type:numeric(10,2);not null" json:"price"`
	Currency    string    `gorm:"size:3;default:'USD'" json:"currency"`
	IsActive    bool      `gorm:"default:true" json:"is_active"`

	EnrollmentCount  int     `gorm:"default:0" json:"enrollment_count"`
	EnrolledStudents []*User `gorm:"many2many:enrollments;" json:"-"`

	Teacher User `gorm:"foreignkey:TeacherID" json:"teacher"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
