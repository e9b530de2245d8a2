package models

import (
	"time"

	"gorm.io/gorm"
)

type ExamStatus string

const (
	ExamDraft     ExamStatus = "Draft"
	ExamPublished ExamStatus = "Published"
	ExamArchived  ExamStatus = "Archived"
)

type Exam struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	Title       string     `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description *string    `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`
	Duration    string     `json:"duration" gorm:"not null;size:8" validate:"required"` // "HH:MM:SS"
	Status      ExamStatus `json:"status" gorm:"default:Draft;index" validate:"omitempty,oneof=Draft Published Archived"`

	// Metadata
	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Questions []ExamQuestion   `json:"questions" gorm:"foreignKey:ExamID"`
	Windows   []ScheduleWindow `json:"windows" gorm:"foreignKey:ExamID"`
	Creator   User             `json:"creator" gorm:"foreignKey:CreatedBy"`

	// Computed fields (not stored)
	QuestionsCount int `json:"questions_count" gorm:"-"`
}

// ExamQuestion pins a question into an exam at a fixed display order.
type ExamQuestion struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	ExamID     uint `json:"exam_id" gorm:"not null;index"`
	QuestionID uint `json:"question_id" gorm:"not null;index"`
	Order      int  `json:"order" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Exam     Exam     `json:"exam" gorm:"foreignKey:ExamID"`
	Question Question `json:"question" gorm:"foreignKey:QuestionID"`
}

// ScheduleWindow is the interval during which a class may attempt an exam.
// Multiple windows may reference the same exam; end > start is a backend
// invariant and not re-validated here.
type ScheduleWindow struct {
	ID       uint       `json:"id" gorm:"primaryKey"`
	ExamID   uint       `json:"exam_id" gorm:"not null;index"`
	ClassID  uint       `json:"class_id" gorm:"not null;index"`
	StartsAt time.Time  `json:"starts_at" gorm:"not null"`
	EndsAt   time.Time  `json:"ends_at" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Exam Exam `json:"exam" gorm:"foreignKey:ExamID"`
}

// Contains reports whether the window's [start, end] interval covers t.
func (w ScheduleWindow) Contains(t time.Time) bool {
	return !t.Before(w.StartsAt) && !t.After(w.EndsAt)
}

func (Exam) TableName() string {
	return "exams"
}

func (ExamQuestion) TableName() string {
	return "exam_questions"
}

func (ScheduleWindow) TableName() string {
	return "schedule_windows"
}
