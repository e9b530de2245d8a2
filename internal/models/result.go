package models

import (
	"time"
)

type ResultStatus string

const (
	ResultSubmitted ResultStatus = "submitted"
	ResultAnalyzed  ResultStatus = "analyzed"
)

// Submission triggers. Manual is a user click, automatic is clock expiry.
const (
	TriggerManual    = "manual"
	TriggerAutomatic = "automatic"
)

// ExamResult is the persisted submission envelope. The ID is generated
// client-side at session admission and doubles as the shuffle-seed namespace
// and the submission idempotency key.
type ExamResult struct {
	ID        string       `json:"id" gorm:"primaryKey;size:36"`
	ExamID    uint         `json:"exam_id" gorm:"not null;index"`
	WindowID  uint         `json:"window_id" gorm:"not null;index"`
	StudentID string       `json:"student_id" gorm:"not null;index;size:255"`
	Status    ResultStatus `json:"status" gorm:"default:submitted;index"`

	// Timing
	StartedAt   time.Time `json:"started_at" gorm:"not null"` // session admission, not submit time
	SubmittedAt time.Time `json:"submitted_at" gorm:"not null"`
	Trigger     string    `json:"trigger" gorm:"not null;size:16"` // manual | automatic

	// Scoring (filled by the analysis path)
	TotalCount     int     `json:"total_count"`
	CorrectCount   int     `json:"correct_count"`
	IncorrectCount int     `json:"incorrect_count"`
	Percentage     float64 `json:"percentage"`
	Score          float64 `json:"score"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Exam    Exam           `json:"exam" gorm:"foreignKey:ExamID"`
	Window  ScheduleWindow `json:"window" gorm:"foreignKey:WindowID"`
	Student User           `json:"student" gorm:"foreignKey:StudentID"`
	Answers []ResultAnswer `json:"answers" gorm:"foreignKey:ResultID"`
}

// ResultAnswer is one per-question submission entry. Selection and FreeText
// are both always present as strings, never null: Selection carries a choice
// id or a JSON-encoded array of ids, FreeText carries free-form text, and the
// field not matching the question kind stays empty.
type ResultAnswer struct {
	ID         string `json:"id" gorm:"primaryKey;size:36"`
	ResultID   string `json:"result_id" gorm:"not null;index;size:36"`
	QuestionID uint   `json:"question_id" gorm:"not null;index"`
	Order      int    `json:"order" gorm:"not null"`

	Selection string `json:"selection" gorm:"type:text;not null"`
	FreeText  string `json:"free_text" gorm:"type:text;not null"`

	// Grading (filled by the analysis path; nil until analyzed, and stays nil
	// for free-text answers without an accepted-answers key)
	IsCorrect *bool `json:"is_correct"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Result   ExamResult `json:"result" gorm:"foreignKey:ResultID"`
	Question Question   `json:"question" gorm:"foreignKey:QuestionID"`
}

func (ExamResult) TableName() string {
	return "exam_results"
}

func (ResultAnswer) TableName() string {
	return "result_answers"
}
