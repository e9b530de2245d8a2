package repositories

import (
	"context"
	"time"

	"github.com/eduhub-vn/exam-session-service/internal/models"
	"gorm.io/gorm"
)

// ===== SHARED FILTER STRUCTS =====

type ExamFilters struct {
	Status    *models.ExamStatus `json:"status"`
	CreatedBy *string            `json:"created_by"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
	SortBy    string             `json:"sort_by"`    // "created_at", "title"
	SortOrder string             `json:"sort_order"` // "asc", "desc"
}

// ScheduleFilters paginates schedule window listings. No exam filter on
// purpose: callers page through all windows and filter in code, the backend
// collection is not assumed to support server-side filtering.
type ScheduleFilters struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type ResultFilters struct {
	ExamID    *uint      `json:"exam_id"`
	WindowID  *uint      `json:"window_id"`
	StudentID *string    `json:"student_id"`
	DateFrom  *time.Time `json:"date_from"`
	DateTo    *time.Time `json:"date_to"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}

type UserFilters struct {
	Query  string
	Limit  int
	Offset int
}

// ===== REPOSITORY INTERFACES =====

type ExamRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error)
	// GetByIDWithQuestions preloads the ordered question refs and their bodies.
	GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error)
	List(ctx context.Context, tx *gorm.DB, filters ExamFilters) ([]*models.Exam, int64, error)
}

type QuestionRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error)
	GetByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.Question, error)
}

type ScheduleRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ScheduleWindow, error)
	List(ctx context.Context, tx *gorm.DB, filters ScheduleFilters) ([]*models.ScheduleWindow, int64, error)
}

type ResultRepository interface {
	// CreateWithAnswers persists the envelope and all entries atomically.
	CreateWithAnswers(ctx context.Context, tx *gorm.DB, result *models.ExamResult) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.ExamResult, error)
	GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id string) (*models.ExamResult, error)
	Update(ctx context.Context, tx *gorm.DB, result *models.ExamResult) error
	UpdateAnswers(ctx context.Context, tx *gorm.DB, answers []*models.ResultAnswer) error
	List(ctx context.Context, tx *gorm.DB, filters ResultFilters) ([]*models.ExamResult, int64, error)
	ExistsByID(ctx context.Context, tx *gorm.DB, id string) (bool, error)
}

// UserRepository provides read access to identity data.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	ExistsByID(ctx context.Context, id string) (bool, error)
}
