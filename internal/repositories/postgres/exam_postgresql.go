package postgres

import (
	"context"
	"fmt"

	"github.com/eduhub-vn/exam-session-service/internal/cache"
	"github.com/eduhub-vn/exam-session-service/internal/models"
	"github.com/eduhub-vn/exam-session-service/internal/repositories"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type ExamPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewExamPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.ExamRepository {
	return &ExamPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

// getDB returns the transaction DB if provided, otherwise returns the default DB
func (e *ExamPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return e.db
}

// GetByID retrieves an exam by ID with caching
func (e *ExamPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) {
	cacheKey := fmt.Sprintf("id:%d", id)
	var exam models.Exam

	err := e.cacheManager.Exam.CacheOrExecute(ctx, cacheKey, &exam, cache.ExamCacheConfig.TTL, func() (interface{}, error) {
		var dbExam models.Exam
		err := e.getDB(tx).WithContext(ctx).First(&dbExam, id).Error
		if err != nil {
			return nil, fmt.Errorf("failed to get exam: %w", err)
		}
		return &dbExam, nil
	})

	if err != nil {
		return nil, err
	}

	return &exam, nil
}

// GetByIDWithQuestions retrieves an exam with its ordered question refs and
// question bodies preloaded. This is the query an admitted session builds from.
func (e *ExamPostgreSQL) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) {
	cacheKey := fmt.Sprintf("questions:%d", id)
	var exam models.Exam

	err := e.cacheManager.Exam.CacheOrExecute(ctx, cacheKey, &exam, cache.ExamCacheConfig.TTL, func() (interface{}, error) {
		var dbExam models.Exam
		err := e.getDB(tx).WithContext(ctx).
			Preload("Questions", func(db *gorm.DB) *gorm.DB {
				return db.Order("exam_questions.order ASC")
			}).
			Preload("Questions.Question").
			First(&dbExam, id).Error
		if err != nil {
			return nil, fmt.Errorf("failed to get exam with questions: %w", err)
		}
		return &dbExam, nil
	})

	return &exam, err
}

// List retrieves exams with filters and pagination
func (e *ExamPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.ExamFilters) ([]*models.Exam, int64, error) {
	query := e.getDB(tx).WithContext(ctx).Model(&models.Exam{})

	query = e.helpers.ApplyExamFilters(query, filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count exams: %w", err)
	}

	query = e.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	var exams []*models.Exam
	if err := query.Find(&exams).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list exams: %w", err)
	}

	return exams, total, nil
}
