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

type QuestionPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewQuestionPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.QuestionRepository {
	return &QuestionPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (q *QuestionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}

// GetByID retrieves a question by ID with caching
func (q *QuestionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	cacheKey := fmt.Sprintf("question:%d", id)
	var question models.Question

	err := q.cacheManager.Fast.CacheOrExecute(ctx, cacheKey, &question, cache.FastCacheConfig.TTL, func() (interface{}, error) {
		var dbQuestion models.Question
		err := q.getDB(tx).WithContext(ctx).First(&dbQuestion, id).Error
		if err != nil {
			return nil, fmt.Errorf("failed to get question: %w", err)
		}
		return &dbQuestion, nil
	})

	if err != nil {
		return nil, err
	}

	return &question, nil
}

// GetByIDs retrieves multiple questions in a single query.
// Not cached: batch reads hit this once per session build.
func (q *QuestionPostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error) {
	if len(ids) == 0 {
		return []*models.Question{}, nil
	}

	var questions []*models.Question
	err := q.getDB(tx).WithContext(ctx).
		Where("id IN ?", ids).
		Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get questions by ids: %w", err)
	}

	return questions, nil
}

// GetByExam retrieves the questions of an exam in authored order
func (q *QuestionPostgreSQL) GetByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.Question, error) {
	var questions []*models.Question
	err := q.getDB(tx).WithContext(ctx).
		Joins("JOIN exam_questions ON exam_questions.question_id = questions.id").
		Where("exam_questions.exam_id = ?", examID).
		Order("exam_questions.order ASC").
		Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get exam questions: %w", err)
	}

	return questions, nil
}
