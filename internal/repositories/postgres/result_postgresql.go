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

type ResultPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewResultPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.ResultRepository {
	return &ResultPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (r *ResultPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// CreateWithAnswers persists the result envelope and all answer entries.
// Answers are created via the association so the envelope and entries land
// in the same statement batch.
func (r *ResultPostgreSQL) CreateWithAnswers(ctx context.Context, tx *gorm.DB, result *models.ExamResult) error {
	if err := r.getDB(tx).WithContext(ctx).Create(result).Error; err != nil {
		return fmt.Errorf("failed to create result: %w", err)
	}

	return nil
}

// GetByID retrieves a result envelope by ID with caching
func (r *ResultPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.ExamResult, error) {
	cacheKey := fmt.Sprintf("id:%s", id)
	var result models.ExamResult

	err := r.cacheManager.Result.CacheOrExecute(ctx, cacheKey, &result, cache.ResultCacheConfig.TTL, func() (interface{}, error) {
		var dbResult models.ExamResult
		err := r.getDB(tx).WithContext(ctx).Where("id = ?", id).First(&dbResult).Error
		if err != nil {
			return nil, fmt.Errorf("failed to get result: %w", err)
		}
		return &dbResult, nil
	})

	if err != nil {
		return nil, err
	}

	return &result, nil
}

// GetByIDWithAnswers retrieves a result with all answer entries in exam order
func (r *ResultPostgreSQL) GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id string) (*models.ExamResult, error) {
	cacheKey := fmt.Sprintf("answers:%s", id)
	var result models.ExamResult

	err := r.cacheManager.Result.CacheOrExecute(ctx, cacheKey, &result, cache.ResultCacheConfig.TTL, func() (interface{}, error) {
		var dbResult models.ExamResult
		err := r.getDB(tx).WithContext(ctx).
			Preload("Answers", func(db *gorm.DB) *gorm.DB {
				return db.Order("result_answers.order ASC")
			}).
			Where("id = ?", id).
			First(&dbResult).Error
		if err != nil {
			return nil, fmt.Errorf("failed to get result with answers: %w", err)
		}
		return &dbResult, nil
	})

	return &result, err
}

// Update updates a result envelope and invalidates cache
func (r *ResultPostgreSQL) Update(ctx context.Context, tx *gorm.DB, result *models.ExamResult) error {
	if err := r.getDB(tx).WithContext(ctx).Model(&models.ExamResult{}).Where("id = ?", result.ID).Updates(map[string]interface{}{
		"status":          result.Status,
		"total_count":     result.TotalCount,
		"correct_count":   result.CorrectCount,
		"incorrect_count": result.IncorrectCount,
		"percentage":      result.Percentage,
		"score":           result.Score,
		"updated_at":      result.UpdatedAt,
	}).Error; err != nil {
		return fmt.Errorf("failed to update result: %w", err)
	}

	r.cacheManager.InvalidateResult(ctx, result.ID)

	return nil
}

// UpdateAnswers saves grading verdicts back onto answer entries
func (r *ResultPostgreSQL) UpdateAnswers(ctx context.Context, tx *gorm.DB, answers []*models.ResultAnswer) error {
	db := r.getDB(tx).WithContext(ctx)
	for _, answer := range answers {
		if err := db.Model(&models.ResultAnswer{}).Where("id = ?", answer.ID).Updates(map[string]interface{}{
			"is_correct": answer.IsCorrect,
		}).Error; err != nil {
			return fmt.Errorf("failed to update answer %s: %w", answer.ID, err)
		}
	}

	return nil
}

// List retrieves results with filters and pagination
func (r *ResultPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.ResultFilters) ([]*models.ExamResult, int64, error) {
	query := r.getDB(tx).WithContext(ctx).Model(&models.ExamResult{})

	query = r.helpers.ApplyResultFilters(query, filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count results: %w", err)
	}

	query = query.Order("submitted_at DESC, id ASC")
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var results []*models.ExamResult
	if err := query.Find(&results).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list results: %w", err)
	}

	return results, total, nil
}

// ExistsByID checks whether a result exists without loading it
func (r *ResultPostgreSQL) ExistsByID(ctx context.Context, tx *gorm.DB, id string) (bool, error) {
	var count int64
	err := r.getDB(tx).WithContext(ctx).
		Model(&models.ExamResult{}).
		Where("id = ?", id).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check result existence: %w", err)
	}

	return count > 0, nil
}
