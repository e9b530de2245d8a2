package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/eduhub-vn/exam-session-service/internal/models"
	"github.com/eduhub-vn/exam-session-service/internal/repositories"
)

const exportPageSize = 200

type reportService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
}

func NewReportService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger) ReportService {
	return &reportService{
		repo:   repo,
		db:     db,
		logger: logger,
	}
}

// ExportExamResults renders all results of an exam into an xlsx workbook,
// one row per submission. Staff only.
func (s *reportService) ExportExamResults(ctx context.Context, examID uint, userID string) ([]byte, string, error) {
	if err := s.checkExportPermission(ctx, userID); err != nil {
		return nil, "", err
	}

	exam, err := s.repo.Exam().GetByID(ctx, s.db, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, "", ErrExamNotFound
		}
		return nil, "", fmt.Errorf("failed to get exam: %w", err)
	}

	results, err := s.collectResults(ctx, examID)
	if err != nil {
		return nil, "", err
	}

	students := s.studentNames(ctx, results)

	file := excelize.NewFile()
	defer file.Close()

	const sheet = "Results"
	index, err := file.NewSheet(sheet)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create sheet: %w", err)
	}
	file.SetActiveSheet(index)
	file.DeleteSheet("Sheet1")

	headers := []string{
		"Result ID", "Student", "Student ID", "Started At", "Submitted At",
		"Trigger", "Status", "Total", "Correct", "Incorrect", "Percentage", "Score",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := file.SetCellValue(sheet, cell, h); err != nil {
			return nil, "", fmt.Errorf("failed to write header: %w", err)
		}
	}

	for row, result := range results {
		values := []interface{}{
			result.ID,
			students[result.StudentID],
			result.StudentID,
			result.StartedAt.Format(time.RFC3339),
			result.SubmittedAt.Format(time.RFC3339),
			result.Trigger,
			string(result.Status),
			result.TotalCount,
			result.CorrectCount,
			result.IncorrectCount,
			result.Percentage,
			result.Score,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := file.SetCellValue(sheet, cell, v); err != nil {
				return nil, "", fmt.Errorf("failed to write row %d: %w", row+2, err)
			}
		}
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, "", fmt.Errorf("failed to render workbook: %w", err)
	}

	filename := fmt.Sprintf("exam_%d_results_%s.xlsx", exam.ID, time.Now().Format("20060102_150405"))

	s.logger.Info("Exam results exported",
		"exam_id", examID,
		"rows", len(results),
		"user_id", userID)

	return buf.Bytes(), filename, nil
}

func (s *reportService) collectResults(ctx context.Context, examID uint) ([]*models.ExamResult, error) {
	var all []*models.ExamResult
	offset := 0
	for {
		page, total, err := s.repo.Result().List(ctx, s.db, repositories.ResultFilters{
			ExamID: &examID,
			Limit:  exportPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list results: %w", err)
		}

		all = append(all, page...)
		offset += len(page)
		if len(page) == 0 || int64(offset) >= total {
			break
		}
	}
	return all, nil
}

// studentNames resolves display names in one batch; missing users just leave
// the name column empty.
func (s *reportService) studentNames(ctx context.Context, results []*models.ExamResult) map[string]string {
	seen := make(map[string]bool)
	ids := make([]string, 0, len(results))
	for _, r := range results {
		if !seen[r.StudentID] {
			seen[r.StudentID] = true
			ids = append(ids, r.StudentID)
		}
	}

	names := make(map[string]string, len(ids))
	users, err := s.repo.User().GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("Failed to resolve student names for export", "error", err)
		return names
	}
	for _, u := range users {
		names[u.ID] = u.FullName
	}
	return names
}

func (s *reportService) checkExportPermission(ctx context.Context, userID string) error {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return NewPermissionError(userID, "", "report", "export", "user lookup failed")
	}
	if user.Role != models.RoleTeacher && user.Role != models.RoleAdmin {
		return NewPermissionError(userID, "", "report", "export", "insufficient role")
	}
	return nil
}
