package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/eduhub-vn/exam-session-service/internal/models"
	"github.com/eduhub-vn/exam-session-service/internal/repositories"
	"gorm.io/gorm"
)

const schedulePageSize = 100

type scheduleGateService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

func NewScheduleGateService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger) ScheduleGateService {
	return &scheduleGateService{
		repo:   repo,
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Evaluate fetches all schedule windows page by page, filters in code to
// those referencing the exam (and the student's class, when known), and
// classifies the current instant. Checked only at session admission; an
// already-running session is not re-evaluated.
func (s *scheduleGateService) Evaluate(ctx context.Context, examID uint, studentID string) (*GateDecision, error) {
	windows, err := s.windowsForExam(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}

	if len(windows) == 0 {
		return &GateDecision{Allowed: false, Reason: GateNoSchedule}, nil
	}

	now := s.now()

	// Overlapping windows: deterministic tie-break on earliest start.
	sort.Slice(windows, func(i, j int) bool {
		if windows[i].StartsAt.Equal(windows[j].StartsAt) {
			return windows[i].ID < windows[j].ID
		}
		return windows[i].StartsAt.Before(windows[j].StartsAt)
	})

	for _, w := range windows {
		if w.Contains(now) {
			s.logger.Info("Gate admitted",
				"exam_id", examID,
				"window_id", w.ID,
				"student_id", studentID)
			return &GateDecision{Allowed: true, Reason: GateAdmitted, Window: w}, nil
		}
	}

	// No window contains now: before the earliest upcoming start, or after
	// the latest end.
	var opensAt *time.Time
	var closedAt *time.Time
	for _, w := range windows {
		if now.Before(w.StartsAt) && opensAt == nil {
			t := w.StartsAt
			opensAt = &t
		}
		if closedAt == nil || w.EndsAt.After(*closedAt) {
			t := w.EndsAt
			closedAt = &t
		}
	}

	if opensAt != nil {
		return &GateDecision{Allowed: false, Reason: GateNotYetOpen, OpensAt: opensAt}, nil
	}

	return &GateDecision{Allowed: false, Reason: GateClosed, ClosedAt: closedAt}, nil
}

func (s *scheduleGateService) windowsForExam(ctx context.Context, examID uint, studentID string) ([]*models.ScheduleWindow, error) {
	classID := s.studentClassID(ctx, studentID)

	var matched []*models.ScheduleWindow
	offset := 0
	for {
		page, total, err := s.repo.Schedule().List(ctx, s.db, repositories.ScheduleFilters{
			Limit:  schedulePageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list schedule windows: %w", err)
		}

		for _, w := range page {
			if w.ExamID != examID {
				continue
			}
			if classID != nil && w.ClassID != *classID {
				continue
			}
			matched = append(matched, w)
		}

		offset += len(page)
		if len(page) == 0 || int64(offset) >= total {
			break
		}
	}

	return matched, nil
}

// studentClassID resolves the student's class for window matching. A lookup
// failure degrades to no class filter rather than blocking the gate.
func (s *scheduleGateService) studentClassID(ctx context.Context, studentID string) *uint {
	if studentID == "" {
		return nil
	}

	user, err := s.repo.User().GetByID(ctx, studentID)
	if err != nil {
		s.logger.Warn("Failed to resolve student class for gate", "student_id", studentID, "error", err)
		return nil
	}

	return user.ClassID
}
