package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eduhub-vn/exam-session-service/internal/events"
	"github.com/eduhub-vn/exam-session-service/internal/models"
	"github.com/eduhub-vn/exam-session-service/internal/repositories"
	"github.com/eduhub-vn/exam-session-service/internal/validator"
)

type sessionService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator

	gate      ScheduleGateService
	results   ResultService
	publisher events.EventPublisher
	registry  *sessionRegistry

	// tickInterval is one second in production; tests inject a shorter one.
	tickInterval time.Duration
	now          func() time.Time
}

func NewSessionService(
	repo repositories.Repository,
	db *gorm.DB,
	logger *slog.Logger,
	validator *validator.Validator,
	gate ScheduleGateService,
	results ResultService,
	publisher events.EventPublisher,
) SessionService {
	return &sessionService{
		repo:         repo,
		db:           db,
		logger:       logger,
		validator:    validator,
		gate:         gate,
		results:      results,
		publisher:    publisher,
		registry:     newSessionRegistry(),
		tickInterval: time.Second,
		now:          time.Now,
	}
}

// ===== LIFECYCLE =====

func (s *sessionService) Start(ctx context.Context, req *StartSessionRequest, studentID string) (*SessionResponse, error) {
	s.logger.Info("Starting exam session",
		"exam_id", req.ExamID,
		"student_id", studentID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	// Schedule gate, checked once at admission.
	decision, err := s.gate.Evaluate(ctx, req.ExamID, studentID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, gateRejection(decision)
	}

	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, s.db, req.ExamID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("%w: %s", ErrExamLoadFailed, NormalizeErrorMessage(err.Error()))
	}

	if exam.Status != models.ExamPublished {
		return nil, ErrExamNotPublished
	}

	// The result id is generated before anything else touches the session:
	// it seeds every shuffle and keys the submission.
	resultID := uuid.NewString()

	session, err := newSession(resultID, exam, decision.Window, studentID, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrExamLoadFailed, NormalizeErrorMessage(err.Error()))
	}

	seconds := parseDurationSeconds(exam.Duration)
	if seconds == 0 {
		s.logger.Warn("Exam duration malformed or zero, session expires immediately",
			"exam_id", exam.ID,
			"duration", exam.Duration)
	}

	session.clock = newSessionClock(seconds, s.tickInterval, func() {
		s.handleExpiry(session)
	})

	s.registry.add(session)
	session.clock.Start()

	s.logger.Info("Exam session started",
		"result_id", resultID,
		"exam_id", exam.ID,
		"window_id", decision.Window.ID,
		"student_id", studentID,
		"duration_seconds", seconds)

	return s.buildSessionResponse(session), nil
}

func (s *sessionService) Get(ctx context.Context, resultID, studentID string) (*SessionResponse, error) {
	session, err := s.ownedSession(resultID, studentID, "read")
	if err != nil {
		return nil, err
	}
	return s.buildSessionResponse(session), nil
}

func (s *sessionService) Abandon(ctx context.Context, resultID, studentID string) error {
	session, err := s.ownedSession(resultID, studentID, "abandon")
	if err != nil {
		return err
	}

	session.clock.Stop()
	s.registry.remove(resultID)

	s.logger.Info("Exam session abandoned",
		"result_id", resultID,
		"student_id", studentID)
	return nil
}

// ===== ANSWER MODEL =====

func (s *sessionService) SetChoice(ctx context.Context, resultID string, req *SetChoiceRequest, studentID string) error {
	if err := s.validator.Validate(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	session, err := s.mutableSession(resultID, studentID)
	if err != nil {
		return err
	}
	session.setChoice(req.QuestionID, req.ChoiceID)
	return nil
}

func (s *sessionService) SetText(ctx context.Context, resultID string, req *SetTextRequest, studentID string) error {
	if err := s.validator.Validate(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	session, err := s.mutableSession(resultID, studentID)
	if err != nil {
		return err
	}
	session.setText(req.QuestionID, req.Text)
	return nil
}

func (s *sessionService) Reorder(ctx context.Context, resultID string, req *ReorderRequest, studentID string) error {
	if err := s.validator.Validate(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	session, err := s.mutableSession(resultID, studentID)
	if err != nil {
		return err
	}
	session.reorder(req.QuestionID, req.FromIndex, req.Direction)
	return nil
}

func (s *sessionService) ToggleMatch(ctx context.Context, resultID string, req *ToggleMatchRequest, studentID string) error {
	if err := s.validator.Validate(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	session, err := s.mutableSession(resultID, studentID)
	if err != nil {
		return err
	}
	session.toggleMatch(req.QuestionID, req.PairID)
	return nil
}

func (s *sessionService) SetPosition(ctx context.Context, resultID string, req *SetPositionRequest, studentID string) error {
	if err := s.validator.Validate(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	session, err := s.mutableSession(resultID, studentID)
	if err != nil {
		return err
	}
	session.setPosition(req.Position)
	return nil
}

func (s *sessionService) Progress(ctx context.Context, resultID, studentID string) (*ProgressResponse, error) {
	session, err := s.ownedSession(resultID, studentID, "read")
	if err != nil {
		return nil, err
	}
	p := session.progress()
	return &p, nil
}

// ===== SUBMISSION =====

// Submit is the manual path. The automatic path goes through handleExpiry.
func (s *sessionService) Submit(ctx context.Context, resultID, studentID string) (*SubmitResponse, error) {
	session, err := s.ownedSession(resultID, studentID, "submit")
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, session, models.TriggerManual)
}

// handleExpiry runs on the clock goroutine when the countdown hits zero. A
// failed automatic submission is reported but never retried; the time budget
// is already gone.
func (s *sessionService) handleExpiry(session *Session) {
	s.logger.Info("Session clock expired, auto-submitting",
		"result_id", session.ResultID,
		"student_id", session.StudentID)

	if _, err := s.submit(context.Background(), session, models.TriggerAutomatic); err != nil {
		s.logger.Error("Automatic submission failed",
			"result_id", session.ResultID,
			"error", err)
	}
}

// submit is the single idempotent submission path shared by the manual and
// automatic triggers. The submitted flag is claimed BEFORE any suspending
// work so near-simultaneous triggers cannot both pass the guard; only a
// manual-path failure re-arms it.
func (s *sessionService) submit(ctx context.Context, session *Session, trigger string) (*SubmitResponse, error) {
	if !session.submitted.CompareAndSwap(false, true) {
		return nil, ErrSessionAlreadySubmitted
	}

	payload := buildSubmissionPayload(session, trigger, s.now())
	result := resultFromPayload(payload, session.StartedAt, s.now())

	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		return txRepo.Result().CreateWithAnswers(ctx, nil, result)
	})
	if err != nil {
		if trigger == models.TriggerManual {
			// Re-arm so the user may retry.
			session.submitted.Store(false)
		}
		return nil, fmt.Errorf("submission failed: %s", NormalizeErrorMessage(err.Error()))
	}

	// Canonical id from the store, falling back to the local one.
	canonicalID := result.ID
	if canonicalID == "" {
		canonicalID = session.ResultID
	}

	session.clock.Stop()
	s.registry.remove(session.ResultID)

	s.publishSubmitted(result, trigger)

	// Grade inline once the session is torn down; analysis failures never
	// affect the submission outcome.
	if s.results != nil {
		if _, err := s.results.Analyze(context.Background(), canonicalID); err != nil {
			s.logger.Error("Failed to analyze result", "result_id", canonicalID, "error", err)
		}
	}

	s.logger.Info("Exam session submitted",
		"result_id", canonicalID,
		"trigger", trigger,
		"student_id", session.StudentID)

	return &SubmitResponse{ResultID: canonicalID}, nil
}

func (s *sessionService) publishSubmitted(result *models.ExamResult, trigger string) {
	if s.publisher == nil {
		return
	}

	event := events.SessionSubmittedEvent{
		ResultID:    result.ID,
		ExamID:      result.ExamID,
		WindowID:    result.WindowID,
		StudentID:   result.StudentID,
		Trigger:     trigger,
		SubmittedAt: result.SubmittedAt,
	}
	if err := s.publisher.Publish(events.EventSessionSubmitted, event); err != nil {
		s.logger.Error("Failed to publish session.submitted event",
			"result_id", result.ID,
			"error", err)
	}
}

// ===== SHUTDOWN =====

func (s *sessionService) Shutdown(ctx context.Context) error {
	for _, session := range s.registry.all() {
		session.clock.Stop()
		s.registry.remove(session.ResultID)
	}
	return nil
}

// ===== LOOKUP HELPERS =====

func (s *sessionService) ownedSession(resultID, studentID, action string) (*Session, error) {
	session, ok := s.registry.get(resultID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if session.StudentID != studentID {
		return nil, NewPermissionError(studentID, resultID, "session", action, "not owned by student")
	}
	return session, nil
}

// mutableSession additionally rejects sessions whose submission is already
// underway. The clock expiring mid-request is tolerated: the mutation lands
// on in-memory state that the in-flight payload snapshot no longer reads.
func (s *sessionService) mutableSession(resultID, studentID string) (*Session, error) {
	session, err := s.ownedSession(resultID, studentID, "answer")
	if err != nil {
		return nil, err
	}
	if session.submitted.Load() {
		return nil, ErrSessionAlreadySubmitted
	}
	return session, nil
}

func gateRejection(decision *GateDecision) error {
	context := map[string]interface{}{"reason": string(decision.Reason)}
	if decision.OpensAt != nil {
		context["opens_at"] = decision.OpensAt.Format(time.RFC3339)
	}
	if decision.ClosedAt != nil {
		context["closed_at"] = decision.ClosedAt.Format(time.RFC3339)
	}

	switch decision.Reason {
	case GateNoSchedule:
		return NewBusinessRuleError("gate_no_schedule", ErrGateNoSchedule.Error(), context)
	case GateNotYetOpen:
		return NewBusinessRuleError("gate_not_yet_open", ErrGateNotYetOpen.Error(), context)
	default:
		return NewBusinessRuleError("gate_closed", ErrGateClosed.Error(), context)
	}
}
