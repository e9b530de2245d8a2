package services

import (
	"context"
	"time"

	"github.com/eduhub-vn/exam-session-service/internal/models"
)

// ===== SCHEDULE GATE DTOs =====

type GateReason string

const (
	GateAdmitted   GateReason = "admitted"
	GateNoSchedule GateReason = "no_schedule"
	GateNotYetOpen GateReason = "not_yet_open"
	GateClosed     GateReason = "closed"
)

// GateDecision classifies the current instant against an exam's schedule
// windows. OpensAt is set for not_yet_open (earliest upcoming start), ClosedAt
// for closed (latest window end).
type GateDecision struct {
	Allowed  bool                   `json:"allowed"`
	Reason   GateReason             `json:"reason"`
	Window   *models.ScheduleWindow `json:"window,omitempty"`
	OpensAt  *time.Time             `json:"opens_at,omitempty"`
	ClosedAt *time.Time             `json:"closed_at,omitempty"`
}

// ===== SESSION DTOs =====

type StartSessionRequest struct {
	ExamID uint `json:"exam_id" validate:"required"`
}

type SetChoiceRequest struct {
	QuestionID uint   `json:"question_id" validate:"required"`
	ChoiceID   string `json:"choice_id" validate:"required"`
}

type SetTextRequest struct {
	QuestionID uint   `json:"question_id" validate:"required"`
	Text       string `json:"text" validate:"max=5000"`
}

type ReorderRequest struct {
	QuestionID uint   `json:"question_id" validate:"required"`
	FromIndex  int    `json:"from_index" validate:"min=0"`
	Direction  string `json:"direction" validate:"required,oneof=up down"`
}

type ToggleMatchRequest struct {
	QuestionID uint   `json:"question_id" validate:"required"`
	PairID     string `json:"pair_id" validate:"required"`
}

type SetPositionRequest struct {
	Position int `json:"position" validate:"min=0"`
}

type ProgressResponse struct {
	AnsweredCount int `json:"answered_count"`
	TotalCount    int `json:"total_count"`
}

// ChoiceView is a choice with the answer key stripped.
type ChoiceView struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// TokenView is a token with its correct position stripped; tokens are listed
// in the session's shuffled presentation order.
type TokenView struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// PairView is a pair with the answer key stripped.
type PairView struct {
	ID    string `json:"id"`
	Left  string `json:"left"`
	Right string `json:"right"`
}

// SessionQuestionView is one question as exposed to an active session:
// sanitized content plus the current answer state.
type SessionQuestionView struct {
	QuestionID uint                `json:"question_id"`
	Order      int                 `json:"order"`
	Kind       models.QuestionKind `json:"kind"`
	Text       string              `json:"text"`
	AudioURL   *string             `json:"audio_url,omitempty"`

	Choices []ChoiceView `json:"choices,omitempty"`
	Tokens  []TokenView  `json:"tokens,omitempty"`
	Pairs   []PairView   `json:"pairs,omitempty"`

	// Current answer state
	Selection     string   `json:"selection"`
	FreeText      string   `json:"free_text"`
	TokenOrder    []string `json:"token_order,omitempty"`
	SelectedPairs []string `json:"selected_pairs,omitempty"`
	Answered      bool     `json:"answered"`
}

type SessionResponse struct {
	ResultID         string                 `json:"result_id"`
	ExamID           uint                   `json:"exam_id"`
	WindowID         uint                   `json:"window_id"`
	Title            string                 `json:"title"`
	StartedAt        time.Time              `json:"started_at"`
	RemainingSeconds int                    `json:"remaining_seconds"`
	Position         int                    `json:"position"`
	Submitted        bool                   `json:"submitted"`
	Progress         ProgressResponse       `json:"progress"`
	Questions        []*SessionQuestionView `json:"questions"`
}

type SubmitResponse struct {
	ResultID string `json:"result_id"`
}

// ===== SUBMISSION PAYLOAD =====

// SubmissionEntry is one per-question payload entry. Selection and FreeText
// are both always present as strings; exactly the kind-appropriate one is
// populated. Selection carries a choice id, or a JSON-encoded array of token
// or pair ids for the ordered/matched kinds.
type SubmissionEntry struct {
	EntryID    string `json:"entry_id"`
	QuestionID uint   `json:"question_id"`
	Selection  string `json:"selection"`
	FreeText   string `json:"free_text"`
}

// SubmissionPayload is the assembled outbound submission. StudentID and
// UserID are two aliases of the same value, both populated for downstream
// compatibility.
type SubmissionPayload struct {
	ResultID  string            `json:"result_id"`
	ExamID    uint              `json:"exam_id"`
	WindowID  uint              `json:"window_id"`
	StartedAt string            `json:"started_at"` // ISO-8601, captured at admission
	StudentID string            `json:"student_id"`
	UserID    string            `json:"user_id"`
	Trigger   string            `json:"trigger"`
	Entries   []SubmissionEntry `json:"entries"`
}

// ===== RESULT ANALYSIS DTOs =====

type AnalyzedAnswer struct {
	QuestionID uint                `json:"question_id"`
	Order      int                 `json:"order"`
	Kind       models.QuestionKind `json:"kind"`
	Text       string              `json:"text"`
	Selection  string              `json:"selection"`
	FreeText   string              `json:"free_text"`
	// Nil when the answer has no key to grade against (free text without
	// accepted answers).
	IsCorrect   *bool   `json:"is_correct"`
	Explanation *string `json:"explanation,omitempty"`
}

type ResultAnalysisResponse struct {
	ResultID       string           `json:"result_id"`
	ExamID         uint             `json:"exam_id"`
	StudentID      string           `json:"student_id"`
	Trigger        string           `json:"trigger"`
	StartedAt      time.Time        `json:"started_at"`
	SubmittedAt    time.Time        `json:"submitted_at"`
	TotalCount     int              `json:"total_count"`
	CorrectCount   int              `json:"correct_count"`
	IncorrectCount int              `json:"incorrect_count"`
	Percentage     float64          `json:"percentage"`
	Score          float64          `json:"score"`
	Answers        []AnalyzedAnswer `json:"answers"`
}

// ===== SERVICE INTERFACES =====

type ScheduleGateService interface {
	// Evaluate classifies the current instant against the exam's windows.
	// A rejection is a decision, not an error.
	Evaluate(ctx context.Context, examID uint, studentID string) (*GateDecision, error)
}

type SessionService interface {
	// Lifecycle
	Start(ctx context.Context, req *StartSessionRequest, studentID string) (*SessionResponse, error)
	Get(ctx context.Context, resultID, studentID string) (*SessionResponse, error)
	Abandon(ctx context.Context, resultID, studentID string) error

	// Answer model mutators. All are no-ops for out-of-range input.
	SetChoice(ctx context.Context, resultID string, req *SetChoiceRequest, studentID string) error
	SetText(ctx context.Context, resultID string, req *SetTextRequest, studentID string) error
	Reorder(ctx context.Context, resultID string, req *ReorderRequest, studentID string) error
	ToggleMatch(ctx context.Context, resultID string, req *ToggleMatchRequest, studentID string) error

	// Navigation and progress
	SetPosition(ctx context.Context, resultID string, req *SetPositionRequest, studentID string) error
	Progress(ctx context.Context, resultID, studentID string) (*ProgressResponse, error)

	// Submission (manual path)
	Submit(ctx context.Context, resultID, studentID string) (*SubmitResponse, error)

	// Shutdown stops all session clocks.
	Shutdown(ctx context.Context) error
}

type ResultService interface {
	// Analyze grades the stored entries against the answer keys and fills the
	// aggregate columns. Idempotent: an already-analyzed result is returned
	// as-is.
	Analyze(ctx context.Context, resultID string) (*models.ExamResult, error)
	GetAnalysis(ctx context.Context, resultID, userID string) (*ResultAnalysisResponse, error)
}

type ReportService interface {
	// ExportExamResults renders an exam's results as an xlsx workbook.
	// Returns the file bytes and a suggested filename.
	ExportExamResults(ctx context.Context, examID uint, userID string) ([]byte, string, error)
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	Gate() ScheduleGateService
	Session() SessionService
	Result() ResultService
	Report() ReportService

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
