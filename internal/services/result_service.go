package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/eduhub-vn/exam-session-service/internal/models"
	"github.com/eduhub-vn/exam-session-service/internal/repositories"
)

type resultService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
}

func NewResultService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger) ResultService {
	return &resultService{
		repo:   repo,
		db:     db,
		logger: logger,
	}
}

// Analyze grades every stored entry against its question's answer key and
// fills the aggregate columns. Idempotent: a result already analyzed is
// returned unchanged.
func (s *resultService) Analyze(ctx context.Context, resultID string) (*models.ExamResult, error) {
	result, err := s.repo.Result().GetByIDWithAnswers(ctx, s.db, resultID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	if result.Status == models.ResultAnalyzed {
		return result, nil
	}

	questions, err := s.questionsForResult(ctx, result)
	if err != nil {
		return nil, err
	}

	correct, incorrect := 0, 0
	updated := make([]*models.ResultAnswer, 0, len(result.Answers))
	for i := range result.Answers {
		answer := &result.Answers[i]
		question, ok := questions[answer.QuestionID]
		if !ok {
			s.logger.Warn("Answer references unknown question",
				"result_id", resultID,
				"question_id", answer.QuestionID)
			continue
		}

		verdict, err := gradeAnswer(question, answer)
		if err != nil {
			return nil, fmt.Errorf("failed to grade question %d: %w", answer.QuestionID, err)
		}

		answer.IsCorrect = verdict
		updated = append(updated, answer)
		if verdict != nil {
			if *verdict {
				correct++
			} else {
				incorrect++
			}
		}
	}

	result.Status = models.ResultAnalyzed
	result.TotalCount = len(result.Answers)
	result.CorrectCount = correct
	result.IncorrectCount = incorrect
	if result.TotalCount > 0 {
		result.Percentage = math.Round(float64(correct)/float64(result.TotalCount)*10000) / 100
	}
	// Ten-point scale derived from the percentage.
	result.Score = math.Round(result.Percentage*10) / 100
	result.UpdatedAt = time.Now()

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Result().UpdateAnswers(ctx, nil, updated); err != nil {
			return err
		}
		return txRepo.Result().Update(ctx, nil, result)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist analysis: %w", err)
	}

	s.logger.Info("Result analyzed",
		"result_id", resultID,
		"correct", correct,
		"incorrect", incorrect,
		"percentage", result.Percentage)

	return result, nil
}

func (s *resultService) GetAnalysis(ctx context.Context, resultID, userID string) (*ResultAnalysisResponse, error) {
	result, err := s.repo.Result().GetByIDWithAnswers(ctx, s.db, resultID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	if err := s.checkReviewPermission(ctx, result, userID); err != nil {
		return nil, err
	}

	if result.Status != models.ResultAnalyzed {
		result, err = s.Analyze(ctx, resultID)
		if err != nil {
			return nil, err
		}
	}

	questions, err := s.questionsForResult(ctx, result)
	if err != nil {
		return nil, err
	}

	resp := &ResultAnalysisResponse{
		ResultID:       result.ID,
		ExamID:         result.ExamID,
		StudentID:      result.StudentID,
		Trigger:        result.Trigger,
		StartedAt:      result.StartedAt,
		SubmittedAt:    result.SubmittedAt,
		TotalCount:     result.TotalCount,
		CorrectCount:   result.CorrectCount,
		IncorrectCount: result.IncorrectCount,
		Percentage:     result.Percentage,
		Score:          result.Score,
		Answers:        make([]AnalyzedAnswer, 0, len(result.Answers)),
	}

	answers := make([]models.ResultAnswer, len(result.Answers))
	copy(answers, result.Answers)
	sort.Slice(answers, func(i, j int) bool { return answers[i].Order < answers[j].Order })

	for _, answer := range answers {
		analyzed := AnalyzedAnswer{
			QuestionID: answer.QuestionID,
			Order:      answer.Order,
			Selection:  answer.Selection,
			FreeText:   answer.FreeText,
			IsCorrect:  answer.IsCorrect,
		}
		if q, ok := questions[answer.QuestionID]; ok {
			analyzed.Kind = q.Kind
			analyzed.Text = q.Text
			analyzed.Explanation = q.Explanation
		}
		resp.Answers = append(resp.Answers, analyzed)
	}

	return resp, nil
}

// checkReviewPermission allows the owning student and staff roles.
func (s *resultService) checkReviewPermission(ctx context.Context, result *models.ExamResult, userID string) error {
	if result.StudentID == userID {
		return nil
	}

	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return NewPermissionError(userID, result.ID, "result", "review", "user lookup failed")
	}
	if user.Role == models.RoleTeacher || user.Role == models.RoleAdmin {
		return nil
	}

	return NewPermissionError(userID, result.ID, "result", "review", "not owner or insufficient role")
}

func (s *resultService) questionsForResult(ctx context.Context, result *models.ExamResult) (map[uint]*models.Question, error) {
	ids := make([]uint, 0, len(result.Answers))
	for _, a := range result.Answers {
		ids = append(ids, a.QuestionID)
	}

	questions, err := s.repo.Question().GetByIDs(ctx, s.db, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions for analysis: %w", err)
	}

	byID := make(map[uint]*models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	return byID, nil
}

// ===== PER-KIND GRADERS =====

// gradeAnswer returns the verdict for one entry. A nil verdict means the
// entry has no key to grade against (free text without accepted answers).
func gradeAnswer(question *models.Question, answer *models.ResultAnswer) (*bool, error) {
	switch question.Kind {
	case models.SingleChoice, models.ListeningChoice:
		return gradeChoice(question.Content, answer.Selection)
	case models.FreeText:
		return gradeFreeText(question.Content, answer.FreeText)
	case models.OrderedTokens:
		return gradeOrderedTokens(question.Content, answer.Selection)
	case models.MatchedPairs:
		return gradeMatchedPairs(question.Content, answer.Selection)
	default:
		return nil, fmt.Errorf("unsupported question kind: %s", question.Kind)
	}
}

func gradeChoice(content []byte, selection string) (*bool, error) {
	var parsed models.ChoiceContent
	if err := json.Unmarshal(content, &parsed); err != nil {
		return nil, fmt.Errorf("malformed choice content: %w", err)
	}

	if selection == "" {
		return boolPtr(false), nil
	}

	for _, c := range parsed.Choices {
		if c.ID == selection {
			return boolPtr(c.IsCorrect), nil
		}
	}
	return boolPtr(false), nil
}

func gradeFreeText(content []byte, text string) (*bool, error) {
	var parsed models.FreeTextContent
	if err := json.Unmarshal(content, &parsed); err != nil {
		return nil, fmt.Errorf("malformed free-text content: %w", err)
	}

	// No accepted answers configured: stays ungraded for manual review.
	if len(parsed.AcceptedAnswers) == 0 {
		return nil, nil
	}

	given := strings.TrimSpace(text)
	for _, accepted := range parsed.AcceptedAnswers {
		if compareStrings(given, strings.TrimSpace(accepted), parsed.CaseSensitive) {
			return boolPtr(true), nil
		}
	}
	return boolPtr(false), nil
}

// gradeOrderedTokens compares token identity order, not display positions:
// the stored selection is the candidate id ordering, the key is the tokens
// sorted by their correct position index.
func gradeOrderedTokens(content []byte, selection string) (*bool, error) {
	var parsed models.OrderedTokensContent
	if err := json.Unmarshal(content, &parsed); err != nil {
		return nil, fmt.Errorf("malformed token content: %w", err)
	}

	var given []string
	if err := json.Unmarshal([]byte(selection), &given); err != nil {
		return boolPtr(false), nil
	}

	tokens := make([]models.Token, len(parsed.Tokens))
	copy(tokens, parsed.Tokens)
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Position < tokens[j].Position })

	if len(given) != len(tokens) {
		return boolPtr(false), nil
	}
	for i, t := range tokens {
		if given[i] != t.ID {
			return boolPtr(false), nil
		}
	}
	return boolPtr(true), nil
}

func gradeMatchedPairs(content []byte, selection string) (*bool, error) {
	var parsed models.MatchedPairsContent
	if err := json.Unmarshal(content, &parsed); err != nil {
		return nil, fmt.Errorf("malformed pair content: %w", err)
	}

	var given []string
	if err := json.Unmarshal([]byte(selection), &given); err != nil {
		return boolPtr(false), nil
	}

	selected := make(map[string]bool, len(given))
	for _, id := range given {
		selected[id] = true
	}

	// Correct iff the selected set is exactly the set of correct pairs.
	for _, p := range parsed.Pairs {
		if p.IsCorrect != selected[p.ID] {
			return boolPtr(false), nil
		}
		delete(selected, p.ID)
	}
	// Leftover ids don't belong to the question.
	return boolPtr(len(selected) == 0), nil
}

func compareStrings(a, b string, caseSensitive bool) bool {
	if caseSensitive {
		return a == b
	}
	return strings.EqualFold(a, b)
}

func boolPtr(v bool) *bool {
	return &v
}
