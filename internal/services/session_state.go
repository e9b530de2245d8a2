package services

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eduhub-vn/exam-session-service/internal/models"
	"github.com/eduhub-vn/exam-session-service/internal/shuffle"
)

// Session is the ephemeral state of one admitted exam attempt. It lives only
// in the registry, never in storage: a reload starts a new session with a new
// ResultID. The answer model is guarded by mu; the submitted flag is atomic
// because the manual submit path and the clock's expiry path race on it.
type Session struct {
	mu sync.RWMutex

	ResultID  string
	ExamID    uint
	WindowID  uint
	StudentID string
	StartedAt time.Time

	ExamTitle string

	questions []*sessionQuestion
	byID      map[uint]*sessionQuestion
	position  int

	clock     *sessionClock
	submitted atomic.Bool
}

// sessionQuestion is one question plus its per-session answer entry. The
// parsed content keeps the answer-key fields in memory for the analysis path,
// but every read surface strips them (see buildQuestionView).
type sessionQuestion struct {
	id    uint
	order int
	kind  models.QuestionKind

	text        string
	audioURL    *string
	explanation *string

	choices []models.Choice
	tokens  []models.Token // in correct order
	pairs   []models.Pair

	// Answer entry, mutated under the session mutex.
	selection     string
	freeText      string
	tokenOrder    []string // current candidate ordering of token ids
	touched       bool     // ordered tokens: user has reordered at least once
	selectedPairs map[string]bool
}

// newSession builds the session from the exam snapshot: one typed answer
// entry per question, ordered-tokens entries seeded with the deterministic
// shuffle of the correct token sequence.
func newSession(resultID string, exam *models.Exam, window *models.ScheduleWindow, studentID string, startedAt time.Time) (*Session, error) {
	s := &Session{
		ResultID:  resultID,
		ExamID:    exam.ID,
		WindowID:  window.ID,
		StudentID: studentID,
		StartedAt: startedAt,
		ExamTitle: exam.Title,
		byID:      make(map[uint]*sessionQuestion),
	}

	refs := make([]models.ExamQuestion, len(exam.Questions))
	copy(refs, exam.Questions)
	sort.Slice(refs, func(i, j int) bool { return refs[i].Order < refs[j].Order })

	for _, ref := range refs {
		sq, err := newSessionQuestion(resultID, &ref.Question, ref.Order)
		if err != nil {
			return nil, err
		}
		s.questions = append(s.questions, sq)
		s.byID[sq.id] = sq
	}

	return s, nil
}

func newSessionQuestion(resultID string, q *models.Question, order int) (*sessionQuestion, error) {
	sq := &sessionQuestion{
		id:          q.ID,
		order:       order,
		kind:        q.Kind,
		text:        q.Text,
		audioURL:    q.AudioURL,
		explanation: q.Explanation,
	}

	switch q.Kind {
	case models.SingleChoice, models.ListeningChoice:
		var content models.ChoiceContent
		if err := json.Unmarshal(q.Content, &content); err != nil {
			return nil, fmt.Errorf("question %d: malformed choice content: %w", q.ID, err)
		}
		sq.choices = content.Choices

	case models.FreeText:
		// Content is only needed at analysis time; nothing to prepare.

	case models.OrderedTokens:
		var content models.OrderedTokensContent
		if err := json.Unmarshal(q.Content, &content); err != nil {
			return nil, fmt.Errorf("question %d: malformed token content: %w", q.ID, err)
		}
		tokens := make([]models.Token, len(content.Tokens))
		copy(tokens, content.Tokens)
		sort.Slice(tokens, func(i, j int) bool { return tokens[i].Position < tokens[j].Position })
		sq.tokens = tokens

		ids := make([]string, len(tokens))
		for i, t := range tokens {
			ids[i] = t.ID
		}
		// The shuffle hides order, not content. Seed is ResultID + "_" +
		// QuestionID, stable for the session's lifetime.
		sq.tokenOrder = shuffle.Strings(ids, shuffleSeed(resultID, q.ID))

	case models.MatchedPairs:
		var content models.MatchedPairsContent
		if err := json.Unmarshal(q.Content, &content); err != nil {
			return nil, fmt.Errorf("question %d: malformed pair content: %w", q.ID, err)
		}
		sq.pairs = content.Pairs
		sq.selectedPairs = make(map[string]bool)

	default:
		return nil, fmt.Errorf("question %d: unsupported kind %q", q.ID, q.Kind)
	}

	return sq, nil
}

func shuffleSeed(resultID string, questionID uint) string {
	return fmt.Sprintf("%s_%d", resultID, questionID)
}

// ===== ANSWER MODEL MUTATORS =====
// All mutators are total over the current state: out-of-range indices,
// unknown choice/pair ids, and kind mismatches are no-ops, never errors.

func (s *Session) setChoice(questionID uint, choiceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sq, ok := s.byID[questionID]
	if !ok || !sq.kind.IsChoice() {
		return
	}
	for _, c := range sq.choices {
		if c.ID == choiceID {
			sq.selection = choiceID
			return
		}
	}
}

func (s *Session) setText(questionID uint, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sq, ok := s.byID[questionID]
	if !ok || sq.kind != models.FreeText {
		return
	}
	sq.freeText = text
}

// reorder swaps the entry at fromIndex with its neighbour in the given
// direction ("up" or "down"). Boundary swaps are no-ops.
func (s *Session) reorder(questionID uint, fromIndex int, direction string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sq, ok := s.byID[questionID]
	if !ok || sq.kind != models.OrderedTokens {
		return
	}

	to := fromIndex - 1
	if direction == "down" {
		to = fromIndex + 1
	}
	if fromIndex < 0 || fromIndex >= len(sq.tokenOrder) || to < 0 || to >= len(sq.tokenOrder) {
		return
	}

	sq.tokenOrder[fromIndex], sq.tokenOrder[to] = sq.tokenOrder[to], sq.tokenOrder[fromIndex]
	sq.touched = true
}

func (s *Session) toggleMatch(questionID uint, pairID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sq, ok := s.byID[questionID]
	if !ok || sq.kind != models.MatchedPairs {
		return
	}
	for _, p := range sq.pairs {
		if p.ID == pairID {
			sq.selectedPairs[pairID] = !sq.selectedPairs[pairID]
			return
		}
	}
}

func (s *Session) setPosition(position int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if position < 0 {
		position = 0
	}
	if max := len(s.questions) - 1; position > max && max >= 0 {
		position = max
	}
	s.position = position
}

// ===== ANSWER MODEL QUERIES =====

// isAnswered holds the session mutex via its callers.
func (sq *sessionQuestion) isAnswered() bool {
	switch sq.kind {
	case models.SingleChoice, models.ListeningChoice:
		return sq.selection != ""
	case models.FreeText:
		return strings.TrimSpace(sq.freeText) != ""
	case models.OrderedTokens:
		// The default entry is already a full permutation; it only counts as
		// an answer once the user has touched it.
		return sq.touched
	case models.MatchedPairs:
		for _, selected := range sq.selectedPairs {
			if selected {
				return true
			}
		}
	}
	return false
}

func (s *Session) progress() ProgressResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := ProgressResponse{TotalCount: len(s.questions)}
	for _, sq := range s.questions {
		if sq.isAnswered() {
			p.AnsweredCount++
		}
	}
	return p
}

// selectedPairIDs returns the selected pair ids in the question's pair order,
// so the payload is stable across calls.
func (sq *sessionQuestion) selectedPairIDs() []string {
	ids := make([]string, 0, len(sq.selectedPairs))
	for _, p := range sq.pairs {
		if sq.selectedPairs[p.ID] {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// ===== SESSION REGISTRY =====

// sessionRegistry holds the live sessions keyed by ResultID. Sessions are
// removed on teardown and on successful submission.
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*Session)}
}

func (r *sessionRegistry) add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ResultID] = s
}

func (r *sessionRegistry) get(resultID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[resultID]
	return s, ok
}

func (r *sessionRegistry) remove(resultID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, resultID)
}

func (r *sessionRegistry) all() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
