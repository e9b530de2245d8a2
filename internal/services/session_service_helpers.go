package services

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eduhub-vn/exam-session-service/internal/models"
)

// parseDurationSeconds converts an "HH:MM:SS" exam duration into whole
// seconds. Malformed strings are a zero time budget, not an error: the
// session starts and expires on the first tick.
func parseDurationSeconds(duration string) int {
	parts := strings.Split(duration, ":")
	if len(parts) != 3 {
		return 0
	}

	values := make([]int, 3)
	for i, part := range parts {
		if part == "" {
			return 0
		}
		v, err := strconv.Atoi(part)
		if err != nil || v < 0 {
			return 0
		}
		values[i] = v
	}

	if values[1] > 59 || values[2] > 59 {
		return 0
	}

	return values[0]*3600 + values[1]*60 + values[2]
}

// buildSessionResponse renders the sanitized session state: question content
// with every answer-key field stripped, presentation order applied, and the
// current answer entries alongside.
func (s *sessionService) buildSessionResponse(session *Session) *SessionResponse {
	session.mu.RLock()
	defer session.mu.RUnlock()

	resp := &SessionResponse{
		ResultID:         session.ResultID,
		ExamID:           session.ExamID,
		WindowID:         session.WindowID,
		Title:            session.ExamTitle,
		StartedAt:        session.StartedAt,
		RemainingSeconds: session.clock.Remaining(),
		Position:         session.position,
		Submitted:        session.submitted.Load(),
		Questions:        make([]*SessionQuestionView, 0, len(session.questions)),
	}

	resp.Progress.TotalCount = len(session.questions)
	for _, sq := range session.questions {
		if sq.isAnswered() {
			resp.Progress.AnsweredCount++
		}
		resp.Questions = append(resp.Questions, buildQuestionView(sq))
	}

	return resp
}

func buildQuestionView(sq *sessionQuestion) *SessionQuestionView {
	view := &SessionQuestionView{
		QuestionID: sq.id,
		Order:      sq.order,
		Kind:       sq.kind,
		Text:       sq.text,
		AudioURL:   sq.audioURL,
		Selection:  sq.selection,
		FreeText:   sq.freeText,
		Answered:   sq.isAnswered(),
	}

	switch sq.kind {
	case models.SingleChoice, models.ListeningChoice:
		view.Choices = make([]ChoiceView, len(sq.choices))
		for i, c := range sq.choices {
			view.Choices[i] = ChoiceView{ID: c.ID, Label: c.Label}
		}

	case models.OrderedTokens:
		// Tokens are listed in the session's presentation order, which is
		// the current candidate ordering.
		labels := make(map[string]string, len(sq.tokens))
		for _, t := range sq.tokens {
			labels[t.ID] = t.Label
		}
		view.TokenOrder = append([]string(nil), sq.tokenOrder...)
		view.Tokens = make([]TokenView, 0, len(sq.tokenOrder))
		for _, id := range sq.tokenOrder {
			view.Tokens = append(view.Tokens, TokenView{ID: id, Label: labels[id]})
		}

	case models.MatchedPairs:
		view.Pairs = make([]PairView, len(sq.pairs))
		for i, p := range sq.pairs {
			view.Pairs[i] = PairView{ID: p.ID, Left: p.Left, Right: p.Right}
		}
		view.SelectedPairs = sq.selectedPairIDs()
	}

	return view
}

// buildSubmissionPayload snapshots the answer model into the outbound
// payload, one entry per question in exam order. Every entry carries both the
// selection and free-text fields as strings, never null; the one matching the
// question kind holds the answer, the other stays empty.
func buildSubmissionPayload(session *Session, trigger string, now time.Time) *SubmissionPayload {
	session.mu.RLock()
	defer session.mu.RUnlock()

	payload := &SubmissionPayload{
		ResultID:  session.ResultID,
		ExamID:    session.ExamID,
		WindowID:  session.WindowID,
		StartedAt: session.StartedAt.UTC().Format(time.RFC3339),
		StudentID: session.StudentID,
		UserID:    session.StudentID,
		Trigger:   trigger,
		Entries:   make([]SubmissionEntry, 0, len(session.questions)),
	}

	for _, sq := range session.questions {
		entry := SubmissionEntry{
			EntryID:    uuid.NewString(),
			QuestionID: sq.id,
		}

		switch sq.kind {
		case models.SingleChoice, models.ListeningChoice:
			entry.Selection = sq.selection
		case models.FreeText:
			entry.FreeText = sq.freeText
		case models.OrderedTokens:
			entry.Selection = encodeIDList(sq.tokenOrder)
		case models.MatchedPairs:
			entry.Selection = encodeIDList(sq.selectedPairIDs())
		}

		payload.Entries = append(payload.Entries, entry)
	}

	return payload
}

// encodeIDList renders an id slice as a JSON array string. nil and empty
// slices both encode as "[]".
func encodeIDList(ids []string) string {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// resultFromPayload converts the payload into the persisted envelope and
// entry rows.
func resultFromPayload(payload *SubmissionPayload, startedAt, submittedAt time.Time) *models.ExamResult {
	result := &models.ExamResult{
		ID:          payload.ResultID,
		ExamID:      payload.ExamID,
		WindowID:    payload.WindowID,
		StudentID:   payload.StudentID,
		Status:      models.ResultSubmitted,
		StartedAt:   startedAt,
		SubmittedAt: submittedAt,
		Trigger:     payload.Trigger,
		TotalCount:  len(payload.Entries),
	}

	for i, entry := range payload.Entries {
		result.Answers = append(result.Answers, models.ResultAnswer{
			ID:         entry.EntryID,
			ResultID:   payload.ResultID,
			QuestionID: entry.QuestionID,
			Order:      i,
			Selection:  entry.Selection,
			FreeText:   entry.FreeText,
		})
	}

	return result
}
