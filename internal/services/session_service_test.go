package services

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/eduhub-vn/exam-session-service/internal/events"
	"github.com/eduhub-vn/exam-session-service/internal/models"
	"github.com/eduhub-vn/exam-session-service/internal/validator"
)

const (
	testExamID    = uint(10)
	testStudentID = "student-1"
)

func mustContent(t *testing.T, v interface{}) datatypes.JSON {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal content: %v", err)
	}
	return datatypes.JSON(data)
}

// testExam builds an exam covering all five question kinds.
func testExam(t *testing.T) *models.Exam {
	t.Helper()

	audio := "https://cdn.example.com/q2.mp3"
	questions := []models.Question{
		{
			ID:   1,
			Kind: models.SingleChoice,
			Text: "Pick one",
			Content: mustContent(t, models.ChoiceContent{Choices: []models.Choice{
				{ID: "c1", Label: "wrong"},
				{ID: "c2", Label: "right", IsCorrect: true},
			}}),
		},
		{
			ID:       2,
			Kind:     models.ListeningChoice,
			Text:     "Listen and pick",
			AudioURL: &audio,
			Content: mustContent(t, models.ChoiceContent{Choices: []models.Choice{
				{ID: "c1", Label: "wrong"},
				{ID: "c2", Label: "right", IsCorrect: true},
			}}),
		},
		{
			ID:   3,
			Kind: models.FreeText,
			Text: "Describe",
			Content: mustContent(t, models.FreeTextContent{
				AcceptedAnswers: []string{"answer"},
			}),
		},
		{
			ID:   4,
			Kind: models.OrderedTokens,
			Text: "Order the words",
			Content: mustContent(t, models.OrderedTokensContent{Tokens: []models.Token{
				{ID: "A", Label: "alpha", Position: 0},
				{ID: "B", Label: "beta", Position: 1},
				{ID: "C", Label: "gamma", Position: 2},
				{ID: "D", Label: "delta", Position: 3},
			}}),
		},
		{
			ID:   5,
			Kind: models.MatchedPairs,
			Text: "Match the pairs",
			Content: mustContent(t, models.MatchedPairsContent{Pairs: []models.Pair{
				{ID: "p1", Left: "one", Right: "mot", IsCorrect: true},
				{ID: "p2", Left: "two", Right: "ba", IsCorrect: false},
			}}),
		},
	}

	exam := &models.Exam{
		ID:       testExamID,
		Title:    "Unit Test Exam",
		Duration: "01:00:00",
		Status:   models.ExamPublished,
	}
	for i, q := range questions {
		exam.Questions = append(exam.Questions, models.ExamQuestion{
			ExamID:     testExamID,
			QuestionID: q.ID,
			Order:      i,
			Question:   q,
		})
	}
	return exam
}

type sessionFixture struct {
	repo      *mockRepository
	publisher *events.MockEventPublisher
	service   *sessionService
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	repo := newMockRepository()
	exam := testExam(t)
	repo.exams.add(exam)
	for _, ref := range exam.Questions {
		q := ref.Question
		repo.questions.add(&q)
	}

	now := mustParseTime(t, "2025-01-01T10:30:00Z")
	repo.schedules.add(&models.ScheduleWindow{
		ID:       7,
		ExamID:   testExamID,
		ClassID:  1,
		StartsAt: mustParseTime(t, "2025-01-01T10:00:00Z"),
		EndsAt:   mustParseTime(t, "2025-01-01T11:00:00Z"),
	})

	gate := newTestGate(repo, now)
	publisher := events.NewMockEventPublisher(testLogger())

	service := NewSessionService(repo, nil, testLogger(), validator.New(), gate, nil, publisher).(*sessionService)
	service.now = func() time.Time { return now }
	// Keep the clock out of the way unless a test wants it.
	service.tickInterval = time.Hour

	t.Cleanup(func() { _ = service.Shutdown(context.Background()) })

	return &sessionFixture{repo: repo, publisher: publisher, service: service}
}

func (f *sessionFixture) start(t *testing.T) *SessionResponse {
	t.Helper()
	resp, err := f.service.Start(context.Background(), &StartSessionRequest{ExamID: testExamID}, testStudentID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return resp
}

// ===== LIFECYCLE =====

func TestSessionStart(t *testing.T) {
	f := newSessionFixture(t)
	resp := f.start(t)

	if resp.ResultID == "" {
		t.Fatal("empty result id")
	}
	if resp.WindowID != 7 {
		t.Errorf("WindowID = %d, want 7", resp.WindowID)
	}
	if resp.RemainingSeconds != 3600 {
		t.Errorf("RemainingSeconds = %d, want 3600", resp.RemainingSeconds)
	}
	if len(resp.Questions) != 5 {
		t.Fatalf("questions = %d, want 5", len(resp.Questions))
	}

	// Freshly initialized: all kinds start unanswered.
	if resp.Progress.TotalCount != 5 || resp.Progress.AnsweredCount != 0 {
		t.Errorf("progress = %+v, want {0 5}", resp.Progress)
	}

	// Ordered tokens present a full shuffled permutation of the token ids.
	var ordered *SessionQuestionView
	for _, q := range resp.Questions {
		if q.Kind == models.OrderedTokens {
			ordered = q
		}
	}
	if ordered == nil {
		t.Fatal("no ordered-tokens question in response")
	}
	if len(ordered.TokenOrder) != 4 {
		t.Errorf("token order length = %d, want 4", len(ordered.TokenOrder))
	}
	seen := make(map[string]bool)
	for _, id := range ordered.TokenOrder {
		seen[id] = true
	}
	for _, id := range []string{"A", "B", "C", "D"} {
		if !seen[id] {
			t.Errorf("token %s missing from presentation order", id)
		}
	}
}

func TestSessionTokenOrderStableAcrossReads(t *testing.T) {
	f := newSessionFixture(t)
	resp := f.start(t)

	first, err := f.service.Get(context.Background(), resp.ResultID, testStudentID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := f.service.Get(context.Background(), resp.ResultID, testStudentID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	var a, b []string
	for _, q := range first.Questions {
		if q.Kind == models.OrderedTokens {
			a = q.TokenOrder
		}
	}
	for _, q := range second.Questions {
		if q.Kind == models.OrderedTokens {
			b = q.TokenOrder
		}
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("token presentation changed between reads: %v vs %v", a, b)
	}
}

func TestSessionStartGateRejected(t *testing.T) {
	f := newSessionFixture(t)
	f.service.gate.(*scheduleGateService).now = func() time.Time {
		return mustParseTime(t, "2025-01-01T09:00:00Z")
	}

	_, err := f.service.Start(context.Background(), &StartSessionRequest{ExamID: testExamID}, testStudentID)
	var ruleErr *BusinessRuleError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("err = %v, want BusinessRuleError", err)
	}
	if ruleErr.Rule != "gate_not_yet_open" {
		t.Errorf("rule = %q, want gate_not_yet_open", ruleErr.Rule)
	}
	if _, ok := ruleErr.Context["opens_at"]; !ok {
		t.Error("gate rejection missing opens_at context")
	}
}

func TestSessionReloadGetsNewResultID(t *testing.T) {
	f := newSessionFixture(t)
	first := f.start(t)
	second := f.start(t)

	if first.ResultID == second.ResultID {
		t.Error("a new session must get a new result id")
	}
}

func TestSessionAbandon(t *testing.T) {
	f := newSessionFixture(t)
	resp := f.start(t)

	if err := f.service.Abandon(context.Background(), resp.ResultID, testStudentID); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if _, err := f.service.Get(context.Background(), resp.ResultID, testStudentID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get after abandon = %v, want ErrSessionNotFound", err)
	}
	if f.repo.results.createCount() != 0 {
		t.Error("abandon must not persist anything")
	}
}

func TestSessionOwnership(t *testing.T) {
	f := newSessionFixture(t)
	resp := f.start(t)

	_, err := f.service.Get(context.Background(), resp.ResultID, "someone-else")
	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Errorf("err = %v, want PermissionError", err)
	}
}

// ===== ANSWER MODEL =====

func TestSessionAnswerMutators(t *testing.T) {
	f := newSessionFixture(t)
	resp := f.start(t)
	ctx := context.Background()
	id := resp.ResultID

	// Choice: valid selection sticks, unknown choice id is a no-op.
	if err := f.service.SetChoice(ctx, id, &SetChoiceRequest{QuestionID: 1, ChoiceID: "c2"}, testStudentID); err != nil {
		t.Fatalf("SetChoice: %v", err)
	}
	if err := f.service.SetChoice(ctx, id, &SetChoiceRequest{QuestionID: 1, ChoiceID: "nope"}, testStudentID); err != nil {
		t.Fatalf("SetChoice unknown: %v", err)
	}

	// Text.
	if err := f.service.SetText(ctx, id, &SetTextRequest{QuestionID: 3, Text: "  answer  "}, testStudentID); err != nil {
		t.Fatalf("SetText: %v", err)
	}

	// Matched pairs: toggle on, unknown pair id is a no-op.
	if err := f.service.ToggleMatch(ctx, id, &ToggleMatchRequest{QuestionID: 5, PairID: "p1"}, testStudentID); err != nil {
		t.Fatalf("ToggleMatch: %v", err)
	}
	if err := f.service.ToggleMatch(ctx, id, &ToggleMatchRequest{QuestionID: 5, PairID: "ghost"}, testStudentID); err != nil {
		t.Fatalf("ToggleMatch unknown: %v", err)
	}

	state, err := f.service.Get(ctx, id, testStudentID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for _, q := range state.Questions {
		switch q.QuestionID {
		case 1:
			if q.Selection != "c2" {
				t.Errorf("question 1 selection = %q, want c2", q.Selection)
			}
		case 3:
			if q.FreeText != "  answer  " {
				t.Errorf("question 3 text = %q", q.FreeText)
			}
		case 5:
			if !reflect.DeepEqual(q.SelectedPairs, []string{"p1"}) {
				t.Errorf("question 5 pairs = %v, want [p1]", q.SelectedPairs)
			}
		}
	}

	// Toggle off again.
	if err := f.service.ToggleMatch(ctx, id, &ToggleMatchRequest{QuestionID: 5, PairID: "p1"}, testStudentID); err != nil {
		t.Fatalf("ToggleMatch off: %v", err)
	}
	progress, err := f.service.Progress(ctx, id, testStudentID)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	// Choice + text remain answered, pairs toggled back to empty.
	if progress.AnsweredCount != 2 {
		t.Errorf("answered = %d, want 2", progress.AnsweredCount)
	}
}

func TestSessionReorder(t *testing.T) {
	f := newSessionFixture(t)
	resp := f.start(t)
	ctx := context.Background()
	id := resp.ResultID

	before, _ := f.service.Get(ctx, id, testStudentID)
	var initial []string
	for _, q := range before.Questions {
		if q.QuestionID == 4 {
			initial = append([]string(nil), q.TokenOrder...)
		}
	}

	// Boundary move: no-op, still unanswered.
	if err := f.service.Reorder(ctx, id, &ReorderRequest{QuestionID: 4, FromIndex: 0, Direction: "up"}, testStudentID); err != nil {
		t.Fatalf("Reorder boundary: %v", err)
	}
	progress, _ := f.service.Progress(ctx, id, testStudentID)
	if progress.AnsweredCount != 0 {
		t.Errorf("boundary no-op must not mark answered, got %d", progress.AnsweredCount)
	}

	// Out-of-range: no-op.
	if err := f.service.Reorder(ctx, id, &ReorderRequest{QuestionID: 4, FromIndex: 99, Direction: "down"}, testStudentID); err != nil {
		t.Fatalf("Reorder out of range: %v", err)
	}

	// Adjacent swap marks the entry answered.
	if err := f.service.Reorder(ctx, id, &ReorderRequest{QuestionID: 4, FromIndex: 0, Direction: "down"}, testStudentID); err != nil {
		t.Fatalf("Reorder: %v", err)
	}

	after, _ := f.service.Get(ctx, id, testStudentID)
	for _, q := range after.Questions {
		if q.QuestionID != 4 {
			continue
		}
		want := append([]string(nil), initial...)
		want[0], want[1] = want[1], want[0]
		if !reflect.DeepEqual(q.TokenOrder, want) {
			t.Errorf("token order = %v, want %v", q.TokenOrder, want)
		}
		if !q.Answered {
			t.Error("reordered question must be answered")
		}
	}
}

func TestSessionNavigationClamped(t *testing.T) {
	f := newSessionFixture(t)
	resp := f.start(t)
	ctx := context.Background()

	if err := f.service.SetPosition(ctx, resp.ResultID, &SetPositionRequest{Position: 99}, testStudentID); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	state, _ := f.service.Get(ctx, resp.ResultID, testStudentID)
	if state.Position != 4 {
		t.Errorf("position = %d, want 4 (clamped)", state.Position)
	}
}

// ===== SUBMISSION =====

func TestSessionSubmitPersistsPayload(t *testing.T) {
	f := newSessionFixture(t)
	resp := f.start(t)
	ctx := context.Background()
	id := resp.ResultID

	if err := f.service.SetChoice(ctx, id, &SetChoiceRequest{QuestionID: 1, ChoiceID: "c2"}, testStudentID); err != nil {
		t.Fatal(err)
	}
	if err := f.service.SetText(ctx, id, &SetTextRequest{QuestionID: 3, Text: "hello"}, testStudentID); err != nil {
		t.Fatal(err)
	}
	if err := f.service.ToggleMatch(ctx, id, &ToggleMatchRequest{QuestionID: 5, PairID: "p1"}, testStudentID); err != nil {
		t.Fatal(err)
	}

	submit, err := f.service.Submit(ctx, id, testStudentID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if submit.ResultID != id {
		t.Errorf("canonical result id = %q, want %q", submit.ResultID, id)
	}

	stored := f.repo.results.get(id)
	if stored == nil {
		t.Fatal("nothing persisted")
	}
	if stored.Trigger != models.TriggerManual {
		t.Errorf("trigger = %q, want manual", stored.Trigger)
	}
	if stored.WindowID != 7 || stored.ExamID != testExamID || stored.StudentID != testStudentID {
		t.Errorf("envelope = %+v", stored)
	}
	if !stored.StartedAt.Equal(mustParseTime(t, "2025-01-01T10:30:00Z")) {
		t.Errorf("StartedAt = %v, want admission instant", stored.StartedAt)
	}
	if len(stored.Answers) != 5 {
		t.Fatalf("answers = %d, want 5", len(stored.Answers))
	}

	// Entries in exam order, each with its own id.
	entryIDs := make(map[string]bool)
	for i, a := range stored.Answers {
		if a.Order != i {
			t.Errorf("answer %d has order %d", i, a.Order)
		}
		if a.ID == "" || entryIDs[a.ID] {
			t.Errorf("answer %d: missing or duplicate entry id", i)
		}
		entryIDs[a.ID] = true
	}

	byQuestion := make(map[uint]models.ResultAnswer)
	for _, a := range stored.Answers {
		byQuestion[a.QuestionID] = a
	}
	if byQuestion[1].Selection != "c2" || byQuestion[1].FreeText != "" {
		t.Errorf("q1 entry = %+v", byQuestion[1])
	}
	if byQuestion[3].Selection != "" || byQuestion[3].FreeText != "hello" {
		t.Errorf("q3 entry = %+v", byQuestion[3])
	}
	var tokenIDs []string
	if err := json.Unmarshal([]byte(byQuestion[4].Selection), &tokenIDs); err != nil {
		t.Errorf("q4 selection is not a JSON array: %q", byQuestion[4].Selection)
	}
	if len(tokenIDs) != 4 {
		t.Errorf("q4 submits %d token ids, want the full candidate ordering", len(tokenIDs))
	}
	var pairIDs []string
	if err := json.Unmarshal([]byte(byQuestion[5].Selection), &pairIDs); err != nil {
		t.Errorf("q5 selection is not a JSON array: %q", byQuestion[5].Selection)
	}
	if !reflect.DeepEqual(pairIDs, []string{"p1"}) {
		t.Errorf("q5 pair ids = %v, want [p1]", pairIDs)
	}

	// Session is gone after a successful submission.
	if _, err := f.service.Get(ctx, id, testStudentID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get after submit = %v, want ErrSessionNotFound", err)
	}

	// Downstream event.
	published := f.publisher.GetPublishedEvents()
	if len(published) != 1 || published[0].Type != events.EventSessionSubmitted {
		t.Errorf("published events = %+v", published)
	}
}

func TestSessionSubmitExactlyOnce(t *testing.T) {
	f := newSessionFixture(t)
	resp := f.start(t)

	// Many concurrent manual submits race; exactly one persists.
	const goroutines = 16
	var wg sync.WaitGroup
	successes := make(chan string, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if out, err := f.service.Submit(context.Background(), resp.ResultID, testStudentID); err == nil {
				successes <- out.ResultID
			}
		}()
	}
	wg.Wait()
	close(successes)

	var won int
	for range successes {
		won++
	}
	if won != 1 {
		t.Errorf("%d submits succeeded, want 1", won)
	}
	if got := f.repo.results.createCount(); got != 1 {
		t.Errorf("%d persisted submissions, want 1", got)
	}
}

func TestSessionClockAutoSubmits(t *testing.T) {
	f := newSessionFixture(t)

	// 00:00:01 budget with a fast test tick.
	exam, _ := f.repo.exams.GetByID(context.Background(), nil, testExamID)
	exam.Duration = "00:00:01"
	f.service.tickInterval = testTick

	resp := f.start(t)

	deadline := time.After(2 * time.Second)
	for f.repo.results.createCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("automatic submission never happened")
		case <-time.After(5 * time.Millisecond):
		}
	}

	stored := f.repo.results.get(resp.ResultID)
	if stored == nil {
		t.Fatal("no stored result")
	}
	if stored.Trigger != models.TriggerAutomatic {
		t.Errorf("trigger = %q, want automatic", stored.Trigger)
	}
	if got := f.repo.results.createCount(); got != 1 {
		t.Errorf("%d persisted submissions, want 1", got)
	}

	// A late manual submit hits the spent guard.
	if _, err := f.service.Submit(context.Background(), resp.ResultID, testStudentID); !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrSessionAlreadySubmitted) {
		t.Errorf("late manual submit = %v", err)
	}
}

func TestSessionManualSubmitFailureRearms(t *testing.T) {
	f := newSessionFixture(t)
	resp := f.start(t)
	ctx := context.Background()

	f.repo.results.mu.Lock()
	f.repo.results.failCreates = 1
	f.repo.results.mu.Unlock()

	if _, err := f.service.Submit(ctx, resp.ResultID, testStudentID); err == nil {
		t.Fatal("expected submit failure")
	}

	// The guard is re-armed: the session survives and a retry succeeds.
	if _, err := f.service.Get(ctx, resp.ResultID, testStudentID); err != nil {
		t.Fatalf("session gone after failed manual submit: %v", err)
	}
	if _, err := f.service.Submit(ctx, resp.ResultID, testStudentID); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if got := f.repo.results.createCount(); got != 1 {
		t.Errorf("persisted %d submissions, want 1", got)
	}
}

// ===== DURATION PARSING =====

func TestParseDurationSeconds(t *testing.T) {
	tests := []struct {
		duration string
		want     int
	}{
		{"01:00:00", 3600},
		{"00:00:05", 5},
		{"00:45:30", 2730},
		{"100:00:00", 360000},
		{"", 0},
		{"garbage", 0},
		{"1:2", 0},
		{"00:61:00", 0},
		{"00:00:61", 0},
		{"-1:00:00", 0},
		{"aa:bb:cc", 0},
	}

	for _, tt := range tests {
		if got := parseDurationSeconds(tt.duration); got != tt.want {
			t.Errorf("parseDurationSeconds(%q) = %d, want %d", tt.duration, got, tt.want)
		}
	}
}
