package services

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"github.com/eduhub-vn/exam-session-service/internal/models"
	"github.com/eduhub-vn/exam-session-service/internal/repositories"
)

// mockRepository is a minimal in-memory Repository for service tests.
type mockRepository struct {
	exams     *mockExamRepository
	questions *mockQuestionRepository
	schedules *mockScheduleRepository
	results   *mockResultRepository
	users     *mockUserRepository
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		exams:     &mockExamRepository{byID: make(map[uint]*models.Exam)},
		questions: &mockQuestionRepository{byID: make(map[uint]*models.Question)},
		schedules: &mockScheduleRepository{},
		results:   &mockResultRepository{stored: make(map[string]*models.ExamResult)},
		users:     &mockUserRepository{byID: make(map[string]*models.User)},
	}
}

func (m *mockRepository) Exam() repositories.ExamRepository         { return m.exams }
func (m *mockRepository) Question() repositories.QuestionRepository { return m.questions }
func (m *mockRepository) Schedule() repositories.ScheduleRepository { return m.schedules }
func (m *mockRepository) Result() repositories.ResultRepository     { return m.results }
func (m *mockRepository) User() repositories.UserRepository         { return m.users }
func (m *mockRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(m)
}
func (m *mockRepository) Ping(ctx context.Context) error { return nil }
func (m *mockRepository) Close() error                   { return nil }

// ===== EXAMS =====

type mockExamRepository struct {
	mu   sync.Mutex
	byID map[uint]*models.Exam
}

func (m *mockExamRepository) add(exam *models.Exam) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[exam.ID] = exam
}

func (m *mockExamRepository) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exam, ok := m.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return exam, nil
}

func (m *mockExamRepository) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) {
	return m.GetByID(ctx, tx, id)
}

func (m *mockExamRepository) List(ctx context.Context, tx *gorm.DB, filters repositories.ExamFilters) ([]*models.Exam, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Exam
	for _, e := range m.byID {
		out = append(out, e)
	}
	return out, int64(len(out)), nil
}

// ===== QUESTIONS =====

type mockQuestionRepository struct {
	mu   sync.Mutex
	byID map[uint]*models.Question
}

func (m *mockQuestionRepository) add(q *models.Question) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[q.ID] = q
}

func (m *mockQuestionRepository) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return q, nil
}

func (m *mockQuestionRepository) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Question
	for _, id := range ids {
		if q, ok := m.byID[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *mockQuestionRepository) GetByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.Question, error) {
	return nil, nil
}

// ===== SCHEDULES =====

type mockScheduleRepository struct {
	mu      sync.Mutex
	windows []*models.ScheduleWindow
}

func (m *mockScheduleRepository) add(w *models.ScheduleWindow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows = append(m.windows, w)
}

func (m *mockScheduleRepository) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ScheduleWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.windows {
		if w.ID == id {
			return w, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockScheduleRepository) List(ctx context.Context, tx *gorm.DB, filters repositories.ScheduleFilters) ([]*models.ScheduleWindow, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := int64(len(m.windows))
	start := filters.Offset
	if start > len(m.windows) {
		start = len(m.windows)
	}
	end := len(m.windows)
	if filters.Limit > 0 && start+filters.Limit < end {
		end = start + filters.Limit
	}
	return m.windows[start:end], total, nil
}

// ===== RESULTS =====

type mockResultRepository struct {
	mu      sync.Mutex
	stored  map[string]*models.ExamResult
	creates int

	// failCreates makes CreateWithAnswers fail that many times before
	// succeeding, for retry tests.
	failCreates int
}

func (m *mockResultRepository) CreateWithAnswers(ctx context.Context, tx *gorm.DB, result *models.ExamResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failCreates > 0 {
		m.failCreates--
		return gorm.ErrInvalidTransaction
	}

	if m.stored == nil {
		m.stored = make(map[string]*models.ExamResult)
	}
	m.creates++
	m.stored[result.ID] = result
	return nil
}

func (m *mockResultRepository) createCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates
}

func (m *mockResultRepository) get(id string) *models.ExamResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stored[id]
}

func (m *mockResultRepository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.ExamResult, error) {
	return m.GetByIDWithAnswers(ctx, tx, id)
}

func (m *mockResultRepository) GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id string) (*models.ExamResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result, ok := m.stored[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return result, nil
}

func (m *mockResultRepository) Update(ctx context.Context, tx *gorm.DB, result *models.ExamResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stored == nil {
		m.stored = make(map[string]*models.ExamResult)
	}
	m.stored[result.ID] = result
	return nil
}

func (m *mockResultRepository) UpdateAnswers(ctx context.Context, tx *gorm.DB, answers []*models.ResultAnswer) error {
	return nil
}

func (m *mockResultRepository) List(ctx context.Context, tx *gorm.DB, filters repositories.ResultFilters) ([]*models.ExamResult, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ExamResult
	for _, r := range m.stored {
		if filters.ExamID != nil && r.ExamID != *filters.ExamID {
			continue
		}
		out = append(out, r)
	}
	return out, int64(len(out)), nil
}

func (m *mockResultRepository) ExistsByID(ctx context.Context, tx *gorm.DB, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.stored[id]
	return ok, nil
}

// ===== USERS =====

type mockUserRepository struct {
	mu   sync.Mutex
	byID map[string]*models.User
}

func (m *mockUserRepository) add(u *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[u.ID] = u
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.User
	for _, id := range ids {
		if u, ok := m.byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockUserRepository) ExistsByID(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byID[id]
	return ok, nil
}
