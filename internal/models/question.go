package models

import (
	"time"

	"gorm.io/datatypes"
)

type QuestionKind string

const (
	SingleChoice    QuestionKind = "single_choice"
	ListeningChoice QuestionKind = "listening_choice"
	FreeText        QuestionKind = "free_text"
	OrderedTokens   QuestionKind = "ordered_tokens"
	MatchedPairs    QuestionKind = "matched_pairs"
)

// QuestionKinds lists the closed set of supported formats.
var QuestionKinds = []QuestionKind{SingleChoice, ListeningChoice, FreeText, OrderedTokens, MatchedPairs}

func (k QuestionKind) Valid() bool {
	switch k {
	case SingleChoice, ListeningChoice, FreeText, OrderedTokens, MatchedPairs:
		return true
	}
	return false
}

// IsChoice reports whether the kind answers with a single selected choice id.
func (k QuestionKind) IsChoice() bool {
	return k == SingleChoice || k == ListeningChoice
}

type Question struct {
	ID       uint         `json:"id" gorm:"primaryKey"`
	LessonID uint         `json:"lesson_id" gorm:"not null;index"`
	Kind     QuestionKind `json:"kind" gorm:"not null;index"`
	Text     string       `json:"text" gorm:"type:text;not null" validate:"required"`

	// Content stored as JSONB for flexibility. Holds the kind-specific data,
	// including the answer key; key fields must be stripped before the question
	// is handed to an active session.
	Content datatypes.JSON `json:"content" gorm:"type:jsonb"`

	// Audio asset for listening_choice questions.
	AudioURL *string `json:"audio_url" gorm:"size:500"`

	Explanation *string `json:"explanation" gorm:"type:text"`

	// Metadata
	CreatedBy string    `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Creator User `json:"creator" gorm:"foreignKey:CreatedBy"`
}

func (Question) TableName() string {
	return "questions"
}

// ===== QUESTION CONTENT SCHEMAS =====

// ChoiceContent backs single_choice and listening_choice questions.
type ChoiceContent struct {
	Choices []Choice `json:"choices" validate:"min=2,max=10"`
}

type Choice struct {
	ID        string `json:"id"`
	Label     string `json:"label" validate:"required"`
	IsCorrect bool   `json:"is_correct"`
}

// FreeTextContent backs free_text questions. AcceptedAnswers is optional;
// without it the analysis path marks the answer as manually-graded.
type FreeTextContent struct {
	AcceptedAnswers []string `json:"accepted_answers"`
	CaseSensitive   bool     `json:"case_sensitive"`
	MaxLength       int      `json:"max_length" validate:"omitempty,min=1,max=5000"`
}

// OrderedTokensContent backs ordered_tokens questions. Position is the
// 0-based correct index of the token; presentation order is shuffled
// per-session, identity-based comparison happens at analysis time.
type OrderedTokensContent struct {
	Tokens []Token `json:"tokens" validate:"min=2,max=10"`
}

type Token struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Position int    `json:"position"`
}

// MatchedPairsContent backs matched_pairs questions.
type MatchedPairsContent struct {
	Pairs []Pair `json:"pairs" validate:"min=2,max=10"`
}

type Pair struct {
	ID        string `json:"id"`
	Left      string `json:"left"`
	Right     string `json:"right"`
	IsCorrect bool   `json:"is_correct"`
}
