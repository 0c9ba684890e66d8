package domain

import (
	"strings"
	"time"
)

// Difficulty grades how hard an exam is meant to be.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Valid reports whether d is one of the known difficulty levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Exam is a timed collection of questions owned by the teacher who created it.
type Exam struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	CoverImage  string     `json:"coverImage,omitempty"`
	Difficulty  Difficulty `json:"difficulty"`

	// TimerMinutes is the time limit of one attempt.
	TimerMinutes int       `json:"timer"`
	TeacherID    string    `json:"teacherId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TimeLimit returns the attempt duration in whole seconds.
func (e Exam) TimeLimit() int {
	return e.TimerMinutes * 60
}

// Question models an MCQ item. The correct answer is stored as option text.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Image         string   `json:"image,omitempty"`
}

// Validate checks the structural invariants of a question.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return Errorf(KindValidation, "question text is required")
	}
	if len(q.Options) < 2 {
		return Errorf(KindValidation, "question needs at least 2 options, got %d", len(q.Options))
	}
	seen := make(map[string]struct{}, len(q.Options))
	found := false
	for _, opt := range q.Options {
		if _, dup := seen[opt]; dup {
			return Errorf(KindValidation, "duplicate option %q", opt)
		}
		seen[opt] = struct{}{}
		if opt == q.CorrectAnswer {
			found = true
		}
	}
	if !found {
		return Errorf(KindValidation, "correct answer %q is not one of the options", q.CorrectAnswer)
	}
	return nil
}

// ExamContent is an exam together with its ordered question set.
type ExamContent struct {
	Exam      Exam       `json:"exam"`
	Questions []Question `json:"questions"`
}

// ExamResult is the immutable record of one student's single attempt at one exam.
type ExamResult struct {
	ID             string            `json:"id"`
	ExamID         string            `json:"examId"`
	StudentID      string            `json:"studentId"`
	Score          int               `json:"score"`
	CorrectAnswers int               `json:"correctAnswers"`
	TotalQuestions int               `json:"totalQuestions"`
	SubmittedAt    time.Time         `json:"submittedAt"`
	Answers        map[string]string `json:"answers"`
}

// Passed reports whether the score reaches the pass threshold.
func (r ExamResult) Passed() bool {
	return r.Score >= PassThreshold
}

// PassThreshold is the score percentage displayed as a pass.
const PassThreshold = 50

// User is a student or teacher profile.
type User struct {
	ID         string `json:"id"`
	NationalID string `json:"nationalId"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Role       Role   `json:"role"`
}

// DisplayName joins first and last name.
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// KeyedByNationalID reports whether the record already lives under its natural key.
func (u User) KeyedByNationalID() bool {
	return u.NationalID != "" && u.ID == u.NationalID
}

// Credential is the login record behind a user. PasswordHash is a bcrypt hash.
type Credential struct {
	UserID       string
	Identifier   string
	PasswordHash string
}
