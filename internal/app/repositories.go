package app

import (
	"context"
	"io"

	"quizdesk-service/internal/domain"
)

// ExamFilter narrows ListExams. An empty TeacherID lists every exam.
type ExamFilter struct {
	TeacherID string
}

// ExamStore persists exams and their ordered question sub-collection.
type ExamStore interface {
	CreateExam(ctx context.Context, exam domain.Exam) error
	GetExam(ctx context.Context, examID string) (domain.Exam, error)
	UpdateExam(ctx context.Context, exam domain.Exam) error
	DeleteExam(ctx context.Context, examID string) error
	ListExams(ctx context.Context, filter ExamFilter) ([]domain.Exam, error)

	// ListQuestions returns questions in insertion order.
	ListQuestions(ctx context.Context, examID string) ([]domain.Question, error)
	// PutQuestion inserts a new question at the end or replaces one in place.
	PutQuestion(ctx context.Context, examID string, q domain.Question) error
	DeleteQuestion(ctx context.Context, examID, questionID string) error
}

// ExamCatalog is the cached read path used while taking exams.
type ExamCatalog interface {
	GetExamContent(ctx context.Context, examID string) (domain.ExamContent, error)
	Invalidate(ctx context.Context, examID string)
}

// ResultStore persists ExamResults keyed by (student, exam).
type ResultStore interface {
	// CreateResult stores r unless a result for (r.StudentID, r.ExamID) exists,
	// in which case it returns domain.ErrResultExists.
	CreateResult(ctx context.Context, r domain.ExamResult) error
	GetResult(ctx context.Context, examID, studentID string) (domain.ExamResult, error)
	ListResultsByExam(ctx context.Context, examID string) ([]domain.ExamResult, error)
	ListResultsByStudent(ctx context.Context, studentID string) ([]domain.ExamResult, error)
	ListResults(ctx context.Context) ([]domain.ExamResult, error)
}

// UserStore persists user profiles under either an opaque ID or the national ID.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
	FindUserByNationalID(ctx context.Context, nationalID string) (domain.User, error)
	PutUser(ctx context.Context, u domain.User) error
	ListUsers(ctx context.Context) ([]domain.User, error)
	BeginUserBatch(ctx context.Context) (UserBatch, error)
}

// UserBatch stages writes that become visible together on Commit.
// After a failed Put, Delete or Reassign the caller must Rollback.
type UserBatch interface {
	Put(ctx context.Context, u domain.User) error
	Delete(ctx context.Context, userID string) error
	// Reassign moves the credential and every exam result owned by from to to.
	Reassign(ctx context.Context, from, to string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// SessionRepository abstracts where live exam sessions are kept (in-memory, Redis, etc).
type SessionRepository interface {
	// PutIfAbsent stores s unless a session already exists for its key; it
	// returns the stored session and whether it was already present.
	PutIfAbsent(s *Session) (*Session, bool)
	Get(key SessionKey) (*Session, bool)
	Delete(key SessionKey)
}

// ImageStore keeps cover and question images and returns a reference to them.
type ImageStore interface {
	PutImage(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

// GenerateRequest asks the question writer for Count questions on Topic.
type GenerateRequest struct {
	Topic      string
	Difficulty domain.Difficulty
	Count      int
}

// QuestionWriter is the AI text-generation collaborator.
type QuestionWriter interface {
	GenerateQuestions(ctx context.Context, req GenerateRequest) ([]domain.Question, error)
	// TranslateQuestions returns len(questions) translations in the same order.
	TranslateQuestions(ctx context.Context, questions []domain.Question, language string) ([]domain.Question, error)
	TranslateText(ctx context.Context, text, language string) (string, error)
}

// Credentials is the auth collaborator used to re-verify a user before sensitive changes.
type Credentials interface {
	Register(ctx context.Context, userID, identifier, password string) error
	Verify(ctx context.Context, userID, password string) error
	// Lookup resolves a login identifier to the user ID it belongs to.
	Lookup(ctx context.Context, identifier string) (string, error)
	UpdateIdentifier(ctx context.Context, userID, identifier string) error
}
