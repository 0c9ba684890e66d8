package memory

import (
	"context"
	"sort"
	"sync"

	"quizdesk-service/internal/app"
	"quizdesk-service/internal/domain"
)

// Store is an in-memory document store holding exams, questions, results and
// users. It implements app.ExamStore, app.ResultStore and app.UserStore, and
// holds login credentials for auth.Credentials.
type Store struct {
	mu          sync.RWMutex
	exams       map[string]domain.Exam
	questions   map[string][]domain.Question
	results     map[string]domain.ExamResult
	users       map[string]domain.User
	credentials map[string]domain.Credential
}

func NewStore() *Store {
	return &Store{
		exams:       make(map[string]domain.Exam),
		questions:   make(map[string][]domain.Question),
		results:     make(map[string]domain.ExamResult),
		users:       make(map[string]domain.User),
		credentials: make(map[string]domain.Credential),
	}
}

func (s *Store) CreateExam(_ context.Context, exam domain.Exam) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exams[exam.ID]; ok {
		return domain.Errorf(domain.KindConflict, "exam %s already exists", exam.ID)
	}
	s.exams[exam.ID] = exam
	return nil
}

func (s *Store) GetExam(_ context.Context, examID string) (domain.Exam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exam, ok := s.exams[examID]
	if !ok {
		return domain.Exam{}, domain.ErrExamNotFound
	}
	return exam, nil
}

func (s *Store) UpdateExam(_ context.Context, exam domain.Exam) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exams[exam.ID]; !ok {
		return domain.ErrExamNotFound
	}
	s.exams[exam.ID] = exam
	return nil
}

func (s *Store) DeleteExam(_ context.Context, examID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exams[examID]; !ok {
		return domain.ErrExamNotFound
	}
	delete(s.exams, examID)
	delete(s.questions, examID)
	return nil
}

// ListExams returns exams newest first.
func (s *Store) ListExams(_ context.Context, filter app.ExamFilter) ([]domain.Exam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exams := make([]domain.Exam, 0, len(s.exams))
	for _, exam := range s.exams {
		if filter.TeacherID != "" && exam.TeacherID != filter.TeacherID {
			continue
		}
		exams = append(exams, exam)
	}
	sort.Slice(exams, func(i, j int) bool {
		if !exams[i].CreatedAt.Equal(exams[j].CreatedAt) {
			return exams[i].CreatedAt.After(exams[j].CreatedAt)
		}
		return exams[i].ID < exams[j].ID
	})
	return exams, nil
}

func (s *Store) ListQuestions(_ context.Context, examID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.exams[examID]; !ok {
		return nil, domain.ErrExamNotFound
	}
	return cloneQuestions(s.questions[examID]), nil
}

func (s *Store) PutQuestion(_ context.Context, examID string, q domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exams[examID]; !ok {
		return domain.ErrExamNotFound
	}
	q.Options = append([]string(nil), q.Options...)
	questions := s.questions[examID]
	for i := range questions {
		if questions[i].ID == q.ID {
			questions[i] = q
			return nil
		}
	}
	s.questions[examID] = append(questions, q)
	return nil
}

func (s *Store) DeleteQuestion(_ context.Context, examID, questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	questions := s.questions[examID]
	for i := range questions {
		if questions[i].ID == questionID {
			s.questions[examID] = append(questions[:i:i], questions[i+1:]...)
			return nil
		}
	}
	return domain.ErrQuestionNotFound
}

// LoadExamContent reads an exam and its ordered questions together.
func (s *Store) LoadExamContent(ctx context.Context, examID string) (domain.ExamContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exam, ok := s.exams[examID]
	if !ok {
		return domain.ExamContent{}, domain.ErrExamNotFound
	}
	return domain.ExamContent{Exam: exam, Questions: cloneQuestions(s.questions[examID])}, nil
}

func (s *Store) CreateResult(_ context.Context, r domain.ExamResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := app.ResultID(r.ExamID, r.StudentID)
	if _, ok := s.results[id]; ok {
		return domain.ErrResultExists
	}
	r.ID = id
	r.Answers = cloneAnswers(r.Answers)
	s.results[id] = r
	return nil
}

func (s *Store) GetResult(_ context.Context, examID, studentID string) (domain.ExamResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[app.ResultID(examID, studentID)]
	if !ok {
		return domain.ExamResult{}, domain.ErrResultNotFound
	}
	r.Answers = cloneAnswers(r.Answers)
	return r, nil
}

func (s *Store) ListResultsByExam(_ context.Context, examID string) ([]domain.ExamResult, error) {
	return s.listResults(func(r domain.ExamResult) bool { return r.ExamID == examID }), nil
}

func (s *Store) ListResultsByStudent(_ context.Context, studentID string) ([]domain.ExamResult, error) {
	return s.listResults(func(r domain.ExamResult) bool { return r.StudentID == studentID }), nil
}

func (s *Store) ListResults(_ context.Context) ([]domain.ExamResult, error) {
	return s.listResults(func(domain.ExamResult) bool { return true }), nil
}

func (s *Store) listResults(keep func(domain.ExamResult) bool) []domain.ExamResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ExamResult, 0)
	for _, r := range s.results {
		if keep(r) {
			r.Answers = cloneAnswers(r.Answers)
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) GetUser(_ context.Context, userID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) FindUserByNationalID(_ context.Context, nationalID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[nationalID]; ok && u.NationalID == nationalID {
		return u, nil
	}
	for _, u := range s.users {
		if u.NationalID == nationalID {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (s *Store) PutUser(_ context.Context, u domain.User) error {
	if u.ID == "" {
		return domain.Errorf(domain.KindValidation, "user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// BeginUserBatch stages user writes that apply together on Commit.
func (s *Store) BeginUserBatch(_ context.Context) (app.UserBatch, error) {
	return &userBatch{store: s}, nil
}

type userOp struct {
	put    *domain.User
	delete string
	from   string
	to     string
}

type userBatch struct {
	store *Store
	ops   []userOp
	done  bool
}

func (b *userBatch) Put(_ context.Context, u domain.User) error {
	if b.done {
		return domain.Errorf(domain.KindPersistence, "batch already closed")
	}
	if u.ID == "" {
		return domain.Errorf(domain.KindValidation, "user id is required")
	}
	b.ops = append(b.ops, userOp{put: &u})
	return nil
}

func (b *userBatch) Delete(_ context.Context, userID string) error {
	if b.done {
		return domain.Errorf(domain.KindPersistence, "batch already closed")
	}
	b.ops = append(b.ops, userOp{delete: userID})
	return nil
}

func (b *userBatch) Reassign(_ context.Context, from, to string) error {
	if b.done {
		return domain.Errorf(domain.KindPersistence, "batch already closed")
	}
	if from == "" || to == "" {
		return domain.Errorf(domain.KindValidation, "both user ids are required")
	}
	b.ops = append(b.ops, userOp{from: from, to: to})
	return nil
}

func (b *userBatch) Commit(_ context.Context) error {
	if b.done {
		return domain.Errorf(domain.KindPersistence, "batch already closed")
	}
	b.done = true
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, op := range b.ops {
		switch {
		case op.put != nil:
			b.store.users[op.put.ID] = *op.put
		case op.from != "":
			b.store.reassignLocked(op.from, op.to)
		default:
			delete(b.store.users, op.delete)
		}
	}
	return nil
}

func (s *Store) reassignLocked(from, to string) {
	if c, ok := s.credentials[from]; ok {
		delete(s.credentials, from)
		c.UserID = to
		s.credentials[to] = c
	}
	for id, r := range s.results {
		if r.StudentID != from {
			continue
		}
		delete(s.results, id)
		r.StudentID = to
		r.ID = app.ResultID(r.ExamID, to)
		s.results[r.ID] = r
	}
}

func (b *userBatch) Rollback(_ context.Context) error {
	b.done = true
	b.ops = nil
	return nil
}

func (s *Store) PutCredential(_ context.Context, c domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.credentials {
		if other.Identifier == c.Identifier && other.UserID != c.UserID {
			return &domain.Error{Kind: domain.KindConflict, Op: "put credential", Msg: "identifier already registered"}
		}
	}
	s.credentials[c.UserID] = c
	return nil
}

func (s *Store) CredentialByUser(_ context.Context, userID string) (domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[userID]
	if !ok {
		return domain.Credential{}, domain.ErrInvalidCredentials
	}
	return c, nil
}

func (s *Store) CredentialByIdentifier(_ context.Context, identifier string) (domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.credentials {
		if c.Identifier == identifier {
			return c, nil
		}
	}
	return domain.Credential{}, domain.ErrInvalidCredentials
}

func cloneQuestions(in []domain.Question) []domain.Question {
	out := make([]domain.Question, len(in))
	for i, q := range in {
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out
}

func cloneAnswers(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
