package app

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quizdesk-service/internal/domain"
)

// ExamInput is the editable part of an exam.
type ExamInput struct {
	Title        string            `json:"title" validate:"required,max=200"`
	Description  string            `json:"description" validate:"max=4000"`
	CoverImage   string            `json:"coverImage" validate:"omitempty,max=1024"`
	Difficulty   domain.Difficulty `json:"difficulty" validate:"required,oneof=Easy Medium Hard"`
	TimerMinutes int               `json:"timer" validate:"min=1,max=600"`
}

// QuestionInput is the editable part of a question.
type QuestionInput struct {
	Text          string   `json:"question" validate:"required,max=2000"`
	Options       []string `json:"options" validate:"min=2,max=10,dive,required"`
	CorrectAnswer string   `json:"correctAnswer" validate:"required"`
	Image         string   `json:"image" validate:"omitempty,max=1024"`
}

func (in QuestionInput) question(id string) domain.Question {
	return domain.Question{
		ID:            id,
		Text:          strings.TrimSpace(in.Text),
		Options:       append([]string(nil), in.Options...),
		CorrectAnswer: in.CorrectAnswer,
		Image:         in.Image,
	}
}

// ExamDetail is an exam as returned to a caller. Questions carry answers and
// are only included for the owning teacher.
type ExamDetail struct {
	Exam          domain.Exam       `json:"exam"`
	QuestionCount int               `json:"questionCount"`
	Questions     []domain.Question `json:"questions,omitempty"`
	Completed     bool              `json:"completed"`
}

// ExamService implements exam and question authoring.
type ExamService struct {
	exams   ExamStore
	catalog ExamCatalog
	results ResultStore
	images  ImageStore
	now     func() time.Time
	newID   func() string
	log     *zap.Logger
}

func NewExamService(exams ExamStore, catalog ExamCatalog, results ResultStore, images ImageStore, log *zap.Logger) *ExamService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExamService{
		exams:   exams,
		catalog: catalog,
		results: results,
		images:  images,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
		log:     log,
	}
}

// CreateExam stores a new exam owned by the calling teacher.
func (s *ExamService) CreateExam(ctx context.Context, p domain.Principal, in ExamInput) (domain.Exam, error) {
	if err := p.Require(domain.CapAuthorExams); err != nil {
		return domain.Exam{}, err
	}
	if err := validateStruct("create exam", in); err != nil {
		return domain.Exam{}, err
	}
	exam := domain.Exam{
		ID:           s.newID(),
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		CoverImage:   in.CoverImage,
		Difficulty:   in.Difficulty,
		TimerMinutes: in.TimerMinutes,
		TeacherID:    p.UserID,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.exams.CreateExam(ctx, exam); err != nil {
		return domain.Exam{}, domain.Wrap(domain.KindPersistence, "create exam", err)
	}
	s.log.Info("exam created", zap.String("exam", exam.ID), zap.String("teacher", p.UserID))
	return exam, nil
}

// UpdateExam replaces the editable fields of an exam owned by the caller.
func (s *ExamService) UpdateExam(ctx context.Context, p domain.Principal, examID string, in ExamInput) (domain.Exam, error) {
	exam, err := s.owned(ctx, p, examID)
	if err != nil {
		return domain.Exam{}, err
	}
	if err := validateStruct("update exam", in); err != nil {
		return domain.Exam{}, err
	}
	exam.Title = strings.TrimSpace(in.Title)
	exam.Description = in.Description
	exam.CoverImage = in.CoverImage
	exam.Difficulty = in.Difficulty
	exam.TimerMinutes = in.TimerMinutes
	if err := s.exams.UpdateExam(ctx, exam); err != nil {
		return domain.Exam{}, domain.Wrap(domain.KindPersistence, "update exam", err)
	}
	s.catalog.Invalidate(ctx, examID)
	return exam, nil
}

// DeleteExam removes an exam and its questions. Stored results are kept.
func (s *ExamService) DeleteExam(ctx context.Context, p domain.Principal, examID string) error {
	if _, err := s.owned(ctx, p, examID); err != nil {
		return err
	}
	if err := s.exams.DeleteExam(ctx, examID); err != nil {
		return domain.Wrap(domain.KindPersistence, "delete exam", err)
	}
	s.catalog.Invalidate(ctx, examID)
	s.log.Info("exam deleted", zap.String("exam", examID), zap.String("teacher", p.UserID))
	return nil
}

// ListExams returns the caller's own exams for teachers and every exam for students.
func (s *ExamService) ListExams(ctx context.Context, p domain.Principal) ([]domain.Exam, error) {
	if err := p.Require(domain.CapViewExams); err != nil {
		return nil, err
	}
	filter := ExamFilter{}
	if p.Role.Can(domain.CapAuthorExams) {
		filter.TeacherID = p.UserID
	}
	exams, err := s.exams.ListExams(ctx, filter)
	if err != nil {
		return nil, domain.Wrap(domain.KindPersistence, "list exams", err)
	}
	return exams, nil
}

// GetExam returns exam metadata; the owner also receives the full question set,
// a student learns whether they already completed it.
func (s *ExamService) GetExam(ctx context.Context, p domain.Principal, examID string) (ExamDetail, error) {
	if err := p.Require(domain.CapViewExams); err != nil {
		return ExamDetail{}, err
	}
	content, err := s.catalog.GetExamContent(ctx, examID)
	if err != nil {
		return ExamDetail{}, err
	}
	detail := ExamDetail{Exam: content.Exam, QuestionCount: len(content.Questions)}
	if content.Exam.TeacherID == p.UserID && p.Role.Can(domain.CapAuthorExams) {
		detail.Questions = content.Questions
	}
	if p.Role.Can(domain.CapTakeExams) {
		if _, err := s.results.GetResult(ctx, examID, p.UserID); err == nil {
			detail.Completed = true
		}
	}
	return detail, nil
}

// AddQuestion appends a question to an exam owned by the caller.
func (s *ExamService) AddQuestion(ctx context.Context, p domain.Principal, examID string, in QuestionInput) (domain.Question, error) {
	added, err := s.ImportQuestions(ctx, p, examID, []QuestionInput{in})
	if err != nil {
		return domain.Question{}, err
	}
	return added[0], nil
}

// ImportQuestions validates every input first and then appends them in order.
func (s *ExamService) ImportQuestions(ctx context.Context, p domain.Principal, examID string, inputs []QuestionInput) ([]domain.Question, error) {
	if _, err := s.owned(ctx, p, examID); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, domain.Errorf(domain.KindValidation, "no questions to add")
	}
	questions := make([]domain.Question, 0, len(inputs))
	for i, in := range inputs {
		q, err := s.buildQuestion(fmt.Sprintf("question %d", i+1), s.newID(), in)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	for _, q := range questions {
		if err := s.exams.PutQuestion(ctx, examID, q); err != nil {
			s.catalog.Invalidate(ctx, examID)
			return nil, domain.Wrap(domain.KindPersistence, "add question", err)
		}
	}
	s.catalog.Invalidate(ctx, examID)
	return questions, nil
}

// UpdateQuestion replaces a question in place, keeping its position.
func (s *ExamService) UpdateQuestion(ctx context.Context, p domain.Principal, examID, questionID string, in QuestionInput) (domain.Question, error) {
	if _, err := s.owned(ctx, p, examID); err != nil {
		return domain.Question{}, err
	}
	if err := s.requireQuestion(ctx, examID, questionID); err != nil {
		return domain.Question{}, err
	}
	q, err := s.buildQuestion("update question", questionID, in)
	if err != nil {
		return domain.Question{}, err
	}
	if err := s.exams.PutQuestion(ctx, examID, q); err != nil {
		return domain.Question{}, domain.Wrap(domain.KindPersistence, "update question", err)
	}
	s.catalog.Invalidate(ctx, examID)
	return q, nil
}

// DeleteQuestion removes a question from an exam owned by the caller.
func (s *ExamService) DeleteQuestion(ctx context.Context, p domain.Principal, examID, questionID string) error {
	if _, err := s.owned(ctx, p, examID); err != nil {
		return err
	}
	if err := s.requireQuestion(ctx, examID, questionID); err != nil {
		return err
	}
	if err := s.exams.DeleteQuestion(ctx, examID, questionID); err != nil {
		return domain.Wrap(domain.KindPersistence, "delete question", err)
	}
	s.catalog.Invalidate(ctx, examID)
	return nil
}

// UploadImage stores an image for the exam cover (questionID empty) or for a
// question, and points the record at it.
func (s *ExamService) UploadImage(ctx context.Context, p domain.Principal, examID, questionID, filename string, r io.Reader, size int64, contentType string) (string, error) {
	exam, err := s.owned(ctx, p, examID)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", domain.Errorf(domain.KindValidation, "unsupported content type %q", contentType)
	}
	var target *domain.Question
	if questionID != "" {
		questions, err := s.exams.ListQuestions(ctx, examID)
		if err != nil {
			return "", domain.Wrap(domain.KindPersistence, "list questions", err)
		}
		for i := range questions {
			if questions[i].ID == questionID {
				target = &questions[i]
				break
			}
		}
		if target == nil {
			return "", domain.ErrQuestionNotFound
		}
	}

	key := path.Join("exams", examID, s.newID()+strings.ToLower(path.Ext(filename)))
	ref, err := s.images.PutImage(ctx, key, r, size, contentType)
	if err != nil {
		return "", domain.Wrap(domain.KindExternal, "store image", err)
	}

	if target != nil {
		target.Image = ref
		err = s.exams.PutQuestion(ctx, examID, *target)
	} else {
		exam.CoverImage = ref
		err = s.exams.UpdateExam(ctx, exam)
	}
	if err != nil {
		return "", domain.Wrap(domain.KindPersistence, "attach image", err)
	}
	s.catalog.Invalidate(ctx, examID)
	return ref, nil
}

func (s *ExamService) buildQuestion(op, id string, in QuestionInput) (domain.Question, error) {
	if err := validateStruct(op, in); err != nil {
		return domain.Question{}, err
	}
	q := in.question(id)
	if err := q.Validate(); err != nil {
		return domain.Question{}, domain.Wrap(domain.KindValidation, op, err)
	}
	return q, nil
}

func (s *ExamService) requireQuestion(ctx context.Context, examID, questionID string) error {
	questions, err := s.exams.ListQuestions(ctx, examID)
	if err != nil {
		return domain.Wrap(domain.KindPersistence, "list questions", err)
	}
	for _, q := range questions {
		if q.ID == questionID {
			return nil
		}
	}
	return domain.ErrQuestionNotFound
}

// owned loads examID and checks the caller is the teacher who created it.
func (s *ExamService) owned(ctx context.Context, p domain.Principal, examID string) (domain.Exam, error) {
	if err := p.Require(domain.CapAuthorExams); err != nil {
		return domain.Exam{}, err
	}
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return domain.Exam{}, err
	}
	if exam.TeacherID != p.UserID {
		return domain.Exam{}, &domain.Error{Kind: domain.KindForbidden, Op: "exam " + examID, Msg: "not the owner", Err: domain.ErrForbidden}
	}
	return exam, nil
}
