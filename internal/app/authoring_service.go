package app

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"quizdesk-service/internal/domain"
)

// GenerateInput asks for Count new questions about Topic, at most 20 per request.
type GenerateInput struct {
	Topic      string            `json:"topic" validate:"required,max=200"`
	Difficulty domain.Difficulty `json:"difficulty" validate:"required,oneof=Easy Medium Hard"`
	Count      int               `json:"count" validate:"min=1,max=20"`
}

// TranslateInput asks for a translation of questions or of a single text.
type TranslateInput struct {
	Language  string            `json:"language" validate:"required,max=40"`
	Questions []domain.Question `json:"questions,omitempty" validate:"max=100"`
	Text      string            `json:"text,omitempty" validate:"max=500"`
}

// AuthoringService wraps the AI question writer for teachers. Writer failures
// are reported as external errors; retrying is left to the caller.
type AuthoringService struct {
	writer QuestionWriter
	log    *zap.Logger
}

func NewAuthoringService(writer QuestionWriter, log *zap.Logger) *AuthoringService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthoringService{writer: writer, log: log}
}

// Generate returns exactly in.Count questions, each satisfying the question invariants.
func (s *AuthoringService) Generate(ctx context.Context, p domain.Principal, in GenerateInput) ([]domain.Question, error) {
	if err := p.Require(domain.CapAuthorExams); err != nil {
		return nil, err
	}
	if err := validateStruct("generate questions", in); err != nil {
		return nil, err
	}
	if err := s.available("generate questions"); err != nil {
		return nil, err
	}
	questions, err := s.writer.GenerateQuestions(ctx, GenerateRequest{
		Topic:      strings.TrimSpace(in.Topic),
		Difficulty: in.Difficulty,
		Count:      in.Count,
	})
	if err != nil {
		return nil, s.external("generate questions", err)
	}
	if len(questions) != in.Count {
		return nil, domain.Errorf(domain.KindExternal, "generate questions: asked for %d, got %d", in.Count, len(questions))
	}
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return nil, &domain.Error{Kind: domain.KindExternal, Op: "generate questions", Msg: "generated question is malformed", Err: err}
		}
		questions[i].ID = ""
	}
	return questions, nil
}

// TranslateQuestions translates text and options, keeping order, IDs and
// image references. The correct answer follows its option by position.
func (s *AuthoringService) TranslateQuestions(ctx context.Context, p domain.Principal, in TranslateInput) ([]domain.Question, error) {
	if err := p.Require(domain.CapAuthorExams); err != nil {
		return nil, err
	}
	if err := validateStruct("translate questions", in); err != nil {
		return nil, err
	}
	if len(in.Questions) == 0 {
		return []domain.Question{}, nil
	}
	if err := s.available("translate questions"); err != nil {
		return nil, err
	}
	translated, err := s.writer.TranslateQuestions(ctx, in.Questions, in.Language)
	if err != nil {
		return nil, s.external("translate questions", err)
	}
	if len(translated) != len(in.Questions) {
		return nil, domain.Errorf(domain.KindExternal, "translate questions: sent %d, got %d", len(in.Questions), len(translated))
	}
	out := make([]domain.Question, len(in.Questions))
	for i, orig := range in.Questions {
		got := translated[i]
		if len(got.Options) != len(orig.Options) {
			return nil, domain.Errorf(domain.KindExternal, "translate questions: question %d lost options", i+1)
		}
		q := domain.Question{
			ID:      orig.ID,
			Text:    got.Text,
			Options: append([]string(nil), got.Options...),
			Image:   orig.Image,
		}
		for j, opt := range orig.Options {
			if opt == orig.CorrectAnswer {
				q.CorrectAnswer = got.Options[j]
				break
			}
		}
		if err := q.Validate(); err != nil {
			return nil, &domain.Error{Kind: domain.KindExternal, Op: "translate questions", Msg: "translated question is malformed", Err: err}
		}
		out[i] = q
	}
	return out, nil
}

// TranslateText translates a single string such as an exam topic.
func (s *AuthoringService) TranslateText(ctx context.Context, p domain.Principal, in TranslateInput) (string, error) {
	if err := p.Require(domain.CapAuthorExams); err != nil {
		return "", err
	}
	if err := validateStruct("translate text", in); err != nil {
		return "", err
	}
	if strings.TrimSpace(in.Text) == "" {
		return "", domain.Errorf(domain.KindValidation, "text is required")
	}
	if err := s.available("translate text"); err != nil {
		return "", err
	}
	out, err := s.writer.TranslateText(ctx, in.Text, in.Language)
	if err != nil {
		return "", s.external("translate text", err)
	}
	return strings.TrimSpace(out), nil
}

func (s *AuthoringService) available(op string) error {
	if s.writer == nil {
		return &domain.Error{Kind: domain.KindExternal, Op: op, Msg: "question writer is not configured"}
	}
	return nil
}

func (s *AuthoringService) external(op string, err error) error {
	s.log.Warn("ai request failed", zap.String("op", op), zap.Error(err))
	if domain.KindOf(err) != domain.KindInternal {
		return err
	}
	return domain.Wrap(domain.KindExternal, op, err)
}
