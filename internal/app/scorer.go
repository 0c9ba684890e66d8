package app

import (
	"time"

	"quizdesk-service/internal/domain"
)

// Grade is the outcome of comparing an answer map with a question set.
type Grade struct {
	Correct    int
	Total      int
	Percentage int
}

// GradeAnswers counts exact-text matches against each question's correct answer.
// Unanswered questions count as incorrect. A zero-question set is invalid input.
func GradeAnswers(questions []domain.Question, answers map[string]string) (Grade, error) {
	if len(questions) == 0 {
		return Grade{}, &domain.Error{Kind: domain.KindValidation, Op: "grade", Err: domain.ErrInvalidInput, Msg: "exam has no questions"}
	}
	correct := 0
	for _, q := range questions {
		if selected, ok := answers[q.ID]; ok && selected == q.CorrectAnswer {
			correct++
		}
	}
	pct, err := ScorePercentage(correct, len(questions))
	if err != nil {
		return Grade{}, err
	}
	return Grade{Correct: correct, Total: len(questions), Percentage: pct}, nil
}

// ScorePercentage returns round(100*correct/total) with halves rounded up,
// computed exactly in integers: 1/3 -> 33, 1/40 -> 3, 1/8 -> 13.
func ScorePercentage(correct, total int) (int, error) {
	if total <= 0 || correct < 0 || correct > total {
		return 0, &domain.Error{Kind: domain.KindValidation, Op: "score", Err: domain.ErrInvalidInput}
	}
	return roundDiv(100*correct, total), nil
}

// roundDiv divides non-negative num by positive den, rounding halves up.
func roundDiv(num, den int) int {
	return (2*num + den) / (2 * den)
}

// Scorer turns a finished answer map into a result record ready for persistence.
type Scorer struct {
	now func() time.Time
}

func NewScorer(now func() time.Time) Scorer {
	if now == nil {
		now = time.Now
	}
	return Scorer{now: now}
}

// Score grades answers and builds the ExamResult for (examID, studentID).
// Only answers to questions in the set are recorded.
func (s Scorer) Score(examID, studentID string, questions []domain.Question, answers map[string]string) (domain.ExamResult, error) {
	grade, err := GradeAnswers(questions, answers)
	if err != nil {
		return domain.ExamResult{}, err
	}
	recorded := make(map[string]string, len(answers))
	for _, q := range questions {
		if selected, ok := answers[q.ID]; ok {
			recorded[q.ID] = selected
		}
	}
	return domain.ExamResult{
		ID:             ResultID(examID, studentID),
		ExamID:         examID,
		StudentID:      studentID,
		Score:          grade.Percentage,
		CorrectAnswers: grade.Correct,
		TotalQuestions: grade.Total,
		SubmittedAt:    s.now().UTC(),
		Answers:        recorded,
	}, nil
}

// ResultID is the storage key of the single result a student may have for an exam.
func ResultID(examID, studentID string) string {
	return studentID + ":" + examID
}
