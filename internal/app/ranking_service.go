package app

import (
	"context"
	"errors"

	"quizdesk-service/internal/domain"
)

// DefaultTopN is the leaderboard length when callers pass none.
const DefaultTopN = 3

// ExamReport is the per-exam view shown to teachers.
type ExamReport struct {
	Exam        domain.Exam    `json:"exam"`
	Summary     ScoreSummary   `json:"summary"`
	Leaderboard []RankedResult `json:"leaderboard"`
}

// ExamSummary pairs an exam with the aggregate of its results.
type ExamSummary struct {
	Exam    domain.Exam  `json:"exam"`
	Summary ScoreSummary `json:"summary"`
}

// OverallReport aggregates across every exam.
type OverallReport struct {
	Exams   []ExamSummary `json:"exams"`
	Overall ScoreSummary  `json:"overall"`
}

// Standing is a student's own position in an exam.
type Standing struct {
	Rank        int               `json:"rank"`
	Of          int               `json:"of"`
	Result      domain.ExamResult `json:"result"`
	Summary     ScoreSummary      `json:"summary"`
	Leaderboard []RankedResult    `json:"leaderboard"`
}

// RankingService computes reports on demand from stored results.
type RankingService struct {
	exams   ExamStore
	results ResultStore
	users   UserStore
}

func NewRankingService(exams ExamStore, results ResultStore, users UserStore) *RankingService {
	return &RankingService{exams: exams, results: results, users: users}
}

// ExamReport summarizes examID and lists its top n results with student names.
func (s *RankingService) ExamReport(ctx context.Context, p domain.Principal, examID string, n int) (ExamReport, error) {
	if err := p.Require(domain.CapViewReports); err != nil {
		return ExamReport{}, err
	}
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return ExamReport{}, err
	}
	results, err := s.results.ListResultsByExam(ctx, examID)
	if err != nil {
		return ExamReport{}, domain.Wrap(domain.KindPersistence, "list results", err)
	}
	if n <= 0 {
		n = DefaultTopN
	}
	top := TopN(results, n)
	s.attachNames(ctx, top)
	return ExamReport{Exam: exam, Summary: Summarize(results), Leaderboard: top}, nil
}

// OverallReport summarizes every exam and the union of their results.
func (s *RankingService) OverallReport(ctx context.Context, p domain.Principal) (OverallReport, error) {
	if err := p.Require(domain.CapViewReports); err != nil {
		return OverallReport{}, err
	}
	exams, err := s.exams.ListExams(ctx, ExamFilter{})
	if err != nil {
		return OverallReport{}, domain.Wrap(domain.KindPersistence, "list exams", err)
	}
	results, err := s.results.ListResults(ctx)
	if err != nil {
		return OverallReport{}, domain.Wrap(domain.KindPersistence, "list results", err)
	}
	byExam := make(map[string][]domain.ExamResult, len(exams))
	for _, r := range results {
		byExam[r.ExamID] = append(byExam[r.ExamID], r)
	}
	report := OverallReport{
		Exams:   make([]ExamSummary, 0, len(exams)),
		Overall: Summarize(results),
	}
	for _, exam := range exams {
		report.Exams = append(report.Exams, ExamSummary{Exam: exam, Summary: Summarize(byExam[exam.ID])})
	}
	return report, nil
}

// Standing returns the caller's rank in examID plus the top n leaderboard.
func (s *RankingService) Standing(ctx context.Context, p domain.Principal, examID string, n int) (Standing, error) {
	if err := p.Require(domain.CapViewOwnResult); err != nil {
		return Standing{}, err
	}
	results, err := s.results.ListResultsByExam(ctx, examID)
	if err != nil {
		return Standing{}, domain.Wrap(domain.KindPersistence, "list results", err)
	}
	var own RankedResult
	ok := false
	for _, id := range studentKeys(p) {
		if own, ok = RankOf(results, id); ok {
			break
		}
	}
	if !ok {
		return Standing{}, domain.ErrResultNotFound
	}
	if n <= 0 {
		n = DefaultTopN
	}
	top := TopN(results, n)
	s.attachNames(ctx, top)
	return Standing{
		Rank:        own.Rank,
		Of:          len(results),
		Result:      own.ExamResult,
		Summary:     Summarize(results),
		Leaderboard: top,
	}, nil
}

// attachNames fills student names best-effort; a missing profile leaves the name empty.
func (s *RankingService) attachNames(ctx context.Context, ranked []RankedResult) {
	if s.users == nil {
		return
	}
	for i := range ranked {
		u, err := resolveUser(ctx, s.users, ranked[i].StudentID, "")
		if err != nil {
			continue
		}
		ranked[i].StudentName = u.DisplayName()
	}
}

// resolveUser reads a profile under either key layout: the record ID first,
// then the national identifier.
func resolveUser(ctx context.Context, users UserStore, userID, nationalID string) (domain.User, error) {
	u, err := users.GetUser(ctx, userID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, err
	}
	if nationalID == "" {
		nationalID = userID
	}
	return users.FindUserByNationalID(ctx, nationalID)
}
