package app

import (
	"sort"

	"quizdesk-service/internal/domain"
)

// ScoreSummary aggregates a set of results.
type ScoreSummary struct {
	Participants int `json:"participants"`
	AverageScore int `json:"averageScore"`
}

// RankedResult is a result with its 1-based position in the ordering.
type RankedResult struct {
	Rank        int    `json:"rank"`
	StudentName string `json:"studentName,omitempty"`
	domain.ExamResult
}

// Summarize counts distinct students and averages their scores, rounding
// halves up. An empty set yields zeros.
func Summarize(results []domain.ExamResult) ScoreSummary {
	if len(results) == 0 {
		return ScoreSummary{}
	}
	students := make(map[string]struct{}, len(results))
	sum := 0
	for _, r := range results {
		students[r.StudentID] = struct{}{}
		sum += r.Score
	}
	return ScoreSummary{
		Participants: len(students),
		AverageScore: roundDiv(sum, len(results)),
	}
}

// SortResults returns a copy ordered by score descending, then earlier
// submission, then student ID, so equal scores always rank the same way.
func SortResults(results []domain.ExamResult) []domain.ExamResult {
	sorted := append([]domain.ExamResult(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.SubmittedAt.Equal(b.SubmittedAt) {
			return a.SubmittedAt.Before(b.SubmittedAt)
		}
		return a.StudentID < b.StudentID
	})
	return sorted
}

// RankResults assigns each result its position after SortResults.
func RankResults(results []domain.ExamResult) []RankedResult {
	sorted := SortResults(results)
	ranked := make([]RankedResult, len(sorted))
	for i, r := range sorted {
		ranked[i] = RankedResult{Rank: i + 1, ExamResult: r}
	}
	return ranked
}

// TopN returns the first n ranked results. n <= 0 returns none.
func TopN(results []domain.ExamResult, n int) []RankedResult {
	if n <= 0 {
		return []RankedResult{}
	}
	ranked := RankResults(results)
	if n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

// RankOf finds studentID's position within results.
func RankOf(results []domain.ExamResult, studentID string) (RankedResult, bool) {
	for _, r := range RankResults(results) {
		if r.StudentID == studentID {
			return r, true
		}
	}
	return RankedResult{}, false
}
