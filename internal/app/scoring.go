package app

import (
	"math"
	"sort"

	"cognito-live-service/internal/domain"
)

const (
	defaultBasePoints    = 100
	defaultTimeLimitSec  = 30
	duelPointsPerCorrect = 10
	defaultPassingScore  = 60
)

// AnswerScore is the scoring breakdown for one live-session answer.
type AnswerScore struct {
	IsCorrect    bool
	BasePoints   int
	SpeedBonus   int
	StreakBonus  int
	PointsEarned int
}

// ScoreLiveAnswer computes points for a live-session answer.
//
// Correct answers earn base points plus a speed bonus of up to half the base
// (linear in remaining time, clamped at zero for late answers) plus a streak
// bonus. streak counts the current answer and the immediately preceding run of
// correct answers; runs of two or more earn a growing fraction of the base,
// capped at 25%.
func ScoreLiveAnswer(q domain.Question, answer int, timeSpent float64, streak int) AnswerScore {
	if answer != q.CorrectIndex {
		return AnswerScore{}
	}

	base := q.Points
	if base == 0 {
		base = defaultBasePoints
	}
	limit := float64(q.TimeLimitSec)
	if limit <= 0 {
		limit = defaultTimeLimitSec
	}

	speed := int(math.Floor((limit - timeSpent) / limit * float64(base) * 0.5))
	if speed < 0 {
		speed = 0
	}

	bonus := 0
	if streak >= 2 {
		fraction := 0.05 + float64(streak-1)*0.05
		if fraction > 0.25 {
			fraction = 0.25
		}
		bonus = int(math.Floor(float64(base) * fraction))
	}

	return AnswerScore{
		IsCorrect:    true,
		BasePoints:   base,
		SpeedBonus:   speed,
		StreakBonus:  bonus,
		PointsEarned: base + speed + bonus,
	}
}

// ScoreDuelAnswer awards flat points per correct answer. Duels reward accuracy
// and aggregate speed; the time tie-break happens at winner determination.
func ScoreDuelAnswer(q domain.Question, answer int) (bool, int) {
	if answer == q.CorrectIndex {
		return true, duelPointsPerCorrect
	}
	return false, 0
}

// CurrentStreak returns the length of the trailing run of correct answers in
// the log. A correct answer about to be appended scores with streak
// CurrentStreak(answers)+1.
func CurrentStreak(answers []domain.AnswerRecord) int {
	run := 0
	for i := len(answers) - 1; i >= 0; i-- {
		if !answers[i].IsCorrect {
			break
		}
		run++
	}
	return run
}

// BuildLeaderboard ranks all participants: score descending, then total time
// ascending, then answer count descending. Rank is the 1-based position.
// Deactivated participants stay on the board; their history is preserved.
func BuildLeaderboard(participants []domain.Participant) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(participants))
	for i := range participants {
		p := &participants[i]
		correct := 0
		total := 0.0
		for _, a := range p.Answers {
			if a.IsCorrect {
				correct++
			}
			total += a.TimeSpent
		}
		entries = append(entries, domain.LeaderboardEntry{
			UserID:         p.UserID,
			Username:       p.Username,
			Avatar:         p.Avatar,
			Score:          p.Score,
			CorrectAnswers: correct,
			TotalTime:      total,
			AnswersCount:   len(p.Answers),
			IsActive:       p.IsActive,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].TotalTime != entries[j].TotalTime {
			return entries[i].TotalTime < entries[j].TotalTime
		}
		return entries[i].AnswersCount > entries[j].AnswersCount
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// DuelWinner decides a finished match: more correct answers wins, ties break
// on smaller total time, and a tie on both is a draw (nil).
func DuelWinner(p1, p2 *domain.DuelPlayer) *string {
	if p1 == nil || p2 == nil {
		return nil
	}
	switch {
	case p1.CorrectAnswers > p2.CorrectAnswers:
		return &p1.UserID
	case p2.CorrectAnswers > p1.CorrectAnswers:
		return &p2.UserID
	case p1.TotalTime < p2.TotalTime:
		return &p1.UserID
	case p2.TotalTime < p1.TotalTime:
		return &p2.UserID
	}
	return nil
}

// Grade maps a percentage to a letter rank.
func Grade(percentage float64) string {
	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 80:
		return "B"
	case percentage >= 70:
		return "C"
	case percentage >= 60:
		return "D"
	}
	return "F"
}
