package classifier

import (
	"strings"

	"github.com/thebtf/dailyscore/pkg/models"
)

// keywords per category. Matching is a case-insensitive substring test, so
// "run" also matches "running".
var keywords = map[models.Category][]string{
	models.CategoryWork:     {"meeting", "deadline", "project", "client", "email", "report", "presentation", "work", "office", "business"},
	models.CategoryHealth:   {"exercise", "workout", "gym", "run", "walk", "diet", "doctor", "appointment", "meditation", "yoga", "health"},
	models.CategoryPersonal: {"family", "friend", "movie", "dinner", "shopping", "clean", "laundry", "hobby", "game", "personal"},
	models.CategoryLearning: {"study", "read", "course", "learn", "practice", "research", "book", "tutorial", "skill", "education"},
}

// Fallback classifies by keyword count. The highest nonzero score wins, ties
// go to the earlier category in models.AllCategories, and text with no
// keyword at all is personal.
func Fallback(title, description string) Result {
	text := strings.ToLower(title + " " + description)

	best := models.CategoryPersonal
	bestScore := 0
	for _, c := range models.AllCategories {
		score := 0
		for _, w := range keywords[c] {
			if strings.Contains(text, w) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}

	return Result{Category: best, Confidence: FallbackConfidence, Source: SourceFallback}
}
