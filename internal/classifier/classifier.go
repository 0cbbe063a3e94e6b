// Package classifier assigns one of the fixed task categories to free-form
// task text, using a generative model when configured and a keyword
// heuristic otherwise.
package classifier

import (
	"context"

	"github.com/thebtf/dailyscore/pkg/models"
)

// Source identifies where a classification came from.
type Source string

const (
	SourceModel    Source = "ai"
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback"
)

// FallbackConfidence is reported for every keyword classification.
const FallbackConfidence = 0.5

// DefaultConfidence replaces a missing or out-of-range model confidence.
const DefaultConfidence = 0.8

// Result is a classification outcome.
type Result struct {
	Category   models.Category `json:"category"`
	Source     Source          `json:"source"`
	Confidence float64         `json:"confidence"`
}

// Classifier is an upstream categorization service. Implementations may fail;
// the Adapter turns every failure into a keyword fallback.
type Classifier interface {
	Classify(ctx context.Context, title, description string) (Result, error)
}
