// Package scoring implements the adaptive points, streak, and badge engine.
package scoring

import (
	"fmt"
	"strings"
)

// GapPolicy selects how a skipped calendar day affects the current streak.
type GapPolicy string

const (
	// GapPreserve never detects skipped days; the streak only advances.
	GapPreserve GapPolicy = "preserve"
	// GapReset restarts the streak at 1 when more than one day has passed
	// since the last completion.
	GapReset GapPolicy = "reset"
)

// ParseGapPolicy validates a policy name. Empty selects GapPreserve.
func ParseGapPolicy(s string) (GapPolicy, error) {
	switch p := GapPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return GapPreserve, nil
	case GapPreserve, GapReset:
		return p, nil
	default:
		return "", fmt.Errorf("unknown streak gap policy %q", s)
	}
}

// Config contains the point bounds and adjustment steps.
type Config struct {
	// MinPoints and MaxPoints bound every category's point value.
	MinPoints int `json:"min_points"`
	MaxPoints int `json:"max_points"`

	// DefaultPoints is what a new user starts with in every category.
	DefaultPoints int `json:"default_points"`

	// IncompleteStep is added when a category had unfinished tasks.
	IncompleteStep int `json:"incomplete_step"`

	// PerfectStep is subtracted when every task in a category was completed.
	PerfectStep int `json:"perfect_step"`

	StreakGapPolicy GapPolicy `json:"streak_gap_policy"`
}

// DefaultConfig returns the standard point rules.
func DefaultConfig() *Config {
	return &Config{
		MinPoints:       5,
		MaxPoints:       20,
		DefaultPoints:   10,
		IncompleteStep:  2,
		PerfectStep:     1,
		StreakGapPolicy: GapPreserve,
	}
}

// Validate checks the config is internally consistent.
func (c *Config) Validate() error {
	if c.MinPoints <= 0 || c.MaxPoints < c.MinPoints {
		return fmt.Errorf("invalid point bounds [%d,%d]", c.MinPoints, c.MaxPoints)
	}
	if c.DefaultPoints < c.MinPoints || c.DefaultPoints > c.MaxPoints {
		return fmt.Errorf("default points %d outside [%d,%d]", c.DefaultPoints, c.MinPoints, c.MaxPoints)
	}
	if c.IncompleteStep < 0 || c.PerfectStep < 0 {
		return fmt.Errorf("adjustment steps must be non-negative")
	}
	if _, err := ParseGapPolicy(string(c.StreakGapPolicy)); err != nil {
		return err
	}
	return nil
}

func (c *Config) clamp(v int) int {
	return min(max(v, c.MinPoints), c.MaxPoints)
}
