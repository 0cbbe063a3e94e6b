package models

import (
	"database/sql/driver"
	"fmt"

	json "github.com/goccy/go-json"
)

// Column types below are stored as JSON text in both SQLite and PostgreSQL.

// CategoryPoints maps a category to its current point value.
type CategoryPoints map[Category]int

// Scan implements sql.Scanner for CategoryPoints.
func (p *CategoryPoints) Scan(src interface{}) error {
	return scanJSON(src, p, "CategoryPoints")
}

// Value implements driver.Valuer for CategoryPoints.
func (p CategoryPoints) Value() (driver.Value, error) {
	return valueJSON(p)
}

// WeeklyStats maps a category to its counters for the current cycle.
type WeeklyStats map[Category]CategoryStats

// Scan implements sql.Scanner for WeeklyStats.
func (w *WeeklyStats) Scan(src interface{}) error {
	return scanJSON(src, w, "WeeklyStats")
}

// Value implements driver.Valuer for WeeklyStats.
func (w WeeklyStats) Value() (driver.Value, error) {
	return valueJSON(w)
}

// BadgeList is the ordered list of earned badges.
type BadgeList []Badge

// Scan implements sql.Scanner for BadgeList.
func (b *BadgeList) Scan(src interface{}) error {
	return scanJSON(src, b, "BadgeList")
}

// Value implements driver.Valuer for BadgeList.
func (b BadgeList) Value() (driver.Value, error) {
	if b == nil {
		return "[]", nil
	}
	return valueJSON(b)
}

// Preferences holds guest UI preferences.
type Preferences struct {
	Theme         string `json:"theme"`
	Notifications bool   `json:"notifications"`
}

// DefaultPreferences matches what a new guest starts with.
func DefaultPreferences() Preferences {
	return Preferences{Theme: "light", Notifications: true}
}

// PreferencesPatch is a partial preferences update; nil fields are kept.
type PreferencesPatch struct {
	Theme         *string `json:"theme,omitempty"`
	Notifications *bool   `json:"notifications,omitempty"`
}

// Apply merges the patch into p.
func (pp PreferencesPatch) Apply(p Preferences) Preferences {
	if pp.Theme != nil {
		p.Theme = *pp.Theme
	}
	if pp.Notifications != nil {
		p.Notifications = *pp.Notifications
	}
	return p
}

// Scan implements sql.Scanner for Preferences.
func (p *Preferences) Scan(src interface{}) error {
	return scanJSON(src, p, "Preferences")
}

// Value implements driver.Valuer for Preferences.
func (p Preferences) Value() (driver.Value, error) {
	return valueJSON(p)
}

func scanJSON(src interface{}, dst interface{}, name string) error {
	if src == nil {
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("%s: unsupported type %T", name, src)
	}

	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

func valueJSON(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
