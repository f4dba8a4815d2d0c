// Package period computes fixed-width consolidation windows. Pure
// calculation, no I/O.
package period

import (
	"time"
)

// DefaultWidth is the standard consolidation window
const DefaultWidth = 6 * time.Hour

// Period is a half-open time window [Start, End)
type Period struct {
	Start   time.Time
	End     time.Time
	Label   string
	Daypart string
}

// Manager computes window boundaries and labels for a fixed width
type Manager struct {
	width time.Duration
}

// NewManager creates a period manager. Widths <= 0 fall back to DefaultWidth.
func NewManager(width time.Duration) *Manager {
	if width <= 0 {
		width = DefaultWidth
	}
	return &Manager{width: width}
}

// Width returns the configured window width
func (m *Manager) Width() time.Duration {
	return m.width
}

// Boundaries floors t to the window width (aligned to the UTC day boundary)
// and returns the half-open window [start, start+width).
func (m *Manager) Boundaries(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	day := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	offset := u.Sub(day)
	start := day.Add(offset - offset%m.width)
	return start, start.Add(m.width)
}

// NextStart returns the smallest window boundary strictly greater than now
func (m *Manager) NextStart(now time.Time) time.Time {
	start, end := m.Boundaries(now)
	if start.Equal(now.UTC()) {
		return now.UTC().Add(m.width)
	}
	return end
}

// At returns the period containing t, with its labels filled in
func (m *Manager) At(t time.Time) Period {
	start, end := m.Boundaries(t)
	return Period{Start: start, End: end, Label: m.Label(start), Daypart: m.DaypartLabel(start)}
}

// Label renders a human-readable period label, e.g. "2025-07-14 00:00"
func (m *Manager) Label(start time.Time) string {
	return start.UTC().Format("2006-01-02 15:04")
}

// DaypartLabel renders a friendlier label for 6-hour windows
// ("2025-07-14 night"); other widths fall back to Label.
func (m *Manager) DaypartLabel(start time.Time) string {
	if m.width != 6*time.Hour {
		return m.Label(start)
	}
	u := start.UTC()
	var part string
	switch u.Hour() {
	case 0:
		part = "night"
	case 6:
		part = "morning"
	case 12:
		part = "afternoon"
	case 18:
		part = "evening"
	default:
		return m.Label(start)
	}
	return u.Format("2006-01-02") + " " + part
}
