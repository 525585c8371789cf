// Package stats derives proctoring session statistics from alert history.
//
// Recompute is the source of truth and runs over the full history when a
// session ends. Tracker is the incremental form applied as alerts arrive;
// fed alerts in timestamp order it reaches the same result.
package stats

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/stemsi/exstem-proctoring/internal/model"
)

// ConsecutiveWindow is the largest gap between two alerts that still counts
// them as part of the same run.
const ConsecutiveWindow = 30 * time.Second

// Contribution is what a single alert adds to the dedicated session counters.
type Contribution struct {
	BrowserSwitches int
	FocusLost       int
	FocusLostMillis int64
}

// ContributionOf returns the dedicated-counter increments for a.
func ContributionOf(a model.Alert) Contribution {
	switch a.Type {
	case model.AlertBrowserSwitch:
		return Contribution{BrowserSwitches: 1}
	case model.AlertFocusLost:
		return Contribution{FocusLost: 1, FocusLostMillis: FocusDuration(a.Metadata)}
	}
	return Contribution{}
}

// FocusDuration reads the "duration" field (milliseconds) a detector attaches
// to focus-lost events. Missing, malformed or negative values count as zero.
func FocusDuration(metadata json.RawMessage) int64 {
	if len(metadata) == 0 {
		return 0
	}
	var m struct {
		Duration *float64 `json:"duration"`
	}
	if err := json.Unmarshal(metadata, &m); err != nil || m.Duration == nil || *m.Duration < 0 {
		return 0
	}
	return int64(*m.Duration)
}

// Recompute builds session statistics from the complete alert history.
// The result does not depend on the order of alerts.
func Recompute(alerts []model.Alert) model.SessionStats {
	out := model.SessionStats{
		TotalAlerts:  len(alerts),
		AlertsByType: make(map[model.AlertType]int),
	}
	if len(alerts) == 0 {
		return out
	}

	sorted := make([]model.Alert, len(alerts))
	copy(sorted, alerts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	run := 0
	for i, a := range sorted {
		out.AlertsByType[a.Type]++

		c := ContributionOf(a)
		out.BrowserSwitches += c.BrowserSwitches
		out.FocusLostCount += c.FocusLost
		out.TotalFocusLostTime += c.FocusLostMillis

		if i > 0 && a.Timestamp.Sub(sorted[i-1].Timestamp) <= ConsecutiveWindow {
			run++
		} else {
			run = 1
		}
		if run > out.MaxConsecutiveAlerts {
			out.MaxConsecutiveAlerts = run
		}
	}

	return out
}

// Tracker accumulates statistics one alert at a time. Alerts arriving out of
// timestamp order restart the current run, so its run length is a lower
// bound until Recompute settles it. The zero value is ready to use.
type Tracker struct {
	stats model.SessionStats
	run   int
	last  time.Time
	seen  bool
}

// Observe folds one alert into the running statistics.
func (t *Tracker) Observe(a model.Alert) {
	if t.stats.AlertsByType == nil {
		t.stats.AlertsByType = make(map[model.AlertType]int)
	}

	t.stats.TotalAlerts++
	t.stats.AlertsByType[a.Type]++

	c := ContributionOf(a)
	t.stats.BrowserSwitches += c.BrowserSwitches
	t.stats.FocusLostCount += c.FocusLost
	t.stats.TotalFocusLostTime += c.FocusLostMillis

	if t.seen && !a.Timestamp.Before(t.last) && a.Timestamp.Sub(t.last) <= ConsecutiveWindow {
		t.run++
	} else {
		t.run = 1
	}
	if !t.seen || a.Timestamp.After(t.last) {
		t.last = a.Timestamp
	}
	t.seen = true

	if t.run > t.stats.MaxConsecutiveAlerts {
		t.stats.MaxConsecutiveAlerts = t.run
	}
}

// Stats returns a copy of the accumulated statistics.
func (t *Tracker) Stats() model.SessionStats {
	out := t.stats
	out.AlertsByType = make(map[model.AlertType]int, len(t.stats.AlertsByType))
	for k, v := range t.stats.AlertsByType {
		out.AlertsByType[k] = v
	}
	return out
}
