package schedule

import (
	"strconv"
	"strings"
	"time"

	"leadflow-engine/internal/config"
)

// Due reports whether a rule's schedule has triggered. lastRun is nil when
// the rule has never run. All comparisons use now's location.
func Due(s config.Schedule, lastRun *time.Time, now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if lastRun == nil {
		return true
	}

	hour, minute, ok := parseTimeOfDay(s.Time)
	if !ok {
		return false
	}

	switch s.Frequency {
	case "daily":
		scheduled := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if now.Before(scheduled) {
			return false
		}
		// calendar-date comparison, not a rolling 24h window
		return !sameDay(*lastRun, now)

	case "weekly":
		day := s.DayOfWeek
		if day < 1 || day > 7 {
			return false
		}
		ws := startOfWeek(now).AddDate(0, 0, day-1)
		scheduled := time.Date(ws.Year(), ws.Month(), ws.Day(), hour, minute, 0, 0, now.Location())
		return !now.Before(scheduled) && lastRun.Before(scheduled)

	case "monthly":
		day := s.DayOfMonth
		if day < 1 || day > 31 {
			return false
		}
		som := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, 0, day-1)
		scheduled := time.Date(som.Year(), som.Month(), som.Day(), hour, minute, 0, 0, now.Location())
		return !now.Before(scheduled) && lastRun.Before(scheduled)
	}

	// unknown frequency: never due
	return false
}

// startOfWeek returns Monday 00:00 of now's week.
func startOfWeek(now time.Time) time.Time {
	wd := int(now.Weekday())
	if wd == 0 { // Sunday
		wd = 7
	}
	d := now.AddDate(0, 0, -(wd - 1))
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, now.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func parseTimeOfDay(s string) (hour, minute int, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}
