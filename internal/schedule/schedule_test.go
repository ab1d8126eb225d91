package schedule

import (
	"testing"
	"time"

	"leadflow-engine/internal/config"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

func TestDueDisabledNeverFires(t *testing.T) {
	s := config.Schedule{Enabled: false, Frequency: "daily", Time: "09:00"}
	now := mustTime(t, "2026-03-10 12:00")
	last := now.Add(-48 * time.Hour)

	if Due(s, nil, now) {
		t.Fatal("disabled schedule reported due with nil lastRun")
	}
	if Due(s, &last, now) {
		t.Fatal("disabled schedule reported due with old lastRun")
	}
}

func TestDueNeverRunAlwaysFires(t *testing.T) {
	for _, freq := range []string{"daily", "weekly", "monthly", "bogus"} {
		s := config.Schedule{Enabled: true, Frequency: freq, Time: "09:00", DayOfWeek: 3, DayOfMonth: 15}
		if !Due(s, nil, mustTime(t, "2026-03-10 00:01")) {
			t.Fatalf("freq=%s: never-run rule not due", freq)
		}
	}
}

func TestDueDaily(t *testing.T) {
	s := config.Schedule{Enabled: true, Frequency: "daily", Time: "09:00"}
	lastToday := mustTime(t, "2026-03-10 09:05")

	cases := []struct {
		name string
		last time.Time
		now  time.Time
		want bool
	}{
		{"ran today, same day later", lastToday, mustTime(t, "2026-03-10 10:00"), false},
		{"ran yesterday, after scheduled time", lastToday, mustTime(t, "2026-03-11 09:01"), true},
		{"ran yesterday, before scheduled time", lastToday, mustTime(t, "2026-03-11 08:59"), false},
		{"ran days ago, exactly at scheduled time", mustTime(t, "2026-03-01 09:00"), mustTime(t, "2026-03-10 09:00"), true},
	}
	for _, tc := range cases {
		if got := Due(s, &tc.last, tc.now); got != tc.want {
			t.Errorf("%s: Due=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestDueWeekly(t *testing.T) {
	// 2026-03-11 is a Wednesday (day_of_week=3)
	s := config.Schedule{Enabled: true, Frequency: "weekly", Time: "09:00", DayOfWeek: 3}
	lastWeek := mustTime(t, "2026-03-04 09:30")

	cases := []struct {
		name string
		last time.Time
		now  time.Time
		want bool
	}{
		{"before this week's instant", lastWeek, mustTime(t, "2026-03-11 08:59"), false},
		{"at this week's instant", lastWeek, mustTime(t, "2026-03-11 09:00"), true},
		{"later in the window", lastWeek, mustTime(t, "2026-03-14 23:00"), true},
		{"already ran this window", mustTime(t, "2026-03-11 09:02"), mustTime(t, "2026-03-13 12:00"), false},
		{"sunday still same window", lastWeek, mustTime(t, "2026-03-15 12:00"), true},
	}
	for _, tc := range cases {
		if got := Due(s, &tc.last, tc.now); got != tc.want {
			t.Errorf("%s: Due=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestDueMonthly(t *testing.T) {
	s := config.Schedule{Enabled: true, Frequency: "monthly", Time: "07:30", DayOfMonth: 15}
	lastMonth := mustTime(t, "2026-02-15 07:31")

	cases := []struct {
		name string
		last time.Time
		now  time.Time
		want bool
	}{
		{"before the instant", lastMonth, mustTime(t, "2026-03-15 07:29"), false},
		{"after the instant", lastMonth, mustTime(t, "2026-03-15 07:30"), true},
		{"late in the month", lastMonth, mustTime(t, "2026-03-28 00:00"), true},
		{"already ran this month", mustTime(t, "2026-03-15 07:32"), mustTime(t, "2026-03-20 12:00"), false},
	}
	for _, tc := range cases {
		if got := Due(s, &tc.last, tc.now); got != tc.want {
			t.Errorf("%s: Due=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestDueUnknownFrequency(t *testing.T) {
	s := config.Schedule{Enabled: true, Frequency: "hourly", Time: "09:00"}
	last := mustTime(t, "2026-03-01 09:00")
	if Due(s, &last, mustTime(t, "2026-03-10 12:00")) {
		t.Fatal("unknown frequency should never be due")
	}
}

func TestDueBadTimeOfDay(t *testing.T) {
	s := config.Schedule{Enabled: true, Frequency: "daily", Time: "morning"}
	last := mustTime(t, "2026-03-01 09:00")
	if Due(s, &last, mustTime(t, "2026-03-10 12:00")) {
		t.Fatal("unparsable time should never be due once the rule has run")
	}
}
