package enrich

import (
	"testing"
	"time"

	"leadflow-engine/internal/ratelimit"
	"leadflow-engine/internal/state"
)

func newQuotaClient(q QuotaConfig) *Client {
	st := state.NewMemory()
	gate := ratelimit.NewGate(time.Millisecond, st)
	c := New("key", "http://unused", gate, st, q)
	c.now = func() time.Time { return time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC) }
	return c
}

func TestCanMakeAPICallThresholds(t *testing.T) {
	// margin 0.5 => thresholds: minute 2, hour 10, day 50
	c := newQuotaClient(QuotaConfig{PerMinute: 4, Hourly: 20, Daily: 100, SafetyMargin: 0.5})

	st := c.CanMakeAPICall()
	if !st.CanProceed {
		t.Fatalf("fresh client blocked: %+v", st)
	}
	if st.Minute.Threshold != 2 || st.Hour.Threshold != 10 || st.Day.Threshold != 50 {
		t.Fatalf("thresholds %+v", st)
	}

	c.recordCall()
	c.recordCall()

	st = c.CanMakeAPICall()
	if st.CanProceed {
		t.Fatalf("minute threshold hit but CanProceed=true: %+v", st)
	}
	if st.Minute.Remaining != 0 {
		t.Fatalf("minute remaining=%d", st.Minute.Remaining)
	}
}

func TestHourlyLimitApproaching(t *testing.T) {
	c := newQuotaClient(QuotaConfig{PerMinute: 100, Hourly: 20, Daily: 1000, SafetyMargin: 1.0})

	if stop, _ := c.HourlyLimitApproaching(5, 3); stop {
		t.Fatal("fresh client should not stop")
	}

	for i := 0; i < 15; i++ {
		c.recordCall()
	}
	// hourly remaining = 20 - 15 = 5 <= threshold 5
	stop, reason := c.HourlyLimitApproaching(5, 3)
	if !stop {
		t.Fatal("expected stop on hourly threshold")
	}
	if reason == "" {
		t.Fatal("expected a human-readable reason")
	}
}

func TestHourlyLimitApproachingMinuteWindow(t *testing.T) {
	c := newQuotaClient(QuotaConfig{PerMinute: 10, Hourly: 1000, Daily: 1000, SafetyMargin: 1.0})

	for i := 0; i < 8; i++ {
		c.recordCall()
	}
	// minute remaining = 10 - 8 = 2 <= threshold 3
	if stop, _ := c.HourlyLimitApproaching(5, 3); !stop {
		t.Fatal("expected stop on minute threshold")
	}
}

func TestDynamicMaxResults(t *testing.T) {
	c := newQuotaClient(QuotaConfig{PerMinute: 1000, Hourly: 1000, Daily: 100, SafetyMargin: 1.0})
	if got := c.DynamicMaxResults(); got != 50 {
		t.Fatalf("DynamicMaxResults=%d want 50 (100 remaining / 2 calls per company)", got)
	}

	for i := 0; i < 100; i++ {
		c.recordCall()
	}
	if got := c.DynamicMaxResults(); got != 1 {
		t.Fatalf("exhausted quota DynamicMaxResults=%d want clamp to 1", got)
	}

	big := newQuotaClient(QuotaConfig{PerMinute: 10000, Hourly: 10000, Daily: 10000, SafetyMargin: 1.0})
	if got := big.DynamicMaxResults(); got != 1000 {
		t.Fatalf("DynamicMaxResults=%d want clamp to 1000", got)
	}
}

func TestWindowsRollOver(t *testing.T) {
	c := newQuotaClient(QuotaConfig{PerMinute: 10, Hourly: 100, Daily: 1000, SafetyMargin: 1.0})
	c.recordCall()
	c.recordCall()

	if st := c.CanMakeAPICall(); st.Minute.Used != 2 || st.Hour.Used != 2 || st.Day.Used != 2 {
		t.Fatalf("used counts %+v", st)
	}

	// next minute: minute counter fresh, hour/day retained
	c.now = func() time.Time { return time.Date(2026, 3, 10, 12, 31, 0, 0, time.UTC) }
	st := c.CanMakeAPICall()
	if st.Minute.Used != 0 || st.Hour.Used != 2 || st.Day.Used != 2 {
		t.Fatalf("after minute rollover %+v", st)
	}
}
