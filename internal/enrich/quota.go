package enrich

import (
	"fmt"
	"strconv"
	"time"
)

// consumption counters outlive their window so we can still read the hourly
// and daily totals after the minute rolls over
const (
	minuteCounterTTL = 2 * time.Hour
	hourCounterTTL   = 2 * time.Hour
	dayCounterTTL    = 25 * time.Hour
)

type Window struct {
	Used      int `json:"used"`
	Threshold int `json:"threshold"` // plan limit x safety margin
	Remaining int `json:"remaining"`
}

type QuotaStatus struct {
	CanProceed bool   `json:"can_proceed"`
	Reason     string `json:"reason"`
	Minute     Window `json:"minute"`
	Hour       Window `json:"hour"`
	Day        Window `json:"day"`
}

func (c *Client) counterKey(window, stamp string) string {
	return "apollo:calls:" + window + ":" + stamp
}

func (c *Client) bump(key string, ttl time.Duration) {
	n := 0
	if b, ok := c.store.Get(key); ok {
		n, _ = strconv.Atoi(string(b))
	}
	c.store.Put(key, []byte(strconv.Itoa(n+1)), ttl)
}

func (c *Client) counter(key string) int {
	if b, ok := c.store.Get(key); ok {
		n, _ := strconv.Atoi(string(b))
		return n
	}
	return 0
}

// recordCall bumps the minute/hour/day consumption counters. Called once per
// outbound Apollo request.
func (c *Client) recordCall() {
	now := c.now().UTC()
	c.bump(c.counterKey("minute", now.Format("200601021504")), minuteCounterTTL)
	c.bump(c.counterKey("hour", now.Format("2006010215")), hourCounterTTL)
	c.bump(c.counterKey("day", now.Format("20060102")), dayCounterTTL)
}

func (c *Client) window(name, stamp string, limit int) Window {
	used := c.counter(c.counterKey(name, stamp))
	threshold := int(float64(limit) * c.quota.SafetyMargin)
	return Window{Used: used, Threshold: threshold, Remaining: threshold - used}
}

// CanMakeAPICall reports remaining headroom per window. CanProceed is false
// once any window hits its safety-margin threshold.
func (c *Client) CanMakeAPICall() QuotaStatus {
	now := c.now().UTC()
	st := QuotaStatus{
		Minute: c.window("minute", now.Format("200601021504"), c.quota.PerMinute),
		Hour:   c.window("hour", now.Format("2006010215"), c.quota.Hourly),
		Day:    c.window("day", now.Format("20060102"), c.quota.Daily),
	}

	switch {
	case st.Minute.Remaining <= 0:
		st.Reason = fmt.Sprintf("per-minute quota exhausted (%d/%d)", st.Minute.Used, st.Minute.Threshold)
	case st.Hour.Remaining <= 0:
		st.Reason = fmt.Sprintf("hourly quota exhausted (%d/%d)", st.Hour.Used, st.Hour.Threshold)
	case st.Day.Remaining <= 0:
		st.Reason = fmt.Sprintf("daily quota exhausted (%d/%d)", st.Day.Used, st.Day.Threshold)
	default:
		st.CanProceed = true
		st.Reason = fmt.Sprintf("ok (minute %d, hour %d, day %d remaining)",
			st.Minute.Remaining, st.Hour.Remaining, st.Day.Remaining)
	}
	return st
}

// HourlyLimitApproaching is the mid-run stop signal: true when remaining
// hourly OR minute quota is at/below the given thresholds.
func (c *Client) HourlyLimitApproaching(hourlyThreshold, minuteThreshold int) (bool, string) {
	st := c.CanMakeAPICall()
	if st.Hour.Remaining <= hourlyThreshold {
		return true, fmt.Sprintf("hourly quota low: %d remaining (threshold %d)", st.Hour.Remaining, hourlyThreshold)
	}
	if st.Minute.Remaining <= minuteThreshold {
		return true, fmt.Sprintf("minute quota low: %d remaining (threshold %d)", st.Minute.Remaining, minuteThreshold)
	}
	return false, ""
}

// DynamicMaxResults sizes a run from the remaining daily quota: roughly two
// calls per company (search + enrich), clamped to 1..1000.
func (c *Client) DynamicMaxResults() int {
	st := c.CanMakeAPICall()
	n := st.Day.Remaining / 2
	if n < 1 {
		return 1
	}
	if n > 1000 {
		return 1000
	}
	return n
}
