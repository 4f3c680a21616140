package ratelimit

import (
	"fmt"
	"time"
)

// ResetPolicy selects whose clock defines "today" for the daily quota.
type ResetPolicy string

const (
	// ResetLocal uses the process's local clock for every account.
	ResetLocal ResetPolicy = "local"
	// ResetAccount uses the account's configured timezone.
	ResetAccount ResetPolicy = "account"
)

// ParseResetPolicy validates a policy name.
func ParseResetPolicy(s string) (ResetPolicy, error) {
	switch p := ResetPolicy(s); p {
	case ResetLocal, ResetAccount:
		return p, nil
	case "":
		return ResetLocal, nil
	default:
		return "", fmt.Errorf("unknown reset policy %q", s)
	}
}

// DayWindow computes the start of the current quota day.
type DayWindow struct {
	policy ResetPolicy
	local  *time.Location
	now    func() time.Time
}

// NewDayWindow creates a window. A nil local location means time.Local.
func NewDayWindow(policy ResetPolicy, local *time.Location) *DayWindow {
	if local == nil {
		local = time.Local
	}
	if policy == "" {
		policy = ResetLocal
	}
	return &DayWindow{policy: policy, local: local, now: time.Now}
}

// WithClock replaces the time source.
func (w *DayWindow) WithClock(now func() time.Time) *DayWindow {
	cp := *w
	cp.now = now
	return &cp
}

// Policy returns the configured policy.
func (w *DayWindow) Policy() ResetPolicy {
	return w.policy
}

// Now returns the current instant from the window's clock.
func (w *DayWindow) Now() time.Time {
	return w.now()
}

// Location resolves the zone that defines today for an account.
// An empty or unknown zone falls back to the local zone.
func (w *DayWindow) Location(accountZone string) *time.Location {
	if w.policy != ResetAccount || accountZone == "" {
		return w.local
	}
	loc, err := time.LoadLocation(accountZone)
	if err != nil {
		return w.local
	}
	return loc
}

// Start returns today's midnight in the resolved zone, as UTC.
func (w *DayWindow) Start(accountZone string) time.Time {
	return DayStart(w.now(), w.Location(accountZone)).UTC()
}

// DayStart returns midnight of t's calendar day in loc.
func DayStart(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}
