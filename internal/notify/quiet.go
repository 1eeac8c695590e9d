package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// QuietWindow is a daily window during which low-urgency notifications are
// dropped. The window may wrap past midnight (e.g. 23:00–07:00).
type QuietWindow struct {
	Enabled  bool
	Start    int // minutes from midnight
	End      int
	Location *time.Location
}

// ParseQuietWindow builds a QuietWindow from "HH:MM" boundaries and an IANA
// timezone name (empty means local time).
func ParseQuietWindow(enabled bool, start, end, timezone string) (QuietWindow, error) {
	w := QuietWindow{Enabled: enabled, Location: time.Local}
	if !enabled {
		return w, nil
	}
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return w, fmt.Errorf("quiet hours timezone: %w", err)
		}
		w.Location = loc
	}
	var err error
	if w.Start, err = parseClock(start); err != nil {
		return w, fmt.Errorf("quiet hours start: %w", err)
	}
	if w.End, err = parseClock(end); err != nil {
		return w, fmt.Errorf("quiet hours end: %w", err)
	}
	return w, nil
}

func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return h*60 + m, nil
}

// Contains reports whether t falls inside the window.
func (w QuietWindow) Contains(t time.Time) bool {
	if !w.Enabled {
		return false
	}
	local := t.In(w.Location)
	minutes := local.Hour()*60 + local.Minute()
	if w.Start <= w.End {
		return minutes >= w.Start && minutes < w.End
	}
	// Wraps midnight.
	return minutes >= w.Start || minutes < w.End
}
