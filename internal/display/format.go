// Package display formats confession data for people.
package display

import (
	"time"

	"github.com/dustin/go-humanize"
)

// ShortAddress keeps the first and last six characters of an address,
// e.g. 0xABCD...ABCDEF. Strings shorter than twelve characters are returned
// unchanged.
func ShortAddress(addr string) string {
	if len(addr) < 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-6:]
}

// Calendar renders t relative to now in calendar terms: "Today at 3:04 PM",
// "Yesterday at ...", "Last Monday at ..." within the past week, "Monday at
// ..." within the coming week, and a plain date otherwise. Both times are
// compared in now's location.
func Calendar(t, now time.Time) string {
	t = t.In(now.Location())
	clock := t.Format("3:04 PM")

	days := dayDiff(t, now)
	switch {
	case days == 0:
		return "Today at " + clock
	case days == -1:
		return "Yesterday at " + clock
	case days == 1:
		return "Tomorrow at " + clock
	case days < -1 && days >= -6:
		return "Last " + t.Weekday().String() + " at " + clock
	case days > 1 && days <= 6:
		return t.Weekday().String() + " at " + clock
	default:
		return t.Format("01/02/2006")
	}
}

// Relative renders t as a duration from now, e.g. "3 minutes ago".
func Relative(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

// dayDiff returns the number of calendar days from now's date to t's date.
func dayDiff(t, now time.Time) int {
	ty, tm, td := t.Date()
	ny, nm, nd := now.Date()
	a := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	b := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(a.Sub(b).Hours() / 24)
}
