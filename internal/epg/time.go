// SPDX-License-Identifier: MIT

package epg

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrBadTime is returned for XMLTV timestamps that cannot be parsed.
var ErrBadTime = errors.New("epg: invalid xmltv time")

var timeLayouts = map[int]string{
	14: "20060102150405",
	12: "200601021504",
	8:  "20060102",
}

// ParseTime parses an XMLTV timestamp ("20240101120000 +0530"). The date part
// may carry 14, 12 or 8 digits; a missing offset means UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrBadTime
	}
	stamp, zone, _ := strings.Cut(s, " ")
	layout, ok := timeLayouts[len(stamp)]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadTime, s)
	}

	loc := time.UTC
	if zone = strings.TrimSpace(zone); zone != "" {
		z, err := time.Parse("-0700", zone)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrBadTime, s)
		}
		loc = z.Location()
	}
	t, err := time.ParseInLocation(layout, stamp, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadTime, s)
	}
	return t, nil
}

// FormatTime renders t in the canonical XMLTV form.
func FormatTime(t time.Time) string {
	return t.Format("20060102150405 -0700")
}

// StartTime parses the programme start attribute.
func (p Programme) StartTime() (time.Time, error) { return ParseTime(p.Start()) }

// StopTime parses the programme stop attribute.
func (p Programme) StopTime() (time.Time, error) { return ParseTime(p.Stop()) }
