// SPDX-License-Identifier: MIT

package validate

import (
	"slices"
	"strings"
)

// LogLevel is a level name accepted by log.level and LOG_LEVEL.
type LogLevel string

var logLevels = []LogLevel{"trace", "debug", "info", "warn", "error"}

// ErrInvalidLogLevel is returned by ParseLogLevel for unknown names.
var ErrInvalidLogLevel = &Error{
	Field:   "log.level",
	Message: "must be one of trace, debug, info, warn, error",
}

// ParseLogLevel trims and lower-cases s before checking it.
func ParseLogLevel(s string) (LogLevel, error) {
	l := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(logLevels, l) {
		return "", ErrInvalidLogLevel
	}
	return l, nil
}
