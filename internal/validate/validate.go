// SPDX-License-Identifier: MIT

// Package validate provides configuration validation utilities for lkepg.
package validate

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Error is a single field problem.
type Error struct {
	Field   string
	Value   any
	Message string
}

func (e Error) Error() string {
	return e.Field + ": " + e.Message
}

// Validator collects field problems so a config is reported in one pass.
type Validator struct {
	errs []Error
}

// ValidationError is the aggregate returned by Validator.Err.
type ValidationError struct {
	errs []Error
}

func New() *Validator { return &Validator{} }

// AddError records a problem for field.
func (v *Validator) AddError(field, message string, value any) {
	v.errs = append(v.errs, Error{Field: field, Value: value, Message: message})
}

func (v *Validator) IsValid() bool { return len(v.errs) == 0 }

func (v *Validator) Errors() []Error { return v.errs }

// Err returns nil when nothing was recorded.
func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return ValidationError{errs: slices.Clone(v.errs)}
}

func (e ValidationError) Errors() []Error { return e.errs }

func (e ValidationError) Error() string {
	msgs := make([]string, len(e.errs))
	for i, err := range e.errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// URL requires an absolute URL with a host and, when schemes is not empty,
// one of the listed schemes.
func (v *Validator) URL(field, value string, schemes []string) {
	u, err := url.Parse(value)
	switch {
	case value == "":
		v.AddError(field, "URL cannot be empty", value)
	case err != nil:
		v.AddError(field, fmt.Sprintf("invalid URL: %v", err), value)
	case u.Host == "":
		v.AddError(field, "URL must have a host", value)
	case len(schemes) > 0 && !slices.Contains(schemes, u.Scheme):
		v.AddError(field, fmt.Sprintf("scheme %q not in %v", u.Scheme, schemes), value)
	}
}

// ListenAddr validates a host:port listen address. The host part may be empty.
func (v *Validator) ListenAddr(field, value string) {
	_, port, err := net.SplitHostPort(value)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid listen address: %v", err), value)
		return
	}
	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 {
		v.AddError(field, fmt.Sprintf("port must be between 1 and 65535, got %q", port), value)
	}
}

// Range is inclusive on both ends.
func (v *Validator) Range(field string, value, lo, hi int) {
	if value < lo || value > hi {
		v.AddError(field, fmt.Sprintf("must be between %d and %d, got %d", lo, hi, value), value)
	}
}

// DurationRange validates that a duration lies within [minVal, maxVal].
func (v *Validator) DurationRange(field string, value, minVal, maxVal time.Duration) {
	if value < minVal || value > maxVal {
		v.AddError(field,
			fmt.Sprintf("duration must be between %s and %s, got %s", minVal, maxVal, value),
			value)
	}
}

// NotEmpty rejects blank strings.
func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "value cannot be empty", value)
	}
}

func (v *Validator) OneOf(field, value string, allowed []string) {
	if !slices.Contains(allowed, value) {
		v.AddError(field, fmt.Sprintf("must be one of %v, got %q", allowed, value), value)
	}
}

func (v *Validator) NonNegative(field string, value int) {
	if value < 0 {
		v.AddError(field, fmt.Sprintf("cannot be negative, got %d", value), value)
	}
}

// Regexps validates that every pattern compiles.
func (v *Validator) Regexps(field string, patterns []string) {
	for i, p := range patterns {
		if _, err := regexp.Compile(p); err != nil {
			v.AddError(fmt.Sprintf("%s[%d]", field, i), fmt.Sprintf("invalid regular expression: %v", err), p)
		}
	}
}

// LanguageTag validates a BCP 47 language tag such as "en" or "si".
func (v *Validator) LanguageTag(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "language tag cannot be empty", value)
		return
	}
	if _, err := language.Parse(value); err != nil {
		v.AddError(field, fmt.Sprintf("invalid language tag: %v", err), value)
	}
}
