// SPDX-License-Identifier: MIT

package validate

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidator_URL(t *testing.T) {
	tests := []struct {
		name           string
		value          string
		allowedSchemes []string
		wantErr        bool
	}{
		{"valid http", "http://example.com", []string{"http", "https"}, false},
		{"valid https", "https://example.com/epg/epg.xml.gz", []string{"http", "https"}, false},
		{"empty url", "", []string{"http"}, true},
		{"no host", "http://", []string{"http"}, true},
		{"invalid scheme", "ftp://example.com", []string{"http", "https"}, true},
		{"no scheme", "example.com", []string{"http"}, true},
		{"with port", "http://example.com:8080", []string{"http"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.URL("testURL", tt.value, tt.allowedSchemes)

			if tt.wantErr && v.IsValid() {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && !v.IsValid() {
				t.Errorf("unexpected error: %v", v.Err())
			}
		})
	}
}

func TestValidator_ListenAddr(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{":8080", false},
		{"127.0.0.1:80", false},
		{"localhost", true},
		{":0", true},
		{":70000", true},
		{":http", true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			v := New()
			v.ListenAddr("listen", tt.value)
			if got := !v.IsValid(); got != tt.wantErr {
				t.Errorf("ListenAddr(%q) error = %v, want %v", tt.value, got, tt.wantErr)
			}
		})
	}
}

func TestValidator_RangeAndDuration(t *testing.T) {
	v := New()
	v.Range("fuzzy", 3, 0, 10)
	v.DurationRange("delay", 500*time.Millisecond, 0, time.Minute)
	if !v.IsValid() {
		t.Fatalf("unexpected errors: %v", v.Err())
	}

	v.Range("fuzzy", 11, 0, 10)
	v.DurationRange("delay", 2*time.Minute, 0, time.Minute)
	if len(v.Errors()) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(v.Errors()))
	}
}

func TestValidator_Regexps(t *testing.T) {
	v := New()
	v.Regexps("channels", []string{`(?i)hiru\s*tv`, `(unclosed`})

	errs := v.Errors()
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	if errs[0].Field != "channels[1]" {
		t.Errorf("expected field channels[1], got %s", errs[0].Field)
	}
}

func TestValidator_LanguageTag(t *testing.T) {
	for _, tag := range []string{"en", "si", "si-LK", "ta"} {
		v := New()
		v.LanguageTag("lang", tag)
		if !v.IsValid() {
			t.Errorf("tag %q should be valid: %v", tag, v.Err())
		}
	}
	for _, tag := range []string{"", "not a tag!"} {
		v := New()
		v.LanguageTag("lang", tag)
		if v.IsValid() {
			t.Errorf("tag %q should be invalid", tag)
		}
	}
}

func TestValidator_OneOf(t *testing.T) {
	v := New()
	v.OneOf("match", "regex", []string{"exact", "regex"})
	v.OneOf("match", "soundex", []string{"exact", "regex"})
	if len(v.Errors()) != 1 {
		t.Fatalf("expected exactly one error, got %v", v.Errors())
	}
}

func TestValidationErrorAggregates(t *testing.T) {
	v := New()
	v.NotEmpty("input", "  ")
	v.NonNegative("fuzzy", -1)

	err := v.Err()
	if err == nil {
		t.Fatal("expected error")
	}

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(verr.Errors()) != 2 {
		t.Errorf("expected 2 errors, got %d", len(verr.Errors()))
	}
	if !strings.Contains(err.Error(), "; ") {
		t.Errorf("expected joined message, got %q", err.Error())
	}
}

func TestParseLogLevel(t *testing.T) {
	if _, err := ParseLogLevel("debug"); err != nil {
		t.Errorf("debug should parse: %v", err)
	}
	if _, err := ParseLogLevel("verbose"); !errors.Is(err, ErrInvalidLogLevel) {
		t.Errorf("expected ErrInvalidLogLevel, got %v", err)
	}
}
