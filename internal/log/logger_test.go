// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigureWritesToAllSinks(t *testing.T) {
	t.Cleanup(func() { Configure(Config{}) })

	var primary, events bytes.Buffer
	Configure(Config{Level: "debug", Output: &primary, Files: []io.Writer{&events}, Service: "svc", Version: "v1"})

	logger := WithComponent("test")
	logger.Debug().Str(FieldEvent, "config.loaded").Msg("hello")

	for name, buf := range map[string]*bytes.Buffer{"primary": &primary, "events": &events} {
		var entry map[string]any
		if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
			t.Fatalf("%s: unmarshal: %v (%q)", name, err, buf.String())
		}
		if entry[FieldService] != "svc" || entry[FieldVersion] != "v1" || entry[FieldComponent] != "test" {
			t.Errorf("%s: unexpected entry %v", name, entry)
		}
	}
}

func TestConfigureRespectsLevel(t *testing.T) {
	t.Cleanup(func() { Configure(Config{}) })

	var buf bytes.Buffer
	Configure(Config{Level: "warn", Output: &buf})
	l := Base()
	l.Info().Msg("dropped")
	l.Warn().Msg("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info entry should be filtered at warn level")
	}
	if !strings.Contains(out, "kept") {
		t.Error("warn entry missing")
	}
}

func TestOpenEventLogAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "lkepg.log")

	for _, line := range []string{"one\n", "two\n"} {
		f, err := OpenEventLog(path)
		if err != nil {
			t.Fatalf("OpenEventLog: %v", err)
		}
		if _, err := f.WriteString(line); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := f.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "one\ntwo\n" {
		t.Fatalf("expected appended content, got %q", data)
	}
}
