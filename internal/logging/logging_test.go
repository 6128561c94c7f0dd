package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "debug", Format: "json"}, Service{Name: "zecwatcher", Environment: "test", Version: "v1.2.3"}, &buf)
	logger.Debug().Str("component", "test").Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("日志应为 JSON: %v (%s)", err, buf.String())
	}
	if line["component"] != "test" || line["message"] != "hello" {
		t.Fatalf("unexpected log line: %#v", line)
	}
	if line["service"] != "zecwatcher" || line["env"] != "test" || line["version"] != "v1.2.3" {
		t.Fatalf("missing service identity: %#v", line)
	}
	if _, ok := line["time"]; !ok {
		t.Fatal("missing timestamp field")
	}
}

func TestNewLoggerOmitsEmptyIdentity(t *testing.T) {
	var buf bytes.Buffer
	newLogger(Config{}, Service{}, &buf).Info().Msg("x")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"service", "env", "version"} {
		if _, ok := line[key]; ok {
			t.Fatalf("unexpected %s field: %#v", key, line)
		}
	}
}

func TestNewLoggerDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "bogus"}, Service{}, &buf)
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info level, got %s", logger.GetLevel())
	}
	logger.Debug().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatal("debug 日志不应输出")
	}
}

func TestParseLevel(t *testing.T) {
	if level, err := ParseLevel(""); err != nil || level != zerolog.InfoLevel {
		t.Fatalf("empty level = %s, %v", level, err)
	}
	if level, err := ParseLevel(" WARN "); err != nil || level != zerolog.WarnLevel {
		t.Fatalf("warn level = %s, %v", level, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("unknown level should be rejected")
	}
}
