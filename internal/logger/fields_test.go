package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStringFields(t *testing.T) {
	fields := StringFields(
		StringField{Key: "  provider  ", Value: "  Gemini  "},
		StringField{Key: "ignored", Value: "   "},
		StringField{Key: "   ", Value: "empty key"},
	)

	if len(fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(fields))
	}

	if fields[0].Key != "provider" || fields[0].String != "Gemini" {
		t.Fatalf("unexpected provider field: %+v", fields[0])
	}

	if empty := StringFields(); len(empty) != 0 {
		t.Fatalf("expected empty fields, got %d", len(empty))
	}
}

func TestWithFields(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	enriched := WithFields(logger, zap.String("foo", "bar"))
	enriched.Info("test log")

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	if ctx := entries[0].ContextMap(); ctx["foo"] != "bar" {
		t.Fatalf("expected field to be bar, got %q", ctx["foo"])
	}

	enriched = WithFields(nil, zap.String("baz", "qux"))
	if enriched == nil {
		t.Fatalf("expected fallback logger when nil provided")
	}

	enriched.Info("another log")
}

func TestCommonFields(t *testing.T) {
	fields := CommonFields("  Gemini  ", "model-v1")
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}

	if fields[0].Key != FieldProvider || fields[0].String != "Gemini" {
		t.Fatalf("unexpected provider field: %+v", fields[0])
	}

	if fields[1].Key != FieldModel || fields[1].String != "model-v1" {
		t.Fatalf("unexpected model field: %+v", fields[1])
	}

	if empty := CommonFields("", ""); len(empty) != 0 {
		t.Fatalf("expected empty fields, got %d", len(empty))
	}
}

func TestSessionFieldsSkipEmptyPhase(t *testing.T) {
	fields := SessionFields("abc", "")
	if len(fields) != 1 || fields[0].Key != FieldSession || fields[0].String != "abc" {
		t.Fatalf("unexpected session fields: %+v", fields)
	}

	fields = SessionFields("abc", "questioning")
	if len(fields) != 2 || fields[1].Key != FieldPhase {
		t.Fatalf("expected phase field, got %+v", fields)
	}
}

func TestWithSession(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)

	WithSession(zap.New(core), "session-1").Info("answer recorded")

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	if got := entries[0].ContextMap()[FieldSession]; got != "session-1" {
		t.Fatalf("expected session field, got %q", got)
	}

	// A nil logger must not panic.
	WithSession(nil, "session-2").Info("no-op")
}

func TestNewRejectsUnknownSinkScheme(t *testing.T) {
	if _, err := New(Options{Output: "bogus://sink"}); err == nil {
		t.Fatal("expected error for unknown sink scheme")
	}

	logger, err := New(Options{JSON: true, Debug: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug level to be enabled")
	}
}
