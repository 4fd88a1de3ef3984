package monitoring

import (
	"testing"
)

func TestSetSinkOverride(t *testing.T) {
	defer SetSink(nil) // restore to a clean no-op for subsequent tests

	var gotLevel Level
	var gotComponent, gotMessage string
	SetSink(func(level Level, component, format string, v ...interface{}) {
		gotLevel = level
		gotComponent = component
		gotMessage = format
	})

	Info("htrphi", "realised gradient %.3f", 1.0)

	if gotLevel != LevelInfo {
		t.Errorf("level = %v, want LevelInfo", gotLevel)
	}
	if gotComponent != "htrphi" {
		t.Errorf("component = %q, want %q", gotComponent, "htrphi")
	}
	if gotMessage != "realised gradient %.3f" {
		t.Errorf("format = %q, want the original format string unexpanded", gotMessage)
	}
}

func TestSetSinkNilIsNoOp(t *testing.T) {
	defer SetSink(nil)

	called := false
	SetSink(func(Level, string, string, ...interface{}) { called = true })
	SetSink(nil)

	Error("ingest", "this must not reach the previous sink")

	if called {
		t.Error("SetSink(nil) should have replaced the previous sink, not chained to it")
	}
}

func TestLevelWiring(t *testing.T) {
	defer SetSink(nil)

	var levels []Level
	SetSink(func(level Level, _, _ string, _ ...interface{}) {
		levels = append(levels, level)
	})

	Info("fit", "a")
	Warn("fit", "b")
	Error("fit", "c")

	want := []Level{LevelInfo, LevelWarn, LevelError}
	if len(levels) != len(want) {
		t.Fatalf("got %d log calls, want %d", len(levels), len(want))
	}
	for i, lvl := range want {
		if levels[i] != lvl {
			t.Errorf("call %d: level = %v, want %v", i, levels[i], lvl)
		}
	}
}

func TestLevelString(t *testing.T) {
	cases := map[Level]string{
		LevelInfo:  "INFO",
		LevelWarn:  "WARN",
		LevelError: "ERROR",
		Level(99):  "INFO", // unknown levels fall back to INFO rather than panicking
	}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Errorf("Level(%d).String() = %q, want %q", int(level), got, want)
		}
	}
}

func TestDefaultSinkDoesNotPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Log panicked with the default sink: %v", r)
		}
	}()
	Log(LevelInfo, "monitoring", "smoke test: %s=%d", "value", 1)
}
