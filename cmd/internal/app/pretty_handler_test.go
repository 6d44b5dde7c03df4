package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestStripANSI(t *testing.T) {
	t.Parallel()

	in := ansiBlue + "INFO" + ansiReset + " plain " + ansiRed + "ERR" + ansiReset
	got := stripANSI(in)
	want := "INFO plain ERR"
	if got != want {
		t.Fatalf("stripANSI()=%q want=%q", got, want)
	}
}

func TestPrettyHandler_PlainLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, false))
	log.With("component", "auth").WithGroup("req").Info("http.request",
		"method", "post",
		"status", 401,
		"status_class", "4xx",
		"duration_ms", int64(12),
		"note", "two words",
	)

	line := buf.String()
	for _, want := range []string{
		"lvl=[INFO]",
		"msg=http.request",
		"component=auth",
		"req.method=POST",
		"req.status=401",
		"req.class=4xx",
		"req.duration=12",
		`req.note="two words"`,
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("color disabled but got escapes: %q", line)
	}
}

func TestPrettyHandler_ColorAndLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, true))
	log.Info("dropped")
	log.Error("boom", "result", "server_error")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info must be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, ansiRed) {
		t.Fatalf("expected red escapes in %q", out)
	}
	if got := stripANSI(out); !strings.Contains(got, "lvl=[ERROR] msg=boom") || !strings.Contains(got, "result=server_error") {
		t.Fatalf("unexpected line %q", got)
	}
}
