package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestPrettyHandler_AttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, false)).With("request_id", "r-1").WithGroup("push")
	log.Info("notify.push", "outcome", "absent", "took", 15*time.Millisecond, "msg text", "a b")

	out := buf.String()
	for _, want := range []string{"[INFO]", "notify.push", "request_id=r-1", "push.outcome=absent", "push.took=15ms", `push.msg text="a b"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
	if strings.Count(out, "\n") != 1 {
		t.Fatalf("expected one line, got %q", out)
	}
}

func TestPrettyHandler_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, false))
	log.Info("quiet")
	log.Error("loud", "err", "boom")

	out := buf.String()
	if strings.Contains(out, "quiet") || !strings.Contains(out, "[ERROR] loud") {
		t.Fatalf("output = %q", out)
	}
}

func TestPrettyHandler_Color(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, true))
	log.Info("http.request", "status", 503)

	if !strings.Contains(buf.String(), ansiRed+"503"+ansiReset) {
		t.Fatalf("5xx status not painted red: %q", buf.String())
	}
}

func TestQuoteIfNeeded(t *testing.T) {
	cases := map[string]string{
		"":      `""`,
		"plain": "plain",
		"a b":   `"a b"`,
		"k=v":   `"k=v"`,
	}
	for in, want := range cases {
		if got := quoteIfNeeded(in); got != want {
			t.Fatalf("quoteIfNeeded(%q)=%q want %q", in, got, want)
		}
	}
}
