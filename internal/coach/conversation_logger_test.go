package coach

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestConversationLoggerWritesPerSessionNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewConversationLogger(ConversationLogConfig{
		Enabled:   true,
		Dir:       dir,
		QueueSize: 16,
	}, slog.Default())
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(ConversationLogEvent{
		UserID:     "user-1",
		SessionID:  "sess-1",
		Channel:    "chat_http",
		Direction:  "inbound",
		EventType:  "chat_user_message",
		ContentRaw: "What should I   focus on?",
	})

	path := filepath.Join(dir, "user-1", "sess-1.ndjson")
	line := waitForLogLine(t, path)
	var got ConversationLogEvent
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if got.ContentRaw != "What should I   focus on?" {
		t.Fatalf("unexpected ContentRaw: %q", got.ContentRaw)
	}
	if got.Content != "What should I focus on?" {
		t.Fatalf("expected cleaned content, got %q", got.Content)
	}
}

func TestConversationLoggerGlobalFileAndClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	global := filepath.Join(dir, "global", "all.ndjson")
	logger, err := NewConversationLogger(ConversationLogConfig{
		GlobalEnabled: true,
		GlobalPath:    global,
		QueueSize:     16,
	}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}

	for _, sess := range []string{"a", "b"} {
		logger.Log(ConversationLogEvent{UserID: "u", SessionID: sess, EventType: "coach_empty_reply"})
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Logging after Close is a silent no-op.
	logger.Log(ConversationLogEvent{UserID: "u", EventType: "late"})

	data, err := os.ReadFile(global)
	if err != nil {
		t.Fatalf("read global log: %v", err)
	}
	if n := strings.Count(string(data), "\n"); n != 2 {
		t.Fatalf("expected 2 lines after drain, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "u")); !os.IsNotExist(err) {
		t.Fatalf("per-session files must not be written when disabled")
	}
}

func TestConversationLoggerDisabledIsNoop(t *testing.T) {
	t.Parallel()

	logger, err := NewConversationLogger(ConversationLogConfig{}, nil)
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	if _, ok := logger.(noopConversationLogger); !ok {
		t.Fatalf("expected noop logger, got %T", logger)
	}
}

func TestCleanForReadabilityStripsANSI(t *testing.T) {
	t.Parallel()

	raw := "\x1b[31merror\x1b[0m plain"
	clean := cleanForReadability(raw)
	if strings.Contains(clean, "\x1b[31m") {
		t.Fatalf("expected ANSI sequence to be stripped: %q", clean)
	}
	if !strings.Contains(clean, "error plain") {
		t.Fatalf("expected readable text to remain: %q", clean)
	}
}

func TestSafePathComponent(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"anon_abc":    "anon_abc",
		"../../etc":   "_.._etc",
		"":            "unknown",
		"..":          "unknown",
		"tab 1/evil?": "tab_1_evil_",
	}
	for in, want := range cases {
		if got := safePathComponent(in); got != want {
			t.Errorf("safePathComponent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConversationLoggerBoundsOpenFiles(t *testing.T) {
	t.Parallel()

	const users = 200
	dir := t.TempDir()
	cl, err := NewConversationLogger(ConversationLogConfig{
		Enabled:      true,
		Dir:          dir,
		QueueSize:    users + 1,
		MaxOpenFiles: 8,
	}, slog.Default())
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	fl := cl.(*fileConversationLogger)

	for i := range users {
		cl.Log(ConversationLogEvent{
			UserID:    fmt.Sprintf("anon-%d", i),
			SessionID: "sess",
			EventType: "chat_user_message",
			Content:   "hi",
		})
	}
	waitForLogLine(t, filepath.Join(dir, fmt.Sprintf("anon-%d", users-1), "sess.ndjson"))
	if got := fl.openCount.Load(); got > 8 {
		t.Fatalf("expected at most 8 open files, got %d", got)
	}

	// anon-0 was evicted long ago; its file must be reopened for append.
	cl.Log(ConversationLogEvent{UserID: "anon-0", SessionID: "sess", EventType: "chat_assistant_message", Content: "again"})
	if err := cl.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := fl.openCount.Load(); got != 0 {
		t.Fatalf("expected no open files after Close, got %d", got)
	}

	for i := range users {
		data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("anon-%d", i), "sess.ndjson"))
		if err != nil {
			t.Fatalf("missing log for anon-%d: %v", i, err)
		}
		want := 1
		if i == 0 {
			want = 2
		}
		if n := strings.Count(string(data), "\n"); n != want {
			t.Fatalf("anon-%d: expected %d lines, got %d", i, want, n)
		}
	}
}

func waitForLogLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) > 0 {
				return lines[len(lines)-1]
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for log file %s", path)
	return ""
}
