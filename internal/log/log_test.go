package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestHandlerKeepsRecentRecords(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(slog.NewTextHandler(&buf, nil), 3)
	logger := slog.New(h)

	for _, msg := range []string{"one", "two", "three", "four"} {
		logger.Info(msg)
	}

	logs := h.Logs()
	if len(logs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(logs))
	}
	if logs[0].Message != "two" || logs[2].Message != "four" {
		t.Errorf("unexpected ring contents: %q .. %q", logs[0].Message, logs[2].Message)
	}
	if !strings.Contains(buf.String(), "msg=one") {
		t.Errorf("inner handler did not receive all records:\n%s", buf.String())
	}
}

func TestHandlerWithAttrsSharesRing(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(slog.NewTextHandler(&buf, nil), 10)

	slog.New(h).With("component", "netmgr").WithGroup("scan").Info("started", "id", 1)

	if got := len(h.Logs()); got != 1 {
		t.Fatalf("expected derived logger to share ring, got %d records", got)
	}
	if !strings.Contains(buf.String(), "component=netmgr") || !strings.Contains(buf.String(), "scan.id=1") {
		t.Errorf("attrs not forwarded: %s", buf.String())
	}
}

func TestHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	inner, err := NewInner(&buf, "text", level)
	if err != nil {
		t.Fatal(err)
	}
	h := NewHandler(inner, 10)
	logger := slog.New(h)

	logger.Info("hidden")
	logger.Warn("shown")
	level.Set(slog.LevelDebug)
	logger.Debug("now shown")

	logs := h.Logs()
	if len(logs) != 2 || logs[0].Message != "shown" || logs[1].Message != "now shown" {
		t.Errorf("unexpected records: %v", logs)
	}
}

func TestHandlerSetOutput(t *testing.T) {
	h := NewHandler(slog.NewTextHandler(&bytes.Buffer{}, nil), 10)
	ch := make(chan tea.Msg, 1)
	h.SetOutput(ch)

	logger := slog.New(h)
	logger.Info("first")
	logger.Info("dropped when the channel is full")

	msg := <-ch
	rec, ok := msg.(LogMsg)
	if !ok {
		t.Fatalf("expected LogMsg, got %T", msg)
	}
	if rec.Message != "first" {
		t.Errorf("expected first record, got %q", rec.Message)
	}
	if len(h.Logs()) != 2 {
		t.Errorf("ring should keep records regardless of output")
	}
}

func TestNewInnerFormats(t *testing.T) {
	var buf bytes.Buffer
	inner, err := NewInner(&buf, "json", slog.LevelInfo)
	if err != nil {
		t.Fatal(err)
	}
	slog.New(inner).Info("hello", "ssid", "HomeNetwork")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if decoded["ssid"] != "HomeNetwork" {
		t.Errorf("unexpected JSON record: %v", decoded)
	}

	if _, err := NewInner(&buf, "xml", slog.LevelInfo); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestInitInstallsDefault(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	var buf bytes.Buffer
	h, err := Init(&buf, "text", slog.LevelInfo)
	if err != nil {
		t.Fatal(err)
	}
	slog.Info("via default")

	if len(Logs()) != 1 || len(h.Logs()) != 1 {
		t.Fatalf("expected the default handler to record the message")
	}
	if !strings.Contains(buf.String(), "via default") {
		t.Errorf("missing output: %s", buf.String())
	}
}
