package logger

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitWritesRotatingLogFile(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.LogDir = dir
	cfg.Format = "json"

	if err := Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Info("test message")
	if err := Sync(); err != nil {
		t.Logf("sync: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "helm.log")); err != nil {
		t.Fatalf("expected helm.log to be created: %v", err)
	}
}

func TestGetFallsBackToDevelopmentLoggerBeforeInit(t *testing.T) {
	mu.Lock()
	globalLogger = nil
	globalSugar = nil
	mu.Unlock()

	l := Get()
	if l == nil {
		t.Fatal("expected a non-nil fallback logger")
	}
}

func TestWithTaskAttachesTaskField(t *testing.T) {
	l := WithTask("autopilot")
	if l == nil {
		t.Fatal("expected a non-nil logger")
	}
}

func TestWriterStripsTrailingNewline(t *testing.T) {
	w := Writer()
	n, err := w.Write([]byte("hello\n"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len("hello\n") {
		t.Fatalf("expected Write to report full length written, got %d", n)
	}
}
