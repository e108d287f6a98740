package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoggerServiceWritesAndRotates(t *testing.T) {
	dir := t.TempDir()
	svc := NewLoggerService(map[string]interface{}{
		"folder_path":        dir,
		"max_file_mb":        1,
		"retention_days":     1,
		"stdout":             false,
		"rotate_schedule":    "@every 1h",
		"retention_schedule": "@every 1h",
	})
	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Stop()

	Module("test").Info("hello")
	first := svc.CurrentFile()
	data, err := os.ReadFile(first)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Errorf("log file content = %s", data)
	}

	svc.maxFileBytes = 1
	time.Sleep(5 * time.Millisecond)
	if err := svc.rotateIfNeeded(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if svc.CurrentFile() == first {
		t.Error("file not rotated")
	}
}

func TestZipAndCleanOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "app_old.log")
	if err := os.WriteFile(old, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().AddDate(0, 0, -10)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}
	svc := NewLoggerService(map[string]interface{}{"folder_path": dir, "retention_days": 2})
	svc.zipAndCleanOldLogs()
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old log not removed")
	}
	zips, _ := filepath.Glob(filepath.Join(dir, "logs_*.zip"))
	if len(zips) != 1 {
		t.Errorf("zip archives = %v", zips)
	}
}
