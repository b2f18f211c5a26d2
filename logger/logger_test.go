package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", "", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", "", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestConfigureDailyWritesLogFile(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	dir := t.TempDir()

	log := Logger()
	if err := log.Configure("info", "text", "daily", dir, 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	log.WithComponent("test").Info("hello daily")

	data, err := os.ReadFile(DailyLogPath(dir, time.Now()))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello daily") {
		t.Fatalf("log line missing: %s", data)
	}
}

func TestDailyLogPath(t *testing.T) {
	day := time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)
	if got := DailyLogPath("logs", day); got != filepath.Join("logs", "processing_2024-05-01.log") {
		t.Fatalf("unexpected path %s", got)
	}
}

func TestLogMetricWithoutCloudWatch(t *testing.T) {
	var buf bytes.Buffer
	log := Logger()
	log.SetOutput(&buf)
	log.SetLevel(logrus.DebugLevel)
	log.LogMetric("fetcher", "rates_found", int64(3), "counter", Fields{"chain": "ton"})
	if !strings.Contains(buf.String(), "rates_found") {
		t.Fatalf("metric not logged: %s", buf.String())
	}
}

func TestMetricUnit(t *testing.T) {
	if metricUnit("duration") != "Milliseconds" {
		t.Fatalf("duration unit: %s", metricUnit("duration"))
	}
	if metricUnit("counter") != "Count" || metricUnit("") != "Count" {
		t.Fatalf("counter unit: %s", metricUnit("counter"))
	}
}

func TestConfigureFileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), "nested", "run.log")

	log := Logger()
	if err := log.Configure("debug", "json", path, "", 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	log.WithComponent("test").Debug("to file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"message":"to file"`) {
		t.Fatalf("json line missing: %s", data)
	}
}
