package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/icc-tech/bagrecorder/internal/middleware"
)

func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	socketPath := filepath.Join(dir, "bagrecorder.sock")
	pidFile := filepath.Join(dir, "bagrecorder.pid")
	outPath := filepath.Join(dir, "out.bag")

	configContent := `
recorder:
  control:
    socket: ` + socketPath + `
    pid_file: ` + pidFile + `
  log:
    level: debug
    format: text
  metrics:
    enabled: true
    listen: 127.0.0.1:9091
    path: /metrics
  queue:
    size: 1MB
  writer:
    output: ` + outPath + `
    caller_id: /recorder
  topics:
    - /a
    - /b
`
	configPath := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configPath
}

func TestDaemon_StartStopIntegration(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeTestConfig(t, tmpDir)

	d, err := New(configPath)
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}

	if err := d.Start(); err != nil {
		t.Fatalf("failed to start daemon: %v", err)
	}

	if _, err := os.Stat(d.cfg.Control.PIDFile); os.IsNotExist(err) {
		t.Errorf("PID file was not created: %s", d.cfg.Control.PIDFile)
	}

	time.Sleep(100 * time.Millisecond)
	if _, err := os.Stat(d.cfg.Control.Socket); os.IsNotExist(err) {
		t.Errorf("UDS socket was not created: %s", d.cfg.Control.Socket)
	}

	if err := d.Bus().Publish(middleware.Envelope{Topic: "/a", WireBytes: []byte("hello"), Publisher: "/pub1"}); err != nil {
		t.Errorf("publish failed: %v", err)
	}

	runDone := make(chan error, 1)
	go func() {
		runDone <- d.Run()
	}()

	time.Sleep(100 * time.Millisecond)

	d.TriggerShutdown()

	select {
	case err := <-runDone:
		if err != nil {
			t.Errorf("daemon.Run() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop within timeout")
	}

	if _, err := os.Stat(d.cfg.Control.PIDFile); !os.IsNotExist(err) {
		t.Errorf("PID file was not removed after shutdown: %s", d.cfg.Control.PIDFile)
	}

	if _, err := os.Stat(d.cfg.Control.Socket); !os.IsNotExist(err) {
		t.Errorf("UDS socket was not removed after shutdown: %s", d.cfg.Control.Socket)
	}
}

func TestDaemon_PausedDoesNotAutoStartRecording(t *testing.T) {
	tmpDir := t.TempDir()

	pausedContent := `
recorder:
  control:
    socket: ` + filepath.Join(tmpDir, "paused.sock") + `
    pid_file: ` + filepath.Join(tmpDir, "paused.pid") + `
  log:
    level: info
    format: text
  writer:
    output: ` + filepath.Join(tmpDir, "paused-out.bag") + `
    paused: true
  topics:
    - /a
`
	pausedPath := filepath.Join(tmpDir, "paused.yml")
	if err := os.WriteFile(pausedPath, []byte(pausedContent), 0644); err != nil {
		t.Fatalf("write paused config: %v", err)
	}

	d, err := New(pausedPath)
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("failed to start daemon: %v", err)
	}
	defer d.Stop()

	if d.StatusReporter() != nil {
		t.Error("expected no status reporter before an explicit start command")
	}
}
