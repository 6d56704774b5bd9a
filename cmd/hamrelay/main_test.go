package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/hamrelay/internal/infrastructure/influxdb"
	"github.com/nerrad567/hamrelay/internal/relay"
)

// writeConfig writes a config file into a temp dir and points
// HAMRELAY_CONFIG at it.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content = strings.ReplaceAll(content, "{{dir}}", dir)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("HAMRELAY_CONFIG", path)
	return dir
}

const testCommands = `
commands:
  - code: "#100"
    description: outside temperature
    action_topic: garageweather/cmnd/status
    action_payload: "8"
    response_topic: garageweather/stat/STATUS8
    response_key_path: StatusSNS.SI7021-14.Temperature
  - code: "*2000"
    description: bathroom main light, off
    action_topic: ch4_01/cmnd/POWER1
    action_payload: "off"
`

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("HAMRELAY_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("error = %v, want a config load error", err)
	}
}

func TestRun_MissingCommandsFile(t *testing.T) {
	writeConfig(t, `
relay:
  commands_file: "{{dir}}/missing.yaml"
database:
  enabled: false
api:
  enabled: false
logging:
  level: error
  format: text
  output: stdout
`)

	err := run(context.Background())
	if err == nil {
		t.Fatal("run() should fail when the command table is missing")
	}
	if !strings.Contains(err.Error(), "loading command table") {
		t.Errorf("error = %v, want a command table error", err)
	}
}

func TestRun_BrokerUnreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for MQTT connect retries")
	}

	dir := writeConfig(t, `
relay:
  commands_file: "{{dir}}/commands.yaml"
mqtt:
  broker:
    host: "127.0.0.1"
    port: 19999
    client_id: "hamrelay-test-unreachable"
  reconnect:
    initial_delay: 1
    max_delay: 1
database:
  path: "{{dir}}/hamrelay.db"
api:
  enabled: false
logging:
  level: error
  format: text
  output: stdout
`)
	if err := os.WriteFile(filepath.Join(dir, "commands.yaml"), []byte(testCommands), 0o600); err != nil {
		t.Fatal(err)
	}

	// nothing listens on the port, so run keeps retrying until ctx ends
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail without a broker")
	}
	if !strings.Contains(err.Error(), "connecting to MQTT") {
		t.Errorf("error = %v, want an MQTT connect error", err)
	}
	// the database was opened and migrated before the broker connect
	if _, statErr := os.Stat(filepath.Join(dir, "hamrelay.db")); statErr != nil {
		t.Errorf("database not created: %v", statErr)
	}
}

// TestRun_StartupAndShutdown needs an MQTT broker at 127.0.0.1:1883.
func TestRun_StartupAndShutdown(t *testing.T) {
	if testing.Short() {
		t.Skip("requires MQTT broker")
	}

	dir := writeConfig(t, `
relay:
  commands_file: "{{dir}}/commands.yaml"
  query_timeout: 5
  sweep_interval: 1
mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "hamrelay-test-startup"
database:
  path: "{{dir}}/hamrelay.db"
  retention_days: 30
api:
  enabled: false
logging:
  level: error
  format: text
  output: stdout
`)
	if err := os.WriteFile(filepath.Join(dir, "commands.yaml"), []byte(testCommands), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		if strings.Contains(err.Error(), "connecting to MQTT") {
			t.Skipf("MQTT broker not available: %v", err)
		}
		t.Fatalf("run() error = %v", err)
	}
}

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("HAMRELAY_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("HAMRELAY_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("missing file is fine", func(t *testing.T) {
		if err := loadEnvFile(filepath.Join(t.TempDir(), ".env")); err != nil {
			t.Errorf("loadEnvFile() error = %v", err)
		}
	})

	t.Run("sets unset variables only", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		content := "HAMRELAY_TEST_SECRET=from-file\nHAMRELAY_TEST_KEEP=from-file\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("HAMRELAY_TEST_KEEP", "from-env")
		t.Setenv("HAMRELAY_TEST_SECRET", "")
		os.Unsetenv("HAMRELAY_TEST_SECRET")

		if err := loadEnvFile(path); err != nil {
			t.Fatalf("loadEnvFile() error = %v", err)
		}
		if got := os.Getenv("HAMRELAY_TEST_SECRET"); got != "from-file" {
			t.Errorf("HAMRELAY_TEST_SECRET = %q, want from-file", got)
		}
		if got := os.Getenv("HAMRELAY_TEST_KEEP"); got != "from-env" {
			t.Errorf("HAMRELAY_TEST_KEEP = %q, want from-env", got)
		}
	})
}

func TestLoadCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.yaml")
	table := testCommands + `
  - code: "*2000"
    description: duplicate row
    action_topic: ch4_01/cmnd/POWER1
    action_payload: "on"
`
	if err := os.WriteFile(path, []byte(table), 0o600); err != nil {
		t.Fatal(err)
	}

	registry, dups, err := loadCommands(path)
	if err != nil {
		t.Fatalf("loadCommands() error = %v", err)
	}
	if registry.Len() != 2 || dups.Sequences != 3 || dups.Total() != 1 {
		t.Errorf("len = %d, sequences = %d, duplicates = %d", registry.Len(), dups.Sequences, dups.Total())
	}
	if entry, _ := registry.Lookup("*2000"); entry.ActionPayload != "off" {
		t.Errorf("*2000 payload = %q, first row should win", entry.ActionPayload)
	}
}

// fakeReadingWriter records InfluxDB writes.
type fakeReadingWriter struct {
	mu         sync.Mutex
	readings   []influxdb.Reading
	dispatches []string
}

func (f *fakeReadingWriter) WriteReading(r influxdb.Reading) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings = append(f.readings, r)
}

func (f *fakeReadingWriter) WriteDispatch(code, class string, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatches = append(f.dispatches, code+":"+class)
}

func TestReadingSink(t *testing.T) {
	w := &fakeReadingWriter{}
	sink := &readingSink{writer: w}
	now := time.Now()

	events := []relay.Event{
		{Kind: relay.EventAction, Code: "*2000", Time: now},
		{Kind: relay.EventQuery, Code: "#100", Time: now},
		{Kind: relay.EventReply, Code: "#100", Topic: "garageweather/stat/STATUS8", KeyPath: "StatusSNS.SI7021-14.Temperature", Value: "21.5", Found: true, Time: now},
		{Kind: relay.EventReply, Code: "#200", Value: "ON", Found: true, Time: now},
		{Kind: relay.EventReply, Code: "#100", Found: false, Time: now},
		{Kind: relay.EventUnrecognised, Code: "#999", Time: now},
	}
	for _, ev := range events {
		sink.Record(ev)
	}

	if strings.Join(w.dispatches, ",") != "*2000:action,#100:query" {
		t.Errorf("dispatches = %v", w.dispatches)
	}
	if len(w.readings) != 1 {
		t.Fatalf("readings = %d, want 1", len(w.readings))
	}
	r := w.readings[0]
	if r.Code != "#100" || r.Value != 21.5 || r.KeyPath != "StatusSNS.SI7021-14.Temperature" || r.Topic != "garageweather/stat/STATUS8" {
		t.Errorf("reading = %+v", r)
	}
}
