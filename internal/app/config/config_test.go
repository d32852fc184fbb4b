package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validConfig = `
policy:
  max_queue_len: 1000
udp:
  listeners:
    - addr: "127.0.0.1:9400"
      sensor_id: 1
layouts:
  env:
    endianness: little
    fields:
      - {name: temp, type: signed_int, size: 2}
      - {name: hum, type: unsigned_int, size: 1}
      - name: status
        type: bit_field
        size: 1
        bits:
          - {name: door, type: boolean, mask: 1}
sensors:
  - id: 1
    layout: env
    defaults:
      temp: 20
      door: false
  - id: 2
    name: spare
    layout: env
    time_for_update: -1
actions:
  - {name: journal, type: log}
  - {name: pager, type: webhook, url: "http://localhost:8080/hook", timeout: 2s}
conditions:
  leaves:
    - {id: hot, sensor: 1, field: temp, op: ">", value: 30}
    - {id: dry, sensor: 1, field: hum, op: "<", value: 50}
    - {id: open, sensor: 1, field: door, value: true}
  nodes:
    - {id: climate, rule: and, children: [hot, dry]}
    - {id: any, rule: at_least, n: 1, children: [climate, open]}
  roots:
    - {id: 1, name: F1, node: climate, actions: [journal, pager]}
    - {id: 2, name: F2, node: any}
`

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(validConfig), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Policy.IdleSleep != 50*time.Millisecond {
		t.Fatalf("expected IdleSleep default 50ms, got %s", cfg.Policy.IdleSleep)
	}
	if cfg.Policy.MaxQueueLen != 1000 {
		t.Fatalf("expected MaxQueueLen 1000, got %d", cfg.Policy.MaxQueueLen)
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Fatalf("expected default metrics addr :9100, got %s", cfg.Metrics.Addr)
	}
	if cfg.WAL.Dir != "./data/wal" {
		t.Fatalf("expected default wal dir ./data/wal, got %s", cfg.WAL.Dir)
	}
	if cfg.Watchdog.Tick != time.Second || cfg.Watchdog.TimeForUpdate != 10 {
		t.Fatalf("unexpected watchdog defaults %+v", cfg.Watchdog)
	}
	if cfg.Sensors[0].TimeForUpdate != 10 || cfg.Sensors[1].TimeForUpdate != -1 {
		t.Fatalf("unexpected sensor watchdog settings %+v", cfg.Sensors)
	}
	if cfg.Sensors[0].Name != "sensor-1" {
		t.Fatalf("expected generated sensor name, got %q", cfg.Sensors[0].Name)
	}
	if cfg.Conditions.Leaves[2].Op != "==" {
		t.Fatalf("expected default op ==, got %q", cfg.Conditions.Leaves[2].Op)
	}
	if cfg.Timescale.Table != "alarm_events" || cfg.JournalEnabled() {
		t.Fatalf("journal should be disabled without a connection string")
	}
	if cfg.Actions[1].Timeout != 2*time.Second {
		t.Fatalf("expected webhook timeout 2s, got %s", cfg.Actions[1].Timeout)
	}
}

func TestParseRejectsBrokenReferences(t *testing.T) {
	broken := strings.NewReplacer(
		"children: [hot, dry]", "children: [hot, wet]",
		"field: hum", "field: humidity",
		"actions: [journal, pager]", "actions: [journal, siren]",
		"node: any", "node: hot",
		"sensor_id: 1", "sensor_id: 9",
	).Replace(validConfig)

	_, err := Parse([]byte(broken))
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{
		`unknown child "wet"`,
		`has no field "humidity"`,
		`unknown action "siren"`,
		`"hot" is not a node`,
		"unknown sensor 9",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %q, got:\n%v", want, err)
		}
	}
}

func TestParseRejectsDuplicateIDs(t *testing.T) {
	dup := strings.Replace(validConfig, "{id: any, rule", "{id: hot, rule", 1)
	_, err := Parse([]byte(dup))
	if err == nil || !strings.Contains(err.Error(), `node "hot": id already used by a leaf`) {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestParseRejectsBadRuleAndOperator(t *testing.T) {
	bad := strings.NewReplacer(
		`op: ">"`, `op: "~"`,
		"rule: at_least, n: 1", "rule: at_least, n: 0",
	).Replace(validConfig)
	if _, err := Parse([]byte(bad)); err == nil {
		t.Fatalf("expected rule/operator errors")
	}
}

func TestLogConfigNewLogger(t *testing.T) {
	var buf strings.Builder
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "sensor_id", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"sensor_id":3`) {
		t.Fatalf("expected json record, got %s", out)
	}
}
