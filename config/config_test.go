package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `node:
  role: "AGR"
  domain: "agr.example.com"
  groups:
    - id: "ea1.cg.1"
      owner:
        role: "AGR"
        domain: "agr.example.com"
lifecycle:
  ptu_duration_minutes: 15
  day_ahead_gate_closure: "18:00"
exchange:
  transactional_factor: 1
  critical_factor: 0.25
transport:
  type: "mqtt"
  conf:
    broker: "tcp://localhost:1883"
    client_id: "agr-node"
planboard:
  type: "sqlite"
  conf:
    path: "planboard.db"
metrics:
  sinks:
    - type: "nop"
registry:
  mode: "static"
  static:
    - role: "DSO"
      domain: "dso.example.net"
      endpoint: "https://dso.example.net/usef/in"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"node.role", cfg.Node.Role, "AGR"},
		{"node.domain", cfg.Node.Domain, "agr.example.com"},
		{"node.min_signature_version default", cfg.Node.MinSignatureVersion, "1.0.0"},
		{"lifecycle.day_ahead_closure_ptus default", cfg.Lifecycle.DayAheadClosurePtus, 8},
		{"exchange.ptu_duration default", cfg.Exchange.PtuDurationMinutes, 15},
		{"transport.type", cfg.Transport.Type, "mqtt"},
		{"transport.conf broker", cfg.Transport.Conf["broker"], "tcp://localhost:1883"},
		{"planboard.type", cfg.Planboard.Type, "sqlite"},
		{"metrics sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"registry.mode", cfg.Registry.Mode, "static"},
		{"registry entry", cfg.Registry.Static[0].Endpoint, "https://dso.example.net/usef/in"},
		{"http.receiver default", cfg.HTTP.ReceiverAddr, ":8443"},
		{"sweep default", cfg.Sweep.IntervalS, 60},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %v want %v", c.name, c.got, c.want)
		}
	}

	me, err := cfg.Node.Me()
	if err != nil {
		t.Fatalf("resolve node participant: %v", err)
	}
	if me.String() != "AGR@agr.example.com" {
		t.Errorf("unexpected participant %s", me)
	}
	groups, err := cfg.Node.ConnectionGroups()
	if err != nil || len(groups) != 1 || groups[0].ID != "ea1.cg.1" {
		t.Errorf("unexpected groups %v (err %v)", groups, err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `node:
  role: "DSO"
  domain: "dso.example.net"
`)
	t.Setenv("K_NODE__DOMAIN", "override.example.net")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Node.Domain != "override.example.net" {
		t.Errorf("env override not applied: %s", cfg.Node.Domain)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"bad role", "node:\n  role: \"XYZ\"\n  domain: \"d\"\n"},
		{"missing domain", "node:\n  role: \"AGR\"\n"},
		{"bad ptu duration", "node:\n  role: \"AGR\"\n  domain: \"d\"\nlifecycle:\n  ptu_duration_minutes: 17\n"},
		{"bad registry mode", "node:\n  role: \"AGR\"\n  domain: \"d\"\nregistry:\n  mode: \"ftp\"\n"},
		{"cro without url", "node:\n  role: \"AGR\"\n  domain: \"d\"\nregistry:\n  mode: \"cro\"\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, c.data)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
