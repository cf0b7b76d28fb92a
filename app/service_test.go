package app

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/kilianp07/usef/config"
	"github.com/kilianp07/usef/coordinator"
)

func testConfig(t *testing.T, role string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Node.Role = role
	cfg.Node.Domain = role + ".example.com"
	cfg.Node.Groups = []config.GroupRef{{
		ID:    "ea1.cg.1",
		Owner: config.ParticipantRef{Role: "AGR", Domain: "agr.example.com"},
	}}
	cfg.Keystore.Path = filepath.Join(dir, "keys.db")
	cfg.Planboard.Type = "sqlite"
	cfg.Planboard.Conf = map[string]any{"path": filepath.Join(dir, "planboard.db")}
	cfg.SetDefaults()
	return cfg
}

func TestNewAssemblesNode(t *testing.T) {
	svc, err := New(testConfig(t, "AGR"))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	defer svc.Close()

	if svc.Engine == nil {
		t.Fatal("engine not assembled")
	}
	if _, ok := svc.Coordinator.(*coordinator.Aggregator); !ok {
		t.Fatalf("expected aggregator coordinator, got %T", svc.Coordinator)
	}
	groups, err := svc.Store.ConnectionGroups()
	if err != nil || len(groups) != 1 {
		t.Fatalf("connection groups not ensured: %v (%v)", groups, err)
	}
}

func TestCoordinatorPerRole(t *testing.T) {
	cases := []struct {
		role string
		want string
	}{
		{"AGR", "*coordinator.Aggregator"},
		{"DSO", "*coordinator.GridOperator"},
		{"BRP", "*coordinator.BalanceParty"},
		{"MDC", "*coordinator.MeterDataCompany"},
		{"CRO", "*coordinator.CommonReference"},
	}
	for _, c := range cases {
		t.Run(c.role, func(t *testing.T) {
			svc, err := New(testConfig(t, c.role))
			if err != nil {
				t.Fatalf("new service: %v", err)
			}
			defer svc.Close()
			if got := fmt.Sprintf("%T", svc.Coordinator); got != c.want {
				t.Fatalf("role %s: got coordinator %s, want %s", c.role, got, c.want)
			}
		})
	}
}
