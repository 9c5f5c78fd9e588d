package monitoring

import (
	"testing"
)

type fixedIndex struct{ entries int }

func (f *fixedIndex) Len() int { return f.entries }

func TestHealthChecker_Basic(t *testing.T) {
	hc := NewHealthChecker("svc", "v1")
	hc.AddCheck("ok", func() CheckResult { return CheckResult{Status: "healthy"} })
	status := hc.CheckHealth()
	if status.Status != "healthy" {
		t.Fatalf("expected healthy")
	}
}

func TestHealthChecker_UnhealthyWins(t *testing.T) {
	hc := NewHealthChecker("svc", "v1")
	hc.AddCheck("ok", func() CheckResult { return CheckResult{Status: StatusHealthy} })
	hc.AddCheck("degraded", func() CheckResult { return CheckResult{Status: StatusDegraded} })
	hc.AddCheck("bad", func() CheckResult { return CheckResult{Status: StatusUnhealthy} })
	if got := hc.CheckHealth().Status; got != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %q", got)
	}
}

func TestSnapshotHealthCheck(t *testing.T) {
	res := SnapshotHealthCheck(nil)()
	if res.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy for nil index, got %q", res.Status)
	}

	res = SnapshotHealthCheck(&fixedIndex{entries: 12})()
	if res.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %q", res.Status)
	}

	res = SnapshotHealthCheck(&fixedIndex{})()
	if res.Status != StatusDegraded {
		t.Fatalf("expected degraded for empty snapshot, got %q", res.Status)
	}
	if res.Message != "Snapshot is empty" {
		t.Errorf("unexpected message: %q", res.Message)
	}
}

func TestConfigurationHealthCheck(t *testing.T) {
	res := ConfigurationHealthCheck(map[string]string{"PORT": "8080"})()
	if res.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %q", res.Status)
	}

	res = ConfigurationHealthCheck(map[string]string{"SNAPSHOT": ""})()
	if res.Status != StatusDegraded {
		t.Fatalf("expected degraded for missing config, got %q", res.Status)
	}
}
