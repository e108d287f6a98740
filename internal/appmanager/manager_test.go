package appmanager

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deadloked8999/exeltest/api"
	"github.com/deadloked8999/exeltest/internal/config"
	"github.com/deadloked8999/exeltest/internal/logger"
	"github.com/deadloked8999/exeltest/internal/resource"
)

type stubService struct {
	name   string
	log    *[]string
	failOn string
}

func (s stubService) Name() string { return s.name }
func (s stubService) Start() error {
	*s.log = append(*s.log, "start "+s.name)
	if s.failOn == "start" {
		return errors.New("boom")
	}
	return nil
}
func (s stubService) Stop() error {
	*s.log = append(*s.log, "stop "+s.name)
	return nil
}

func TestParseServiceSequence(t *testing.T) {
	seq, err := parseServiceSequence([]byte(`
services:
  - name: gateway
    start_order: 3
    config:
      addr: ":9090"
  - name: logger
    start_order: 1
  - name: resourcemanager
    start_order: 2
    config:
      heartbeat_interval: 15s
`))
	if err != nil {
		t.Fatal(err)
	}
	if len(seq) != 3 || seq[0].Name != "logger" || seq[2].Name != "gateway" {
		t.Fatalf("seq = %+v", seq)
	}
	if seq[2].Config["addr"] != ":9090" {
		t.Errorf("gateway config = %v", seq[2].Config)
	}
}

func TestStartOrderHeartbeatLast(t *testing.T) {
	var log []string
	am := NewAppManager(nil)
	am.RegisterService(stubService{name: "logger", log: &log})
	am.RegisterService(stubService{name: "resourcemanager", log: &log})
	am.RegisterService(stubService{name: "gateway", log: &log})

	if err := am.StartAll(); err != nil {
		t.Fatal(err)
	}
	if err := am.StopAll(); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"start logger", "start gateway", "start resourcemanager",
		"stop gateway", "stop resourcemanager", "stop logger",
	}
	if len(log) != len(want) {
		t.Fatalf("log = %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("step %d = %q, want %q", i, log[i], want[i])
		}
	}
	if am.GetServiceByName("gateway") == nil || am.GetServiceByName("fx") != nil {
		t.Error("lookup by name")
	}
}

func TestStartFailure(t *testing.T) {
	var log []string
	am := NewAppManager(nil)
	am.RegisterService(stubService{name: "gateway", log: &log, failOn: "start"})
	if err := am.StartAll(); err == nil {
		t.Fatal("expected error")
	}
}

func TestUnknownServiceSkipped(t *testing.T) {
	am := NewAppManager(nil)
	am.AutoRegisterServices([]ServiceConfig{{Name: "fx"}})
	if len(am.services) != 0 {
		t.Errorf("services = %d", len(am.services))
	}
}

func TestShippedSequenceWiresHealth(t *testing.T) {
	seq, err := LoadServiceSequence("../../services.yaml")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { logger.SetGlobalLogger(nil) })

	am := NewAppManager(&Components{Config: config.Default()})
	am.AutoRegisterServices(seq)
	if len(am.services) != len(seq) {
		t.Fatalf("services = %d, want %d", len(am.services), len(seq))
	}
	for i, svc := range am.services {
		if svc.Name() != seq[i].Name {
			t.Errorf("service %d = %s, want %s", i, svc.Name(), seq[i].Name)
		}
	}

	rm, ok := am.GetServiceByName("resourcemanager").(*resource.ResourceManager)
	if !ok {
		t.Fatal("resourcemanager not registered")
	}
	gw, ok := am.GetServiceByName("gateway").(*api.GatewayService)
	if !ok {
		t.Fatal("gateway not registered")
	}
	rm.AddResource("db", resource.PingFunc(func(context.Context) error { return errors.New("down") }))
	rm.Check(context.Background())

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("health status = %d, want 503", rec.Code)
	}
}
