package resource

import (
	"context"
	"errors"
	"testing"
)

func TestCheck(t *testing.T) {
	rm := NewResourceManager(map[string]interface{}{"heartbeat_interval": "1m"})
	if rm.heartbeatInterval.String() != "1m0s" {
		t.Errorf("interval = %v", rm.heartbeatInterval)
	}
	rm.AddResource("pgx", PingFunc(func(context.Context) error { return nil }))
	rm.AddResource("sql", PingFunc(func(context.Context) error { return errors.New("down") }))

	st := rm.Check(context.Background())
	if len(st) != 2 || st[0].Name != "pgx" || !st[0].Healthy || st[1].Healthy || st[1].Error != "down" {
		t.Fatalf("statuses = %+v", st)
	}
	if rm.Healthy() {
		t.Error("healthy with a failing resource")
	}
	rm.RemoveResource("sql")
	if !rm.Healthy() {
		t.Error("unhealthy after removing the failing resource")
	}
}

func TestStopTwice(t *testing.T) {
	rm := NewResourceManager(nil)
	if err := rm.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := rm.Stop(); err != nil {
		t.Fatal(err)
	}
}
