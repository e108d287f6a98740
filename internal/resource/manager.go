// Package resource keeps the shared connections of the process and checks
// them on a heartbeat.
package resource

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/deadloked8999/exeltest/internal/logger"
	"github.com/deadloked8999/exeltest/internal/serviceiface"
)

// Pinger is anything with a liveness check, like *sql.DB or *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Status is the last heartbeat outcome of one resource.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

type ResourceManager struct {
	resources         map[string]Pinger
	status            map[string]Status
	mu                sync.RWMutex
	stopChan          chan struct{}
	stopOnce          sync.Once
	heartbeatInterval time.Duration
}

func NewResourceManagerService(cfg map[string]interface{}) serviceiface.Service {
	return NewResourceManager(cfg)
}

func NewResourceManager(cfg map[string]interface{}) *ResourceManager {
	interval := 30 * time.Second
	if val, ok := cfg["heartbeat_interval"]; ok {
		switch v := val.(type) {
		case string:
			if d, err := time.ParseDuration(v); err == nil {
				interval = d
			}
		case int:
			interval = time.Duration(v) * time.Second
		case float64:
			interval = time.Duration(v) * time.Second
		}
	}
	return &ResourceManager{
		resources:         make(map[string]Pinger),
		status:            make(map[string]Status),
		stopChan:          make(chan struct{}),
		heartbeatInterval: interval,
	}
}

func (rm *ResourceManager) Name() string { return "resourcemanager" }

func (rm *ResourceManager) Start() error {
	logger.Audit("ResourceManager started")
	rm.Check(context.Background())
	go rm.heartbeatLoop()
	return nil
}

func (rm *ResourceManager) Stop() error {
	rm.stopOnce.Do(func() { close(rm.stopChan) })
	return nil
}

func (rm *ResourceManager) heartbeatLoop() {
	ticker := time.NewTicker(rm.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rm.stopChan:
			return
		case <-ticker.C:
			rm.Check(context.Background())
		}
	}
}

// Check pings every resource once and records the outcome.
func (rm *ResourceManager) Check(ctx context.Context) []Status {
	rm.mu.RLock()
	targets := make(map[string]Pinger, len(rm.resources))
	for k, v := range rm.resources {
		targets[k] = v
	}
	rm.mu.RUnlock()

	for name, p := range targets {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := p.Ping(pctx)
		cancel()
		st := Status{Name: name, Healthy: err == nil, CheckedAt: time.Now()}
		if err != nil {
			st.Error = err.Error()
			logger.Module("resource").WithError(err).Warn(fmt.Sprintf("heartbeat failed for %s", name))
		}
		rm.mu.Lock()
		rm.status[name] = st
		rm.mu.Unlock()
	}
	return rm.Statuses()
}

func (rm *ResourceManager) AddResource(key string, resource Pinger) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.resources[key] = resource
}

func (rm *ResourceManager) GetResource(key string) (Pinger, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	resource, exists := rm.resources[key]
	return resource, exists
}

func (rm *ResourceManager) RemoveResource(key string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.resources, key)
	delete(rm.status, key)
}

// Statuses returns the last known status of every resource, by name.
func (rm *ResourceManager) Statuses() []Status {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	out := make([]Status, 0, len(rm.status))
	for _, s := range rm.status {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Healthy reports whether every checked resource answered its last ping.
func (rm *ResourceManager) Healthy() bool {
	for _, s := range rm.Statuses() {
		if !s.Healthy {
			return false
		}
	}
	return true
}
