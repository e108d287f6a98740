package appmanager

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	"github.com/deadloked8999/exeltest/api"
	"github.com/deadloked8999/exeltest/internal/blocks"
	"github.com/deadloked8999/exeltest/internal/catalog"
	"github.com/deadloked8999/exeltest/internal/config"
	"github.com/deadloked8999/exeltest/internal/directory"
	"github.com/deadloked8999/exeltest/internal/ingest"
	"github.com/deadloked8999/exeltest/internal/jobs"
	"github.com/deadloked8999/exeltest/internal/logger"
	"github.com/deadloked8999/exeltest/internal/nlsql"
	"github.com/deadloked8999/exeltest/internal/notification"
	"github.com/deadloked8999/exeltest/internal/query"
	"github.com/deadloked8999/exeltest/internal/resource"
	"github.com/deadloked8999/exeltest/internal/serviceiface"
)

// Components are the wired domain services shared by the HTTP gateway and
// the command line.
type Components struct {
	Config      *config.Config
	Pool        *pgxpool.Pool
	DB          *sql.DB
	Files       *ingest.PgStore
	Coordinator *ingest.Coordinator
	Engine      *query.Engine
	Audit       *query.SQLAuditLog
	Employees   *directory.EmployeeStore
	OffShift    *directory.OffShiftStore
	CustomData  *directory.CustomDataStore
	Events      *notification.Hub
}

// Build wires the components over an open pgx pool (ingestion, directory)
// and database/sql handle (read-only question execution).
func Build(cfg *config.Config, pool *pgxpool.Pool, db *sql.DB) *Components {
	cat := catalog.Default()
	files := ingest.NewPgStore(pool)

	llm := nlsql.NewOpenAIClient(cfg.LLM)
	tr := nlsql.NewTranslator(llm, cat, nlsql.Options{
		Limits: nlsql.Limits{
			MaxLength: cfg.Query.MaxStatementLength,
			MaxTables: cfg.Query.MaxTables,
			Schema:    cfg.Database.Schema,
		},
		Timeout:  cfg.LLM.Timeout,
		RowLimit: cfg.Query.MaxRows,
	})
	audit := query.NewSQLAuditLog(db)
	engine := query.NewEngine(tr, query.NewExecutor(db, cfg.Query.MaxRows, cfg.Query.Timeout), audit)
	if cfg.Query.Interpret {
		engine.WithInterpreter(nlsql.NewInterpreter(llm, 50))
	}

	return &Components{
		Config: cfg,
		Pool:   pool,
		DB:     db,
		Files:  files,
		Coordinator: ingest.NewCoordinator(files, ingest.Options{
			Blocks:      blocks.Options{Tolerance: cfg.Ingestion.ToleranceDecimal()},
			MaxBytes:    int64(cfg.Ingestion.MaxUploadMB) << 20,
			KeepContent: cfg.Ingestion.KeepContent,
		}),
		Engine:     engine,
		Audit:      audit,
		Employees:  directory.NewEmployeeStore(pool),
		OffShift:   directory.NewOffShiftStore(pool),
		CustomData: directory.NewCustomDataStore(pool),
		Events:     notification.NewHub(30 * time.Second),
	}
}

// VerifySchema fails when the live database lacks catalog tables or columns.
func (c *Components) VerifySchema(ctx context.Context) error {
	return catalog.Default().Verify(ctx, c.Pool, c.Config.Database.Schema)
}

type constructor func(am *AppManager, cfg map[string]interface{}) serviceiface.Service

var serviceConstructors = map[string]constructor{
	"logger": func(_ *AppManager, cfg map[string]interface{}) serviceiface.Service {
		return logger.NewLoggerService(cfg)
	},
	"resourcemanager": func(am *AppManager, cfg map[string]interface{}) serviceiface.Service {
		rm := resource.NewResourceManager(cfg)
		if am.c.Pool != nil {
			rm.AddResource("pgx", am.c.Pool)
		}
		if am.c.DB != nil {
			rm.AddResource("sql", resource.PingFunc(am.c.DB.PingContext))
		}
		return rm
	},
	"cron": func(am *AppManager, cfg map[string]interface{}) serviceiface.Service {
		return jobs.NewCronService(cfg, am.c.Pool)
	},
	"gateway": func(am *AppManager, cfg map[string]interface{}) serviceiface.Service {
		if cfg == nil {
			cfg = map[string]interface{}{}
		}
		if _, ok := cfg["addr"]; !ok {
			cfg["addr"] = am.c.Config.HTTP.Addr
		}
		deps := &api.Deps{
			Ingester:       am.c.Coordinator,
			Files:          am.c.Files,
			Asker:          am.c.Engine,
			History:        am.c.Audit,
			Employees:      am.c.Employees,
			OffShift:       am.c.OffShift,
			CustomData:     am.c.CustomData,
			Events:         am.c.Events,
			MaxUploadBytes: int64(am.c.Config.Ingestion.MaxUploadMB) << 20,
		}
		if rm, ok := am.GetServiceByName("resourcemanager").(*resource.ResourceManager); ok {
			deps.Health = rm
		}
		return api.NewGatewayService(cfg, deps)
	},
}

// ------------------- MANAGER -------------------

type AppManager struct {
	c        *Components
	services []serviceiface.Service
	early    []serviceiface.Service // providers built but not yet registered
	mu       sync.Mutex
}

func NewAppManager(c *Components) *AppManager {
	return &AppManager{
		c:        c,
		services: make([]serviceiface.Service, 0),
	}
}

func (am *AppManager) RegisterService(s serviceiface.Service) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.services = append(am.services, s)
}

// StartAll starts services in registration order, the heartbeat last so
// its first check sees every connection in use.
func (am *AppManager) StartAll() error {
	am.mu.Lock()
	defer am.mu.Unlock()

	for _, service := range am.services {
		if service.Name() == "resourcemanager" {
			continue
		}
		logger.Audit("Starting service: " + service.Name())
		if err := service.Start(); err != nil {
			return fmt.Errorf("failed to start service %s: %w", service.Name(), err)
		}
	}
	for _, service := range am.services {
		if service.Name() == "resourcemanager" {
			logger.Audit("Starting service: " + service.Name())
			if err := service.Start(); err != nil {
				return fmt.Errorf("failed to start service %s: %w", service.Name(), err)
			}
		}
	}
	return nil
}

// StopAll stops in reverse order and closes the event hub.
func (am *AppManager) StopAll() error {
	am.mu.Lock()
	defer am.mu.Unlock()
	if am.c != nil && am.c.Events != nil {
		am.c.Events.Stop()
	}
	for i := len(am.services) - 1; i >= 0; i-- {
		svc := am.services[i]
		if err := svc.Stop(); err != nil {
			return fmt.Errorf("failed to stop service %s: %w", svc.Name(), err)
		}
	}
	return nil
}

// ------------------- YAML CONFIG -------------------

type ServiceSequencer struct {
	Services []ServiceConfig `yaml:"services"`
}

type ServiceConfig struct {
	Name       string                 `yaml:"name"`
	StartOrder int                    `yaml:"start_order"`
	Config     map[string]interface{} `yaml:"config"`
}

func LoadServiceSequence(path string) ([]ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseServiceSequence(data)
}

func parseServiceSequence(data []byte) ([]ServiceConfig, error) {
	var seq ServiceSequencer
	if err := yaml.Unmarshal(data, &seq); err != nil {
		return nil, err
	}

	// sort by start_order
	sort.SliceStable(seq.Services, func(i, j int) bool {
		return seq.Services[i].StartOrder < seq.Services[j].StartOrder
	})

	return seq.Services, nil
}

// providers are built before the rest of the sequence because other
// constructors look them up, whatever their start_order.
var providers = map[string]bool{"resourcemanager": true}

// AutoRegisterServices builds every known service of the sequence; unknown
// names are logged and skipped. Registration keeps the sequence order.
func (am *AppManager) AutoRegisterServices(configs []ServiceConfig) {
	built := make([]serviceiface.Service, len(configs))
	for _, early := range []bool{true, false} {
		for i, svc := range configs {
			if providers[svc.Name] != early {
				continue
			}
			build, ok := serviceConstructors[svc.Name]
			if !ok {
				logger.Module("appmanager").Warnf("unknown service %q in sequence", svc.Name)
				continue
			}
			built[i] = build(am, svc.Config)
			if early {
				am.mu.Lock()
				am.early = append(am.early, built[i])
				am.mu.Unlock()
			}
		}
	}
	am.mu.Lock()
	am.early = nil
	am.mu.Unlock()
	for _, svc := range built {
		if svc != nil {
			am.RegisterService(svc)
		}
	}

	for _, svc := range am.services {
		if l, ok := svc.(*logger.LoggerService); ok {
			logger.SetGlobalLogger(l)
			break
		}
	}
}

func (am *AppManager) GetServiceByName(name string) serviceiface.Service {
	am.mu.Lock()
	defer am.mu.Unlock()
	for _, svc := range am.services {
		if svc.Name() == name {
			return svc
		}
	}
	for _, svc := range am.early {
		if svc.Name() == name {
			return svc
		}
	}
	return nil
}
