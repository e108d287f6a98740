// Package jobs runs the periodic maintenance of the report database.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"github.com/deadloked8999/exeltest/internal/catalog"
	"github.com/deadloked8999/exeltest/internal/logger"
	"github.com/deadloked8999/exeltest/internal/serviceiface"
)

const (
	defaultSchemaSchedule  = "@every 1h"
	defaultContentSchedule = "30 4 * * *"
	defaultTimeZone        = "Europe/Moscow"
)

// Config holds the schedules read from services.yaml.
type Config struct {
	SchemaSchedule  string
	ContentSchedule string
	// ContentRetentionDays drops stored workbooks older than this; 0 keeps them.
	ContentRetentionDays int
	Schema               string
	TimeZone             string
}

func configFrom(m map[string]interface{}) Config {
	cfg := Config{
		SchemaSchedule:  defaultSchemaSchedule,
		ContentSchedule: defaultContentSchedule,
		Schema:          "public",
		TimeZone:        defaultTimeZone,
	}
	str := func(key string, dst *string) {
		if v, ok := m[key].(string); ok && v != "" {
			*dst = v
		}
	}
	str("schema_check_schedule", &cfg.SchemaSchedule)
	str("content_schedule", &cfg.ContentSchedule)
	str("schema", &cfg.Schema)
	str("timezone", &cfg.TimeZone)
	if days, ok := m["content_retention_days"].(int); ok && days > 0 {
		cfg.ContentRetentionDays = days
	}
	return cfg
}

// Execer is the part of the pool the content job needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type CronService struct {
	config map[string]interface{}
	db     *pgxpool.Pool
	cron   *cron.Cron
}

func NewCronService(cfg map[string]interface{}, db *pgxpool.Pool) serviceiface.Service {
	return &CronService{config: cfg, db: db}
}

func (s *CronService) Name() string {
	return "cron"
}

func (s *CronService) Start() error {
	if s.db == nil {
		return fmt.Errorf("cron service needs a database pool")
	}
	cfg := configFrom(s.config)
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		loc = time.UTC
		logger.Audit(fmt.Sprintf("Invalid timezone %s, falling back to UTC: %v", cfg.TimeZone, err))
	}
	s.cron = cron.New(cron.WithLocation(loc))

	if _, err := s.cron.AddFunc(cfg.SchemaSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := CheckSchema(ctx, s.db, cfg.Schema); err != nil {
			logger.LogError("jobs", "CheckSchema", "schema check failed", cfg.Schema, err)
		}
	}); err != nil {
		return fmt.Errorf("unable to schedule schema check: %v", err)
	}

	if cfg.ContentRetentionDays > 0 {
		if _, err := s.cron.AddFunc(cfg.ContentSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			n, err := PruneContent(ctx, s.db, time.Now().In(loc).AddDate(0, 0, -cfg.ContentRetentionDays))
			if err != nil {
				logger.LogError("jobs", "PruneContent", "content pruning failed", nil, err)
				return
			}
			logger.Audit(fmt.Sprintf("Dropped stored content of %d uploaded files", n))
		}); err != nil {
			return fmt.Errorf("unable to schedule content pruning: %v", err)
		}
	}

	s.cron.Start()
	logger.Audit(fmt.Sprintf("Cron service started: schema check %s, content retention %d days (timezone: %s)",
		cfg.SchemaSchedule, cfg.ContentRetentionDays, cfg.TimeZone))
	return nil
}

func (s *CronService) Stop() error {
	if s.cron == nil {
		return nil
	}
	<-s.cron.Stop().Done()
	return nil
}

// CheckSchema compares the live tables with the catalog the translator
// describes to the model.
func CheckSchema(ctx context.Context, q catalog.Querier, schema string) error {
	return catalog.Default().Verify(ctx, q, schema)
}

// PruneContent clears stored workbook bytes uploaded before cutoff. The
// parsed records stay.
func PruneContent(ctx context.Context, db Execer, cutoff time.Time) (int64, error) {
	tag, err := db.Exec(ctx,
		`UPDATE uploaded_files SET file_content = NULL WHERE file_content IS NOT NULL AND uploaded_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
