package telemetry

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopfront/backend/internal/infrastructure/config"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	dbPluginName  = "shop:db_instrumentation"
	startTimeKey  = "shop:query_start"
	defaultDBName = "shopfront"
)

// DBInstrumentation is a GORM plugin that traces statements with otelgorm,
// records their duration and logs slow queries.
type DBInstrumentation struct {
	cfg      config.TelemetryConfig
	dbName   string
	duration *Histogram
	logger   *zap.Logger
}

// NewDBInstrumentation creates the plugin. Register it with db.Use.
func NewDBInstrumentation(meter metric.Meter, cfg config.TelemetryConfig, dbName string, logger *zap.Logger) (*DBInstrumentation, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if dbName == "" {
		dbName = defaultDBName
	}
	duration, err := NewHistogram(meter, HistogramOpts{
		Name:        "shop.db.query.duration",
		Description: "Database statement duration",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	return &DBInstrumentation{cfg: cfg, dbName: dbName, duration: duration, logger: logger}, nil
}

// Name implements gorm.Plugin
func (p *DBInstrumentation) Name() string {
	return dbPluginName
}

// Initialize implements gorm.Plugin
func (p *DBInstrumentation) Initialize(db *gorm.DB) error {
	if p.cfg.Enabled && p.cfg.DBTraceEnabled {
		opts := []otelgorm.Option{otelgorm.WithDBName(p.dbName)}
		if !p.cfg.DBLogFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return fmt.Errorf("register otelgorm: %w", err)
		}
	}

	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("shop:before_create", p.before),
		cb.Create().After("gorm:create").Register("shop:after_create", p.after("create")),
		cb.Query().Before("gorm:query").Register("shop:before_query", p.before),
		cb.Query().After("gorm:query").Register("shop:after_query", p.after("query")),
		cb.Update().Before("gorm:update").Register("shop:before_update", p.before),
		cb.Update().After("gorm:update").Register("shop:after_update", p.after("update")),
		cb.Delete().Before("gorm:delete").Register("shop:before_delete", p.before),
		cb.Delete().After("gorm:delete").Register("shop:after_delete", p.after("delete")),
		cb.Row().Before("gorm:row").Register("shop:before_row", p.before),
		cb.Row().After("gorm:row").Register("shop:after_row", p.after("row")),
		cb.Raw().Before("gorm:raw").Register("shop:before_raw", p.before),
		cb.Raw().After("gorm:raw").Register("shop:after_raw", p.after("raw")),
	)
}

func (p *DBInstrumentation) before(db *gorm.DB) {
	db.InstanceSet(startTimeKey, time.Now())
}

func (p *DBInstrumentation) after(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(startTimeKey)
		if !ok {
			return
		}
		start, ok := v.(time.Time)
		if !ok {
			return
		}
		elapsed := time.Since(start)
		failed := db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound)

		ctx := db.Statement.Context
		p.duration.RecordDuration(ctx, elapsed,
			AttrDBOperation.String(op),
			AttrDBTable.String(db.Statement.Table),
			AttrDBError.Bool(failed),
		)

		threshold := p.cfg.DBSlowQueryThresh
		if threshold <= 0 || elapsed < threshold {
			return
		}
		trace.SpanFromContext(ctx).AddEvent("slow_query", trace.WithAttributes(
			attribute.Int64("db.duration_ms", elapsed.Milliseconds()),
			attribute.String("db.table", db.Statement.Table),
		))
		fields := []zap.Field{
			zap.String("operation", op),
			zap.String("table", db.Statement.Table),
			zap.Duration("elapsed", elapsed),
			zap.Int64("rows", db.RowsAffected),
		}
		if p.cfg.DBLogFullSQL {
			fields = append(fields, zap.String("sql", db.Dialector.Explain(db.Statement.SQL.String(), db.Statement.Vars...)))
		} else {
			fields = append(fields, zap.String("sql", db.Statement.SQL.String()))
		}
		p.logger.Warn("Slow query", fields...)
	}
}

var _ gorm.Plugin = (*DBInstrumentation)(nil)
