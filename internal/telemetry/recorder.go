package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tankpit-bot/internal/bot"
)

// TickRecord is one row of tick history.
type TickRecord struct {
	ID            uint      `gorm:"primaryKey"`
	At            time.Time `gorm:"index"`
	State         string    `gorm:"size:32"`
	Running       bool
	Fuel          int
	Confidence    string `gorm:"size:16"`
	Method        string `gorm:"size:16"`
	Nodes         int
	ShieldsActive bool
	Action        string
	Purpose       string `gorm:"size:16"`
	DispatchError string
	Settings      datatypes.JSON
}

// TableName implements gorm's tabler.
func (TickRecord) TableName() string {
	return "ticks"
}

// OpenDB opens the tick history database. kind is "sqlite" (path, or memory
// when empty) or "postgres" (dsn).
func OpenDB(kind, path, dsn string) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch kind {
	case "postgres":
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), gcfg)
	case "sqlite", "":
		if path == "" {
			path = "file::memory:?cache=shared"
		}
		db, err = gorm.Open(sqlite.Open(path), gcfg)
	default:
		return nil, fmt.Errorf("unknown storage type %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", kind, err)
	}
	return db, nil
}

// TickRecorder writes one TickRecord per report.
type TickRecorder struct {
	db *gorm.DB
}

// NewTickRecorder migrates the ticks table and returns a recorder on db.
func NewTickRecorder(db *gorm.DB) (*TickRecorder, error) {
	if err := db.AutoMigrate(&TickRecord{}); err != nil {
		return nil, fmt.Errorf("migrate ticks: %w", err)
	}
	return &TickRecorder{db: db}, nil
}

func recordOf(r bot.Report) TickRecord {
	rec := TickRecord{
		At:            r.At,
		State:         r.State.String(),
		Running:       r.Status.Running,
		Fuel:          r.Status.CurrentFuel,
		Confidence:    r.Fuel.Confidence.String(),
		Method:        r.Fuel.Method,
		Nodes:         r.Nodes,
		ShieldsActive: r.Status.ShieldsActive,
	}
	if r.Action != nil {
		rec.Action = r.Action.String()
		rec.Purpose = string(r.Action.Purpose)
	}
	if r.DispatchErr != nil {
		rec.DispatchError = r.DispatchErr.Error()
	}
	if settings, err := json.Marshal(r.Status.Settings); err == nil {
		rec.Settings = datatypes.JSON(settings)
	}
	return rec
}

// Publish implements bot.StatusSink.
func (t *TickRecorder) Publish(r bot.Report) {
	rec := recordOf(r)
	if err := t.db.Create(&rec).Error; err != nil {
		log.Warn().Err(err).Msg("Failed to record tick")
	}
}

// Recent returns up to limit records, newest first.
func (t *TickRecorder) Recent(limit int) ([]TickRecord, error) {
	var out []TickRecord
	err := t.db.Order("id desc").Limit(limit).Find(&out).Error
	return out, err
}

// Close releases the underlying connection.
func (t *TickRecorder) Close() error {
	sqlDB, err := t.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
