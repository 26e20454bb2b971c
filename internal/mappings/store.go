// Package mappings persists tag → action mappings and merges them with the
// fallback table from the daemon config.
package mappings

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/micro-nova/amplipi-rfid/internal/models"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// row is the persisted form of a mapping. The uri column keeps the legacy
// encoding: a URI or one of the TOGGLE_PLAY / STOP sentinels.
type row struct {
	Tag         string `gorm:"column:tag;primaryKey"`
	URI         string `gorm:"column:uri;not null"`
	Description string `gorm:"column:description;not null;default:''"`
}

func (row) TableName() string { return "mappings" }

// Options configures Open.
type Options struct {
	Driver string // "sqlite" (default) or "postgres"
	DSN    string // file path for sqlite, connection string for postgres
	// Fallback maps tag keys to action strings. It is read once here.
	Fallback map[string]string
}

// Store is the mapping store. All methods are safe for concurrent use and
// never panic; failures are logged and reported as a failed operation.
type Store struct {
	mu       sync.Mutex
	db       *gorm.DB
	fallback map[string]models.Mapping
}

// Open connects to the database, migrates the schema and loads the fallback table.
func Open(opts Options) (*Store, error) {
	dialector, err := dialectorFor(opts)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("mappings: open %s: %w", opts.Driver, err)
	}
	if opts.Driver == "" || opts.Driver == DriverSQLite {
		if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
			slog.Warn("mappings: could not enable WAL", "err", err)
		}
	}
	// AutoMigrate adds the description column to legacy two-column tables
	// and keeps existing rows.
	if err := db.AutoMigrate(&row{}); err != nil {
		return nil, fmt.Errorf("mappings: automigrate: %w", err)
	}
	return &Store{db: db, fallback: parseFallback(opts.Fallback)}, nil
}

func dialectorFor(opts Options) (gorm.Dialector, error) {
	switch opts.Driver {
	case "", DriverSQLite:
		if opts.DSN == "" {
			return nil, errors.New("mappings: sqlite path is empty")
		}
		if err := os.MkdirAll(filepath.Dir(opts.DSN), 0755); err != nil {
			return nil, fmt.Errorf("mappings: create db dir: %w", err)
		}
		return sqlite.Open(opts.DSN), nil
	case DriverPostgres:
		return postgres.Open(opts.DSN), nil
	default:
		return nil, fmt.Errorf("mappings: unknown driver %q", opts.Driver)
	}
}

func parseFallback(raw map[string]string) map[string]models.Mapping {
	out := make(map[string]models.Mapping, len(raw))
	for tag, s := range raw {
		action, ok := models.ParseAction(s)
		if !ok {
			slog.Warn("mappings: ignoring empty config mapping", "tag", tag)
			continue
		}
		out[tag] = models.Mapping{Tag: tag, Action: action, Source: models.SourceConfig}
	}
	return out
}

func (r row) mapping() (models.Mapping, bool) {
	action, ok := models.ParseAction(r.URI)
	if !ok {
		return models.Mapping{}, false
	}
	return models.Mapping{
		Tag:         r.Tag,
		Action:      action,
		Description: r.Description,
		Source:      models.SourceStore,
	}, true
}

// Get returns the mapping for tag, preferring the persisted store over the
// config fallback.
func (s *Store) Get(tag string) (models.Mapping, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []row
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Where("tag = ?", tag).Limit(1).Find(&rows).Error
	})
	if err != nil {
		slog.Error("mappings: get failed", "tag", tag, "err", err)
	} else if len(rows) == 1 {
		if m, ok := rows[0].mapping(); ok {
			return m, true
		}
		slog.Warn("mappings: stored mapping has empty action", "tag", tag)
	}

	m, ok := s.fallback[tag]
	return m, ok
}

// Set upserts the mapping for tag.
func (s *Store) Set(tag string, action models.Action, description string) error {
	if tag == "" {
		return fmt.Errorf("mappings: set: empty tag: %w", models.ErrStore)
	}
	if action.String() == "" {
		return fmt.Errorf("mappings: set %s: empty action: %w", tag, models.ErrStore)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := row{Tag: tag, URI: action.String(), Description: description}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tag"}},
			DoUpdates: clause.AssignmentColumns([]string{"uri", "description"}),
		}).Create(&r).Error
	})
	if err != nil {
		slog.Error("mappings: set failed", "tag", tag, "err", err)
		return fmt.Errorf("mappings: set %s: %v: %w", tag, err, models.ErrStore)
	}
	return nil
}

// Delete removes the persisted mapping for tag and reports whether one existed.
// The config fallback is not affected.
func (s *Store) Delete(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("tag = ?", tag).Delete(&row{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		slog.Error("mappings: delete failed", "tag", tag, "err", err)
		return false
	}
	return affected > 0
}

// ListAll returns the config fallback overlaid with every persisted mapping.
// On a store failure only the fallback entries are returned.
func (s *Store) ListAll() map[string]models.Mapping {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]models.Mapping, len(s.fallback))
	for tag, m := range s.fallback {
		out[tag] = m
	}

	var rows []row
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Order("tag").Find(&rows).Error
	})
	if err != nil {
		slog.Error("mappings: list failed", "err", err)
		return out
	}
	for _, r := range rows {
		if m, ok := r.mapping(); ok {
			out[r.Tag] = m
		}
	}
	return out
}

// Fallback returns a copy of the config-provided table.
func (s *Store) Fallback() map[string]models.Mapping {
	out := make(map[string]models.Mapping, len(s.fallback))
	for tag, m := range s.fallback {
		out[tag] = m
	}
	return out
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
