// Package database keeps a history of finished tasks in SQLite.
package database

import (
	"embed"
	"errors"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"moul.io/zapgorm2"

	"github.com/alanbriolat/ezfetch/internal/session"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

type Task struct {
	ID         string `gorm:"primaryKey"`
	URL        string
	Title      string
	Mode       string
	Path       string
	Outcome    string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

func (Task) TableName() string {
	return "task"
}

type Database struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(path string, logger *zap.Logger) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: zapgorm2.New(logger.Named("gorm"))})
	if err != nil {
		return nil, err
	}
	return &Database{db: db, log: logger.Sugar().Named("database")}, nil
}

func (d *Database) Migrate() error {
	d.log.Debug("running database migrations")
	fs, err := iofs.New(embedMigrations, "migrations")
	if err != nil {
		return err
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	driver, err := sqlite3.WithInstance(sqlDB, &sqlite3.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", fs, "sqlite3", driver)
	if err != nil {
		return err
	}
	err = m.Up()
	switch {
	case err == nil:
		d.log.Debug("database migration complete")
	case errors.Is(err, migrate.ErrNoChange):
		d.log.Debug("no database migration required")
	default:
		return err
	}
	return nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordTask stores a finished task, replacing any earlier record with the same ID.
func (d *Database) RecordTask(e session.HistoryEntry) error {
	task := Task{
		ID:         string(e.TaskID),
		URL:        e.URL,
		Title:      e.Title,
		Mode:       string(e.Mode),
		Path:       e.Path,
		Outcome:    string(e.Outcome),
		Error:      e.Error,
		StartedAt:  e.StartedAt,
		FinishedAt: e.FinishedAt,
	}
	return d.db.Save(&task).Error
}

// RecentTasks returns up to limit tasks, most recently finished first.
func (d *Database) RecentTasks(limit int) ([]Task, error) {
	var tasks []Task
	if err := d.db.Order("finished_at DESC").Limit(limit).Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ClearTasks deletes all history, returning how many tasks were removed.
func (d *Database) ClearTasks() (int64, error) {
	result := d.db.Where("1 = 1").Delete(&Task{})
	return result.RowsAffected, result.Error
}
