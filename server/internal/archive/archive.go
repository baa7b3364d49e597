package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/pilotwatch/pilotwatch/pkg/types"
	"github.com/pilotwatch/pilotwatch/server/internal/config"
	"github.com/pilotwatch/pilotwatch/server/internal/session"
)

// ErrNotFound is returned by Get when no mission with the id is archived.
var ErrNotFound = errors.New("archive: mission not found")

// MissionRecord is the missions table row.
type MissionRecord struct {
	MissionID  string    `gorm:"primaryKey;size:64"`
	State      string    `gorm:"size:16;not null"`
	StartTime  time.Time `gorm:"index"`
	EndTime    *time.Time
	DurationMs *int64
	PilotCount int
	Payload    string `gorm:"type:text;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName pins the table name independent of GORM's pluralisation.
func (MissionRecord) TableName() string { return "missions" }

// Repository reads and writes archived missions.
type Repository struct {
	db *gorm.DB
}

// Open connects to the backend selected by cfg and migrates the schema.
// It returns (nil, nil) when the backend is "none".
func Open(cfg config.StorageConfig) (*Repository, error) {
	var dialector gorm.Dialector
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "sqlite":
		dialector = sqlite.Open(cfg.Path)
	case "postgres":
		dsn := cfg.DSN()
		if dsn == "" {
			return nil, fmt.Errorf("archive: env %s is empty", cfg.DSNEnv)
		}
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("archive: unknown backend %q", cfg.Backend)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("archive: connect %s: %w", cfg.Backend, err)
	}
	repo, err := New(db)
	if err != nil {
		return nil, err
	}
	slog.Info("archive: ready", "backend", cfg.Backend)
	return repo, nil
}

// New wraps an open GORM handle and migrates the missions table.
func New(db *gorm.DB) (*Repository, error) {
	if err := db.AutoMigrate(&MissionRecord{}); err != nil {
		return nil, fmt.Errorf("archive: automigrate: %w", err)
	}
	return &Repository{db: db}, nil
}

// Save inserts or replaces the archived copy of m.
func (r *Repository) Save(ctx context.Context, m types.MissionSession) error {
	payload, err := session.Encode(m)
	if err != nil {
		return fmt.Errorf("archive: save: %w", err)
	}
	rec := MissionRecord{
		MissionID:  m.MissionID,
		State:      string(m.State),
		StartTime:  m.StartTime,
		EndTime:    m.EndTime,
		DurationMs: m.MissionDurationMs,
		PilotCount: len(m.ActivePilots),
		Payload:    string(payload),
	}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "mission_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"state", "start_time", "end_time", "duration_ms", "pilot_count", "payload", "updated_at",
			}),
		}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("archive: save %s: %w", m.MissionID, err)
	}
	return nil
}

// Get returns the archived mission with the given id.
func (r *Repository) Get(ctx context.Context, missionID string) (types.MissionSession, error) {
	var rec MissionRecord
	err := r.db.WithContext(ctx).Where("mission_id = ?", missionID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.MissionSession{}, fmt.Errorf("%w: %s", ErrNotFound, missionID)
	}
	if err != nil {
		return types.MissionSession{}, fmt.Errorf("archive: get %s: %w", missionID, err)
	}
	return decode(rec)
}

// List returns up to limit archived missions, most recently started first.
// A limit <= 0 returns all of them.
func (r *Repository) List(ctx context.Context, limit int) ([]types.MissionSession, error) {
	var recs []MissionRecord
	q := r.db.WithContext(ctx).Order("start_time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	out := make([]types.MissionSession, 0, len(recs))
	for _, rec := range recs {
		m, err := decode(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Count returns the number of archived missions.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&MissionRecord{}).Count(&n).Error
	return n, err
}

// Close releases the underlying connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func decode(rec MissionRecord) (types.MissionSession, error) {
	m, err := session.Decode([]byte(rec.Payload))
	if err != nil {
		return types.MissionSession{}, fmt.Errorf("archive: mission %s: %w", rec.MissionID, err)
	}
	return m, nil
}
