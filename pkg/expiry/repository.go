package expiry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/instapod/platform/pkg/common/database"
	"github.com/instapod/platform/pkg/posts"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type runModel struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Topic      string         `gorm:"column:topic;size:32;index"`
	Deleted    int            `gorm:"column:deleted"`
	Kept       int            `gorm:"column:kept"`
	Report     datatypes.JSON `gorm:"column:report;type:jsonb"`
	StartedAt  time.Time      `gorm:"column:started_at"`
	FinishedAt time.Time      `gorm:"column:finished_at;index"`
}

func (runModel) TableName() string {
	return "sweep_runs"
}

// Repository stores sweep runs in Postgres.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&runModel{})
}

func (r *Repository) Append(ctx context.Context, run Run) error {
	report, err := json.Marshal(run.Entries)
	if err != nil {
		return err
	}
	deleted, kept := run.Counts()
	model := runModel{
		ID:         run.ID,
		Topic:      string(run.Topic),
		Deleted:    deleted,
		Kept:       kept,
		Report:     datatypes.JSON(report),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return database.Unavailable(err)
	}
	return nil
}

func (r *Repository) Recent(ctx context.Context, topic posts.Topic, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []runModel
	err := r.db.WithContext(ctx).
		Where("topic = ?", string(topic)).
		Order("finished_at desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, database.Unavailable(err)
	}

	runs := make([]Run, 0, len(rows))
	for _, row := range rows {
		var entries []Entry
		if len(row.Report) > 0 {
			if err := json.Unmarshal(row.Report, &entries); err != nil {
				return nil, err
			}
		}
		runs = append(runs, Run{
			ID:         row.ID,
			Topic:      posts.Topic(row.Topic),
			Entries:    entries,
			StartedAt:  row.StartedAt,
			FinishedAt: row.FinishedAt,
		})
	}
	return runs, nil
}

// MemoryRunLog keeps sweep history in process for the memory store driver.
type MemoryRunLog struct {
	mu   sync.Mutex
	runs []Run
}

func NewMemoryRunLog() *MemoryRunLog {
	return &MemoryRunLog{}
}

func (l *MemoryRunLog) Append(ctx context.Context, run Run) error {
	l.mu.Lock()
	l.runs = append(l.runs, run)
	l.mu.Unlock()
	return nil
}

func (l *MemoryRunLog) Recent(ctx context.Context, topic posts.Topic, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Run, 0, limit)
	for i := len(l.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if l.runs[i].Topic == topic {
			out = append(out, l.runs[i])
		}
	}
	return out, nil
}
