package quota

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/instapod/platform/pkg/common/database"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const uniqueViolation = "23505"

type windowModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Identity  string    `gorm:"column:identity;size:64;not null;uniqueIndex:idx_usage_identity_seq,priority:1"`
	Seq       int64     `gorm:"column:seq;not null;uniqueIndex:idx_usage_identity_seq,priority:2"`
	Count     int       `gorm:"column:daily_count;not null"`
	OpenedAt  time.Time `gorm:"column:opened_at;index"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (windowModel) TableName() string {
	return "usage_windows"
}

// Repository is the Postgres-backed WindowStore.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&windowModel{})
}

func (r *Repository) Latest(ctx context.Context, identity string) (Window, bool, error) {
	var model windowModel
	err := r.db.WithContext(ctx).
		Where("identity = ?", identity).
		Order("seq desc").
		Limit(1).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Window{}, false, nil
	}
	if err != nil {
		return Window{}, false, database.Unavailable(err)
	}
	return Window{
		ID:       model.ID,
		Identity: model.Identity,
		Seq:      model.Seq,
		Count:    model.Count,
		OpenedAt: model.OpenedAt,
	}, true, nil
}

func (r *Repository) Open(ctx context.Context, w Window) error {
	model := windowModel{
		ID:        w.ID,
		Identity:  w.Identity,
		Seq:       w.Seq,
		Count:     w.Count,
		OpenedAt:  w.OpenedAt,
		UpdatedAt: w.OpenedAt,
	}
	err := r.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return database.Unavailable(err)
	}
	return nil
}

func (r *Repository) Increment(ctx context.Context, w Window, activeSince time.Time) (bool, error) {
	result := r.incrementQuery(ctx, w, activeSince).
		Updates(map[string]interface{}{
			"daily_count": gorm.Expr("daily_count + 1"),
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return false, database.Unavailable(result.Error)
	}
	return result.RowsAffected == 1, nil
}

// incrementQuery scopes the conditional update to w while it is still the
// identity's newest window, unchanged, and inside the active period.
func (r *Repository) incrementQuery(ctx context.Context, w Window, activeSince time.Time) *gorm.DB {
	return r.db.WithContext(ctx).Model(&windowModel{}).
		Where("id = ? AND daily_count = ? AND opened_at >= ?", w.ID, w.Count, activeSince).
		Where("NOT EXISTS (SELECT 1 FROM usage_windows newer WHERE newer.identity = usage_windows.identity AND newer.seq > usage_windows.seq)")
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
