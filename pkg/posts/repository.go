package posts

import (
	"context"
	"errors"
	"time"

	"github.com/instapod/platform/pkg/common/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type recordModel struct {
	Topic        string    `gorm:"primaryKey;column:topic;size:32"`
	Key          string    `gorm:"primaryKey;column:post_key;size:16"`
	RawID        string    `gorm:"column:raw_id;not null"`
	Mode         string    `gorm:"column:mode;size:16;not null"`
	Identity     string    `gorm:"column:identity;size:64"`
	LastModified time.Time `gorm:"column:last_modified;index"`
}

func (recordModel) TableName() string {
	return "submission_records"
}

// Repository is the Postgres-backed Store.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&recordModel{})
}

func (r *Repository) Upsert(ctx context.Context, rec Record) (Record, error) {
	if !rec.Topic.Valid() {
		return Record{}, ErrInvalidTopic
	}
	rec.LastModified = r.now()
	model := toModel(rec)

	if err := r.upsert(ctx, &model).Error; err != nil {
		return Record{}, database.Unavailable(err)
	}
	return rec, nil
}

// upsert inserts model or overwrites the row with the same topic and key.
func (r *Repository) upsert(ctx context.Context, model *recordModel) *gorm.DB {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "topic"}, {Name: "post_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"raw_id", "mode", "identity", "last_modified"}),
	}).Create(model)
}

func (r *Repository) Get(ctx context.Context, topic Topic, key string) (Record, error) {
	if !topic.Valid() {
		return Record{}, ErrInvalidTopic
	}
	var model recordModel
	err := r.db.WithContext(ctx).
		Where("topic = ? AND post_key = ?", string(topic), key).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, database.Unavailable(err)
	}
	return fromModel(model), nil
}

func (r *Repository) ListAll(ctx context.Context, topic Topic) ([]Record, error) {
	if !topic.Valid() {
		return nil, ErrInvalidTopic
	}
	var rows []recordModel
	if err := r.db.WithContext(ctx).Where("topic = ?", string(topic)).Find(&rows).Error; err != nil {
		return nil, database.Unavailable(err)
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromModel(row))
	}
	return out, nil
}

func (r *Repository) Delete(ctx context.Context, topic Topic, key string) error {
	if !topic.Valid() {
		return ErrInvalidTopic
	}
	err := r.db.WithContext(ctx).
		Where("topic = ? AND post_key = ?", string(topic), key).
		Delete(&recordModel{}).Error
	if err != nil {
		return database.Unavailable(err)
	}
	return nil
}

func toModel(rec Record) recordModel {
	return recordModel{
		Topic:        string(rec.Topic),
		Key:          rec.Key,
		RawID:        rec.RawID,
		Mode:         string(rec.Mode),
		Identity:     rec.Identity,
		LastModified: rec.LastModified,
	}
}

func fromModel(m recordModel) Record {
	return Record{
		Topic:        Topic(m.Topic),
		Key:          m.Key,
		RawID:        m.RawID,
		Mode:         NormalizeMode(m.Mode),
		Identity:     m.Identity,
		LastModified: m.LastModified,
	}
}
