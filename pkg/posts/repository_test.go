package posts

import (
	"context"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func dryRunRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=instapod dbname=instapod sslmode=disable"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatalf("open dry-run session: %v", err)
	}
	return NewRepository(db)
}

func TestRepositoryUpsertOverwritesOnTopicAndKey(t *testing.T) {
	repo := dryRunRepository(t)
	model := toModel(Record{
		Topic:        TopicFood,
		Key:          "3xYz",
		RawID:        "Bx12",
		Mode:         ModeHeavy,
		Identity:     "pod.member",
		LastModified: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	})

	sql := repo.upsert(context.Background(), &model).Statement.SQL.String()

	for _, want := range []string{
		`INSERT INTO "submission_records"`,
		`ON CONFLICT ("topic","post_key") DO UPDATE SET`,
		`"raw_id"="excluded"."raw_id"`,
		`"mode"="excluded"."mode"`,
		`"last_modified"="excluded"."last_modified"`,
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("expected %q in generated SQL:\n%s", want, sql)
		}
	}
}

func TestRepositoryRejectsUnknownTopic(t *testing.T) {
	repo := dryRunRepository(t)
	if _, err := repo.Upsert(context.Background(), Record{Topic: "pets", Key: "k"}); err != ErrInvalidTopic {
		t.Fatalf("expected ErrInvalidTopic, got %v", err)
	}
}
