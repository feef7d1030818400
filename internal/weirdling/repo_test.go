package weirdling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// one connection keeps the in-memory database alive and serialises writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&Job{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func keyptr(s string) *string { return &s }

func TestRepo_CreateAndComplete(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(openTestDB(t))

	id, err := repo.CreateJob(ctx, "owner-1", keyptr("k1"), "p1", "m1")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if len(id) != 26 {
		t.Fatalf("expected ULID id, got %q", id)
	}

	j, err := repo.GetJobByID(ctx, id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if j.Status != JobRunning || j.RawResult != nil || j.Error != nil {
		t.Fatalf("unexpected fresh job: status=%s raw=%s err=%v", j.Status, j.RawResult, j.Error)
	}
	if j.PromptVersion != "p1" || j.ModelVersion != "m1" || j.OwnerID != "owner-1" {
		t.Fatalf("unexpected job fields: %+v", j)
	}

	raw := map[string]any{"handle": "ada", "tone": 0.5}
	if err := repo.UpdateStatus(ctx, id, JobComplete, JobResult{Raw: raw}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	j, err = repo.GetJobByID(ctx, id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if j.Status != JobComplete {
		t.Fatalf("expected complete, got %s", j.Status)
	}
	got, err := j.DecodeRawResult()
	if err != nil {
		t.Fatalf("decode raw: %v", err)
	}
	if got["handle"] != "ada" || got["tone"] != 0.5 {
		t.Fatalf("unexpected raw result: %v", got)
	}
}

func TestRepo_TerminalStatesAreFinal(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(openTestDB(t))

	id, err := repo.CreateJob(ctx, "owner-1", nil, "p1", "m1")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := repo.UpdateStatus(ctx, id, JobFailed, JobResult{ErrorMessage: "boom"}); err != nil {
		t.Fatalf("fail: %v", err)
	}

	err = repo.UpdateStatus(ctx, id, JobComplete, JobResult{Raw: map[string]any{}})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	err = repo.UpdateStatus(ctx, id, JobRunning, JobResult{})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for running, got %v", err)
	}

	j, _ := repo.GetJobByID(ctx, id)
	if j.Status != JobFailed || j.Error == nil || *j.Error != "boom" {
		t.Fatalf("failed job was mutated: %+v", j)
	}
}

func TestRepo_UpdateUnknownJob(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	err := repo.UpdateStatus(context.Background(), "01NOSUCHJOB000000000000000", JobFailed, JobResult{ErrorMessage: "x"})
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestRepo_FindByIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(openTestDB(t))

	j, err := repo.FindByIdempotencyKey(ctx, "owner-1", "k1")
	if err != nil || j != nil {
		t.Fatalf("expected nothing, got job=%v err=%v", j, err)
	}

	completeID, _ := repo.CreateJob(ctx, "owner-1", keyptr("k1"), "p1", "m1")
	if err := repo.UpdateStatus(ctx, completeID, JobComplete, JobResult{Raw: map[string]any{"a": 1}}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// a newer failed attempt with the same key must not hide the complete one
	failedID, _ := repo.CreateJob(ctx, "owner-1", keyptr("k1"), "p1", "m1")
	if err := repo.UpdateStatus(ctx, failedID, JobFailed, JobResult{ErrorMessage: "x"}); err != nil {
		t.Fatalf("fail: %v", err)
	}

	j, err = repo.FindByIdempotencyKey(ctx, "owner-1", "k1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if j == nil || j.ID != completeID {
		t.Fatalf("expected complete job %s, got %+v", completeID, j)
	}

	// keys are scoped per owner
	j, err = repo.FindByIdempotencyKey(ctx, "owner-2", "k1")
	if err != nil || j != nil {
		t.Fatalf("expected no job for another owner, got job=%v err=%v", j, err)
	}
}

func TestRepo_FindReturnsLatestWhenNoneComplete(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(openTestDB(t))

	first, _ := repo.CreateJob(ctx, "o", keyptr("k"), "p", "m")
	_ = repo.UpdateStatus(ctx, first, JobFailed, JobResult{ErrorMessage: "first"})
	second, _ := repo.CreateJob(ctx, "o", keyptr("k"), "p", "m")

	j, err := repo.FindByIdempotencyKey(ctx, "o", "k")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if j == nil || j.ID != second || j.Status != JobRunning {
		t.Fatalf("expected latest running job %s, got %+v", second, j)
	}
}
