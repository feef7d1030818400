package weirdling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/suPer8Hu/weirdling/internal/common"
)

// JobResult carries the terminal payload: Raw for complete, ErrorMessage for failed.
type JobResult struct {
	Raw          map[string]any
	ErrorMessage string
}

// JobStore is everything the orchestrator needs from persistence.
type JobStore interface {
	CreateJob(ctx context.Context, ownerID string, idempotencyKey *string, promptVersion, modelVersion string) (string, error)
	// FindByIdempotencyKey returns nil, nil when no job carries the pair.
	FindByIdempotencyKey(ctx context.Context, ownerID, key string) (*Job, error)
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, res JobResult) error
}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateJob(ctx context.Context, ownerID string, idempotencyKey *string, promptVersion, modelVersion string) (string, error) {
	id, err := common.NewULID()
	if err != nil {
		return "", err
	}
	job := &Job{
		ID:             id,
		OwnerID:        ownerID,
		IdempotencyKey: idempotencyKey,
		Status:         JobRunning,
		PromptVersion:  promptVersion,
		ModelVersion:   modelVersion,
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &j, nil
}

// FindByIdempotencyKey prefers a complete job; otherwise the newest attempt.
func (r *Repo) FindByIdempotencyKey(ctx context.Context, ownerID, key string) (*Job, error) {
	var jobs []Job
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND idempotency_key = ?", ownerID, key).
		Order("CASE WHEN status = '" + string(JobComplete) + "' THEN 0 ELSE 1 END").
		Order("created_at DESC").
		Order("id DESC").
		Limit(1).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

// UpdateStatus moves a running job to complete or failed. Any other
// transition is rejected.
func (r *Repo) UpdateStatus(ctx context.Context, jobID string, status JobStatus, res JobResult) error {
	updates := map[string]any{"status": status}
	switch status {
	case JobComplete:
		b, err := json.Marshal(res.Raw)
		if err != nil {
			return fmt.Errorf("encode raw result: %w", err)
		}
		updates["raw_result"] = datatypes.JSON(b)
		updates["error"] = nil
	case JobFailed:
		updates["error"] = res.ErrorMessage
		updates["raw_result"] = nil
	default:
		return fmt.Errorf("%w: cannot move to %q", ErrInvalidTransition, status)
	}

	tx := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", jobID, JobRunning).
		Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 1 {
		return nil
	}

	// either the job does not exist or it is already terminal
	if _, err := r.GetJobByID(ctx, jobID); err != nil {
		return err
	}
	return ErrInvalidTransition
}

// DecodeRawResult returns the stored payload of a complete job.
func (j *Job) DecodeRawResult() (map[string]any, error) {
	if len(j.RawResult) == 0 {
		return nil, nil
	}
	var raw map[string]any
	if err := json.Unmarshal(j.RawResult, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
