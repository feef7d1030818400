package weirdling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/suPer8Hu/weirdling/internal/ai"
	"github.com/suPer8Hu/weirdling/internal/ratelimit"
)

// RateLimiter is satisfied by *ratelimit.Limiter.
type RateLimiter interface {
	Check(ctx context.Context, identity string) ratelimit.Decision
}

// Preview is what a caller gets back for a generated or replayed persona.
type Preview struct {
	JobID         string   `json:"jobId"`
	DisplayName   string   `json:"displayName"`
	Handle        string   `json:"handle"`
	RoleVibe      string   `json:"roleVibe"`
	IndustryTags  []string `json:"industryTags"`
	Tone          float64  `json:"tone"`
	Tagline       string   `json:"tagline"`
	Boundaries    string   `json:"boundaries"`
	Bio           *string  `json:"bio,omitempty"`
	AvatarURL     *string  `json:"avatarUrl"`
	PromptVersion string   `json:"promptVersion"`
	ModelVersion  string   `json:"modelVersion"`

	// Replayed is true when an earlier complete job answered the request.
	Replayed bool `json:"-"`
}

func newPreview(jobID string, p *Persona, replayed bool) *Preview {
	return &Preview{
		JobID:         jobID,
		DisplayName:   p.DisplayName,
		Handle:        p.Handle,
		RoleVibe:      p.RoleVibe,
		IndustryTags:  p.IndustryTags,
		Tone:          p.Tone,
		Tagline:       p.Tagline,
		Boundaries:    p.Boundaries,
		Bio:           p.Bio,
		AvatarURL:     p.AvatarURL,
		PromptVersion: p.PromptVersion,
		ModelVersion:  p.ModelVersion,
		Replayed:      replayed,
	}
}

type Options struct {
	PromptVersion string
	// ModelVersion stamps new jobs; the provider reports the model it actually used in the payload.
	ModelVersion string
	// Locker, when set, serialises requests sharing (owner, idempotency key).
	// Without it two concurrent duplicates can both generate.
	Locker     Locker
	Dispatcher Dispatcher
	Logger     logrus.FieldLogger
}

type Service struct {
	store         JobStore
	limiter       RateLimiter
	provider      ai.Provider
	promptVersion string
	modelVersion  string
	locker        Locker
	dispatcher    Dispatcher
	log           logrus.FieldLogger
}

const (
	defaultPromptVersion = "weirdling-prompt-v1"
	defaultModelVersion  = "unknown"
)

func NewService(store JobStore, limiter RateLimiter, provider ai.Provider, opts Options) *Service {
	if opts.PromptVersion == "" {
		opts.PromptVersion = defaultPromptVersion
	}
	if opts.ModelVersion == "" {
		opts.ModelVersion = defaultModelVersion
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Service{
		store:         store,
		limiter:       limiter,
		provider:      provider,
		promptVersion: opts.PromptVersion,
		modelVersion:  opts.ModelVersion,
		locker:        opts.Locker,
		dispatcher:    opts.Dispatcher,
		log:           opts.Logger,
	}
}

// Generate admits, dedups, generates, validates and records one persona.
func (s *Service) Generate(ctx context.Context, ownerID string, req Request) (*Preview, error) {
	if err := s.admit(ctx, ownerID); err != nil {
		return nil, err
	}
	req, err := prepare(req)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, ownerID, req)
}

func (s *Service) admit(ctx context.Context, ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return invalidRequest("owner identity is required")
	}
	if d := s.limiter.Check(ctx, ownerID); !d.Allowed {
		s.log.WithFields(logrus.Fields{"owner_id": ownerID, "retry_after": d.RetryAfterSeconds}).Info("weirdling generation rate limited")
		return rateLimited(d.RetryAfterSeconds)
	}
	return nil
}

func prepare(req Request) (Request, error) {
	req = req.normalized()
	if req.DisplayNameOrHandle == "" {
		return req, invalidRequest("displayNameOrHandle is required")
	}
	if req.RoleVibe == "" {
		return req, invalidRequest("roleVibe is required")
	}
	return req, nil
}

func (s *Service) run(ctx context.Context, ownerID string, req Request) (*Preview, error) {
	key := req.IdempotencyKey

	if key != nil && s.locker != nil {
		unlock, err := s.locker.Lock(ctx, lockKey(ownerID, *key))
		if err != nil {
			return nil, &Error{Kind: KindInProgress, Message: "a generation with this idempotency key is still running", Err: err}
		}
		defer unlock()
	}

	// From here on the work finishes even if the caller goes away, so no
	// job is left running.
	ctx = context.WithoutCancel(ctx)

	if key != nil {
		p, err := s.replay(ctx, ownerID, *key)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}

	jobID, err := s.store.CreateJob(ctx, ownerID, key, s.promptVersion, s.modelVersion)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	log := s.log.WithFields(logrus.Fields{"job_id": jobID, "owner_id": ownerID})
	log.Debug("weirdling job created")
	start := time.Now()

	raw, err := s.provider.Generate(ctx, req.providerInput(s.promptVersion))
	if err != nil {
		return nil, s.fail(ctx, log, jobID, fmt.Errorf("provider: %w", err))
	}

	persona, err := Validate(raw)
	if err != nil {
		return nil, s.fail(ctx, log, jobID, err)
	}

	if err := s.store.UpdateStatus(ctx, jobID, JobComplete, JobResult{Raw: raw}); err != nil {
		return nil, s.fail(ctx, log, jobID, fmt.Errorf("store result: %w", err))
	}

	log.WithFields(logrus.Fields{"cost": time.Since(start), "model_version": persona.ModelVersion}).Info("weirdling job complete")
	return newPreview(jobID, persona, false), nil
}

// replay returns the persona of an earlier complete job for the key, or nil
// when a fresh generation is needed.
func (s *Service) replay(ctx context.Context, ownerID, key string) (*Preview, error) {
	job, err := s.store.FindByIdempotencyKey(ctx, ownerID, key)
	if err != nil {
		return nil, fmt.Errorf("find job by idempotency key: %w", err)
	}
	if job == nil || job.Status != JobComplete || len(job.RawResult) == 0 {
		return nil, nil
	}

	log := s.log.WithFields(logrus.Fields{"job_id": job.ID, "owner_id": ownerID})
	raw, err := job.DecodeRawResult()
	if err != nil {
		log.WithError(err).Warn("weirdling replay repair: stored result unreadable, regenerating")
		return nil, nil
	}
	persona, err := Validate(raw)
	if err != nil {
		log.WithError(err).Warn("weirdling replay repair: stored result no longer validates, regenerating")
		return nil, nil
	}

	log.Info("weirdling job replayed")
	return newPreview(job.ID, persona, true), nil
}

func (s *Service) fail(ctx context.Context, log logrus.FieldLogger, jobID string, cause error) error {
	log.WithError(cause).Warn("weirdling job failed")
	if err := s.store.UpdateStatus(ctx, jobID, JobFailed, JobResult{ErrorMessage: cause.Error()}); err != nil {
		log.WithError(err).Error("mark weirdling job failed")
	}
	return generationFailed(jobID, cause)
}

// PreviewFromJob rebuilds the preview of a complete job.
func PreviewFromJob(j *Job) (*Preview, error) {
	if j.Status != JobComplete {
		return nil, ErrInvalidTransition
	}
	raw, err := j.DecodeRawResult()
	if err != nil {
		return nil, err
	}
	p, err := Validate(raw)
	if err != nil {
		return nil, err
	}
	return newPreview(j.ID, p, true), nil
}
