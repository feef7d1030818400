package weirdling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/suPer8Hu/weirdling/internal/common"
)

var ErrNoDispatcher = errors.New("async generation is not configured")

// Dispatcher hands a queued generation to the worker side.
type Dispatcher interface {
	Publish(ctx context.Context, body []byte) error
}

// QueuedGeneration is the queue message body. The request always carries an
// idempotency key so the client can look the job up later.
type QueuedGeneration struct {
	OwnerID  string    `json:"owner_id"`
	Request  Request   `json:"request"`
	QueuedAt time.Time `json:"queued_at"`
}

// Submit runs admission and the required-field check now and defers the rest
// to a worker. It returns the idempotency key to poll with.
func (s *Service) Submit(ctx context.Context, ownerID string, req Request) (string, error) {
	if s.dispatcher == nil {
		return "", ErrNoDispatcher
	}
	if err := s.admit(ctx, ownerID); err != nil {
		return "", err
	}
	req, err := prepare(req)
	if err != nil {
		return "", err
	}
	if req.IdempotencyKey == nil {
		key, err := common.NewULID()
		if err != nil {
			return "", err
		}
		req.IdempotencyKey = &key
	}

	body, err := json.Marshal(QueuedGeneration{OwnerID: ownerID, Request: req, QueuedAt: time.Now().UTC()})
	if err != nil {
		return "", err
	}
	if err := s.dispatcher.Publish(ctx, body); err != nil {
		return "", fmt.Errorf("enqueue generation: %w", err)
	}
	s.log.WithField("owner_id", ownerID).WithField("idempotency_key", *req.IdempotencyKey).Info("weirdling generation queued")
	return *req.IdempotencyKey, nil
}

// Process is the worker half of Submit. Admission already happened at submit time.
func (s *Service) Process(ctx context.Context, msg QueuedGeneration) (*Preview, error) {
	if msg.OwnerID == "" {
		return nil, invalidRequest("owner identity is required")
	}
	req, err := prepare(msg.Request)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, msg.OwnerID, req)
}
