package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/weirdling/internal/common"
	"github.com/suPer8Hu/weirdling/internal/httpapi/middleware"
	"github.com/suPer8Hu/weirdling/internal/weirdling"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"
	maxIdempotencyKey    = 128
)

// bindGenerate reads the body and applies the Idempotency-Key header, which
// wins over the body field.
func bindGenerate(c *gin.Context) (weirdling.Request, bool) {
	var req weirdling.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return req, false
	}
	if k := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader)); k != "" {
		req.IdempotencyKey = &k
	}
	if req.IdempotencyKey != nil && len(strings.TrimSpace(*req.IdempotencyKey)) > maxIdempotencyKey {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return req, false
	}
	return req, true
}

func (h *Handler) GenerateWeirdling(c *gin.Context) {
	owner, ok := middleware.OwnerID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	req, ok := bindGenerate(c)
	if !ok {
		return
	}

	p, err := h.Svc.Generate(c.Request.Context(), owner, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	if p.Replayed {
		c.Header(ReplayedHeader, "true")
	}
	common.OK(c, p)
}

func (h *Handler) SubmitWeirdling(c *gin.Context) {
	owner, ok := middleware.OwnerID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	req, ok := bindGenerate(c)
	if !ok {
		return
	}

	key, err := h.Svc.Submit(c.Request.Context(), owner, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.Accepted(c, gin.H{"idempotency_key": key})
}

type jobView struct {
	ID             string              `json:"id"`
	Status         weirdling.JobStatus `json:"status"`
	IdempotencyKey *string             `json:"idempotency_key,omitempty"`
	PromptVersion  string              `json:"prompt_version"`
	ModelVersion   string              `json:"model_version"`
	Error          *string             `json:"error,omitempty"`
	Result         *weirdling.Preview  `json:"result,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func (h *Handler) viewOf(j *weirdling.Job) jobView {
	v := jobView{
		ID:             j.ID,
		Status:         j.Status,
		IdempotencyKey: j.IdempotencyKey,
		PromptVersion:  j.PromptVersion,
		ModelVersion:   j.ModelVersion,
		Error:          j.Error,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
	if j.Status == weirdling.JobComplete {
		p, err := weirdling.PreviewFromJob(j)
		if err != nil {
			h.Log.WithError(err).WithField("job_id", j.ID).Warn("stored weirdling result no longer validates")
		} else {
			v.Result = p
		}
	}
	return v
}

func (h *Handler) GetJob(c *gin.Context) {
	owner, ok := middleware.OwnerID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	j, err := h.Jobs.GetJobByID(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		if errors.Is(err, weirdling.ErrJobNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "job not found")
			return
		}
		h.fail(c, err)
		return
	}
	// do not reveal other owners' jobs
	if j.OwnerID != owner {
		common.Fail(c, http.StatusNotFound, 40004, "job not found")
		return
	}
	common.OK(c, h.viewOf(j))
}

func (h *Handler) FindJob(c *gin.Context) {
	owner, ok := middleware.OwnerID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	key := strings.TrimSpace(c.Query("idempotency_key"))
	if key == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "idempotency_key required")
		return
	}

	j, err := h.Jobs.FindByIdempotencyKey(c.Request.Context(), owner, key)
	if err != nil {
		h.fail(c, err)
		return
	}
	if j == nil {
		common.Fail(c, http.StatusNotFound, 40004, "job not found")
		return
	}
	common.OK(c, h.viewOf(j))
}

func (h *Handler) fail(c *gin.Context, err error) {
	var e *weirdling.Error
	if !errors.As(err, &e) {
		if errors.Is(err, weirdling.ErrNoDispatcher) {
			common.Fail(c, http.StatusServiceUnavailable, 50301, "async generation unavailable")
			return
		}
		h.Log.WithError(err).WithField("request_id", c.GetString(middleware.RequestIDKey)).Error("weirdling request failed")
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	switch e.Kind {
	case weirdling.KindRateLimited:
		c.Header("Retry-After", strconv.Itoa(e.RetryAfter))
		common.Fail(c, http.StatusTooManyRequests, 42901, e.Error())
	case weirdling.KindInvalidRequest:
		common.Fail(c, http.StatusBadRequest, 40001, e.Error())
	case weirdling.KindInProgress:
		common.Fail(c, http.StatusConflict, 40901, e.Error())
	case weirdling.KindGenerationFailed:
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
			"code":    50201,
			"message": "generation failed",
			"data":    gin.H{"job_id": e.JobID, "error": e.Message},
		})
	default:
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}
