package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/suPer8Hu/weirdling/internal/common"
	"github.com/suPer8Hu/weirdling/internal/weirdling"
)

// JobReader is the read side of the job store.
type JobReader interface {
	GetJobByID(ctx context.Context, id string) (*weirdling.Job, error)
	FindByIdempotencyKey(ctx context.Context, ownerID, key string) (*weirdling.Job, error)
}

type Handler struct {
	Svc  *weirdling.Service
	Jobs JobReader
	Log  logrus.FieldLogger
}

func NewHandler(svc *weirdling.Service, jobs JobReader, log logrus.FieldLogger) *Handler {
	return &Handler{Svc: svc, Jobs: jobs, Log: log}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func (h *Handler) NotFound(c *gin.Context) {
	common.Fail(c, http.StatusNotFound, 40400, "route not found")
}

func (h *Handler) MethodNotAllowed(c *gin.Context) {
	common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
}
