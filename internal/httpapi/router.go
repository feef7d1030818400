package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/suPer8Hu/weirdling/internal/httpapi/handlers"
	"github.com/suPer8Hu/weirdling/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler, jwtSecret string, log logrus.FieldLogger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))

	r.NoRoute(h.NotFound)
	r.NoMethod(h.MethodNotAllowed)

	r.GET("/ping", h.Ping)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(jwtSecret))
	authGroup.POST("/weirdlings/generate", h.GenerateWeirdling)
	authGroup.POST("/weirdlings/generate/async", h.SubmitWeirdling)
	authGroup.GET("/weirdlings/jobs/:job_id", h.GetJob)
	authGroup.GET("/weirdlings/jobs", h.FindJob)
	return r
}
