package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/kmc/ehr-api/internal/handler"
	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/service/auth"
)

type Handler struct {
	svc *auth.Service
}

func NewHandler(svc *auth.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/token", h.Login)
	}
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	tok, err := h.svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, tok)
}
