package medical

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kmc/ehr-api/internal/handler"
	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/service/medical"
)

// Handler serves the report written for a visit.
type Handler struct {
	service medical.ReportService
}

func NewHandler(service medical.ReportService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/visits/:id/report", h.GetReport)
	r.PUT("/visits/:id/report", h.SaveReport)
	r.DELETE("/visits/:id/report", h.DeleteReport)
}

func (h *Handler) GetReport(c *gin.Context) {
	report, err := h.service.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, report)
}

func (h *Handler) SaveReport(c *gin.Context) {
	var req model.VisitReportUpdate
	if !handler.BindJSON(c, &req) {
		return
	}

	report, err := h.service.SaveReport(c.Request.Context(), c.Param("id"), &req, c.GetString("username"))
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, report)
}

func (h *Handler) DeleteReport(c *gin.Context) {
	if err := h.service.DeleteReport(c.Request.Context(), c.Param("id")); err != nil {
		handler.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.Response{Status: "success", Message: "visit report deleted"})
}
