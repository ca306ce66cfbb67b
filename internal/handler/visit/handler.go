package visit

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kmc/ehr-api/internal/handler"
	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/service/visit"
)

// Handler serves visits with their triage and diagnoses. The :id
// parameter accepts the numeric id or the visit's business id.
type Handler struct {
	service visit.VisitService
}

func NewHandler(service visit.VisitService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	visits := r.Group("/visits")
	{
		visits.POST("", h.CreateVisit)
		visits.GET("", h.ListVisits)
		visits.GET("/:id", h.GetVisit)
		visits.PATCH("/:id/status", h.UpdateStatus)
		visits.DELETE("/:id", h.DeleteVisit)

		visits.GET("/:id/triage", h.GetTriage)
		visits.PUT("/:id/triage", h.UpdateTriage)

		visits.POST("/:id/diagnoses", h.AddDiagnosis)
		visits.GET("/:id/diagnoses", h.ListDiagnoses)
	}
	r.DELETE("/diagnoses/:id", h.DeleteDiagnosis)
}

func (h *Handler) CreateVisit(c *gin.Context) {
	var req model.CreateVisitRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	v, err := h.service.CreateVisit(c.Request.Context(), &req)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondCreated(c, v)
}

func (h *Handler) GetVisit(c *gin.Context) {
	v, err := h.service.GetVisit(c.Request.Context(), c.Param("id"))
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, v)
}

// ListVisits supports ?patient_id= (business id) and ?status=.
func (h *Handler) ListVisits(c *gin.Context) {
	filter := model.VisitFilter{
		Status:     model.VisitStatus(c.Query("status")),
		Pagination: handler.ParsePagination(c),
	}
	list, err := h.service.ListVisits(c.Request.Context(), c.Query("patient_id"), filter)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, list)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	var req model.UpdateStatusRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	v, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, v)
}

func (h *Handler) DeleteVisit(c *gin.Context) {
	if err := h.service.DeleteVisit(c.Request.Context(), c.Param("id")); err != nil {
		handler.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.Response{Status: "success", Message: "visit deleted"})
}

func (h *Handler) GetTriage(c *gin.Context) {
	t, err := h.service.GetTriage(c.Request.Context(), c.Param("id"))
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, t)
}

func (h *Handler) UpdateTriage(c *gin.Context) {
	var req model.TriageUpdate
	if !handler.BindJSON(c, &req) {
		return
	}

	t, err := h.service.UpdateTriage(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, gin.H{"bmi": t.BMI(), "triage": t})
}

func (h *Handler) AddDiagnosis(c *gin.Context) {
	var req model.CreateDiagnosisRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	d, err := h.service.AddDiagnosis(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondCreated(c, d)
}

func (h *Handler) ListDiagnoses(c *gin.Context) {
	list, err := h.service.ListDiagnoses(c.Request.Context(), c.Param("id"))
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, list)
}

func (h *Handler) DeleteDiagnosis(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteDiagnosis(c.Request.Context(), id); err != nil {
		handler.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.Response{Status: "success", Message: "diagnosis deleted"})
}
