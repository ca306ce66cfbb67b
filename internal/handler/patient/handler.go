package patient

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kmc/ehr-api/internal/handler"
	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/service/patient"
)

type Handler struct {
	service patient.PatientService
}

func NewHandler(service patient.PatientService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.POST("", h.CreatePatient)
		patients.GET("", h.ListPatients)
		patients.GET("/:id", h.GetPatient)
		patients.PUT("/:id", h.UpdatePatient)
		patients.DELETE("/:id", h.DeletePatient)
		patients.GET("/:id/journey", h.Journey)
	}
}

func (h *Handler) CreatePatient(c *gin.Context) {
	var req model.CreatePatientRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	p, err := h.service.CreatePatient(c.Request.Context(), &req)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondCreated(c, p)
}

func (h *Handler) GetPatient(c *gin.Context) {
	p, err := h.service.GetPatient(c.Request.Context(), c.Param("id"))
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, p)
}

func (h *Handler) ListPatients(c *gin.Context) {
	filter := model.PatientFilter{
		Search:     c.Query("search"),
		Pagination: handler.ParsePagination(c),
	}
	list, err := h.service.ListPatients(c.Request.Context(), filter)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, list)
}

func (h *Handler) UpdatePatient(c *gin.Context) {
	var req model.UpdatePatientRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	p, err := h.service.UpdatePatient(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, p)
}

func (h *Handler) DeletePatient(c *gin.Context) {
	if err := h.service.DeletePatient(c.Request.Context(), c.Param("id")); err != nil {
		handler.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.Response{Status: "success", Message: "patient deleted"})
}

func (h *Handler) Journey(c *gin.Context) {
	j, err := h.service.Journey(c.Request.Context(), c.Param("id"))
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, j)
}
