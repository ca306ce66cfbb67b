package doctor

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kmc/ehr-api/internal/handler"
	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/service/doctor"
)

type Handler struct {
	service doctor.DoctorService
}

func NewHandler(service doctor.DoctorService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	doctors := r.Group("/doctors")
	{
		doctors.POST("", h.CreateDoctor)
		doctors.GET("", h.ListDoctors)
		doctors.GET("/:id", h.GetDoctor)
		doctors.PUT("/:id", h.UpdateDoctor)
		doctors.DELETE("/:id", h.DeleteDoctor)
	}
}

func (h *Handler) CreateDoctor(c *gin.Context) {
	var req model.CreateDoctorRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	d, err := h.service.CreateDoctor(c.Request.Context(), &req)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondCreated(c, d)
}

func (h *Handler) GetDoctor(c *gin.Context) {
	d, err := h.service.GetDoctor(c.Request.Context(), c.Param("id"))
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, d)
}

// ListDoctors supports ?specialty= and ?active=true.
func (h *Handler) ListDoctors(c *gin.Context) {
	filter := model.DoctorFilter{
		ActiveOnly: c.Query("active") == "true",
		Specialty:  c.Query("specialty"),
		Pagination: handler.ParsePagination(c),
	}
	list, err := h.service.ListDoctors(c.Request.Context(), filter)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, list)
}

func (h *Handler) UpdateDoctor(c *gin.Context) {
	var req model.UpdateDoctorRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	d, err := h.service.UpdateDoctor(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, d)
}

func (h *Handler) DeleteDoctor(c *gin.Context) {
	if err := h.service.DeleteDoctor(c.Request.Context(), c.Param("id")); err != nil {
		handler.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.Response{Status: "success", Message: "doctor deleted"})
}
