package inventory

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kmc/ehr-api/internal/handler"
	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/service/inventory"
)

type Handler struct {
	service inventory.InventoryService
}

func NewHandler(service inventory.InventoryService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	drugs := r.Group("/drugs")
	{
		drugs.POST("", h.CreateDrug)
		drugs.GET("", h.ListDrugs)
		drugs.GET("/low-stock", h.LowStock)
		drugs.GET("/:id", h.GetDrug)
		drugs.PUT("/:id", h.UpdateDrug)
		drugs.POST("/:id/restock", h.Restock)
		drugs.DELETE("/:id", h.DeleteDrug)
	}

	prescriptions := r.Group("/prescriptions")
	{
		prescriptions.POST("", h.CreatePrescription)
		prescriptions.GET("", h.ListPrescriptions)
		prescriptions.GET("/:id", h.GetPrescription)
		prescriptions.PATCH("/:id/status", h.UpdatePrescriptionStatus)
		prescriptions.DELETE("/:id", h.DeletePrescription)
	}
}

func (h *Handler) CreateDrug(c *gin.Context) {
	var req model.CreateDrugRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	d, err := h.service.CreateDrug(c.Request.Context(), &req)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondCreated(c, d)
}

func (h *Handler) GetDrug(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	d, err := h.service.GetDrug(c.Request.Context(), id)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, d)
}

// ListDrugs supports ?search= and ?active=true.
func (h *Handler) ListDrugs(c *gin.Context) {
	filter := model.DrugFilter{
		ActiveOnly: c.Query("active") == "true",
		Search:     c.Query("search"),
		Pagination: handler.ParsePagination(c),
	}
	list, err := h.service.ListDrugs(c.Request.Context(), filter)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, list)
}

func (h *Handler) LowStock(c *gin.Context) {
	list, err := h.service.LowStock(c.Request.Context())
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, list)
}

func (h *Handler) UpdateDrug(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.UpdateDrugRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	d, err := h.service.UpdateDrug(c.Request.Context(), id, &req)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, d)
}

func (h *Handler) Restock(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.RestockRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	d, err := h.service.Restock(c.Request.Context(), id, req.Quantity)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, d)
}

func (h *Handler) DeleteDrug(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteDrug(c.Request.Context(), id); err != nil {
		handler.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.Response{Status: "success", Message: "drug deleted"})
}

func (h *Handler) CreatePrescription(c *gin.Context) {
	var req model.CreatePrescriptionRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	rx, err := h.service.CreatePrescription(c.Request.Context(), &req)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondCreated(c, rx)
}

func (h *Handler) GetPrescription(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	rx, err := h.service.GetPrescription(c.Request.Context(), id)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, rx)
}

// ListPrescriptions supports ?patient_id= (business id) and ?status=.
func (h *Handler) ListPrescriptions(c *gin.Context) {
	filter := model.PrescriptionFilter{
		Status:     model.PrescriptionStatus(c.Query("status")),
		Pagination: handler.ParsePagination(c),
	}
	list, err := h.service.ListPrescriptions(c.Request.Context(), c.Query("patient_id"), filter)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, list)
}

func (h *Handler) UpdatePrescriptionStatus(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.UpdateStatusRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	rx, err := h.service.UpdatePrescriptionStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, rx)
}

func (h *Handler) DeletePrescription(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeletePrescription(c.Request.Context(), id); err != nil {
		handler.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.Response{Status: "success", Message: "prescription deleted"})
}
