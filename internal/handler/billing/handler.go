package billing

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kmc/ehr-api/internal/handler"
	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/service/billing"
	"github.com/kmc/ehr-api/pkg/errors"
)

type Handler struct {
	service billing.BillingService
}

func NewHandler(service billing.BillingService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/visits/:id/invoice", h.CreateInvoice)

	invoices := r.Group("/invoices")
	{
		invoices.GET("", h.ListInvoices)
		invoices.GET("/:id", h.GetInvoice)
		invoices.PUT("/:id", h.UpdateInvoice)
		invoices.POST("/:id/cancel", h.CancelInvoice)
		invoices.DELETE("/:id", h.DeleteInvoice)

		invoices.POST("/:id/items", h.AddItem)
		invoices.PUT("/:id/items/:itemId", h.UpdateItem)
		invoices.DELETE("/:id/items/:itemId", h.RemoveItem)

		invoices.POST("/:id/payments", h.RecordPayment)
	}

	payments := r.Group("/payments")
	{
		payments.DELETE("/:id", h.VoidPayment)
		payments.GET("/:id/receipt", h.GetReceipt)
	}

	reports := r.Group("/reports")
	{
		reports.GET("/financial", h.FinancialReport)
		reports.GET("/prescriptions", h.PrescriptionReport)
		reports.GET("/dashboard", h.Dashboard)
	}
}

func (h *Handler) CreateInvoice(c *gin.Context) {
	var req model.CreateInvoiceRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	inv, err := h.service.CreateInvoice(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondCreated(c, inv)
}

func (h *Handler) GetInvoice(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	inv, err := h.service.GetInvoice(c.Request.Context(), id)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, inv)
}

// ListInvoices supports ?patient_id= (business id), ?status=, ?from= and ?to=.
func (h *Handler) ListInvoices(c *gin.Context) {
	from, to, ok := dateRange(c)
	if !ok {
		return
	}
	filter := model.InvoiceFilter{
		Status:     model.InvoiceStatus(c.Query("status")),
		From:       from,
		To:         to,
		Pagination: handler.ParsePagination(c),
	}
	list, err := h.service.ListInvoices(c.Request.Context(), c.Query("patient_id"), filter)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, list)
}

func (h *Handler) UpdateInvoice(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.UpdateInvoiceRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	inv, err := h.service.UpdateInvoice(c.Request.Context(), id, &req)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, inv)
}

func (h *Handler) CancelInvoice(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	inv, err := h.service.CancelInvoice(c.Request.Context(), id)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, inv)
}

func (h *Handler) DeleteInvoice(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteInvoice(c.Request.Context(), id); err != nil {
		handler.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.Response{Status: "success", Message: "invoice deleted"})
}

func (h *Handler) AddItem(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.InvoiceItemRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	inv, err := h.service.AddItem(c.Request.Context(), id, &req)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondCreated(c, inv)
}

func (h *Handler) UpdateItem(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	itemID, ok := handler.ParamID(c, "itemId")
	if !ok {
		return
	}
	var req model.UpdateInvoiceItemRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	inv, err := h.service.UpdateItem(c.Request.Context(), id, itemID, &req)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, inv)
}

func (h *Handler) RemoveItem(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	itemID, ok := handler.ParamID(c, "itemId")
	if !ok {
		return
	}

	inv, err := h.service.RemoveItem(c.Request.Context(), id, itemID)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, inv)
}

// RecordPayment attributes the receipt to the authenticated staff member.
func (h *Handler) RecordPayment(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.CreatePaymentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	p, err := h.service.RecordPayment(c.Request.Context(), id, &req, c.GetString("username"))
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondCreated(c, p)
}

func (h *Handler) VoidPayment(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	inv, err := h.service.VoidPayment(c.Request.Context(), id)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, inv)
}

func (h *Handler) GetReceipt(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	rc, err := h.service.GetReceipt(c.Request.Context(), id)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, rc)
}

func (h *Handler) FinancialReport(c *gin.Context) {
	from, to, ok := dateRange(c)
	if !ok {
		return
	}
	report, err := h.service.FinancialReport(c.Request.Context(), from, to)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, report)
}

// PrescriptionReport lists the most prescribed drugs. ?limit= caps the
// list.
func (h *Handler) PrescriptionReport(c *gin.Context) {
	from, to, ok := dateRange(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			handler.RespondWithError(c, errors.BadRequest("limit must be a positive number", err))
			return
		}
		limit = n
	}
	report, err := h.service.PrescriptionReport(c.Request.Context(), from, to, limit)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, report)
}

func (h *Handler) Dashboard(c *gin.Context) {
	dash, err := h.service.Dashboard(c.Request.Context())
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	handler.RespondOK(c, dash)
}

// dateRange reads ?from= and ?to= as dates or RFC 3339 timestamps. A bare
// "to" date covers the whole day.
func dateRange(c *gin.Context) (from, to *time.Time, ok bool) {
	var err error
	if from, err = parseTime(c.Query("from"), false); err != nil {
		handler.RespondWithError(c, errors.BadRequest("invalid from date", err))
		return nil, nil, false
	}
	if to, err = parseTime(c.Query("to"), true); err != nil {
		handler.RespondWithError(c, errors.BadRequest("invalid to date", err))
		return nil, nil, false
	}
	if from != nil && to != nil && to.Before(*from) {
		handler.RespondWithError(c, errors.BadRequest("to must not be before from", nil))
		return nil, nil, false
	}
	return from, to, true
}

func parseTime(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
