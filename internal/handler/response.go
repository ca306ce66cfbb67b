package handler

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, NewSuccessResponse(data))
}

func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, NewSuccessResponse(data))
}

// RespondWithError maps err onto a status code and writes the error
// envelope. Unexpected errors are logged and reported without detail.
func RespondWithError(c *gin.Context, err error) {
	status, resp := errorResponse(err)
	if status >= http.StatusInternalServerError && status != http.StatusGatewayTimeout {
		log.Error().
			Err(err).
			Str("request_id", c.GetString("request_id")).
			Str("path", c.Request.URL.Path).
			Str("method", c.Request.Method).
			Msg("request failed")
	}
	c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

func errorResponse(err error) (int, *Response) {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		fields := make([]FieldError, 0, len(verrs))
		for _, e := range verrs {
			fields = append(fields, FieldError{Field: e.Field(), Message: validationMessage(e)})
		}
		return http.StatusBadRequest, &Response{Status: "error", Message: "validation failed", Data: fields}
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, NewErrorResponse("request timed out")
	}
	if appErr, ok := errors.As(err); ok {
		status := appErr.StatusCode()
		if status == http.StatusInternalServerError {
			return status, NewErrorResponse("internal server error")
		}
		return status, NewErrorResponse(appErr.Message)
	}
	return http.StatusInternalServerError, NewErrorResponse("internal server error")
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "field is required"
	case "email":
		return "invalid email format"
	case "gender":
		return "must be 'male' or 'female'"
	case "icd10":
		return "invalid ICD-10 code"
	case "oneof":
		return "must be one of: " + e.Param()
	case "min", "gte":
		return "must be at least " + e.Param()
	case "max", "lte":
		return "must be at most " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "uuid":
		return "must be a UUID"
	}
	return "failed on the '" + e.Tag() + "' rule"
}

// BindJSON decodes the body into req and writes a 400 on failure.
func BindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) {
			RespondWithError(c, err)
		} else {
			RespondWithError(c, errors.BadRequest("invalid request body", err))
		}
		return false
	}
	return true
}

// ParamID parses a numeric path parameter.
func ParamID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		RespondWithError(c, errors.BadRequest("invalid "+name, err))
		return 0, false
	}
	return id, true
}

// ParsePagination reads ?page= and ?page_size=.
func ParsePagination(c *gin.Context) model.Pagination {
	var p model.Pagination
	p.Page, _ = strconv.Atoi(c.Query("page"))
	p.PageSize, _ = strconv.Atoi(c.Query("page_size"))
	return p
}
