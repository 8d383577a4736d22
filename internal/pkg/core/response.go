// Package core writes the API response envelope.
//
// Success: {"code": 0, "message": "success", "data": ..., "meta": {...}}
// Failure: {"code": <int>, "message": <string>, "detail": <string>}
package core

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/prompthub/prompthub/pkg/errorx"
	"github.com/prompthub/prompthub/pkg/logger"
)

// Meta carries pagination metadata on list responses.
type Meta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

// Response is the success envelope.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	Meta    *Meta  `json:"meta,omitempty"`
}

// ErrResponse is the failure envelope.
type ErrResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// RequestIDKey is the gin context key holding the request correlation id.
const RequestIDKey = "X-Request-ID"

// WriteResponse writes data on success or maps err through its Coder.
// Unregistered errors surface as 50000 and are logged with the
// correlation id; business errors pass their detail through.
func WriteResponse(c *gin.Context, err error, data any) {
	if err == nil {
		c.JSON(http.StatusOK, Response{Code: 0, Message: "success", Data: data})
		return
	}

	coder := errorx.ParseCoder(err)
	resp := ErrResponse{Code: coder.Code(), Message: coder.String(), Detail: err.Error()}
	if coder.HTTPStatus() >= http.StatusInternalServerError {
		rid := requestID(c)
		logger.WithFields(map[string]any{"request_id": rid, "path": c.FullPath()}).
			Errorf("internal error: %v", err)
		// Do not leak internals to the caller.
		resp.Detail = "correlation id: " + rid
	}
	c.JSON(coder.HTTPStatus(), resp)
}

// WritePage writes a paginated success envelope.
func WritePage(c *gin.Context, data any, page, pageSize int, total int64) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
		Meta:    &Meta{Page: page, PageSize: pageSize, Total: total},
	})
}

func requestID(c *gin.Context) string {
	if rid := c.GetString(RequestIDKey); rid != "" {
		return rid
	}
	return uuid.NewString()
}
