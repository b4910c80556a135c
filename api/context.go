package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Error codes returned in the "error" field of failed responses
const (
	codeInvalidQueryParameter = "invalid_query_parameter"
	codeNotFound              = "not_found"
	codeUpstreamUnavailable   = "upstream_unavailable"
	codeUpstreamFailed        = "upstream_failed"
	codeStoreUnavailable      = "store_unavailable"
	codeInternal              = "internal_error"
)

// Context wraps echo.Context with a request scoped logger
type Context struct {
	echo.Context
	L *zap.Logger
}

// HandlerFunc is a handler that uses our Context
type HandlerFunc func(c Context) error

// wrap adapts a HandlerFunc to echo
func wrap(h HandlerFunc, l *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		rid := c.Response().Header().Get(echo.HeaderXRequestID)
		return h(Context{
			Context: c,
			L:       l.With(zap.String("request_id", rid)),
		})
	}
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Fail sends an error response
func (c Context) Fail(status int, code, message string) error {
	return c.JSON(status, ErrorResponse{Error: code, Message: message})
}

// BadQuery sends a 400 for a rejected query parameter
func (c Context) BadQuery(message string) error {
	return c.Fail(http.StatusBadRequest, codeInvalidQueryParameter, message)
}

// NotFound sends a 404
func (c Context) NotFound(message string) error {
	return c.Fail(http.StatusNotFound, codeNotFound, message)
}

// OK sends a 200 response with data
func (c Context) OK(data any) error {
	return c.JSON(http.StatusOK, data)
}
