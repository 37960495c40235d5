package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hotspot-detector/geodetect/internal/logger"
)

// Error codes reported in the codigo field of error responses.
const (
	CodeNoFile           = "NO_FILE"
	CodeEmptyFilename    = "EMPTY_FILENAME"
	CodeInvalidUpload    = "INVALID_UPLOAD"
	CodeFileTooLarge     = "FILE_TOO_LARGE"
	CodeRateLimited      = "RATE_LIMITED"
	CodeProcessingError  = "PROCESSING_ERROR"
	CodeModelNotLoaded   = "MODEL_NOT_LOADED"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInternalError    = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error         string   `json:"error"`
	Code          string   `json:"codigo"`
	Details       string   `json:"detalhes,omitempty"`
	Endpoints     []string `json:"endpoints_disponiveis,omitempty"`
	CorrelationID string   `json:"correlation_id"`
}

// APIError is returned by handlers and rendered by ErrorHandler.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details string
	Err     error // logged, never sent
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

func newAPIError(status int, code, message string, err error) *APIError {
	return &APIError{Status: status, Code: code, Message: message, Err: err}
}

// fromHTTPError maps errors raised by echo and its middleware.
func (h *Handlers) fromHTTPError(he *echo.HTTPError) *APIError {
	switch he.Code {
	case http.StatusNotFound:
		return newAPIError(he.Code, CodeNotFound, "Endpoint não encontrado.", he)
	case http.StatusMethodNotAllowed:
		return newAPIError(he.Code, CodeMethodNotAllowed, "Método não permitido para este endpoint.", he)
	case http.StatusRequestEntityTooLarge:
		return h.tooLarge(he)
	case http.StatusTooManyRequests:
		return newAPIError(he.Code, CodeRateLimited, "Muitas requisições, tente novamente em instantes.", he)
	}
	if he.Code >= http.StatusInternalServerError {
		return newAPIError(he.Code, CodeInternalError, "Erro interno do servidor.", he)
	}
	return newAPIError(he.Code, http.StatusText(he.Code), fmt.Sprint(he.Message), he)
}

func (h *Handlers) tooLarge(err error) *APIError {
	return newAPIError(http.StatusRequestEntityTooLarge, CodeFileTooLarge,
		fmt.Sprintf("Arquivo excede o tamanho máximo de %s.", h.maxUploadDisplay()), err)
}

// ErrorHandler is the echo HTTPErrorHandler. Every error body carries a
// correlation ID, the request ID when one was assigned.
func (h *Handlers) ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = h.fromHTTPError(httpErr)
	default:
		apiErr = newAPIError(http.StatusInternalServerError, CodeInternalError, "Erro interno do servidor.", err)
	}

	correlationID := c.Response().Header().Get(echo.HeaderXRequestID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	resp := ErrorResponse{
		Error:         apiErr.Message,
		Code:          apiErr.Code,
		Details:       apiErr.Details,
		CorrelationID: correlationID,
	}
	if apiErr.Code == CodeNotFound {
		resp.Endpoints = h.Endpoints()
	}

	log := h.log.With(
		logger.String("correlation_id", correlationID),
		logger.String("code", apiErr.Code),
		logger.Int("status", apiErr.Status),
		logger.String("method", c.Request().Method),
		logger.String("path", c.Request().URL.Path),
		logger.String("ip", c.RealIP()))
	if apiErr.Status >= http.StatusInternalServerError {
		log.Error("API error", logger.Error(err))
	} else {
		log.Debug("API client error", logger.Error(err))
	}

	if h.metrics != nil {
		path := c.Path()
		if path == "" {
			path = "unmatched"
		}
		h.metrics.RecordHTTPRequestError(c.Request().Method, path, apiErr.Code)
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(apiErr.Status)
	} else {
		writeErr = c.JSON(apiErr.Status, resp)
	}
	if writeErr != nil {
		h.log.Warn("Failed to write error response",
			logger.String("correlation_id", correlationID),
			logger.Error(writeErr))
	}
}
