package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/John-Robertt/genieacs-gateway/internal/genieacs"
	"github.com/John-Robertt/genieacs-gateway/internal/model"
)

// APIError is used by the HTTP layer for request validation and a few
// HTTP-specific errors.
type APIError struct {
	Status   int
	AppError model.AppError
	Cause    error
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *APIError) Unwrap() error { return e.Cause }

func apiError(status int, app model.AppError, cause error) error {
	return &APIError{Status: status, AppError: app, Cause: cause}
}

func requestError(code, message, hint string) error {
	return apiError(http.StatusBadRequest, model.AppError{
		Code:    code,
		Message: message,
		Stage:   "validate_request",
		Hint:    hint,
	}, nil)
}

// classifyError maps err to the status and payload sent to clients.
func classifyError(err error) (int, model.AppError) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status, ae.AppError
	}

	if errors.Is(err, genieacs.ErrDeviceNotFound) {
		return http.StatusNotFound, model.AppError{
			Code:    "DEVICE_NOT_FOUND",
			Message: "device not found",
			Stage:   "lookup_device",
		}
	}

	var ue *genieacs.UpstreamError
	if errors.As(err, &ue) {
		return ue.Status, ue.AppError
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, model.AppError{
			Code:    "UPSTREAM_TIMEOUT",
			Message: "request deadline exceeded",
			Stage:   "upstream",
		}
	}

	// Fallback: internal bug.
	return http.StatusInternalServerError, model.AppError{
		Code:    "INTERNAL_ERROR",
		Message: "internal server error",
		Stage:   "internal",
		Hint:    err.Error(),
	}
}

func writeErrorFromErr(w http.ResponseWriter, err error) {
	writeDeviceError(w, "", err)
}

// writeDeviceError is writeErrorFromErr with the device the request was about.
func writeDeviceError(w http.ResponseWriter, deviceID string, err error) {
	if err == nil {
		return
	}
	status, app := classifyError(err)
	if app.DeviceID == "" {
		app.DeviceID = deviceID
	}
	metricsIncAppError(app.Stage, app.Code)
	WriteError(w, status, app)
}
