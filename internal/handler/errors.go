package handler

import (
	"errors"
	"net/http"
	"strconv"

	"dogfinder/internal/camera"
	"dogfinder/internal/detector"
	"dogfinder/internal/logger"
	"dogfinder/internal/service"

	"github.com/goccy/go-json"
)

// APIError is the JSON body of every failed API call.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps a domain error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, camera.ErrInvalidCommand):
		return http.StatusBadRequest, "invalid_op"
	case errors.Is(err, camera.ErrCameraUnavailable):
		return http.StatusServiceUnavailable, "camera_unavailable"
	case errors.Is(err, detector.ErrDecode):
		return http.StatusBadGateway, "decode_failed"
	case errors.Is(err, detector.ErrInference):
		return http.StatusInternalServerError, "inference_failed"
	case errors.Is(err, service.ErrScanInProgress):
		return http.StatusConflict, "scan_in_progress"
	default:
		return http.StatusBadGateway, "camera_error"
	}
}

func writeError(w http.ResponseWriter, logger *logger.Logger, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed (%s): %v", code, err)
	} else {
		logger.Warning("Request rejected (%s): %v", code, err)
	}
	writeJSON(w, logger, status, APIError{Code: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, logger *logger.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
