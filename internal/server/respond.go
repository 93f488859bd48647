package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/menta2k/video-altitude/internal/history"
	"github.com/menta2k/video-altitude/pkg/camera"
	"github.com/menta2k/video-altitude/pkg/geometry"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps an error kind to a status code. Field failures carry the
// offending field.
func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var fe *geometry.FieldError
	if errors.As(err, &fe) {
		resp.Field = fe.Field
	}

	switch {
	case errors.Is(err, camera.ErrUnknownCamera):
		status, resp.Kind = http.StatusNotFound, "unknown_camera"
	case errors.Is(err, history.ErrNotFound):
		status, resp.Kind = http.StatusNotFound, "not_found"
	case errors.Is(err, geometry.ErrInvalidCameraProfile):
		status, resp.Kind = http.StatusBadRequest, "invalid_camera_profile"
	case errors.Is(err, geometry.ErrInvalidMeasurement):
		status, resp.Kind = http.StatusBadRequest, "invalid_measurement"
	default:
		resp.Kind = "internal"
	}
	writeJSON(w, status, resp)
}

// decode reads a JSON body into v and answers 400 itself on failure
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error(), Kind: "bad_request"})
		return false
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			level := slog.LevelInfo
			if r.URL.Path == "/healthz" {
				level = slog.LevelDebug
			}
			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
