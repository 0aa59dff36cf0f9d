// Package response writes JSON envelopes for the REST API.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"

	apierrors "github.com/Bidon15/licensesale/internal/pkg/errors"
)

// Response is the envelope of every REST response.
type Response struct {
	Data  any                 `json:"data,omitempty"`
	Error *apierrors.APIError `json:"error,omitempty"`
	Meta  *Meta               `json:"meta,omitempty"`
}

// Meta carries pagination information.
type Meta struct {
	Total      int    `json:"total,omitempty"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, Response{Data: data})
}

// JSONWithMeta writes data and pagination metadata.
func JSONWithMeta(w http.ResponseWriter, status int, data any, meta *Meta) {
	write(w, status, Response{Data: data, Meta: meta})
}

// OK writes a 200 response.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Created writes a 201 response.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// Accepted writes a 202 response.
func Accepted(w http.ResponseWriter, data any) {
	JSON(w, http.StatusAccepted, data)
}

// NoContent writes a 204 response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error writes err as an error envelope. Errors that are not APIErrors are
// logged and reported as internal errors.
func Error(w http.ResponseWriter, err error) {
	apiErr := apierrors.AsAPIError(err)
	if apiErr == apierrors.ErrInternal {
		slog.Error("request failed", slog.String("error", err.Error()))
	}
	status := apiErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	write(w, status, Response{Error: apiErr})
}

func write(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}
