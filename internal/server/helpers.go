package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/hydrolab/flowsolve/pkg/schema"
)

var validate = validator.New()

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store errors onto HTTP statuses: NOT_FOUND becomes
// 404, everything else 500.
func writeStoreError(w http.ResponseWriter, err error) {
	var engErr *schema.EngineeringError
	if errors.As(err, &engErr) && engErr.Code == schema.ErrCodeNotFound {
		writeError(w, http.StatusNotFound, engErr.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// decodeBody decodes a JSON request body into v and runs struct-tag
// validation when v carries validate tags.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid JSON: %s", err.Error())
	}
	if err := validate.Struct(v); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid request: %s", err.Error())
	}
	return nil
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// queryBool extracts an optional boolean query param; nil when absent.
func queryBool(r *http.Request, key string) *bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}
