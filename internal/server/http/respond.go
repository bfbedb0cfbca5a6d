package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	rowleasev1 "github.com/rzbill/rowlease/api/rowlease/v1"
	"github.com/rzbill/rowlease/internal/claim"
	"github.com/rzbill/rowlease/internal/item"
	"github.com/rzbill/rowlease/internal/schema"
	"github.com/rzbill/rowlease/internal/table"
)

// maxBody bounds request bodies; notes cells are the largest payloads.
const maxBody = 1 << 20

// writeJSON writes a 200 JSON response with the given data.
func writeJSON(w http.ResponseWriter, data any) {
	writeStatusJSON(w, http.StatusOK, data)
}

func writeStatusJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error body with a stable code.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeStatusJSON(w, status, rowleasev1.ErrorResponse{Error: message, Code: code})
}

// writeNoContent writes a 204 No Content response.
func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// writeFailure maps core errors onto HTTP statuses.
func writeFailure(w http.ResponseWriter, err error) {
	var se *schema.Error
	switch {
	case errors.As(err, &se):
		writeError(w, http.StatusUnprocessableEntity, "schema", err.Error())
	case errors.Is(err, claim.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid", err.Error())
	case errors.Is(err, item.ErrUnknownStatus):
		writeError(w, http.StatusBadRequest, "status", err.Error())
	case errors.Is(err, table.ErrRowOutOfRange):
		writeError(w, http.StatusNotFound, "range", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// rowParam parses the {row} path value.
func rowParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(r.PathValue("row"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid", fmt.Sprintf("row must be an integer, got %q", r.PathValue("row")))
		return 0, false
	}
	return n, true
}
