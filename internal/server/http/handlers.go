package httpserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	rowleasev1 "github.com/rzbill/rowlease/api/rowlease/v1"
	"github.com/rzbill/rowlease/internal/item"
	logpkg "github.com/rzbill/rowlease/pkg/log"
)

// handleHealth returns 200 {"status":"ok"} when the header row is readable
// and 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving", err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	m, err := s.rt.Coordinator().Schema(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, rowleasev1.SchemaResponse{Fields: m})
}

func (s *Server) handleHeader(w http.ResponseWriter, r *http.Request) {
	var req rowleasev1.HeaderRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.rt.InitHeader(r.Context(), req.Headers); err != nil {
		writeFailure(w, err)
		return
	}
	writeNoContent(w)
}

// handleClaim runs one claim attempt. Nothing eligible is a 200 with a
// null item, not an error.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var body rowleasev1.ClaimRequest
	if !decode(w, r, &body) {
		return
	}
	req := s.rt.ClaimRequest(item.Status(body.Wanted), item.Status(body.Claimed))
	if body.Worker != "" {
		req.WorkerID = body.Worker
	}
	if body.MaxLeaseAge != "" {
		d, err := time.ParseDuration(body.MaxLeaseAge)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid", fmt.Sprintf("max_lease_age: %v", err))
			return
		}
		if d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid", "max_lease_age must be positive")
			return
		}
		req.MaxLeaseAge = d
	}
	req.Filter = body.Filter
	req.RequiredHeaders = body.Required

	it, err := s.rt.Coordinator().ClaimFirstAvailable(r.Context(), req)
	if err != nil {
		s.logger.Warn("claim failed", logpkg.Str("worker", req.WorkerID), logpkg.Err(err))
		writeFailure(w, err)
		return
	}
	writeJSON(w, rowleasev1.ItemResponse{Item: it})
}

// handleFind looks a row up by ?field=&value=.
func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	field := strings.TrimSpace(q.Get("field"))
	if field == "" {
		writeError(w, http.StatusBadRequest, "invalid", "field query parameter is required")
		return
	}
	it, err := s.rt.Coordinator().Find(r.Context(), field, q.Get("value"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, rowleasev1.ItemResponse{Item: it})
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	var req rowleasev1.AppendRequest
	if !decode(w, r, &req) {
		return
	}
	row, err := s.rt.Append(r.Context(), req.Fields)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeStatusJSON(w, http.StatusCreated, rowleasev1.AppendResponse{Row: row})
}

func (s *Server) handleRow(w http.ResponseWriter, r *http.Request) {
	row, ok := rowParam(w, r)
	if !ok {
		return
	}
	it, err := s.rt.Coordinator().Row(r.Context(), row)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, rowleasev1.ItemResponse{Item: it})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	row, ok := rowParam(w, r)
	if !ok {
		return
	}
	var req rowleasev1.UpdateRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Fields) == 0 {
		writeError(w, http.StatusBadRequest, "invalid", "fields must not be empty")
		return
	}
	it, err := s.rt.Coordinator().Update(r.Context(), row, req.Fields)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, rowleasev1.ItemResponse{Item: it})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	row, ok := rowParam(w, r)
	if !ok {
		return
	}
	var req rowleasev1.StatusRequest
	if !decode(w, r, &req) {
		return
	}
	it, err := s.rt.Coordinator().Release(r.Context(), row, item.Status(req.Status))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, rowleasev1.ItemResponse{Item: it})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	row, ok := rowParam(w, r)
	if !ok {
		return
	}
	var req rowleasev1.StatusRequest
	if !decode(w, r, &req) {
		return
	}
	it, err := s.rt.Coordinator().Complete(r.Context(), row, item.Status(req.Status), req.Fields)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, rowleasev1.ItemResponse{Item: it})
}

func (s *Server) handleFail(w http.ResponseWriter, r *http.Request) {
	row, ok := rowParam(w, r)
	if !ok {
		return
	}
	var req rowleasev1.FailRequest
	if !decode(w, r, &req) {
		return
	}
	it, err := s.rt.Coordinator().Fail(r.Context(), row, item.Status(req.Status), req.Error)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, rowleasev1.ItemResponse{Item: it})
}

func (s *Server) handleDeadLetter(w http.ResponseWriter, r *http.Request) {
	var req rowleasev1.DeadLetterRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		writeError(w, http.StatusBadRequest, "invalid", "input status is required")
		return
	}
	opts := s.rt.DeadLetterOptions(item.Status(req.Input), req.LastError)
	if req.Dead != "" {
		opts.DeadStatus = item.Status(req.Dead)
	}
	if req.MaxFails > 0 {
		opts.MaxFails = req.MaxFails
	}
	if req.MaxRows > 0 {
		opts.MaxRows = req.MaxRows
	}
	res, err := s.rt.DeadLetter().Run(r.Context(), opts)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, rowleasev1.DeadLetterResponse{Visited: res.Visited, DeadLettered: res.DeadLettered})
}
