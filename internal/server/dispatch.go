package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/rill"
	"github.com/roach88/rill/internal/program"
	"github.com/roach88/rill/internal/store"
)

// maxBodyBytes caps dispatch request bodies.
const maxBodyBytes = 1 << 20

// DispatchRequest is the body of POST /v1/dispatch/{unit}. Every field is
// optional.
type DispatchRequest struct {
	// Payload is passed to the unit.
	Payload any `json:"payload"`

	// Values seeds base stores by name.
	Values map[string]any `json:"values,omitempty"`

	// Snapshot restores the scope from an archived snapshot id before
	// Values are applied.
	Snapshot string `json:"snapshot,omitempty"`
}

// DispatchResponse is the outcome of a dispatch.
type DispatchResponse struct {
	Status     rill.Status    `json:"status"`
	Value      any            `json:"value,omitempty"`
	Error      string         `json:"error,omitempty"`
	Diagnostic string         `json:"diagnostic,omitempty"`
	Scope      string         `json:"scope"`
	State      map[string]any `json:"state"`
	SnapshotID string         `json:"snapshot_id,omitempty"`
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	unit := chi.URLParam(r, "unit")
	if _, ok := s.prog.Unit(unit); !ok {
		s.writeError(w, r, http.StatusNotFound, fmt.Errorf("dispatch %q: %w", unit, program.ErrUnknownUnit))
		return
	}

	save := false
	if v := r.URL.Query().Get("save"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid save parameter %q", v))
			return
		}
		save = b
	}

	var req DispatchRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	opts := []rill.ForkOption{rill.WithHooks(s.metrics, s.journal)}
	if s.maxSteps > 0 {
		opts = append(opts, rill.WithMaxSteps(s.maxSteps))
	}
	if req.Snapshot != "" {
		rec, status, err := s.restorable(r.Context(), req.Snapshot)
		if err != nil {
			s.writeError(w, r, status, err)
			return
		}
		opts = append(opts, rill.WithSnapshot(rec.Values))
	}

	scope, err := s.prog.Fork(req.Values, opts...)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	settled, diag := s.prog.Dispatch(ctx, scope, unit, req.Payload)
	if err := ctx.Err(); err != nil {
		s.writeError(w, r, http.StatusGatewayTimeout, fmt.Errorf("dispatch %q: %w", unit, err))
		return
	}

	resp := DispatchResponse{
		Status: settled.Status,
		Value:  settled.Value,
		Scope:  scope.ID(),
		State:  s.prog.State(scope),
	}
	if settled.Err != nil {
		resp.Error = settled.Err.Error()
	}
	if diag != nil {
		resp.Diagnostic = diag.Error()
	}

	if save {
		rec, err := s.store.WriteSnapshot(r.Context(), store.SnapshotRecord{
			Program:     s.prog.Name(),
			ProgramHash: s.prog.Hash(),
			ScopeID:     scope.ID(),
			Values:      s.prog.Snapshot(scope),
		})
		if err != nil {
			s.writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		resp.SnapshotID = rec.ID
	}

	s.log.Info("dispatch settled",
		"unit", unit,
		"scope", scope.ID(),
		"status", settled.Status,
		"request_id", middleware.GetReqID(r.Context()),
	)
	writeJSON(w, http.StatusOK, resp)
}

// restorable reads an archived snapshot of this program. The returned
// status is the HTTP status to report when err is non-nil.
func (s *Server) restorable(ctx context.Context, id string) (store.SnapshotRecord, int, error) {
	rec, err := s.store.ReadSnapshot(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return rec, http.StatusNotFound, err
	case err != nil:
		return rec, http.StatusInternalServerError, err
	}
	if rec.Program != s.prog.Name() {
		return rec, http.StatusConflict, fmt.Errorf("snapshot %s belongs to program %q", id, rec.Program)
	}
	if rec.ProgramHash != s.prog.Hash() {
		s.log.Warn("restoring snapshot of a different program revision",
			"snapshot", id,
			"snapshot_hash", rec.ProgramHash,
			"hash", s.prog.Hash(),
		)
	}
	return rec, 0, nil
}

// decodeBody decodes a JSON body into v. An empty body leaves v unchanged.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
