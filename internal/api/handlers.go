package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/codeofpride/drillcore/internal/level"
	"github.com/codeofpride/drillcore/internal/run"
	"github.com/codeofpride/drillcore/internal/store"
	"github.com/codeofpride/drillcore/internal/trace"
)

// LevelSummary is the listing shape: everything a level browser
// needs, starter code included, narrative untouched.
type LevelSummary struct {
	ID          int    `json:"id"`
	Week        int    `json:"week"`
	Title       string `json:"title"`
	Mentor      string `json:"mentor"`
	DialoguePre string `json:"dialogue_pre"`
}

func (s *Server) handleListLevels(w http.ResponseWriter, r *http.Request) {
	out := make([]LevelSummary, 0, len(s.pack.Levels))
	for _, l := range s.pack.Levels {
		out = append(out, LevelSummary{
			ID: l.ID, Week: l.Week, Title: l.Title,
			Mentor: l.Mentor, DialoguePre: l.DialoguePre,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"levels": out})
}

func (s *Server) handleGetLevel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "level id must be an integer", nil)
		return
	}
	lv, ok := s.pack.ByID(id)
	if !ok {
		s.writeError(w, r, http.StatusNotFound, ErrTypeNotFound, fmt.Sprintf("level %d not found", id), nil)
		return
	}
	s.writeJSON(w, http.StatusOK, lv)
}

// RunRequest submits a script against a level.
type RunRequest struct {
	LevelID int    `json:"level_id"`
	Script  string `json:"script"`
}

// RunResponse is the synchronous outcome of a run attempt.
type RunResponse struct {
	Run    *store.RunRecord `json:"run"`
	Output []string         `json:"output,omitempty"`
}

// maxScriptBytes keeps run submissions sane; the instruction budget
// bounds execution, this bounds parsing.
const maxScriptBytes = 64 * 1024

func validateRunRequest(req *RunRequest, pack *level.Pack) (*level.Level, string) {
	if req.LevelID == 0 {
		return nil, "level_id is required"
	}
	lv, ok := pack.ByID(req.LevelID)
	if !ok {
		return nil, fmt.Sprintf("level %d not found", req.LevelID)
	}
	if req.Script == "" {
		return nil, "script is required"
	}
	if len(req.Script) > maxScriptBytes {
		return nil, fmt.Sprintf("script too large (max %d bytes)", maxScriptBytes)
	}
	return lv, ""
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "invalid JSON body", map[string]any{"error": err.Error()})
		return
	}
	lv, msg := validateRunRequest(&req, s.pack)
	if lv == nil {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, msg, nil)
		return
	}

	scriptHash := store.HashScript(req.Script)
	s.logger.Printf("run_request level=%d script_hash=%s request_id=%s",
		req.LevelID, scriptHash[:12], requestID(r))

	rec, res, err := s.executeRun(r.Context(), lv, req.Script, nil)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, ErrTypeInternal, err.Error(), nil)
		return
	}

	var output []string
	for _, ev := range res.Trace {
		output = append(output, ev.Output...)
	}

	s.logger.Printf("run_completed id=%s level=%d verdict=%s reason=%s ticks=%d steps=%d",
		rec.ID, rec.LevelID, rec.Verdict, rec.Reason, rec.Ticks, rec.StepsUsed)
	s.writeJSON(w, http.StatusCreated, RunResponse{Run: rec, Output: output})
}

// executeRun drives one run attempt to completion, archives the
// trace, and persists the record. onEvent, when set, sees every trace
// event as the run produces it.
func (s *Server) executeRun(ctx context.Context, lv *level.Level, script string, onEvent func(trace.Event)) (*store.RunRecord, run.Result, error) {
	ctrl, err := run.New(lv, script, run.Options{
		SliceSteps: s.cfg.Budget.SliceSteps,
		TotalSteps: s.cfg.Budget.TotalSteps,
		MaxTicks:   s.cfg.Budget.MaxTicks,
		OnEvent:    onEvent,
	})
	if err != nil {
		return nil, run.Result{}, err
	}
	res := ctrl.Run(ctx)

	rec := &store.RunRecord{
		LevelID:          lv.ID,
		Verdict:          string(res.Verdict),
		Reason:           res.Reason,
		FailedConstraint: res.FailedConstraint,
		FaultLine:        res.FaultLine,
		FaultMessage:     res.FaultMessage,
		Ticks:            res.Ticks,
		StepsUsed:        res.StepsUsed,
	}
	if err := s.db.SaveRun(rec, script); err != nil {
		return nil, res, err
	}

	if s.cfg.TraceDir != "" {
		tw, err := trace.NewWriter(s.cfg.TraceDir, rec.ID)
		if err != nil {
			return nil, res, err
		}
		for _, ev := range res.Trace {
			if err := tw.Append(ev); err != nil {
				_ = tw.Close()
				return nil, res, err
			}
		}
		if err := tw.Close(); err != nil {
			return nil, res, err
		}
		rec.TracePath = filepath.Join(s.cfg.TraceDir, rec.ID+".jsonl.zst")
		if err := s.db.UpdateTracePath(rec.ID, rec.TracePath); err != nil {
			return nil, res, err
		}
	}
	return rec, res, nil
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	levelID, _ := strconv.Atoi(q.Get("level_id"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	runs, err := s.db.ListRuns(levelID, limit, offset)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, ErrTypeInternal, err.Error(), nil)
		return
	}
	if runs == nil {
		runs = []store.RunRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.db.GetRun(id)
	if err == store.ErrNotFound {
		s.writeError(w, r, http.StatusNotFound, ErrTypeNotFound, fmt.Sprintf("run %s not found", id), nil)
		return
	}
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, ErrTypeInternal, err.Error(), nil)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.db.GetRun(id)
	if err == store.ErrNotFound {
		s.writeError(w, r, http.StatusNotFound, ErrTypeNotFound, fmt.Sprintf("run %s not found", id), nil)
		return
	}
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, ErrTypeInternal, err.Error(), nil)
		return
	}
	if rec.TracePath == "" {
		s.writeError(w, r, http.StatusNotFound, ErrTypeNotFound, fmt.Sprintf("run %s has no archived trace", id), nil)
		return
	}
	events, err := trace.ReadFile(rec.TracePath)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, ErrTypeInternal, err.Error(), nil)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run_id": id, "events": events})
}
