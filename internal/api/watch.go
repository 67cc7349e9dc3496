package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codeofpride/drillcore/internal/trace"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
}

// watchSubmit is the first (and only) message the client sends.
type watchSubmit struct {
	Script string `json:"script"`
}

// watchFrame is each message the server streams back.
type watchFrame struct {
	Type string `json:"type"` // "event" or "result"

	Event *trace.Event `json:"event,omitempty"`

	RunID   string `json:"run_id,omitempty"`
	Verdict string `json:"verdict,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

const (
	watchSubmitTimeout = 10 * time.Second
	watchWriteTimeout  = 5 * time.Second
)

// handleWatch runs a script and streams every trace event over a
// websocket, ending with a result frame. The run still persists like
// a plain POST /runs.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	levelID, err := strconv.Atoi(r.URL.Query().Get("level_id"))
	if err != nil || levelID < 1 {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "level_id query parameter is required", nil)
		return
	}
	lv, ok := s.pack.ByID(levelID)
	if !ok {
		s.writeError(w, r, http.StatusNotFound, ErrTypeNotFound, "level not found", map[string]any{"level_id": levelID})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(watchSubmitTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return
	}
	var sub watchSubmit
	if err := json.Unmarshal(msg, &sub); err != nil || sub.Script == "" {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected {\"script\": ...}"),
			time.Now().Add(time.Second))
		return
	}
	if len(sub.Script) > maxScriptBytes {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseMessageTooBig, "script too large"),
			time.Now().Add(time.Second))
		return
	}

	writeFrame := func(f watchFrame) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
		return conn.WriteJSON(f) == nil
	}

	rec, res, err := s.executeRun(r.Context(), lv, sub.Script, func(ev trace.Event) {
		writeFrame(watchFrame{Type: "event", Event: &ev})
	})
	if err != nil {
		s.logger.Printf("watch_run_failed level=%d error=%v", levelID, err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "run failed"),
			time.Now().Add(time.Second))
		return
	}

	writeFrame(watchFrame{
		Type:    "result",
		RunID:   rec.ID,
		Verdict: string(res.Verdict),
		Reason:  res.Reason,
	})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
