package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/snehjoshi/epochsim/internal/catalog"
	"github.com/snehjoshi/epochsim/internal/scenario"
	"github.com/snehjoshi/epochsim/internal/scheduler"
	"github.com/snehjoshi/epochsim/internal/session"
	"github.com/snehjoshi/epochsim/internal/simulator"
)

// Handler groups all HTTP request handlers around a session Manager.
type Handler struct {
	sessions *session.Manager
	presets  *scenario.Store // nil when no data dir is configured
}

// ─── DTOs ─────────────────────────────────────────────────────────────────────

type healthResp struct {
	Status     string   `json:"status"`
	Sessions   int      `json:"sessions"`
	Algorithms []string `json:"algorithms"`
	Uptime     string   `json:"uptime"`
	UptimeMs   int64    `json:"uptime_ms"`
	Version    string   `json:"version"`
}

type algorithmResp struct {
	Name   string           `json:"name"`
	Schema scheduler.Schema `json:"schema"`
}

type sessionSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Algorithm string    `json:"algorithm"`
	Time      int       `json:"time"`
	Playing   bool      `json:"playing"`
	Finished  bool      `json:"finished"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionListResp struct {
	Sessions []sessionSummary `json:"sessions"`
}

type backResp struct {
	session.View
	Taken int `json:"taken"`
}

type scenarioListResp struct {
	Scenarios []*scenario.Scenario `json:"scenarios"`
}

// ─── Health & catalog ─────────────────────────────────────────────────────────

var startTime = time.Now()

// Version is reported by /health.
const Version = "1.0.0"

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	elapsed := time.Since(startTime)
	writeJSON(w, http.StatusOK, healthResp{
		Status:     "ok",
		Sessions:   len(h.sessions.List()),
		Algorithms: h.sessions.Catalog().Names(),
		Uptime:     elapsed.Round(time.Second).String(),
		UptimeMs:   elapsed.Milliseconds(),
		Version:    Version,
	})
}

func (h *Handler) listAlgorithms(w http.ResponseWriter, r *http.Request) {
	descs := h.sessions.Catalog().All()
	out := make([]algorithmResp, 0, len(descs))
	for _, d := range descs {
		out = append(out, algorithmResp{Name: d.Name(), Schema: d.Schema()})
	}
	writeJSON(w, http.StatusOK, out)
}

// ─── Sessions ─────────────────────────────────────────────────────────────────

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	sc, ok := decodeScenario(w, r)
	if !ok {
		return
	}
	h.startSession(w, sc)
}

func (h *Handler) createSessionFromPreset(w http.ResponseWriter, r *http.Request) {
	sc, err := h.presets.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	h.startSession(w, sc)
}

func (h *Handler) startSession(w http.ResponseWriter, sc *scenario.Scenario) {
	s, err := h.sessions.Create(sc)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, s.View())
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	list := h.sessions.List()
	out := sessionListResp{Sessions: make([]sessionSummary, 0, len(list))}
	for _, s := range list {
		v := s.View()
		out.Sessions = append(out.Sessions, sessionSummary{
			ID:        v.ID,
			Name:      v.Name,
			Algorithm: v.Algorithm,
			Time:      v.Time,
			Playing:   v.Playing,
			Finished:  v.Finished,
			CreatedAt: s.CreatedAt(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Stepping ─────────────────────────────────────────────────────────────────

func (h *Handler) tick(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	n, ok := stepsParam(w, r)
	if !ok {
		return
	}
	v, err := s.Tick(n)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) back(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	n, ok := stepsParam(w, r)
	if !ok {
		return
	}
	v, taken, err := s.Back(n)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, backResp{View: v, Taken: taken})
}

func (h *Handler) play(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := s.Play(); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

func (h *Handler) pause(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	s.Pause()
	writeJSON(w, http.StatusOK, s.View())
}

// ─── Processes ────────────────────────────────────────────────────────────────

func (h *Handler) createProcess(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var fields scenario.Fields
	if !decodeJSON(w, r, &fields) {
		return
	}
	rec, err := s.CreateProcess(fields)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) killProcess(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	pid, err := strconv.Atoi(chi.URLParam(r, "pid"))
	if err != nil || pid < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pid must be a positive integer"})
		return
	}
	if err := s.Kill(pid); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Scenario presets ─────────────────────────────────────────────────────────

func (h *Handler) saveScenario(w http.ResponseWriter, r *http.Request) {
	sc, ok := decodeScenario(w, r)
	if !ok {
		return
	}
	if err := sc.Validate(h.sessions.Catalog()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if err := h.presets.Put(sc); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

func (h *Handler) listScenarios(w http.ResponseWriter, r *http.Request) {
	list, err := h.presets.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []*scenario.Scenario{}
	}
	writeJSON(w, http.StatusOK, scenarioListResp{Scenarios: list})
}

func (h *Handler) getScenario(w http.ResponseWriter, r *http.Request) {
	sc, err := h.presets.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (h *Handler) deleteScenario(w http.ResponseWriter, r *http.Request) {
	if err := h.presets.Delete(chi.URLParam(r, "name")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return nil, false
	}
	return s, true
}

// stepsParam reads ?n=, defaulting to one step. Range checks happen in the
// session so the configured maximum applies.
func stepsParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("n")
	if raw == "" {
		return 1, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "n must be an integer"})
		return 0, false
	}
	return n, true
}

// statusFor maps package sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrClosed),
		errors.Is(err, scenario.ErrNotFound),
		errors.Is(err, simulator.ErrProcessNotFound):
		return http.StatusNotFound
	case errors.Is(err, simulator.ErrDuplicateID),
		errors.Is(err, session.ErrHistoryFull):
		return http.StatusConflict
	case errors.Is(err, session.ErrTooManySessions),
		errors.Is(err, session.ErrTooManyProcesses):
		return http.StatusTooManyRequests
	case errors.Is(err, scenario.ErrInvalid),
		errors.Is(err, scenario.ErrInvalidName),
		errors.Is(err, session.ErrSteps),
		errors.Is(err, simulator.ErrInvalidProcess),
		errors.Is(err, catalog.ErrUnknownAlgorithm):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// decodeScenario reads a scenario document. YAML is a superset of JSON, so
// both content types go through scenario.Parse.
func decodeScenario(w http.ResponseWriter, r *http.Request) (*scenario.Scenario, bool) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body: " + err.Error()})
		return nil, false
	}
	sc, err := scenario.Parse(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	return sc, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid json: %v", err)})
		return false
	}
	return true
}
