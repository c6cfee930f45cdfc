package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrWong99/betterspeak/internal/capture"
	"github.com/MrWong99/betterspeak/internal/detect"
	"github.com/MrWong99/betterspeak/internal/observe"
	"github.com/MrWong99/betterspeak/internal/results"
	"github.com/MrWong99/betterspeak/internal/sink"
	"github.com/MrWong99/betterspeak/pkg/audio"
)

// maxTextBytes bounds the reference text body.
const maxTextBytes = 64 << 10

type errorBody struct {
	Error string `json:"error"`
}

type stateBody struct {
	State string `json:"state"`
}

type textRequest struct {
	Text string `json:"text"`
}

type textResponse struct {
	Syllables int `json:"syllables"`
}

type saveResponse struct {
	Location string `json:"location"`
}

type historyResponse struct {
	Runs []detect.SessionMetrics `json:"runs"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.sess.Start(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateBody{State: capture.StateRunning.String()})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.sess.Stop(); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateBody{State: capture.StateStopped.String()})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	st, err := s.sess.Pause(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateBody{State: st.String()})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.sess.Reset(); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleText accepts either a JSON body {"text": "..."} or plain text.
func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTextBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "text too large"})
		return
	}

	text := string(body)
	if ct := r.Header.Get("Content-Type"); strings.HasPrefix(ct, "application/json") {
		var req textRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON: " + err.Error()})
			return
		}
		text = req.Text
	}

	n := s.sess.SetText(text)
	writeJSON(w, http.StatusOK, textResponse{Syllables: n})
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	m, err := s.sess.Detect(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	if err := s.sess.Play(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	loc, err := s.sess.Save(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saveResponse{Location: loc})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Status())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := results.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	runs, err := s.sess.History(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []detect.SessionMetrics{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Runs: runs})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	m, err := s.sess.Result(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, capture.ErrAlreadyRunning),
		errors.Is(err, detect.ErrAlreadyRunning),
		errors.Is(err, sink.ErrAlreadyInProgress):
		return http.StatusConflict
	case errors.Is(err, sink.ErrEmptyRecording):
		return http.StatusUnprocessableEntity
	case errors.Is(err, results.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, audio.ErrDevice):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := observe.Logger(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "status", status, "err", err)
	} else {
		log.Debug("request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
