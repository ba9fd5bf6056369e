package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Dicklesworthstone/sysmon/internal/history"
	"github.com/Dicklesworthstone/sysmon/internal/model"
	"github.com/Dicklesworthstone/sysmon/internal/sampler"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type HistoryResponse struct {
	CPU     []history.Point `json:"cpu"`
	RAM     []history.Point `json:"ram"`
	Storage []history.Point `json:"storage"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Subscribers int            `json:"subscribers"`
	Session     *SessionReport `json:"session,omitempty"`
}

type SessionReport struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Stats any    `json:"stats"`
}

type TerminateResponse struct {
	OK bool `json:"ok"`
}

type handler struct {
	deps   Deps
	logger *slog.Logger
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Subscribers: h.deps.Broker.Subscribers()}
	if !h.deps.Broker.Alive() {
		resp.Status = "closed"
	}
	if s := h.deps.Session; s != nil {
		resp.Session = &SessionReport{ID: s.ID(), State: s.State().String(), Stats: s.Stats()}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *handler) static(w http.ResponseWriter, r *http.Request) {
	if h.deps.Info == nil {
		respondJSONError(w, http.StatusServiceUnavailable, "static info not available")
		return
	}
	info, err := h.deps.Info.StaticInfo(r.Context())
	if err != nil {
		h.logger.Warn("static info failed", "err", err)
		respondJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (h *handler) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.deps.Broker.Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	t := h.deps.History
	if t == nil {
		respondJSONError(w, http.StatusServiceUnavailable, "history not recorded")
		return
	}
	respondJSON(w, http.StatusOK, HistoryResponse{
		CPU:     t.CPU().Points(),
		RAM:     t.RAM().Points(),
		Storage: t.Storage().Points(),
	})
}

// stream writes one server-sent event per published snapshot, starting with
// the latest one if any.
func (h *handler) stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ch := make(chan model.Snapshot, 16)
	stop := make(chan struct{})
	latest, haveLatest, unsub, err := h.deps.Broker.SubscribeLatest(func(s model.Snapshot) {
		select {
		case ch <- s:
		case <-ctx.Done():
		case <-stop:
		}
	})
	if err != nil {
		respondJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	defer func() {
		close(stop)
		unsub()
	}()

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Debug("stream not flushable", "err", err)
		return
	}

	if haveLatest {
		if err := writeEvent(w, rc, latest); err != nil {
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.deps.Broker.Done():
			return
		case snap := <-ch:
			if err := writeEvent(w, rc, snap); err != nil {
				h.logger.Debug("stream client gone", "err", err)
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, snap model.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
		return err
	}
	return rc.Flush()
}

func (h *handler) terminate(w http.ResponseWriter, r *http.Request) {
	if h.deps.Terminator == nil {
		respondJSONError(w, http.StatusServiceUnavailable, "terminate not available")
		return
	}
	pid, err := strconv.ParseInt(chi.URLParam(r, "pid"), 10, 32)
	if err != nil || pid <= 0 {
		respondJSONError(w, http.StatusBadRequest, "invalid pid")
		return
	}
	ok, err := h.deps.Terminator.Terminate(r.Context(), int32(pid))
	if err != nil {
		if errors.Is(err, sampler.ErrInvalidPID) {
			respondJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Warn("terminate failed", "pid", pid, "err", err)
		respondJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, TerminateResponse{OK: ok})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondJSONError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}
