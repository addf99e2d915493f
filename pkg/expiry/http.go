package expiry

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/instapod/platform/pkg/common/logger"
	"github.com/instapod/platform/pkg/posts"
)

const maxHistory = 100

type HTTPHandler struct {
	sweeper *Sweeper
}

func NewHTTPHandler(sweeper *Sweeper) *HTTPHandler {
	return &HTTPHandler{sweeper: sweeper}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/posts/expire", h.handleExpire).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/sweeps", h.handleHistory).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleExpire(w http.ResponseWriter, r *http.Request) {
	topic, err := posts.ParseTopic(r.URL.Query().Get("topic"))
	if err != nil {
		posts.WriteInvalidTopic(w)
		return
	}

	entries, err := h.sweeper.Sweep(r.Context(), topic)
	if err != nil {
		posts.WriteStoreError(w, err, "sweeping "+string(topic))
		return
	}

	report := make([]string, 0, len(entries))
	for _, e := range entries {
		report = append(report, e.String())
	}
	writeJSON(w, http.StatusOK, report)
}

type runView struct {
	ID         string  `json:"id"`
	Topic      string  `json:"topic"`
	Deleted    int     `json:"deleted"`
	Kept       int     `json:"kept"`
	Entries    []Entry `json:"entries"`
	StartedAt  string  `json:"started_at"`
	FinishedAt string  `json:"finished_at"`
}

func (h *HTTPHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	topic, err := posts.ParseTopic(r.URL.Query().Get("topic"))
	if err != nil {
		posts.WriteInvalidTopic(w)
		return
	}
	runs := h.sweeper.RunLog()
	if runs == nil {
		http.Error(w, "sweep history disabled", http.StatusNotFound)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	if limit > maxHistory {
		limit = maxHistory
	}

	history, err := runs.Recent(r.Context(), topic, limit)
	if err != nil {
		posts.WriteStoreError(w, err, "listing sweep runs")
		return
	}

	views := make([]runView, 0, len(history))
	for _, run := range history {
		deleted, kept := run.Counts()
		views = append(views, runView{
			ID:         run.ID.String(),
			Topic:      string(run.Topic),
			Deleted:    deleted,
			Kept:       kept,
			Entries:    run.Entries,
			StartedAt:  run.StartedAt.Format(time.RFC3339),
			FinishedAt: run.FinishedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Warn("failed to encode response")
	}
}
