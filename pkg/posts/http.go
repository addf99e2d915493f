package posts

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"github.com/instapod/platform/pkg/common/database"
	"github.com/instapod/platform/pkg/common/logger"
	"github.com/instapod/platform/pkg/common/models"
)

type HTTPHandler struct {
	service      *Service
	redirectBase string
}

func NewHTTPHandler(service *Service, redirectBase string) *HTTPHandler {
	return &HTTPHandler{service: service, redirectBase: strings.TrimRight(redirectBase, "/")}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/posts/recent", h.handleRecentIDs).Methods(http.MethodGet)
	router.HandleFunc("/posts/recent/full", h.handleRecentFull).Methods(http.MethodGet)
	router.HandleFunc("/posts/publish", h.handlePublish).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/posts/open", h.handleOpen).Methods(http.MethodGet)
}

// InvalidTopicMessage is the refusal text sent for an absent or unknown topic.
func InvalidTopicMessage() string {
	return fmt.Sprintf("Invalid topic. Allowed topics on this server are : %s", AllowedTopics())
}

// WriteInvalidTopic answers 403 with the list of allowed topics.
func WriteInvalidTopic(w http.ResponseWriter) {
	http.Error(w, InvalidTopicMessage(), http.StatusForbidden)
}

// WriteStoreError maps a read-path storage failure to a status code.
func WriteStoreError(w http.ResponseWriter, err error, action string) {
	if errors.Is(err, database.ErrStoreUnavailable) {
		logger.Log.WithError(err).Error("store unavailable while " + action)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	logger.Log.WithError(err).Error("failed " + action)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (h *HTTPHandler) handleRecentIDs(w http.ResponseWriter, r *http.Request) {
	records, ok := h.recent(w, r)
	if !ok {
		return
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.RawID)
	}
	writeJSON(w, http.StatusOK, ids)
}

func (h *HTTPHandler) handleRecentFull(w http.ResponseWriter, r *http.Request) {
	records, ok := h.recent(w, r)
	if !ok {
		return
	}
	views := make([]models.SubmissionView, 0, len(records))
	for _, rec := range records {
		views = append(views, ToView(rec))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *HTTPHandler) recent(w http.ResponseWriter, r *http.Request) ([]Record, bool) {
	records, err := h.service.Recent(r.Context(), r.URL.Query().Get("topic"))
	if err != nil {
		if errors.Is(err, ErrInvalidTopic) {
			WriteInvalidTopic(w)
			return nil, false
		}
		WriteStoreError(w, err, "listing recent posts")
		return nil, false
	}
	return records, true
}

func (h *HTTPHandler) handlePublish(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.service.Publish(r.Context(), q.Get("topic"), q.Get("postid"), q.Get("mode"))
	if err != nil {
		entry := logger.Log.WithError(err).WithField("postid", q.Get("postid"))
		if IsRejection(err) {
			entry.Warn("publish rejected")
		} else {
			entry.Error("publish failed")
		}
		http.Error(w, rejectionMessage(err), http.StatusForbidden)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		writeJSON(w, http.StatusOK, models.PublishResponse{
			Key:      result.Key,
			RawID:    result.RawID,
			Identity: result.Identity,
			Topic:    string(result.Topic),
			Mode:     string(result.Mode),
		})
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "hashed: %s actual: %s username: %s", result.Key, result.RawID, result.Identity)
}

func (h *HTTPHandler) handleOpen(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := q.Get("key")
	if key == "" {
		key = q.Get("hashedpostid")
	}

	rec, err := h.service.Lookup(r.Context(), q.Get("topic"), key)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidTopic):
			WriteInvalidTopic(w)
		case errors.Is(err, ErrNotFound):
			http.Error(w, "post not found", http.StatusNotFound)
		default:
			WriteStoreError(w, err, "looking up post")
		}
		return
	}

	http.Redirect(w, r, h.redirectBase+"/"+url.PathEscape(rec.RawID), http.StatusFound)
}

func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTopic):
		return InvalidTopicMessage()
	case errors.Is(err, ErrInvalidID):
		return "Invalid post id"
	case errors.Is(err, ErrIdentityResolution):
		return "Unable to load username"
	case errors.Is(err, ErrQuotaExceeded):
		return "Daily Pod Publish limit reached in this server" + strings.TrimPrefix(err.Error(), ErrQuotaExceeded.Error())
	default:
		return "Unable to publish post"
	}
}

// ToView converts a record to its API representation.
func ToView(rec Record) models.SubmissionView {
	return models.SubmissionView{
		Topic:        string(rec.Topic),
		Key:          rec.Key,
		RawID:        rec.RawID,
		Mode:         string(rec.Mode),
		Identity:     rec.Identity,
		LastModified: rec.LastModified,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Warn("failed to encode response")
	}
}
