package posts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/instapod/platform/pkg/common/models"
)

func newTestRouter(store Store, admitter Admitter) *mux.Router {
	svc := NewService(store, staticResolver("pod.member"), admitter)
	router := mux.NewRouter()
	NewHTTPHandler(svc, "https://instagram.com/p/").Register(router)
	return router
}

func serve(router http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlePublishText(t *testing.T) {
	router := newTestRouter(NewMemoryStore(), &countingAdmitter{allow: true})

	rec := serve(router, http.MethodPost, "/posts/publish?postid=abc&topic=food", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	key, _ := DeriveKey("abc")
	want := "hashed: " + key + " actual: abc username: pod.member"
	if rec.Body.String() != want {
		t.Fatalf("unexpected body %q, want %q", rec.Body.String(), want)
	}
}

func TestHandlePublishJSON(t *testing.T) {
	router := newTestRouter(NewMemoryStore(), &countingAdmitter{allow: true})

	rec := serve(router, http.MethodGet, "/posts/publish?postid=abc&topic=food&mode=heavy", map[string]string{"Accept": "application/json"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp models.PublishResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Mode != "heavy" || resp.RawID != "abc" || resp.Identity != "pod.member" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestHandlePublishRejections(t *testing.T) {
	cases := []struct {
		name     string
		target   string
		admitter *countingAdmitter
		contains string
	}{
		{"invalid topic", "/posts/publish?postid=abc&topic=music", &countingAdmitter{allow: true}, "Allowed topics on this server are : general,beauty,food,travel,sports,entertainment"},
		{"missing id", "/posts/publish?topic=food", &countingAdmitter{allow: true}, "Invalid post id"},
		{"quota", "/posts/publish?postid=abc&topic=food", &countingAdmitter{allow: false}, "Daily Pod Publish limit reached in this server for username: pod.member"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(NewMemoryStore(), tc.admitter)
			rec := serve(router, http.MethodPost, tc.target, nil)
			if rec.Code != http.StatusForbidden {
				t.Fatalf("expected 403, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tc.contains) {
				t.Fatalf("expected body to contain %q, got %q", tc.contains, rec.Body.String())
			}
		})
	}
}

func TestHandleRecent(t *testing.T) {
	store := NewMemoryStore()
	router := newTestRouter(store, &countingAdmitter{allow: true})
	serve(router, http.MethodPost, "/posts/publish?postid=abc&topic=food", nil)
	serve(router, http.MethodPost, "/posts/publish?postid=abc&topic=food", nil)
	serve(router, http.MethodPost, "/posts/publish?postid=def&topic=food", nil)

	rec := serve(router, http.MethodGet, "/posts/recent?topic=food", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var ids []string
	if err := json.NewDecoder(rec.Body).Decode(&ids); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected two ids, got %v", ids)
	}

	rec = serve(router, http.MethodGet, "/posts/recent/full?topic=food", nil)
	var views []models.SubmissionView
	if err := json.NewDecoder(rec.Body).Decode(&views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 2 || views[0].Mode != "normal" {
		t.Fatalf("unexpected views %+v", views)
	}

	rec = serve(router, http.MethodGet, "/posts/recent", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for missing topic, got %d", rec.Code)
	}
}

func TestHandleOpen(t *testing.T) {
	store := NewMemoryStore()
	router := newTestRouter(store, &countingAdmitter{allow: true})
	key, _ := DeriveKey("Bx12")
	store.Upsert(context.Background(), Record{Topic: TopicTravel, Key: key, RawID: "Bx12", Mode: ModeNormal})

	rec := serve(router, http.MethodGet, "/posts/open?topic=travel&key="+key, nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://instagram.com/p/Bx12" {
		t.Fatalf("unexpected redirect %q", loc)
	}

	rec = serve(router, http.MethodGet, "/posts/open?topic=travel&key=missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = serve(router, http.MethodGet, "/posts/open?topic=travel&hashedpostid="+key, nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("expected legacy parameter to redirect, got %d", rec.Code)
	}
}
