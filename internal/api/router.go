package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/churchdesk/internal/forms"
	"github.com/kalambet/churchdesk/internal/session"
	"github.com/kalambet/churchdesk/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds everything the HTTP handlers need.
type Deps struct {
	Schemas   storage.SchemaStore
	Responses storage.ResponseStore
	Token     string

	Sessions *session.Registry[*forms.Session]
	Drafts   *session.Registry[*forms.DraftForm]

	Clock   forms.Clock         // optional; defaults to forms.SystemClock
	Metrics *Metrics            // optional; defaults to a fresh registry
	Logger  *slog.Logger        // optional; defaults to slog.Default()
	LinkFor func(string) string // optional; public link for a form id
}

func (d *Deps) setDefaults() {
	if d.Clock == nil {
		d.Clock = forms.SystemClock
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.LinkFor == nil {
		d.LinkFor = func(id string) string { return "/?id=" + id }
	}
}

// NewRouter returns the full HTTP surface: health and metrics, the public
// fill endpoints, and the bearer-protected admin endpoints.
func NewRouter(deps Deps) http.Handler {
	deps.setDefaults()

	r := chi.NewRouter()
	r.Get("/health", handleHealth)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Route("/public", func(r chi.Router) {
		r.Get("/forms", handleOpenForm(deps))
		r.Post("/forms/{id}/responses", handleSubmitResponse(deps))
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/forms", handleListForms(deps))
		r.Post("/forms", handleCreateForm(deps))
		r.Get("/forms/{id}", handleGetForm(deps))
		r.Delete("/forms/{id}", handleDeleteForm(deps))
		r.Post("/forms/{id}/activate", handleSetActive(deps, true))
		r.Post("/forms/{id}/deactivate", handleSetActive(deps, false))
		r.Get("/forms/{id}/responses", handleListResponses(deps))
		r.Get("/forms/{id}/export", handleExport(deps))

		r.Post("/drafts", handleCreateDraft(deps))
		r.Get("/drafts/{id}", handleGetDraft(deps))
		r.Post("/drafts/{id}/fields", handleAddField(deps))
		r.Delete("/drafts/{id}/fields/{index}", handleRemoveField(deps))
		r.Post("/drafts/{id}/publish", handlePublishDraft(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}
