package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/churchdesk/internal/forms"
)

// FormSummary is one row of the admin form list.
type FormSummary struct {
	ID          string          `json:"id"`
	Title       string          `json:"titulo"`
	Description string          `json:"descricao"`
	CreatedAt   forms.Timestamp `json:"criado_em"`
	Active      bool            `json:"ativo"`
	Fields      int             `json:"num_campos"`
	Responses   int             `json:"respostas"`
	Link        string          `json:"link"`
}

// PublishResult is returned when a form is created.
type PublishResult struct {
	ID   string `json:"id"`
	Link string `json:"link"`
}

func handleListForms(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		schemas, err := deps.Schemas.ListSchemas(r.Context())
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		counts, err := deps.Responses.CountByForm(r.Context())
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}

		out := make([]FormSummary, 0, len(schemas))
		for _, s := range schemas {
			out = append(out, FormSummary{
				ID:          s.ID,
				Title:       s.Title,
				Description: s.Description,
				CreatedAt:   s.CreatedAt,
				Active:      s.Active,
				Fields:      len(s.Fields),
				Responses:   counts[s.ID],
				Link:        deps.LinkFor(s.ID),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleCreateForm publishes a form from a YAML or JSON definition body.
func handleCreateForm(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		def, err := forms.ParseDefinition(r.Body)
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		id, err := def.Publish(r.Context(), deps.Schemas, deps.Clock)
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		deps.Metrics.FormsPublished.Inc()
		deps.Logger.Info("form published", "form_id", id, "title", def.Title)
		writeJSON(w, http.StatusCreated, PublishResult{ID: id, Link: deps.LinkFor(id)})
	}
}

func handleGetForm(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Schemas.GetSchema(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// handleDeleteForm removes the form definition. Its responses are kept.
func handleDeleteForm(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := deps.Schemas.RemoveSchema(r.Context(), id); err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		deps.Metrics.FormsRemoved.Inc()
		deps.Logger.Info("form deleted", "form_id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSetActive(deps Deps, active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := deps.Schemas.SetActive(r.Context(), id, active); err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleListResponses returns a form's responses, newest first. A deleted
// form's responses are still listed.
func handleListResponses(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rs, err := forms.CollectResponses(deps.Responses.Responses(r.Context(), chi.URLParam(r, "id")))
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		forms.SortNewestFirst(rs)
		if rs == nil {
			rs = []forms.Response{}
		}
		writeJSON(w, http.StatusOK, rs)
	}
}

func handleExport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		format := r.URL.Query().Get("format")
		if format == "" {
			format = forms.FormatCSV
		}
		if format != forms.FormatCSV && format != forms.FormatTSV {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unsupported export format %q (want csv or tsv)", format)
			return
		}

		var schema *forms.Schema
		s, err := deps.Schemas.GetSchema(r.Context(), id)
		switch {
		case err == nil:
			schema = &s
		case !errors.Is(err, forms.ErrNotFound):
			writeError(w, deps.Logger, err)
			return
		}

		rs, err := forms.CollectResponses(deps.Responses.Responses(r.Context(), id))
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}

		var buf bytes.Buffer
		if err := forms.WriteTable(&buf, forms.Flatten(schema, rs), format); err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		w.Header().Set("Content-Type", forms.ContentType(format))
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "respostas_"+id+"."+format))
		w.Write(buf.Bytes())
	}
}
