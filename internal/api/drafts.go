package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/churchdesk/internal/forms"
)

type draftView struct {
	ID     string        `json:"draft_id"`
	Fields []forms.Field `json:"fields"`
}

type addFieldRequest struct {
	Kind     string `json:"kind"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
	// Choices is the comma-separated choice list of a single-choice field.
	Choices string `json:"choices"`
}

type publishRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func handleCreateDraft(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := deps.Drafts.Put(forms.NewDraftWithClock(deps.Clock))
		writeJSON(w, http.StatusCreated, draftView{ID: id, Fields: []forms.Field{}})
	}
}

func handleGetDraft(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var fields []forms.Field
		err := deps.Drafts.Do(id, func(d *forms.DraftForm) error {
			fields = d.Fields()
			return nil
		})
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		if fields == nil {
			fields = []forms.Field{}
		}
		writeJSON(w, http.StatusOK, draftView{ID: id, Fields: fields})
	}
}

func handleAddField(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addFieldRequest
		if !decodeBody(w, r, &req) {
			return
		}
		kind, err := forms.ParseKind(req.Kind)
		if err != nil {
			writeError(w, deps.Logger, &forms.ValidationError{Message: err.Error()})
			return
		}

		var field forms.Field
		err = deps.Drafts.Do(chi.URLParam(r, "id"), func(d *forms.DraftForm) error {
			var err error
			field, err = d.AddField(forms.Candidate{
				Kind:        kind,
				Label:       req.Label,
				Required:    req.Required,
				ChoicesText: req.Choices,
			})
			return err
		})
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, field)
	}
}

func handleRemoveField(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid field index %q", chi.URLParam(r, "index"))
			return
		}
		err = deps.Drafts.Do(chi.URLParam(r, "id"), func(d *forms.DraftForm) error {
			return d.RemoveField(index)
		})
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePublishDraft publishes the draft. The emptied draft stays available
// for authoring the next form.
func handlePublishDraft(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req publishRequest
		if !decodeBody(w, r, &req) {
			return
		}

		var formID string
		err := deps.Drafts.Do(chi.URLParam(r, "id"), func(d *forms.DraftForm) error {
			var err error
			formID, err = d.Publish(r.Context(), deps.Schemas, req.Title, req.Description)
			return err
		})
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		deps.Metrics.FormsPublished.Inc()
		deps.Logger.Info("form published", "form_id", formID, "title", req.Title)
		writeJSON(w, http.StatusCreated, PublishResult{ID: formID, Link: deps.LinkFor(formID)})
	}
}
