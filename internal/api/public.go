package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/churchdesk/internal/forms"
	"github.com/kalambet/churchdesk/internal/session"
)

type formHeader struct {
	ID          string `json:"id"`
	Title       string `json:"titulo"`
	Description string `json:"descricao"`
}

type openFormResponse struct {
	SessionID string          `json:"session_id"`
	Form      formHeader      `json:"form"`
	Controls  []forms.Control `json:"controls"`
}

type submitRequest struct {
	SessionID string         `json:"session_id"`
	Answers   map[string]any `json:"answers"`
}

// handleOpenForm resolves ?id= to an active form, opens a fill session for
// it and returns the capture contract.
func handleOpenForm(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no form specified; use ?id=<form id>")
			return
		}

		schema, err := deps.Schemas.GetSchema(r.Context(), id)
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}

		sess, err := forms.NewSession(schema, deps.Responses, deps.Clock)
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		sessionID := deps.Sessions.Put(sess)
		deps.Metrics.SessionsOpened.Inc()

		writeJSON(w, http.StatusOK, openFormResponse{
			SessionID: sessionID,
			Form:      formHeader{ID: schema.ID, Title: schema.Title, Description: schema.Description},
			Controls:  sess.Controls(),
		})
	}
}

func handleSubmitResponse(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formID := chi.URLParam(r, "id")

		var req submitRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.SessionID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "session_id is required")
			return
		}

		var resp forms.Response
		err := deps.Sessions.Do(req.SessionID, func(s *forms.Session) error {
			if s.Schema().ID != formID {
				return session.ErrUnknown
			}
			// Deactivation also closes sessions opened before it. A deleted
			// form keeps its open sessions.
			current, err := deps.Schemas.GetSchema(r.Context(), formID)
			switch {
			case err == nil && !current.Active:
				return forms.ErrInactive
			case err != nil && !errors.Is(err, forms.ErrNotFound):
				return err
			}
			resp, err = s.Submit(r.Context(), req.Answers)
			return err
		})

		deps.Metrics.Submissions.WithLabelValues(submissionOutcome(err)).Inc()
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}

		deps.Logger.Info("response recorded", "form_id", formID, "response_id", resp.ID)
		writeJSON(w, http.StatusCreated, map[string]string{"response_id": resp.ID})
	}
}

func submissionOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeAccepted
	case forms.IsValidation(err):
		return outcomeInvalid
	case errors.Is(err, forms.ErrAlreadySubmitted):
		return outcomeDuplicate
	case errors.Is(err, session.ErrUnknown):
		return outcomeUnknown
	case errors.Is(err, forms.ErrInactive):
		return outcomeInactive
	default:
		return outcomeFailed
	}
}
