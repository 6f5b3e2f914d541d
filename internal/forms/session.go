package forms

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ResponseAppender persists a validated response.
type ResponseAppender interface {
	AppendResponse(ctx context.Context, r Response) error
}

// State is the lifecycle of a fill session.
type State int

const (
	// Editable accepts submissions.
	Editable State = iota
	// Submitted is terminal: the session already produced a response.
	Submitted
)

func (s State) String() string {
	switch s {
	case Editable:
		return "editable"
	case Submitted:
		return "submitted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Session is one end user filling one form. It accepts exactly one
// successful submission; failed validation or storage leaves it Editable.
type Session struct {
	schema Schema
	store  ResponseAppender
	clock  Clock

	mu         sync.Mutex
	state      State
	responseID string
}

// NewSession opens a fill session for s. Inactive forms are refused.
func NewSession(s Schema, store ResponseAppender, clock Clock) (*Session, error) {
	if !s.Active {
		return nil, ErrInactive
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Session{schema: s, store: store, clock: clock}, nil
}

// Schema returns the form being filled.
func (s *Session) Schema() Schema { return s.schema }

// Controls returns the capture contract for the session's form.
func (s *Session) Controls() []Control {
	return Render(s.schema, s.clock.Now())
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ResponseID returns the id of the stored response once Submitted.
func (s *Session) ResponseID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responseID
}

// Submit validates values (keyed by field id), appends the response and
// moves the session to Submitted.
func (s *Session) Submit(ctx context.Context, values map[string]any) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Submitted {
		return Response{}, ErrAlreadySubmitted
	}

	now := s.clock.Now()
	answers, err := Capture(s.schema, values, now)
	if err != nil {
		return Response{}, err
	}

	r := Response{
		ID:          uuid.New().String(),
		FormID:      s.schema.ID,
		Answers:     answers,
		SubmittedAt: NewTimestamp(now),
	}
	if err := s.store.AppendResponse(ctx, r); err != nil {
		return Response{}, fmt.Errorf("saving response: %w", err)
	}

	s.state = Submitted
	s.responseID = r.ID
	return r, nil
}
