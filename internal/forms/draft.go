package forms

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// SchemaAppender persists a newly published schema.
type SchemaAppender interface {
	AppendSchema(ctx context.Context, s Schema) error
}

// Candidate is a field as entered by the administrator, before validation.
// The options of a SingleChoice field come from Choices when it is set,
// otherwise from the comma-separated ChoicesText. Items of Choices may
// themselves contain commas.
type Candidate struct {
	Kind        Kind
	Label       string
	Required    bool
	ChoicesText string
	Choices     []string
}

// DraftForm holds the fields of a form being authored. It is never
// persisted; Publish turns it into a Schema. A DraftForm is not safe for
// concurrent use.
type DraftForm struct {
	fields []Field
	clock  Clock
}

// NewDraft returns an empty draft using the wall clock.
func NewDraft() *DraftForm {
	return NewDraftWithClock(SystemClock)
}

// NewDraftWithClock returns an empty draft stamped by clock on publish.
func NewDraftWithClock(clock Clock) *DraftForm {
	return &DraftForm{clock: clock}
}

// ParseChoices splits a comma-separated list, trimming whitespace and
// dropping empty entries.
func ParseChoices(text string) []string {
	return trimChoices(strings.Split(text, ","))
}

func trimChoices(items []string) []string {
	var out []string
	for _, item := range items {
		if p := strings.TrimSpace(item); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// AddField validates c and appends it with a fresh id.
func (d *DraftForm) AddField(c Candidate) (Field, error) {
	label := strings.TrimSpace(c.Label)
	if label == "" {
		return Field{}, invalid("field label must not be empty")
	}
	if !c.Kind.Valid() {
		return Field{}, invalid(fmt.Sprintf("unknown field kind %q", c.Kind))
	}

	f := Field{
		ID:       uuid.New().String(),
		Kind:     c.Kind,
		Label:    label,
		Required: c.Required,
	}
	if c.Kind == KindSingleChoice {
		choices := trimChoices(c.Choices)
		if c.Choices == nil {
			choices = ParseChoices(c.ChoicesText)
		}
		if len(choices) == 0 {
			return Field{}, invalid("a choice field needs at least one option")
		}
		if slices.Contains(choices, Placeholder) {
			return Field{}, invalid(fmt.Sprintf("%q is reserved and cannot be an option", Placeholder))
		}
		f.Choices = choices
	}

	d.fields = append(d.fields, f)
	return f, nil
}

// RemoveField deletes the field at index.
func (d *DraftForm) RemoveField(index int) error {
	if index < 0 || index >= len(d.fields) {
		return &IndexError{Index: index, Len: len(d.fields)}
	}
	d.fields = slices.Delete(d.fields, index, index+1)
	return nil
}

// Fields returns a copy of the fields added so far.
func (d *DraftForm) Fields() []Field {
	out := make([]Field, len(d.fields))
	for i, f := range d.fields {
		f.Choices = slices.Clone(f.Choices)
		out[i] = f
	}
	return out
}

func (d *DraftForm) Len() int { return len(d.fields) }

// Publish builds an active Schema from the draft, appends it to store and
// clears the draft. The draft is left untouched when validation or the
// store fails.
func (d *DraftForm) Publish(ctx context.Context, store SchemaAppender, title, description string) (string, error) {
	title = strings.TrimSpace(title)
	var problems []string
	if title == "" {
		problems = append(problems, "title is required")
	}
	if len(d.fields) == 0 {
		problems = append(problems, "add at least one field")
	}
	if len(problems) > 0 {
		return "", invalid("fill in the title and add at least one field", problems...)
	}

	s := Schema{
		ID:          uuid.New().String(),
		Title:       title,
		Description: strings.TrimSpace(description),
		Fields:      d.Fields(),
		CreatedAt:   NewTimestamp(d.clock.Now()),
		Active:      true,
	}
	if err := store.AppendSchema(ctx, s); err != nil {
		return "", fmt.Errorf("publishing form: %w", err)
	}
	d.fields = nil
	return s.ID, nil
}
