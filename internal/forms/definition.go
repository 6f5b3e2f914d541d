package forms

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Definition is a whole form written down as a document, e.g.
//
//	title: Ficha de Pré-Cadastro
//	fields:
//	  - kind: texto
//	    label: Seu nome completo
//	    required: true
//	  - kind: opcoes
//	    label: Como nos conheceu?
//	    choices: Amigo, Rede Social, Evento
//
// It is replayed through a DraftForm, so it obeys the same rules as
// interactive authoring.
type Definition struct {
	Title       string            `yaml:"title" json:"title"`
	Description string            `yaml:"description" json:"description,omitempty"`
	Fields      []FieldDefinition `yaml:"fields" json:"fields"`
}

// FieldDefinition is one field of a Definition. Kind takes a persisted tag
// or an English alias (see ParseKind).
type FieldDefinition struct {
	Kind     string     `yaml:"kind" json:"kind"`
	Label    string     `yaml:"label" json:"label"`
	Required bool       `yaml:"required" json:"required,omitempty"`
	Choices  ChoiceList `yaml:"choices" json:"choices,omitempty"`
}

// ChoiceList accepts either a YAML sequence or a comma-separated string.
// Only the string form is split on commas; sequence items are kept whole.
type ChoiceList []string

func (c *ChoiceList) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*c = append(ChoiceList{}, ParseChoices(n.Value)...)
		return nil
	}
	var list []string
	if err := n.Decode(&list); err != nil {
		return fmt.Errorf("choices: %w", err)
	}
	*c = list
	return nil
}

// ParseDefinition reads a YAML (or JSON) form definition.
func ParseDefinition(r io.Reader) (Definition, error) {
	var d Definition
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return Definition{}, invalid("form definition is empty")
		}
		return Definition{}, invalid(fmt.Sprintf("invalid form definition: %v", err))
	}
	return d, nil
}

// Draft replays the field definitions into a new draft.
func (d Definition) Draft(clock Clock) (*DraftForm, error) {
	draft := NewDraftWithClock(clock)
	for i, fd := range d.Fields {
		kind, err := ParseKind(fd.Kind)
		if err != nil {
			return nil, invalid(fmt.Sprintf("field %d: %v", i+1, err))
		}
		_, err = draft.AddField(Candidate{
			Kind:     kind,
			Label:    fd.Label,
			Required: fd.Required,
			Choices:  fd.Choices,
		})
		if err != nil {
			return nil, invalid(fmt.Sprintf("field %d: %v", i+1, err))
		}
	}
	return draft, nil
}

// Publish builds the draft and publishes it to store.
func (d Definition) Publish(ctx context.Context, store SchemaAppender, clock Clock) (string, error) {
	draft, err := d.Draft(clock)
	if err != nil {
		return "", err
	}
	return draft.Publish(ctx, store, d.Title, d.Description)
}
