package forms

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the input type of a form field. The string values are the tags
// persisted in the schema file.
type Kind string

const (
	KindShortText    Kind = "texto"
	KindLongText     Kind = "texto_longo"
	KindNumber       Kind = "numero"
	KindSingleChoice Kind = "opcoes"
	KindDate         Kind = "data"
	KindBoolean      Kind = "checkbox"
)

// Kinds lists every supported kind in display order.
var Kinds = []Kind{KindShortText, KindLongText, KindNumber, KindSingleChoice, KindDate, KindBoolean}

var kindAliases = map[string]Kind{
	"short_text":    KindShortText,
	"text":          KindShortText,
	"long_text":     KindLongText,
	"textarea":      KindLongText,
	"number":        KindNumber,
	"single_choice": KindSingleChoice,
	"choice":        KindSingleChoice,
	"select":        KindSingleChoice,
	"date":          KindDate,
	"boolean":       KindBoolean,
	"bool":          KindBoolean,
}

// ParseKind accepts either a persisted tag ("texto", "opcoes", ...) or an
// English alias ("short_text", "single_choice", ...).
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	k := Kind(s)
	if k.Valid() {
		return k, nil
	}
	if alias, ok := kindAliases[s]; ok {
		return alias, nil
	}
	return "", fmt.Errorf("unknown field kind %q", s)
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindShortText, KindLongText, KindNumber, KindSingleChoice, KindDate, KindBoolean:
		return true
	}
	return false
}

// Field describes one input of a form.
type Field struct {
	ID       string   `json:"id"`
	Kind     Kind     `json:"tipo"`
	Label    string   `json:"pergunta"`
	Required bool     `json:"obrigatorio"`
	Choices  []string `json:"opcoes,omitempty"`
}

// Schema is a published form: its metadata plus the ordered field list.
type Schema struct {
	ID          string    `json:"id"`
	Title       string    `json:"titulo"`
	Description string    `json:"descricao"`
	Fields      []Field   `json:"campos"`
	CreatedAt   Timestamp `json:"criado_em"`
	Active      bool      `json:"ativo"`
}

// Response is one end-user submission. FormID is a weak reference: nothing
// checks that the schema still exists.
type Response struct {
	ID          string    `json:"id_resposta"`
	FormID      string    `json:"id_formulario"`
	Answers     Answers   `json:"respostas"`
	SubmittedAt Timestamp `json:"enviado_em"`
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}
