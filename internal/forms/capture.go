package forms

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Placeholder is the "not selected" entry offered ahead of the real choices
// of a SingleChoice field. It can never be a real choice.
const Placeholder = "Selecione..."

// DateLayout is the layout of Date answers.
const DateLayout = "2006-01-02"

// Input capture types exposed to renderers.
const (
	InputString  = "string"
	InputText    = "text"
	InputNumber  = "number"
	InputChoice  = "choice"
	InputDate    = "date"
	InputBoolean = "boolean"
)

// capturer is the per-kind capture contract: the renderer input type, the
// value shown when nothing was answered, and how a raw submitted value
// becomes a stored answer.
type capturer interface {
	input() string
	sentinel() any
	decode(raw any) (any, error)
	missing(v any) bool
}

func captureFor(f Field, now time.Time) capturer {
	switch f.Kind {
	case KindShortText:
		return textCapture{kind: InputString}
	case KindLongText:
		return textCapture{kind: InputText}
	case KindNumber:
		return numberCapture{}
	case KindSingleChoice:
		return choiceCapture{choices: f.Choices}
	case KindDate:
		return dateCapture{today: now.Format(DateLayout)}
	case KindBoolean:
		return boolCapture{}
	}
	return unknownCapture{kind: f.Kind}
}

type textCapture struct{ kind string }

func (c textCapture) input() string { return c.kind }
func (textCapture) sentinel() any   { return "" }

func (textCapture) decode(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	}
	return nil, fmt.Errorf("expected text, got %T", raw)
}

func (textCapture) missing(v any) bool {
	s, _ := v.(string)
	return strings.TrimSpace(s) == ""
}

type numberCapture struct{}

func (numberCapture) input() string { return InputNumber }
func (numberCapture) sentinel() any { return nil }

func (numberCapture) decode(raw any) (any, error) {
	var f float64
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", v.String())
		}
		f = n
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		n, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("%q is not a number", v)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("expected number, got %T", raw)
	}
	// NaN and infinities have no JSON form, so they could never be stored.
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%v is not a number", f)
	}
	return f, nil
}

func (numberCapture) missing(v any) bool { return v == nil }

type choiceCapture struct{ choices []string }

func (choiceCapture) input() string { return InputChoice }
func (choiceCapture) sentinel() any { return Placeholder }

// decode records an unanswered choice as "" so exports never show the
// placeholder text.
func (c choiceCapture) decode(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		if v == "" || v == Placeholder {
			return "", nil
		}
		if !slices.Contains(c.choices, v) {
			return nil, fmt.Errorf("%q is not one of the choices", v)
		}
		return v, nil
	}
	return nil, fmt.Errorf("expected a choice, got %T", raw)
}

func (choiceCapture) missing(v any) bool {
	s, _ := v.(string)
	return s == "" || s == Placeholder
}

type dateCapture struct{ today string }

func (dateCapture) input() string   { return InputDate }
func (c dateCapture) sentinel() any { return c.today }

func (c dateCapture) decode(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return c.today, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return c.today, nil
		}
		d, err := time.Parse(DateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("%q is not a date (YYYY-MM-DD)", v)
		}
		return d.Format(DateLayout), nil
	}
	return nil, fmt.Errorf("expected a date, got %T", raw)
}

// missing is always false: an unset date defaults to today.
func (dateCapture) missing(any) bool { return false }

type boolCapture struct{}

func (boolCapture) input() string { return InputBoolean }
func (boolCapture) sentinel() any { return false }

func (boolCapture) decode(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		switch s {
		case "":
			return false, nil
		case "on", "yes", "sim":
			return true, nil
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", v)
		}
		return b, nil
	}
	return nil, fmt.Errorf("expected a boolean, got %T", raw)
}

// missing treats false as unanswered, so a required checkbox must be ticked.
func (boolCapture) missing(v any) bool {
	b, _ := v.(bool)
	return !b
}

// unknownCapture covers kinds written into the file by hand.
type unknownCapture struct{ kind Kind }

func (unknownCapture) input() string { return "" }
func (unknownCapture) sentinel() any { return nil }

func (c unknownCapture) decode(any) (any, error) {
	return nil, fmt.Errorf("unsupported field kind %q", c.kind)
}

func (unknownCapture) missing(v any) bool { return v == nil }

// Control is the renderer-facing description of one field's input.
type Control struct {
	FieldID  string   `json:"id"`
	Kind     Kind     `json:"kind"`
	Label    string   `json:"label"`
	Required bool     `json:"required"`
	Input    string   `json:"input"`
	Default  any      `json:"default"`
	Choices  []string `json:"choices,omitempty"`
}

// Render maps each field of s to its capture contract. SingleChoice
// controls list the placeholder ahead of the real choices.
func Render(s Schema, now time.Time) []Control {
	controls := make([]Control, 0, len(s.Fields))
	for _, f := range s.Fields {
		c := captureFor(f, now)
		ctl := Control{
			FieldID:  f.ID,
			Kind:     f.Kind,
			Label:    f.Label,
			Required: f.Required,
			Input:    c.input(),
			Default:  c.sentinel(),
		}
		if f.Kind == KindSingleChoice {
			ctl.Choices = append([]string{Placeholder}, f.Choices...)
		}
		controls = append(controls, ctl)
	}
	return controls
}

// Capture decodes values (keyed by field id) against s and applies the
// required-field gate. Answers are keyed by label, so a later field with
// the same label overwrites an earlier one.
func Capture(s Schema, values map[string]any, now time.Time) (Answers, error) {
	var (
		answers  Answers
		problems []string
		missing  bool
	)
	for _, f := range s.Fields {
		c := captureFor(f, now)
		v, err := c.decode(values[f.ID])
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", f.Label, err))
			continue
		}
		if f.Required && c.missing(v) {
			missing = true
			problems = append(problems, fmt.Sprintf("%s: required", f.Label))
			continue
		}
		answers.Set(f.Label, v)
	}
	if len(problems) == 0 {
		return answers, nil
	}
	if missing {
		return Answers{}, invalid("please fill in all required fields (*)", problems...)
	}
	return Answers{}, invalid("some answers are invalid", problems...)
}
