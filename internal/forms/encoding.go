package forms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// TimestampLayout is the day-first layout used in the data files.
const TimestampLayout = "02/01/2006 15:04:05"

// Timestamp is a second-precision time that serializes in TimestampLayout.
// RFC 3339 strings are accepted on read.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to whole seconds, the precision of the file format.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.Truncate(time.Second)}
}

func (t Timestamp) Equal(u Timestamp) bool {
	return t.Time.Equal(u.Time)
}

func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimestampLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.ParseInLocation(TimestampLayout, s, time.Local); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("timestamp %q: want %q or RFC 3339", s, TimestampLayout)
	}
	t.Time = parsed
	return nil
}

// Answers maps question labels to captured values, keeping the order in
// which labels were first set. Setting an existing label replaces its value
// in place.
type Answers struct {
	keys   []string
	values map[string]any
}

// Set stores v under label.
func (a *Answers) Set(label string, v any) {
	if a.values == nil {
		a.values = make(map[string]any)
	}
	if _, ok := a.values[label]; !ok {
		a.keys = append(a.keys, label)
	}
	a.values[label] = v
}

// Get returns the value stored under label.
func (a Answers) Get(label string) (any, bool) {
	v, ok := a.values[label]
	return v, ok
}

// Labels returns the labels in insertion order.
func (a Answers) Labels() []string {
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

func (a Answers) Len() int { return len(a.keys) }

// Equal compares labels, order and values.
func (a Answers) Equal(b Answers) bool {
	if len(a.keys) != len(b.keys) {
		return false
	}
	for i, k := range a.keys {
		if b.keys[i] != k {
			return false
		}
		if !reflect.DeepEqual(a.values[k], b.values[k]) {
			return false
		}
	}
	return true
}

func (a Answers) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range a.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalNoEscape(k)
		if err != nil {
			return nil, err
		}
		vb, err := marshalNoEscape(a.values[k])
		if err != nil {
			return nil, fmt.Errorf("answer %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (a *Answers) UnmarshalJSON(data []byte) error {
	*a = Answers{}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("answers: expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("answers: expected string key, got %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("answer %q: %w", key, err)
		}
		a.Set(key, v)
	}
	_, err = dec.Token()
	return err
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
