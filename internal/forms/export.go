package forms

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
)

// Fixed leading export columns.
const (
	ColumnSubmittedAt = "Enviado em"
	ColumnResponseID  = "ID Resposta"
)

// Table is a flattened view of a form's responses.
type Table struct {
	Header []string
	Rows   [][]string
}

// Flatten turns responses into rows: submission time, response id, then one
// column per answer label seen in any response. Labels follow the field
// order of schema when given, then first appearance. Rows are newest first.
func Flatten(schema *Schema, responses []Response) Table {
	seen := make(map[string]bool)
	var seenOrder []string
	for _, r := range responses {
		for _, l := range r.Answers.Labels() {
			if !seen[l] {
				seen[l] = true
				seenOrder = append(seenOrder, l)
			}
		}
	}

	labels := make([]string, 0, len(seenOrder))
	placed := make(map[string]bool)
	if schema != nil {
		for _, f := range schema.Fields {
			if seen[f.Label] && !placed[f.Label] {
				placed[f.Label] = true
				labels = append(labels, f.Label)
			}
		}
	}
	for _, l := range seenOrder {
		if !placed[l] {
			labels = append(labels, l)
		}
	}

	sorted := slices.Clone(responses)
	SortNewestFirst(sorted)

	t := Table{Header: append([]string{ColumnSubmittedAt, ColumnResponseID}, labels...)}
	for _, r := range sorted {
		row := make([]string, 0, len(t.Header))
		row = append(row, r.SubmittedAt.String(), r.ID)
		for _, l := range labels {
			v, _ := r.Answers.Get(l)
			row = append(row, FormatValue(v))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// FormatValue renders an answer as a table cell.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// Export formats.
const (
	FormatCSV = "csv"
	FormatTSV = "tsv"
)

// WriteTable writes t in the given delimited format.
func WriteTable(w io.Writer, t Table, format string) error {
	cw := csv.NewWriter(w)
	switch format {
	case FormatCSV, "":
	case FormatTSV:
		cw.Comma = '\t'
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// ContentType returns the MIME type of an export format.
func ContentType(format string) string {
	if format == FormatTSV {
		return "text/tab-separated-values; charset=utf-8"
	}
	return "text/csv; charset=utf-8"
}
