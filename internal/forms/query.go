package forms

import (
	"context"
	"iter"
	"sort"
)

// ResponseQuerier yields the responses of one form. Each call to the
// returned sequence re-reads the store.
type ResponseQuerier interface {
	Responses(ctx context.Context, formID string) iter.Seq2[Response, error]
}

// CollectResponses drains a response sequence. It stops at the first error.
func CollectResponses(seq iter.Seq2[Response, error]) ([]Response, error) {
	var out []Response
	for r, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// SortNewestFirst orders responses by submission time, most recent first.
// Equal timestamps keep their stored order.
func SortNewestFirst(rs []Response) {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].SubmittedAt.After(rs[j].SubmittedAt.Time)
	})
}
