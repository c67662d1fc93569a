package repository

import (
	"iter"
	"sync/atomic"
)

// Results is a lazy, single-pass sequence of search hits. Hits are decoded
// only while iterating; a second iteration yields ErrResultsConsumed.
type Results[T any] struct {
	hits         []Document
	total        int64
	aggregations map[string]any
	codec        Codec[T]
	consumed     atomic.Bool
}

func newResults[T any](res *SearchResult) *Results[T] {
	r := &Results[T]{}
	if res != nil {
		r.hits = res.Hits
		r.total = res.Total
		r.aggregations = res.Aggregations
	}
	return r
}

// Total returns the number of matching documents reported by the backend,
// which may exceed the number of returned hits.
func (r *Results[T]) Total() int64 { return r.total }

// Len returns the number of hits in this page.
func (r *Results[T]) Len() int { return len(r.hits) }

// Aggregations returns the raw aggregations of the response, if any.
func (r *Results[T]) Aggregations() map[string]any { return r.aggregations }

// All yields each hit decoded into T. A hit failing to decode yields its error
// and iteration continues with the next hit unless the consumer stops.
func (r *Results[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		if !r.consumed.CompareAndSwap(false, true) {
			var zero T
			yield(zero, ErrResultsConsumed)
			return
		}
		for _, hit := range r.hits {
			v, err := r.codec.Deserialize(hit)
			if !yield(v, err) {
				return
			}
		}
	}
}

// Collect drains the sequence into a slice, stopping at the first error.
func (r *Results[T]) Collect() ([]T, error) {
	out := make([]T, 0, len(r.hits))
	for v, err := range r.All() {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}
