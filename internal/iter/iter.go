package iter

import (
	"context"

	"gopkg.microglot.org/hcl.go/internal/lang"
	"gopkg.microglot.org/hcl.go/internal/optional"
)

// NewSlice converts a slice of values into an Iterator implementation.
func NewSlice[T any](vs []T) lang.Iterator[T] {
	return &iteratorSlice[T]{slice: vs, offset: -1}
}

type iteratorSlice[T any] struct {
	slice  []T
	offset int
}

func (it *iteratorSlice[T]) Next(ctx context.Context) optional.Optional[T] {
	it.offset = it.offset + 1
	if it.offset >= len(it.slice) {
		return optional.None[T]()
	}
	return optional.Some(it.slice[it.offset])
}

func (it *iteratorSlice[T]) Close(ctx context.Context) error {
	return nil
}

// Collect drains an iterator into a slice and closes it. The parser uses
// this to materialize the full code point buffer it backtracks over.
func Collect[T any](ctx context.Context, it lang.Iterator[T]) ([]T, error) {
	var vs []T
	for v := it.Next(ctx); v.IsPresent(); v = it.Next(ctx) {
		vs = append(vs, v.Value())
	}
	return vs, it.Close(ctx)
}
