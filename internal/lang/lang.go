// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package lang

import (
	"context"
	"fmt"

	"gopkg.microglot.org/hcl.go/internal/optional"
)

type Closer interface {
	Close(ctx context.Context) error
}

// CodePoint is a single unicode code point decoded from a file body.
type CodePoint rune

type Iterator[T any] interface {
	Next(ctx context.Context) optional.Optional[T]
	Closer
}

type Reader interface {
	Read(ctx context.Context, size int32) ([]byte, error)
}

type FileBody interface {
	Reader
	Closer
}

// Location is a position within a source file. Line and Column are
// one-based, Offset is a zero-based code point offset. Column counts
// grapheme clusters rather than code points so that combining sequences
// occupy a single column.
type Location struct {
	Line   int
	Column int
	Offset int
}

func (l Location) String() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

type FileKind uint32

const (
	FileKindNone FileKind = iota
	FileKindHCL
)

func (k FileKind) String() string {
	switch k {
	case FileKindHCL:
		return "hcl"
	case FileKindNone:
		return "none"
	default:
		return fmt.Sprintf("unknown-%d", k)
	}
}

type File interface {
	Path(ctx context.Context) string
	Kind(ctx context.Context) FileKind
	Body(ctx context.Context) (FileBody, error)
}

type FileSystem interface {
	Open(ctx context.Context, uri string) ([]File, error)
	Write(ctx context.Context, uri string, content string) error
}
