// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package iter

import (
	"bufio"
	"context"
	"errors"
	"io"
	"unicode/utf8"

	"gopkg.microglot.org/hcl.go/internal/lang"
	"gopkg.microglot.org/hcl.go/internal/optional"
)

// NewUnicodeFileBody converts a FileBody into an iterator of code points.
func NewUnicodeFileBody(b lang.FileBody) lang.Iterator[lang.CodePoint] {
	return NewUnicodeFileBodyCtx(context.Background(), b)
}

// NewUnicodeFileBodyCtx is the same as NewUnicodeFileBody but uses the given
// context for all read operations for cancellation or other purposes.
func NewUnicodeFileBodyCtx(ctx context.Context, b lang.FileBody) lang.Iterator[lang.CodePoint] {
	rc := &fileBodyIO{
		ctx:  ctx,
		body: b,
	}
	scanner := bufio.NewScanner(rc)
	scanner.Split(bufio.ScanRunes)
	return &fileBody{
		readCloser: rc,
		scanner:    scanner,
	}
}

type fileBody struct {
	readCloser io.ReadCloser
	scanner    *bufio.Scanner
}

func (f *fileBody) Next(ctx context.Context) optional.Optional[lang.CodePoint] {
	ok := f.scanner.Scan()
	if !ok {
		return optional.None[lang.CodePoint]()
	}
	r, _ := utf8.DecodeRune(f.scanner.Bytes())
	return optional.Some(lang.CodePoint(r))
}

func (f *fileBody) Close(context.Context) error {
	_ = f.readCloser.Close()
	return f.scanner.Err()
}

// fileBodyIO adapts the context-aware FileBody contract to io.ReadCloser so
// that it can feed a bufio.Scanner.
type fileBodyIO struct {
	ctx  context.Context
	body lang.FileBody
}

func (self *fileBodyIO) Read(p []byte) (int, error) {
	b, err := self.body.Read(self.ctx, int32(len(p)))
	if err != nil && !errors.Is(err, io.EOF) {
		return len(b), err
	}
	copy(p, b)
	if errors.Is(err, io.EOF) {
		return len(b), io.EOF
	}
	return len(b), nil
}

func (self *fileBodyIO) Close() error {
	return self.body.Close(self.ctx)
}
