// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"bufio"
	"context"
	"io"
	"strings"

	"gopkg.microglot.org/hcl.go/internal/exc"
	"gopkg.microglot.org/hcl.go/internal/lang"
)

// NewFileString wraps static string content in lang.File.
func NewFileString(path string, content string, kind lang.FileKind) lang.File {
	return NewFileFN(path, func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(content)), nil
	}, kind)
}

type fileIOFunc struct {
	path string
	kind lang.FileKind
	body func() (io.ReadCloser, error)
}

// NewFileFN wraps actual file based content in the lang.File interface. The
// given body function is used each time there is a call to the lang.File.Body
// method so it must return a new io.ReadCloser handle.
func NewFileFN(path string, body func() (io.ReadCloser, error), kind lang.FileKind) lang.File {
	return &fileIOFunc{
		path: path,
		kind: kind,
		body: body,
	}
}

func (f *fileIOFunc) Path(ctx context.Context) string {
	return f.path
}
func (f *fileIOFunc) Kind(ctx context.Context) lang.FileKind {
	return f.kind
}
func (f *fileIOFunc) Body(ctx context.Context) (lang.FileBody, error) {
	rc, err := f.body()
	if err != nil {
		return nil, err
	}
	return bodyFromIO(&bufioReaderCloser{
		Reader: bufio.NewReader(rc),
		Closer: rc,
	}), nil
}

type bufioReaderCloser struct {
	*bufio.Reader
	io.Closer
}

func bodyFromIO(v io.ReadCloser) lang.FileBody {
	return &ioFileBody{rc: v}
}

type ioFileBody struct {
	rc io.ReadCloser
	b  []byte
}

func (self *ioFileBody) Read(ctx context.Context, size int32) ([]byte, error) {
	if len(self.b) < int(size) {
		self.b = make([]byte, size)
	}
	count, err := self.rc.Read(self.b[:size])
	if err != nil && err != io.EOF {
		return nil, exc.WrapUnknown(exc.Location{}, err)
	}
	if err == io.EOF {
		return self.b[:count], exc.Wrap(exc.Location{}, exc.CodeEOF, err)
	}
	return self.b[:count], nil
}

func (self *ioFileBody) Close(ctx context.Context) error {
	return self.rc.Close()
}
