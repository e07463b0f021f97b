// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

// Package hcl parses HCL native syntax into a structured syntax tree and
// renders trees back to text. The pipeline is one-way, text to tree to
// text: parsing an emitted tree yields a tree equal to the original.
// Expression evaluation, variable resolution, and the HCL JSON syntax are
// out of scope; consumers walk the tree through the ast package.
package hcl

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"gopkg.microglot.org/hcl.go/ast"
	"gopkg.microglot.org/hcl.go/internal/fs"
	"gopkg.microglot.org/hcl.go/internal/native"
	"gopkg.microglot.org/hcl.go/internal/schema"
)

// ParseError describes a rejected input: the furthest position the parser
// reached and the set of productions that could have continued there.
// Parsing has no error recovery; the first blocked alternative is the
// whole story.
type ParseError struct {
	Message  string
	Offset   int
	Line     int
	Column   int
	Expected []string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// Issue is a structural problem reported by Validate.
type Issue struct {
	Code    string
	Kind    string
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Code, i.Message)
}

// Parse parses HCL native syntax source text. On failure the returned
// error is a *ParseError.
func Parse(input string) (*ast.ConfigFile, error) {
	file, err := native.Parse("<input>", input)
	if err != nil {
		return nil, convertError(err)
	}
	return file, nil
}

// MustParse is Parse but panics on malformed input. Use it for fixed
// inputs known to be well formed.
func MustParse(input string) *ast.ConfigFile {
	file, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return file
}

// ParseFile reads and parses a single HCL file from the local file system.
func ParseFile(ctx context.Context, path string) (*ast.ConfigFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsys, err := fs.NewFileSystemLocal(filepath.Dir(abs))
	if err != nil {
		return nil, err
	}
	files, err := fsys.Open(ctx, filepath.Base(abs))
	if err != nil {
		return nil, err
	}
	file, err := native.ParseFile(ctx, files[0])
	if err != nil {
		return nil, convertError(err)
	}
	return file, nil
}

// Stringify renders a tree in the normalized text form. It is total over
// valid trees; a tree holding an unknown node kind panics.
func Stringify(file *ast.ConfigFile) string {
	return native.Print(file)
}

// Validate checks that every node in the tree carries a known
// discriminator and the fields appropriate to it. An empty result means
// the tree is well formed. Every tree produced by Parse validates.
func Validate(node ast.Node) []Issue {
	reported := schema.Validate(node)
	issues := make([]Issue, 0, len(reported))
	for _, issue := range reported {
		issues = append(issues, Issue{Code: issue.Code, Kind: issue.Kind, Message: issue.Message})
	}
	return issues
}

func convertError(err error) error {
	var pf *native.ParseFailure
	if errors.As(err, &pf) {
		return &ParseError{
			Message:  pf.Message(),
			Offset:   pf.Offset,
			Line:     pf.Line,
			Column:   pf.Column,
			Expected: append([]string{}, pf.Expected...),
		}
	}
	return err
}
