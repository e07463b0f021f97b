package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/pflag"

	"gopkg.microglot.org/hcl.go/internal/fs"
	"gopkg.microglot.org/hcl.go/internal/native"
	"gopkg.microglot.org/hcl.go/internal/schema"
)

type opts struct {
	Check    bool
	Write    bool
	DumpTree bool
	Root     string
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	op := &opts{}
	flags := pflag.NewFlagSet("hclc", pflag.PanicOnError)
	flags.BoolVar(&op.Check, "check", false, "Parse and validate only; do not emit formatted output.")
	flags.BoolVar(&op.Write, "write", false, "Rewrite each file in place with the normalized form.")
	flags.BoolVar(&op.DumpTree, "dump-tree", false, "Output the syntax tree after parsing.")
	flags.StringVar(&op.Root, "root", ".", "Root directory that targets are resolved against.")
	_ = flags.Parse(os.Args[1:])
	targets := flags.Args()
	if len(targets) == 0 {
		fmt.Fprintln(os.Stderr, "usage: hclc [--check|--write|--dump-tree] FILE...")
		os.Exit(2)
	}

	absRoot, err := filepath.Abs(op.Root)
	if err != nil {
		panic(err)
	}
	fsys, err := fs.NewFileSystemLocal(absRoot)
	if err != nil {
		panic(err)
	}

	failed := false
	for _, target := range targets {
		files, err := fsys.Open(ctx, target)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			failed = true
			continue
		}
		for _, f := range files {
			tree, err := native.ParseFile(ctx, f)
			if err != nil {
				fmt.Fprintln(os.Stderr, err.Error())
				failed = true
				continue
			}
			for _, issue := range schema.Validate(tree) {
				fmt.Fprintf(os.Stderr, "%s: %s\n", f.Path(ctx), issue)
				failed = true
			}
			if op.DumpTree {
				fmt.Print(spew.Sdump(tree))
			}
			if op.Check {
				continue
			}
			formatted := native.Print(tree)
			if op.Write {
				if err := fsys.Write(ctx, f.Path(ctx), formatted); err != nil {
					fmt.Fprintln(os.Stderr, err.Error())
					failed = true
				}
				continue
			}
			fmt.Print(formatted)
		}
	}
	if failed {
		os.Exit(1)
	}
}
