// Package source loads and type-checks the annotated Go package a server
// is generated from.
package source

import (
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/packages"
)

// Package bundles the syntax and type information the generator front-end
// reads off a source package.
type Package struct {
	PkgPath string
	Name    string

	Fset      *token.FileSet
	Syntax    []*ast.File
	Types     *types.Package
	TypesInfo *types.Info
}

// Load loads the single Go package rooted at dir.
func Load(dir string) (*Package, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedSyntax |
			packages.NeedTypes | packages.NeedTypesInfo | packages.NeedDeps,
		Dir: dir,
	}
	pkgs, err := packages.Load(cfg, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to load package: %w", err)
	}
	if len(pkgs) != 1 {
		return nil, fmt.Errorf("expected one package in %s, found %d", dir, len(pkgs))
	}
	pkg := pkgs[0]
	if len(pkg.Errors) > 0 {
		return nil, fmt.Errorf("failed to load package %s: %v", pkg.PkgPath, pkg.Errors[0])
	}

	return &Package{
		PkgPath:   pkg.PkgPath,
		Name:      pkg.Name,
		Fset:      pkg.Fset,
		Syntax:    pkg.Syntax,
		Types:     pkg.Types,
		TypesInfo: pkg.TypesInfo,
	}, nil
}

// LoadString parses and type-checks a single in-memory file. Only standard
// library imports resolve; it exists for tests and for tooling that wants
// to inspect a snippet without a module on disk.
func LoadString(src string) (*Package, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "src.go", src, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source: %w", err)
	}

	info := &types.Info{
		Types: make(map[ast.Expr]types.TypeAndValue),
		Defs:  make(map[*ast.Ident]types.Object),
		Uses:  make(map[*ast.Ident]types.Object),
	}
	conf := types.Config{Importer: importer.Default()}
	tpkg, err := conf.Check(file.Name.Name, fset, []*ast.File{file}, info)
	if err != nil {
		return nil, fmt.Errorf("failed to type-check source: %w", err)
	}

	return &Package{
		PkgPath:   tpkg.Path(),
		Name:      tpkg.Name(),
		Fset:      fset,
		Syntax:    []*ast.File{file},
		Types:     tpkg,
		TypesInfo: info,
	}, nil
}
