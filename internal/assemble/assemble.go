// Package assemble validates extracted functions and builds the
// intermediate representation the code generator renders.
package assemble

import (
	"fmt"
	"go/types"
	"sort"

	"github.com/funcwire/mcpgen/internal/extract"
	"github.com/funcwire/mcpgen/internal/source"
	"github.com/funcwire/mcpgen/internal/synth"
	"github.com/funcwire/mcpgen/mcpserve"
)

// Server is the full intermediate representation of one generated server.
type Server struct {
	PkgPath string
	PkgName string

	Tools     []Tool
	Prompts   []Prompt
	Resources []Resource
}

// Tool describes one generated tool adapter.
type Tool struct {
	Name        string
	Description string
	FuncName    string
	Params      []extract.Param

	Output mcpserve.SchemaNode

	HasContext   bool
	ReturnsError bool
	HasResult    bool
	// Async marks a receive-only channel result the adapter drains.
	Async bool
}

// Prompt describes one generated prompt adapter.
type Prompt struct {
	Name        string
	Description string
	FuncName    string
	Params      []extract.Param

	HasContext   bool
	ReturnsError bool
}

// Resource describes one generated resource adapter, plus the capability
// companions attached to it.
type Resource struct {
	Name        string
	Description string
	URI         string
	MimeType    string
	FuncName    string
	Params      []extract.Param

	HasContext   bool
	ReturnsError bool

	// ListFunc is the <Name>List companion, "" when absent.
	ListFunc         string
	ListHasContext   bool
	ListReturnsError bool

	// SubscribeFunc is the <Name>Subscribe companion, "" when absent.
	SubscribeFunc string
	Mode          mcpserve.SubscribeMode
	// SubscribeChan marks a generator companion returning a receive-only
	// channel rather than a sequence.
	SubscribeChan bool
}

// Build turns the extracted function set into a validated representation.
// An empty candidate set is an error: a server with nothing to expose is
// almost always a misconfiguration.
func Build(pkg *source.Package, fns []extract.Function) (*Server, error) {
	if len(fns) == 0 {
		return nil, fmt.Errorf("package %s: no annotated exported functions found", pkg.PkgPath)
	}

	srv := &Server{
		PkgPath: pkg.PkgPath,
		PkgName: pkg.Name,
	}

	seen := map[string]string{}
	for _, fn := range fns {
		key := fn.Kind.String() + "/" + fn.PublicName
		if prev, ok := seen[key]; ok {
			return nil, fmt.Errorf("%s name %q declared by both %s and %s",
				fn.Kind, fn.PublicName, prev, fn.FuncName)
		}
		seen[key] = fn.FuncName

		switch fn.Kind {
		case extract.KindTool:
			tool, err := buildTool(fn)
			if err != nil {
				return nil, err
			}
			srv.Tools = append(srv.Tools, tool)
		case extract.KindPrompt:
			prompt, err := buildPrompt(fn)
			if err != nil {
				return nil, err
			}
			srv.Prompts = append(srv.Prompts, prompt)
		case extract.KindResource:
			res, err := buildResource(pkg, fn)
			if err != nil {
				return nil, err
			}
			srv.Resources = append(srv.Resources, res)
		}
	}

	sort.Slice(srv.Tools, func(i, j int) bool { return srv.Tools[i].Name < srv.Tools[j].Name })
	sort.Slice(srv.Prompts, func(i, j int) bool { return srv.Prompts[i].Name < srv.Prompts[j].Name })
	sort.Slice(srv.Resources, func(i, j int) bool { return srv.Resources[i].Name < srv.Resources[j].Name })

	return srv, nil
}

func buildTool(fn extract.Function) (Tool, error) {
	tool := Tool{
		Name:        fn.PublicName,
		Description: fn.Description,
		FuncName:    fn.FuncName,
		Params:      fn.Params,
		HasContext:  fn.HasContext,
	}

	result, returnsErr, err := splitResults(fn)
	if err != nil {
		return Tool{}, err
	}
	tool.ReturnsError = returnsErr
	if result != nil {
		tool.HasResult = true
		if ch, ok := result.(*types.Chan); ok && ch.Dir() == types.RecvOnly {
			tool.Async = true
		}
		tool.Output = synth.Synthesize(result)
	}
	return tool, nil
}

func buildPrompt(fn extract.Function) (Prompt, error) {
	for _, p := range fn.Params {
		if p.Desc.Type != mcpserve.ParamString {
			return Prompt{}, fmt.Errorf("prompt %s: parameter %q is not a string; prompt arguments carry strings only",
				fn.FuncName, p.Desc.Name)
		}
	}

	result, returnsErr, err := splitResults(fn)
	if err != nil {
		return Prompt{}, err
	}
	if result == nil {
		return Prompt{}, fmt.Errorf("prompt %s: function returns no value", fn.FuncName)
	}

	return Prompt{
		Name:         fn.PublicName,
		Description:  fn.Description,
		FuncName:     fn.FuncName,
		Params:       fn.Params,
		HasContext:   fn.HasContext,
		ReturnsError: returnsErr,
	}, nil
}

func buildResource(pkg *source.Package, fn extract.Function) (Resource, error) {
	if fn.URI == "" {
		return Resource{}, fmt.Errorf("resource %s: missing uri tag", fn.FuncName)
	}

	declared := map[string]bool{}
	for _, p := range fn.Params {
		if p.Desc.Type != mcpserve.ParamString {
			return Resource{}, fmt.Errorf("resource %s: parameter %q is not a string; URI placeholders carry strings only",
				fn.FuncName, p.Desc.Name)
		}
		declared[p.Desc.Name] = true
	}
	for _, ph := range mcpserve.Placeholders(fn.URI) {
		if !declared[ph] {
			return Resource{}, fmt.Errorf("resource %s: URI placeholder {%s} has no matching function parameter",
				fn.FuncName, ph)
		}
	}

	result, returnsErr, err := splitResults(fn)
	if err != nil {
		return Resource{}, err
	}
	if result == nil {
		return Resource{}, fmt.Errorf("resource %s: function returns no value", fn.FuncName)
	}

	res := Resource{
		Name:         fn.PublicName,
		Description:  fn.Description,
		URI:          fn.URI,
		MimeType:     fn.MimeType,
		FuncName:     fn.FuncName,
		Params:       fn.Params,
		HasContext:   fn.HasContext,
		ReturnsError: returnsErr,
	}

	if list := companion(pkg, fn.FuncName+"List"); list != nil {
		hasCtx, returnsErr, err := checkListCompanion(list)
		if err != nil {
			return Resource{}, fmt.Errorf("resource %s: %w", fn.FuncName, err)
		}
		res.ListFunc = fn.FuncName + "List"
		res.ListHasContext = hasCtx
		res.ListReturnsError = returnsErr
	}
	if sub := companion(pkg, fn.FuncName+"Subscribe"); sub != nil {
		mode, isChan, err := subscribeMode(sub)
		if err != nil {
			return Resource{}, fmt.Errorf("resource %s: %w", fn.FuncName, err)
		}
		res.SubscribeFunc = fn.FuncName + "Subscribe"
		res.Mode = mode
		res.SubscribeChan = isChan
	}
	return res, nil
}

// companion resolves a capability companion by name through the package
// scope, so only real exported function declarations count.
func companion(pkg *source.Package, name string) *types.Signature {
	obj := pkg.Types.Scope().Lookup(name)
	fn, ok := obj.(*types.Func)
	if !ok {
		return nil
	}
	sig, ok := fn.Type().(*types.Signature)
	if !ok || sig.Recv() != nil {
		return nil
	}
	return sig
}

// checkListCompanion accepts func([ctx]) ([]string, error) and
// func([ctx]) []string shapes.
func checkListCompanion(sig *types.Signature) (hasCtx, returnsErr bool, err error) {
	hasCtx, n := companionParams(sig)
	if n != 0 {
		return false, false, fmt.Errorf("list companion takes %d non-context parameters, want 0", n)
	}
	results := sig.Results()
	if results.Len() == 0 || results.Len() > 2 {
		return false, false, fmt.Errorf("list companion returns %d values, want a string slice and an optional error", results.Len())
	}
	slice, ok := results.At(0).Type().Underlying().(*types.Slice)
	if !ok || !isString(slice.Elem()) {
		return false, false, fmt.Errorf("list companion first result is %s, want []string", results.At(0).Type())
	}
	if results.Len() == 2 {
		if !isErrorType(results.At(1).Type()) {
			return false, false, fmt.Errorf("list companion second result is %s, want error", results.At(1).Type())
		}
		returnsErr = true
	}
	return hasCtx, returnsErr, nil
}

// subscribeMode classifies a subscribe companion by its return shape: a
// sequence or receive-only channel drives updates itself, a plain error
// return is polled. The companion must take a context so the server can
// stop it.
func subscribeMode(sig *types.Signature) (mcpserve.SubscribeMode, bool, error) {
	hasCtx, n := companionParams(sig)
	if !hasCtx {
		return mcpserve.SubscribeNone, false, fmt.Errorf("subscribe companion takes no context.Context; the server cannot stop it")
	}
	if n != 0 {
		return mcpserve.SubscribeNone, false, fmt.Errorf("subscribe companion takes %d non-context parameters, want 0", n)
	}
	results := sig.Results()
	if results.Len() != 1 {
		return mcpserve.SubscribeNone, false, fmt.Errorf("subscribe companion returns %d values, want 1", results.Len())
	}

	rt := results.At(0).Type()
	if isErrorType(rt) {
		return mcpserve.SubscribePoll, false, nil
	}
	if ch, ok := rt.Underlying().(*types.Chan); ok && ch.Dir() == types.RecvOnly {
		return mcpserve.SubscribeGenerator, true, nil
	}
	if isIterSeq(rt) {
		return mcpserve.SubscribeGenerator, false, nil
	}
	return mcpserve.SubscribeNone, false, fmt.Errorf("subscribe companion returns %s, want error, iter.Seq, or a receive-only channel", rt)
}

func isIterSeq(t types.Type) bool {
	var obj *types.TypeName
	switch u := t.(type) {
	case *types.Named:
		obj = u.Obj()
	case *types.Alias:
		obj = u.Obj()
	default:
		return false
	}
	return obj.Pkg() != nil && obj.Pkg().Path() == "iter" && obj.Name() == "Seq"
}

func isString(t types.Type) bool {
	b, ok := t.Underlying().(*types.Basic)
	return ok && b.Info()&types.IsString != 0
}

// companionParams reports a leading context parameter and the count of the
// remaining parameters.
func companionParams(sig *types.Signature) (hasCtx bool, n int) {
	tuple := sig.Params()
	n = tuple.Len()
	if n > 0 {
		if named, ok := tuple.At(0).Type().(*types.Named); ok {
			obj := named.Obj()
			if obj.Pkg() != nil && obj.Pkg().Path() == "context" && obj.Name() == "Context" {
				hasCtx = true
				n--
			}
		}
	}
	return hasCtx, n
}

// splitResults separates the value result from a trailing error. More than
// one value result has no protocol mapping.
func splitResults(fn extract.Function) (types.Type, bool, error) {
	results := fn.Sig.Results()
	switch results.Len() {
	case 0:
		return nil, false, nil
	case 1:
		rt := results.At(0).Type()
		if isErrorType(rt) {
			return nil, true, nil
		}
		return rt, false, nil
	case 2:
		if !isErrorType(results.At(1).Type()) {
			return nil, false, fmt.Errorf("%s: second result is %s, want error",
				fn.FuncName, results.At(1).Type())
		}
		return results.At(0).Type(), true, nil
	default:
		return nil, false, fmt.Errorf("%s: returns %d values, want at most a value and an error",
			fn.FuncName, results.Len())
	}
}

func isErrorType(t types.Type) bool {
	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	return obj.Pkg() == nil && obj.Name() == "error"
}
