package codegen

import (
	"fmt"
	"go/types"
	"sort"
	"strings"

	"github.com/funcwire/mcpgen/internal/assemble"
	"github.com/funcwire/mcpgen/internal/extract"
	"github.com/funcwire/mcpgen/mcpserve"
)

// serverRenderer accumulates the body of server_gen.go and the imports the
// rendered expressions pull in.
type serverRenderer struct {
	srv      *assemble.Server
	body     strings.Builder
	imports  map[string]string // path -> package name
	needIter bool
}

func (g Generator) renderServer() ([]byte, error) {
	r := &serverRenderer{
		srv:     g.Server,
		imports: map[string]string{},
	}

	r.renderTools()
	r.renderPrompts()
	r.renderResources()

	var out strings.Builder
	out.WriteString("// Code generated by mcpgen. DO NOT EDIT.\n\npackage main\n\n")
	out.WriteString("import (\n")
	out.WriteString("\t\"context\"\n")
	if r.needIter {
		out.WriteString("\t\"iter\"\n")
	}
	out.WriteString("\n")
	fmt.Fprintf(&out, "\t%s %q\n", g.Server.PkgName, g.Server.PkgPath)
	for _, path := range r.sortedImports() {
		fmt.Fprintf(&out, "\t%s %q\n", r.imports[path], path)
	}
	out.WriteString("\n")
	fmt.Fprintf(&out, "\t%q\n", runtimeModule+"/mcpserve")
	out.WriteString(")\n\n")
	out.WriteString(r.body.String())
	return []byte(out.String()), nil
}

func (r *serverRenderer) sortedImports() []string {
	paths := make([]string, 0, len(r.imports))
	for path := range r.imports {
		if path == r.srv.PkgPath {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// qualifier renders named types from foreign packages and records the
// imports they need.
func (r *serverRenderer) qualifier(p *types.Package) string {
	if p.Path() != r.srv.PkgPath {
		r.imports[p.Path()] = p.Name()
	}
	return p.Name()
}

func (r *serverRenderer) goType(t types.Type) string {
	return types.TypeString(t, r.qualifier)
}

func (r *serverRenderer) renderTools() {
	r.body.WriteString("func tools() []mcpserve.ToolDefinition {\n")
	if len(r.srv.Tools) == 0 {
		r.body.WriteString("\treturn nil\n}\n\n")
		return
	}
	r.body.WriteString("\treturn []mcpserve.ToolDefinition{\n")
	for _, t := range r.srv.Tools {
		r.body.WriteString("\t\t{\n")
		fmt.Fprintf(&r.body, "\t\t\tName:        %q,\n", t.Name)
		fmt.Fprintf(&r.body, "\t\t\tDescription: %q,\n", t.Description)
		r.renderParams(t.Params)
		if !t.Output.IsNone() {
			fmt.Fprintf(&r.body, "\t\t\tOutput: %s,\n", schemaLit(t.Output))
		}
		r.renderToolHandler(t)
		r.body.WriteString("\t\t},\n")
	}
	r.body.WriteString("\t}\n}\n\n")
}

func (r *serverRenderer) renderPrompts() {
	r.body.WriteString("func prompts() []mcpserve.PromptDefinition {\n")
	if len(r.srv.Prompts) == 0 {
		r.body.WriteString("\treturn nil\n}\n\n")
		return
	}
	r.body.WriteString("\treturn []mcpserve.PromptDefinition{\n")
	for _, p := range r.srv.Prompts {
		r.body.WriteString("\t\t{\n")
		fmt.Fprintf(&r.body, "\t\t\tName:        %q,\n", p.Name)
		fmt.Fprintf(&r.body, "\t\t\tDescription: %q,\n", p.Description)
		r.renderParams(p.Params)
		r.renderPromptHandler(p)
		r.body.WriteString("\t\t},\n")
	}
	r.body.WriteString("\t}\n}\n\n")
}

func (r *serverRenderer) renderResources() {
	r.body.WriteString("func resources() []mcpserve.ResourceDefinition {\n")
	if len(r.srv.Resources) == 0 {
		r.body.WriteString("\treturn nil\n}\n\n")
		return
	}
	r.body.WriteString("\treturn []mcpserve.ResourceDefinition{\n")
	for _, res := range r.srv.Resources {
		r.body.WriteString("\t\t{\n")
		fmt.Fprintf(&r.body, "\t\t\tName:        %q,\n", res.Name)
		fmt.Fprintf(&r.body, "\t\t\tDescription: %q,\n", res.Description)
		fmt.Fprintf(&r.body, "\t\t\tURI:         %q,\n", res.URI)
		if res.MimeType != "" {
			fmt.Fprintf(&r.body, "\t\t\tMimeType:    %q,\n", res.MimeType)
		}
		r.renderParams(res.Params)
		r.renderReadFunc(res)
		r.renderListFunc(res)
		r.renderSubscribeFunc(res)
		r.body.WriteString("\t\t},\n")
	}
	r.body.WriteString("\t}\n}\n")
}

func (r *serverRenderer) renderParams(params []extract.Param) {
	if len(params) == 0 {
		return
	}
	r.body.WriteString("\t\t\tParams: []mcpserve.ParameterDescriptor{\n")
	for _, p := range params {
		fmt.Fprintf(&r.body, "\t\t\t\t{Name: %q, Type: mcpserve.%s", p.Desc.Name, paramTypeName(p.Desc.Type))
		if p.Desc.Description != "" {
			fmt.Fprintf(&r.body, ", Description: %q", p.Desc.Description)
		}
		if p.Desc.Required {
			r.body.WriteString(", Required: true")
		}
		r.body.WriteString("},\n")
	}
	r.body.WriteString("\t\t\t},\n")
}

func (r *serverRenderer) renderToolHandler(t assemble.Tool) {
	ctxName := "_"
	if t.HasContext || t.Async {
		ctxName = "ctx"
	}
	argsName := "_"
	if len(t.Params) > 0 {
		argsName = "args"
	}
	fmt.Fprintf(&r.body, "\t\t\tHandler: func(%s context.Context, %s map[string]any) (any, error) {\n", ctxName, argsName)

	call := r.call(t.FuncName, t.HasContext, t.Params, r.toolArg)
	switch {
	case t.Async:
		if t.ReturnsError {
			fmt.Fprintf(&r.body, "\t\t\t\tch, err := %s\n", call)
			r.body.WriteString("\t\t\t\tif err != nil {\n\t\t\t\t\treturn nil, err\n\t\t\t\t}\n")
		} else {
			fmt.Fprintf(&r.body, "\t\t\t\tch := %s\n", call)
		}
		r.body.WriteString("\t\t\t\tselect {\n")
		r.body.WriteString("\t\t\t\tcase v, ok := <-ch:\n")
		r.body.WriteString("\t\t\t\t\tif !ok {\n\t\t\t\t\t\treturn nil, nil\n\t\t\t\t\t}\n")
		r.body.WriteString("\t\t\t\t\treturn v, nil\n")
		r.body.WriteString("\t\t\t\tcase <-ctx.Done():\n")
		r.body.WriteString("\t\t\t\t\treturn nil, ctx.Err()\n")
		r.body.WriteString("\t\t\t\t}\n")
	case t.HasResult && t.ReturnsError:
		fmt.Fprintf(&r.body, "\t\t\t\tv, err := %s\n", call)
		r.body.WriteString("\t\t\t\tif err != nil {\n\t\t\t\t\treturn nil, err\n\t\t\t\t}\n")
		r.body.WriteString("\t\t\t\treturn v, nil\n")
	case t.HasResult:
		fmt.Fprintf(&r.body, "\t\t\t\treturn %s, nil\n", call)
	case t.ReturnsError:
		fmt.Fprintf(&r.body, "\t\t\t\treturn nil, %s\n", call)
	default:
		fmt.Fprintf(&r.body, "\t\t\t\t%s\n", call)
		r.body.WriteString("\t\t\t\treturn nil, nil\n")
	}
	r.body.WriteString("\t\t\t},\n")
}

func (r *serverRenderer) renderPromptHandler(p assemble.Prompt) {
	ctxName := "_"
	if p.HasContext {
		ctxName = "ctx"
	}
	argsName := "_"
	if len(p.Params) > 0 {
		argsName = "args"
	}
	fmt.Fprintf(&r.body, "\t\t\tHandler: func(%s context.Context, %s map[string]string) (any, error) {\n", ctxName, argsName)

	call := r.call(p.FuncName, p.HasContext, p.Params, r.stringArg)
	if p.ReturnsError {
		fmt.Fprintf(&r.body, "\t\t\t\tv, err := %s\n", call)
		r.body.WriteString("\t\t\t\tif err != nil {\n\t\t\t\t\treturn nil, err\n\t\t\t\t}\n")
		r.body.WriteString("\t\t\t\treturn v, nil\n")
	} else {
		fmt.Fprintf(&r.body, "\t\t\t\treturn %s, nil\n", call)
	}
	r.body.WriteString("\t\t\t},\n")
}

func (r *serverRenderer) renderReadFunc(res assemble.Resource) {
	ctxName := "_"
	if res.HasContext {
		ctxName = "ctx"
	}
	argsName := "_"
	if len(res.Params) > 0 {
		argsName = "args"
	}
	fmt.Fprintf(&r.body, "\t\t\tRead: func(%s context.Context, _ string, %s map[string]string) (any, error) {\n", ctxName, argsName)

	call := r.call(res.FuncName, res.HasContext, res.Params, r.stringArg)
	if res.ReturnsError {
		fmt.Fprintf(&r.body, "\t\t\t\tv, err := %s\n", call)
		r.body.WriteString("\t\t\t\tif err != nil {\n\t\t\t\t\treturn nil, err\n\t\t\t\t}\n")
		r.body.WriteString("\t\t\t\treturn v, nil\n")
	} else {
		fmt.Fprintf(&r.body, "\t\t\t\treturn %s, nil\n", call)
	}
	r.body.WriteString("\t\t\t},\n")
}

func (r *serverRenderer) renderListFunc(res assemble.Resource) {
	if res.ListFunc == "" {
		return
	}
	ctxName := "_"
	ctxArg := ""
	if res.ListHasContext {
		ctxName = "ctx"
		ctxArg = "ctx"
	}
	fmt.Fprintf(&r.body, "\t\t\tList: func(%s context.Context) ([]mcpserve.ResourceEntry, error) {\n", ctxName)
	if res.ListReturnsError {
		fmt.Fprintf(&r.body, "\t\t\t\turis, err := %s.%s(%s)\n", r.srv.PkgName, res.ListFunc, ctxArg)
		r.body.WriteString("\t\t\t\tif err != nil {\n\t\t\t\t\treturn nil, err\n\t\t\t\t}\n")
		r.body.WriteString("\t\t\t\treturn mcpserve.EntriesFromStrings(uris), nil\n")
	} else {
		fmt.Fprintf(&r.body, "\t\t\t\treturn mcpserve.EntriesFromStrings(%s.%s(%s)), nil\n", r.srv.PkgName, res.ListFunc, ctxArg)
	}
	r.body.WriteString("\t\t\t},\n")
}

func (r *serverRenderer) renderSubscribeFunc(res assemble.Resource) {
	switch res.Mode {
	case mcpserve.SubscribePoll:
		fmt.Fprintf(&r.body, "\t\t\tPoll: %s.%s,\n", r.srv.PkgName, res.SubscribeFunc)
	case mcpserve.SubscribeGenerator:
		r.needIter = true
		r.body.WriteString("\t\t\tUpdates: func(ctx context.Context) iter.Seq[struct{}] {\n")
		if res.SubscribeChan {
			fmt.Fprintf(&r.body, "\t\t\t\tch := %s.%s(ctx)\n", r.srv.PkgName, res.SubscribeFunc)
			r.body.WriteString("\t\t\t\treturn func(yield func(struct{}) bool) {\n")
			r.body.WriteString("\t\t\t\t\tfor {\n")
			r.body.WriteString("\t\t\t\t\t\tselect {\n")
			r.body.WriteString("\t\t\t\t\t\tcase _, ok := <-ch:\n")
			r.body.WriteString("\t\t\t\t\t\t\tif !ok {\n\t\t\t\t\t\t\t\treturn\n\t\t\t\t\t\t\t}\n")
			r.body.WriteString("\t\t\t\t\t\t\tif !yield(struct{}{}) {\n\t\t\t\t\t\t\t\treturn\n\t\t\t\t\t\t\t}\n")
			r.body.WriteString("\t\t\t\t\t\tcase <-ctx.Done():\n")
			r.body.WriteString("\t\t\t\t\t\t\treturn\n")
			r.body.WriteString("\t\t\t\t\t\t}\n")
			r.body.WriteString("\t\t\t\t\t}\n")
			r.body.WriteString("\t\t\t\t}\n")
		} else {
			r.body.WriteString("\t\t\t\treturn func(yield func(struct{}) bool) {\n")
			fmt.Fprintf(&r.body, "\t\t\t\t\tfor range %s.%s(ctx) {\n", r.srv.PkgName, res.SubscribeFunc)
			r.body.WriteString("\t\t\t\t\t\tif !yield(struct{}{}) {\n\t\t\t\t\t\t\treturn\n\t\t\t\t\t\t}\n")
			r.body.WriteString("\t\t\t\t\t}\n")
			r.body.WriteString("\t\t\t\t}\n")
		}
		r.body.WriteString("\t\t\t},\n")
	}
}

// call renders the invocation of the source function.
func (r *serverRenderer) call(funcName string, hasCtx bool, params []extract.Param, arg func(extract.Param) string) string {
	var args []string
	if hasCtx {
		args = append(args, "ctx")
	}
	for _, p := range params {
		expr := arg(p)
		if p.Variadic {
			expr += "..."
		}
		args = append(args, expr)
	}
	return fmt.Sprintf("%s.%s(%s)", r.srv.PkgName, funcName, strings.Join(args, ", "))
}

// toolArg renders the accessor expression for one tool parameter out of the
// validated argument map.
func (r *serverRenderer) toolArg(p extract.Param) string {
	name := p.Desc.Name

	if p.Variadic {
		elem := p.Type.Underlying().(*types.Slice).Elem()
		switch {
		case isBasic(elem, types.String):
			return fmt.Sprintf("mcpserve.StringSliceArg(args, %q)", name)
		case isBasic(elem, types.Float64):
			return fmt.Sprintf("mcpserve.NumberSliceArg(args, %q)", name)
		default:
			return fmt.Sprintf("mcpserve.Arg[%s](args, %q)", r.goType(p.Type), name)
		}
	}

	optional := !p.Desc.Required

	if b, ok := p.Type.(*types.Basic); ok {
		switch b.Kind() {
		case types.String:
			return r.basicArg("StringArg", name, optional)
		case types.Bool:
			return r.basicArg("BoolArg", name, optional)
		case types.Int:
			return r.basicArg("IntArg", name, optional)
		case types.Float64:
			return r.basicArg("NumberArg", name, optional)
		}
		if b.Info()&types.IsNumeric != 0 && !optional {
			return fmt.Sprintf("%s(mcpserve.NumberArg(args, %q))", r.goType(p.Type), name)
		}
	}

	if helper, ok := r.underlyingHelper(p.Type); ok {
		if optional {
			// *string converts to the named pointer type because the
			// underlying types match.
			return fmt.Sprintf("(*%s)(mcpserve.Opt%s(args, %q))", r.goType(p.Type), helper, name)
		}
		return fmt.Sprintf("%s(mcpserve.%s(args, %q))", r.goType(p.Type), helper, name)
	}

	if isStringSlice(p.Type) {
		return fmt.Sprintf("mcpserve.StringSliceArg(args, %q)", name)
	}
	if isAnyMap(p.Type) {
		return fmt.Sprintf("mcpserve.ObjectArg(args, %q)", name)
	}

	goType := r.goType(p.Type)
	if optional {
		goType = "*" + goType
	}
	return fmt.Sprintf("mcpserve.Arg[%s](args, %q)", goType, name)
}

// stringArg renders the accessor for prompt and resource parameters, whose
// argument maps carry strings only.
func (r *serverRenderer) stringArg(p extract.Param) string {
	name := p.Desc.Name
	optional := !p.Desc.Required

	if _, ok := p.Type.(*types.Basic); ok {
		if optional {
			return fmt.Sprintf("mcpserve.OptPromptArg(args, %q)", name)
		}
		return fmt.Sprintf("mcpserve.PromptArg(args, %q)", name)
	}
	if optional {
		return fmt.Sprintf("(*%s)(mcpserve.OptPromptArg(args, %q))", r.goType(p.Type), name)
	}
	return fmt.Sprintf("%s(mcpserve.PromptArg(args, %q))", r.goType(p.Type), name)
}

func (r *serverRenderer) basicArg(helper, name string, optional bool) string {
	if optional {
		return fmt.Sprintf("mcpserve.Opt%s(args, %q)", helper, name)
	}
	return fmt.Sprintf("mcpserve.%s(args, %q)", helper, name)
}

// underlyingHelper reports the accessor for a named type whose underlying
// type has a direct accessor.
func (r *serverRenderer) underlyingHelper(t types.Type) (string, bool) {
	named, ok := t.(*types.Named)
	if !ok {
		return "", false
	}
	b, ok := named.Underlying().(*types.Basic)
	if !ok {
		return "", false
	}
	switch b.Kind() {
	case types.String:
		return "StringArg", true
	case types.Bool:
		return "BoolArg", true
	case types.Int:
		return "IntArg", true
	case types.Float64:
		return "NumberArg", true
	}
	return "", false
}

func isBasic(t types.Type, kind types.BasicKind) bool {
	b, ok := t.(*types.Basic)
	return ok && b.Kind() == kind
}

func isStringSlice(t types.Type) bool {
	s, ok := t.(*types.Slice)
	return ok && isBasic(s.Elem(), types.String)
}

func isAnyMap(t types.Type) bool {
	m, ok := t.(*types.Map)
	if !ok || !isBasic(m.Key(), types.String) {
		return false
	}
	iface, ok := m.Elem().Underlying().(*types.Interface)
	return ok && iface.Empty()
}

func paramTypeName(t mcpserve.ParamType) string {
	switch t {
	case mcpserve.ParamString:
		return "ParamString"
	case mcpserve.ParamNumber:
		return "ParamNumber"
	case mcpserve.ParamBoolean:
		return "ParamBoolean"
	case mcpserve.ParamArray:
		return "ParamArray"
	default:
		return "ParamObject"
	}
}

// schemaLit renders a schema node as a Go composite literal.
func schemaLit(n mcpserve.SchemaNode) string {
	switch n.Kind {
	case mcpserve.KindArray:
		items := schemaLit(*n.Items)
		return fmt.Sprintf("mcpserve.SchemaNode{Kind: mcpserve.KindArray, Items: &%s}", items)
	case mcpserve.KindRecord:
		value := schemaLit(*n.Value)
		return fmt.Sprintf("mcpserve.SchemaNode{Kind: mcpserve.KindRecord, Value: &%s}", value)
	case mcpserve.KindObject:
		var b strings.Builder
		b.WriteString("mcpserve.SchemaNode{Kind: mcpserve.KindObject, Properties: []mcpserve.SchemaProperty{\n")
		for _, p := range n.Properties {
			fmt.Fprintf(&b, "{Name: %q, Schema: %s", p.Name, schemaLit(p.Schema))
			if p.Optional {
				b.WriteString(", Optional: true")
			}
			b.WriteString("},\n")
		}
		b.WriteString("}}")
		return b.String()
	default:
		return fmt.Sprintf("mcpserve.SchemaNode{Kind: mcpserve.%s}", kindName(n.Kind))
	}
}

func kindName(k mcpserve.SchemaKind) string {
	switch k {
	case mcpserve.KindString:
		return "KindString"
	case mcpserve.KindNumber:
		return "KindNumber"
	case mcpserve.KindBoolean:
		return "KindBoolean"
	default:
		return "KindNone"
	}
}
