// Package lint provides static analysis checks for workflow definitions.
//
// Workflow definitions replay from recorded history, so their code must
// be deterministic: the same history must always drive the definition
// down the same path. This analyzer flags nondeterministic constructs
// inside any function that takes an *engine.OrchestrationContext:
//   - time.Now / time.Since / time.Until (wall clock reads)
//   - math/rand calls
//   - os.Getenv / os.LookupEnv (environment reads)
//   - uuid.New and friends (random identifiers)
//   - go statements (scheduling order is not recorded in history)
//
// Such work belongs in activities, where the engine records the result.
//
// Usage:
//
//	go install github.com/example/docflow/cmd/docflow-lint@latest
//	docflow-lint ./...
package lint

import (
	"go/ast"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

// Analyzer is the workflow determinism analyzer.
var Analyzer = &analysis.Analyzer{
	Name:     "docflowlint",
	Doc:      "checks workflow definitions for nondeterministic constructs",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

// forbiddenCalls maps package identifier to the functions that read
// nondeterministic state. An empty set means every call is forbidden.
var forbiddenCalls = map[string]map[string]bool{
	"time": {"Now": true, "Since": true, "Until": true},
	"rand": {}, // all of math/rand
	"os":   {"Getenv": true, "LookupEnv": true, "Environ": true},
	"uuid": {}, // all of github.com/google/uuid
}

func run(pass *analysis.Pass) (interface{}, error) {
	inspect := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	nodeFilter := []ast.Node{(*ast.FuncDecl)(nil), (*ast.FuncLit)(nil)}

	inspect.Preorder(nodeFilter, func(n ast.Node) {
		var ftype *ast.FuncType
		var body *ast.BlockStmt
		switch fn := n.(type) {
		case *ast.FuncDecl:
			ftype, body = fn.Type, fn.Body
		case *ast.FuncLit:
			ftype, body = fn.Type, fn.Body
		}
		if body == nil || !isDefinition(ftype) {
			return
		}
		checkBody(pass, body)
	})

	return nil, nil
}

// isDefinition reports whether a function takes an orchestration
// context parameter, making it a workflow definition (or a helper
// running under replay).
func isDefinition(ftype *ast.FuncType) bool {
	if ftype.Params == nil {
		return false
	}
	for _, field := range ftype.Params.List {
		star, ok := field.Type.(*ast.StarExpr)
		if !ok {
			continue
		}
		switch t := star.X.(type) {
		case *ast.SelectorExpr:
			if t.Sel.Name == "OrchestrationContext" {
				return true
			}
		case *ast.Ident:
			if t.Name == "OrchestrationContext" {
				return true
			}
		}
	}
	return false
}

func checkBody(pass *analysis.Pass, body *ast.BlockStmt) {
	ast.Inspect(body, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.FuncLit:
			// Nested literals get their own visit from the inspector
			// and are judged by their own parameters.
			return false
		case *ast.GoStmt:
			pass.Reportf(node.Pos(), "go statement in workflow definition - goroutine scheduling is not replayed deterministically, use fan-out tasks instead")
		case *ast.CallExpr:
			checkCall(pass, node)
		}
		return true
	})
}

func checkCall(pass *analysis.Pass, call *ast.CallExpr) {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return
	}
	pkg, ok := sel.X.(*ast.Ident)
	if !ok || pkg.Obj != nil {
		// Obj != nil means a local variable, not a package name.
		return
	}

	funcs, banned := forbiddenCalls[pkg.Name]
	if !banned {
		return
	}
	if len(funcs) > 0 && !funcs[sel.Sel.Name] {
		return
	}
	pass.Reportf(call.Pos(), "%s.%s in workflow definition - nondeterministic across replays, move it into an activity", pkg.Name, sel.Sel.Name)
}
