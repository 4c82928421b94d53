// Command docflow-lint runs static analysis on workflow definitions.
//
// Usage:
//
//	docflow-lint ./...
//
// Definitions replay from recorded history and must be deterministic.
// This tool flags wall-clock reads, math/rand, environment reads,
// random IDs, and go statements inside functions that take an
// *engine.OrchestrationContext.
package main

import (
	"github.com/example/docflow/pkg/docflow/lint"
	"golang.org/x/tools/go/analysis/singlechecker"
)

func main() {
	singlechecker.Main(lint.Analyzer)
}
