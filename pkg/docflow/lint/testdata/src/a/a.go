// Package a is a test package for the determinism linter.
package a

import (
	"engine"
	"math/rand"
	"os"
	"time"
	"uuid"
)

// Test cases

func clockRead(ctx *engine.OrchestrationContext) {
	_ = time.Now() // want `time.Now in workflow definition`
}

func clockDelta(ctx *engine.OrchestrationContext, start time.Time) {
	_ = time.Since(start) // want `time.Since in workflow definition`
}

func randomDraw(ctx *engine.OrchestrationContext) {
	_ = rand.Intn(10) // want `rand.Intn in workflow definition`
}

func envRead(ctx *engine.OrchestrationContext) {
	_ = os.Getenv("HOME") // want `os.Getenv in workflow definition`
}

func randomID(ctx *engine.OrchestrationContext) {
	_ = uuid.NewString() // want `uuid.NewString in workflow definition`
}

func spawnsGoroutine(ctx *engine.OrchestrationContext) {
	go func() {}() // want `go statement in workflow definition`
}

func definitionLiteral() {
	_ = func(ctx *engine.OrchestrationContext) {
		_ = time.Now() // want `time.Now in workflow definition`
	}
}

// Valid cases - should NOT produce warnings

func deterministicDefinition(ctx *engine.OrchestrationContext) error {
	task := ctx.ScheduleActivity("extract-text", nil)
	var out string
	return ctx.Await(task, &out)
}

func durationConstant(ctx *engine.OrchestrationContext) {
	_ = 5 * time.Second
}

func plainFunction() {
	// Not a definition, nondeterminism is fine here.
	_ = time.Now()
	go func() {}()
}
