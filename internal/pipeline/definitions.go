package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/docflow/internal/domain"
	"github.com/example/docflow/internal/engine"
)

// Workflow definition names, addressable from the control surface.
const (
	DefinitionProcessBatch      = "process-batch"
	DefinitionProcessDoc        = "process-document"
	DefinitionProcessImageBatch = "process-image-batch"
	DefinitionProcessImage      = "process-image"
	DefinitionTranslateAudio    = "translate-audio"
)

// DocumentResult is the per-document outcome returned by the
// process-document workflow and aggregated by process-batch.
type DocumentResult struct {
	Blob       domain.WorkItem `json:"blob"`
	TextResult string          `json:"text_result"`
	TaskResult PersistResult   `json:"task_result"`
}

// Register installs the workflow definitions and activities on the engine.
func Register(e *engine.Engine, activities *Activities) {
	e.RegisterActivity(ActivityExtractText, activities.ExtractText)
	e.RegisterActivity(ActivityTransform, activities.Transform)
	e.RegisterActivity(ActivityTransformImage, activities.TransformImage)
	e.RegisterActivity(ActivityPersist, activities.Persist)
	e.RegisterActivity(ActivityTranslateAudio, activities.TranslateAudio)

	e.RegisterDefinition(DefinitionProcessBatch, ProcessBatch)
	e.RegisterDefinition(DefinitionProcessDoc, ProcessDocument)
	e.RegisterDefinition(DefinitionProcessImageBatch, ProcessImageBatch)
	e.RegisterDefinition(DefinitionProcessImage, ProcessImage)
	e.RegisterDefinition(DefinitionTranslateAudio, TranslateAudio)
}

// ProcessBatch fans out one process-document child per work item and
// waits for all of them. All-or-nothing: any failed document fails the
// batch with that document's error.
func ProcessBatch(ctx *engine.OrchestrationContext) (any, error) {
	var items []domain.WorkItem
	if err := ctx.Input(&items); err != nil {
		return nil, fmt.Errorf("decoding batch input: %w", err)
	}
	if len(items) == 0 {
		return nil, errors.New("batch contains no work items")
	}

	tasks := make([]*engine.Task, 0, len(items))
	for _, item := range items {
		tasks = append(tasks, ctx.ScheduleSubOrchestration(DefinitionProcessDoc, item))
	}

	outputs, err := ctx.WaitAll(tasks)
	if err != nil {
		return nil, err
	}

	results := make([]DocumentResult, len(outputs))
	for i, raw := range outputs {
		if err := json.Unmarshal(raw, &results[i]); err != nil {
			return nil, fmt.Errorf("decoding result of document %d: %w", i, err)
		}
	}
	return results, nil
}

// ProcessDocument runs one document through extract, transform, persist.
// Each step's output feeds the next verbatim.
func ProcessDocument(ctx *engine.OrchestrationContext) (any, error) {
	var item domain.WorkItem
	if err := ctx.Input(&item); err != nil {
		return nil, fmt.Errorf("decoding work item: %w", err)
	}

	var text string
	if err := ctx.ScheduleActivity(ActivityExtractText, item).Await(&text); err != nil {
		return nil, err
	}
	// A document that yields no text cannot be transformed; that is a
	// terminal failure for this item, not something to pass through.
	if text == "" {
		return nil, fmt.Errorf("no text extracted from %s", item.Name)
	}

	var transformed string
	transformInput := TransformInput{TextResult: text, InstanceID: ctx.InstanceID()}
	if err := ctx.ScheduleActivity(ActivityTransform, transformInput).Await(&transformed); err != nil {
		return nil, err
	}

	var persisted PersistResult
	persistInput := PersistInput{JSONStr: transformed, BlobName: item.Name}
	if err := ctx.ScheduleActivity(ActivityPersist, persistInput).Await(&persisted); err != nil {
		return nil, err
	}

	return DocumentResult{
		Blob:       item,
		TextResult: text,
		TaskResult: persisted,
	}, nil
}

// ProcessImageBatch fans out one process-image child per work item and
// waits for all of them, mirroring ProcessBatch for image documents.
func ProcessImageBatch(ctx *engine.OrchestrationContext) (any, error) {
	var items []domain.WorkItem
	if err := ctx.Input(&items); err != nil {
		return nil, fmt.Errorf("decoding batch input: %w", err)
	}
	if len(items) == 0 {
		return nil, errors.New("batch contains no work items")
	}

	tasks := make([]*engine.Task, 0, len(items))
	for _, item := range items {
		tasks = append(tasks, ctx.ScheduleSubOrchestration(DefinitionProcessImage, item))
	}

	outputs, err := ctx.WaitAll(tasks)
	if err != nil {
		return nil, err
	}

	results := make([]DocumentResult, len(outputs))
	for i, raw := range outputs {
		if err := json.Unmarshal(raw, &results[i]); err != nil {
			return nil, fmt.Errorf("decoding result of document %d: %w", i, err)
		}
	}
	return results, nil
}

// ProcessImage runs one image document through the multimodal transform
// and persist. There is no extraction step; the model reads the pages
// directly.
func ProcessImage(ctx *engine.OrchestrationContext) (any, error) {
	var item domain.WorkItem
	if err := ctx.Input(&item); err != nil {
		return nil, fmt.Errorf("decoding work item: %w", err)
	}

	var transformed string
	transformInput := TransformImageInput{Blob: item, InstanceID: ctx.InstanceID()}
	if err := ctx.ScheduleActivity(ActivityTransformImage, transformInput).Await(&transformed); err != nil {
		return nil, err
	}

	var persisted PersistResult
	persistInput := PersistInput{JSONStr: transformed, BlobName: item.Name}
	if err := ctx.ScheduleActivity(ActivityPersist, persistInput).Await(&persisted); err != nil {
		return nil, err
	}

	return DocumentResult{
		Blob:       item,
		TaskResult: persisted,
	}, nil
}

// TranslateAudio fans out one audio translation activity per work item.
func TranslateAudio(ctx *engine.OrchestrationContext) (any, error) {
	var items []domain.WorkItem
	if err := ctx.Input(&items); err != nil {
		return nil, fmt.Errorf("decoding batch input: %w", err)
	}
	if len(items) == 0 {
		return nil, errors.New("batch contains no work items")
	}

	tasks := make([]*engine.Task, 0, len(items))
	for _, item := range items {
		tasks = append(tasks, ctx.ScheduleActivity(ActivityTranslateAudio, item))
	}

	outputs, err := ctx.WaitAll(tasks)
	if err != nil {
		return nil, err
	}

	results := make([]TranslateResult, len(outputs))
	for i, raw := range outputs {
		if err := json.Unmarshal(raw, &results[i]); err != nil {
			return nil, fmt.Errorf("decoding result of item %d: %w", i, err)
		}
	}
	return results, nil
}
