// Package pipeline declares the document processing workflows and the
// activities they schedule. Definitions contain sequencing only; all I/O
// lives in the activities, which are idempotent (same input writes the
// same output path) so at-least-once execution is safe.
package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/example/docflow/internal/blobstore"
	"github.com/example/docflow/internal/domain"
	"github.com/example/docflow/internal/services"
)

// Activity names as recorded in workflow history. Renaming one breaks
// replay of in-flight instances, so these are append-only in practice.
const (
	ActivityExtractText    = "extract-text"
	ActivityTransform      = "transform"
	ActivityTransformImage = "transform-image"
	ActivityPersist        = "persist"
	ActivityTranslateAudio = "translate-audio"
)

// Config holds the pipeline's storage and language settings.
type Config struct {
	// NextStage is the tier results are written to.
	NextStage string
	// PromptTier and PromptBlob locate the transform prompt template.
	PromptTier string
	PromptBlob string
	// Source and target languages for audio translation.
	SourceLanguage string
	TargetLanguage string
}

// Activities implements the pipeline's activity functions over the blob
// store and the external service adapters.
type Activities struct {
	store     blobstore.Store
	extractor services.Extractor
	generator services.Generator
	speech    services.SpeechTranslator
	config    Config
}

// NewActivities wires the activity implementations.
func NewActivities(store blobstore.Store, extractor services.Extractor, generator services.Generator, speech services.SpeechTranslator, config Config) *Activities {
	return &Activities{
		store:     store,
		extractor: extractor,
		generator: generator,
		speech:    speech,
		config:    config,
	}
}

// TransformInput carries the extracted text into the transform step
// together with the correlation ID of the owning instance.
type TransformInput struct {
	TextResult string `json:"text_result"`
	InstanceID string `json:"instance_id"`
}

// PersistInput carries the transform result to the persist step.
type PersistInput struct {
	JSONStr  string `json:"json_str"`
	BlobName string `json:"blob_name"`
}

// PersistResult reports where the output landed.
type PersistResult struct {
	Success    bool   `json:"success"`
	OutputBlob string `json:"output_blob"`
}

// TranslateResult reports where the translated audio landed.
type TranslateResult struct {
	Success    bool   `json:"success"`
	OutputBlob string `json:"output_blob"`
}

// ExtractText reads the document from its tier and runs it through the
// extraction service. An unreadable document or service failure is an
// error; a readable document with no text returns an empty string.
func (a *Activities) ExtractText(ctx context.Context, input json.RawMessage) (any, error) {
	var item domain.WorkItem
	if err := json.Unmarshal(input, &item); err != nil {
		return nil, fmt.Errorf("decoding work item: %w", err)
	}

	document, err := a.store.Read(ctx, item.Container, item.Name)
	if err != nil {
		return nil, fmt.Errorf("reading document %s/%s: %w", item.Container, item.Name, err)
	}

	text, err := a.extractor.ExtractText(ctx, document)
	if err != nil {
		return nil, fmt.Errorf("extracting text from %s: %w", item.Name, err)
	}
	return text, nil
}

// Transform runs the extracted text through the generative model using
// the operator-managed prompt template.
func (a *Activities) Transform(ctx context.Context, input json.RawMessage) (any, error) {
	var in TransformInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decoding transform input: %w", err)
	}

	prompts, err := services.LoadPrompts(ctx, a.store, a.config.PromptTier, a.config.PromptBlob)
	if err != nil {
		return nil, err
	}

	response, err := a.generator.Complete(ctx, prompts.SystemPrompt, in.TextResult)
	if err != nil {
		return nil, fmt.Errorf("transforming text for %s: %w", in.InstanceID, err)
	}
	return stripJSONFence(response), nil
}

// TransformImageInput carries the image document into the multimodal
// transform step together with the correlation ID of the owning instance.
type TransformImageInput struct {
	Blob       domain.WorkItem `json:"blob"`
	InstanceID string          `json:"instance_id"`
}

// TransformImage reads an image document and runs it through the
// generative model as base64 page images, skipping text extraction.
func (a *Activities) TransformImage(ctx context.Context, input json.RawMessage) (any, error) {
	var in TransformImageInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decoding transform-image input: %w", err)
	}

	document, err := a.store.Read(ctx, in.Blob.Container, in.Blob.Name)
	if err != nil {
		return nil, fmt.Errorf("reading document %s/%s: %w", in.Blob.Container, in.Blob.Name, err)
	}

	images, err := encodeImages(in.Blob.Name, document)
	if err != nil {
		return nil, err
	}

	prompts, err := services.LoadPrompts(ctx, a.store, a.config.PromptTier, a.config.PromptBlob)
	if err != nil {
		return nil, err
	}

	response, err := a.generator.CompleteVision(ctx, prompts.SystemPrompt, prompts.UserPrompt, images)
	if err != nil {
		return nil, fmt.Errorf("transforming image for %s: %w", in.InstanceID, err)
	}
	return stripJSONFence(response), nil
}

// encodeImages maps an image blob to the model's page-image format.
// Multi-page formats would need per-page rasterization first.
func encodeImages(name string, data []byte) ([]services.EncodedImage, error) {
	var mediaType string
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		mediaType = "image/png"
	case ".jpg", ".jpeg":
		mediaType = "image/jpeg"
	default:
		return nil, fmt.Errorf("unsupported image type for %s", name)
	}
	return []services.EncodedImage{{
		MediaType: mediaType,
		Data:      base64.StdEncoding.EncodeToString(data),
	}}, nil
}

// stripJSONFence removes a ```json code fence the model sometimes wraps
// its reply in.
func stripJSONFence(s string) string {
	if !strings.HasPrefix(s, "```json") || !strings.HasSuffix(s, "```") {
		return s
	}
	s = strings.Trim(s, "`")
	s = strings.Replace(s, "json", "", 1)
	return strings.TrimSpace(s)
}

// Persist writes the transform result next to the document's base name in
// the next-stage tier. Overwrite semantics make the write idempotent.
func (a *Activities) Persist(ctx context.Context, input json.RawMessage) (any, error) {
	var in PersistInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decoding persist input: %w", err)
	}

	outputName := outputBlobName(in.BlobName)
	if err := a.store.Write(ctx, a.config.NextStage, outputName, []byte(in.JSONStr)); err != nil {
		return nil, fmt.Errorf("writing output for %s: %w", in.BlobName, err)
	}
	return PersistResult{Success: true, OutputBlob: outputName}, nil
}

// outputBlobName derives the result blob name: base name without
// extension plus "-output.json".
func outputBlobName(blobName string) string {
	base := strings.TrimSuffix(blobName, path.Ext(blobName))
	return base + "-output.json"
}

// TranslateAudio reads an audio blob, translates the speech, and writes
// the translated audio to the next-stage tier.
func (a *Activities) TranslateAudio(ctx context.Context, input json.RawMessage) (any, error) {
	var item domain.WorkItem
	if err := json.Unmarshal(input, &item); err != nil {
		return nil, fmt.Errorf("decoding work item: %w", err)
	}

	audio, err := a.store.Read(ctx, item.Container, item.Name)
	if err != nil {
		return nil, fmt.Errorf("reading audio %s/%s: %w", item.Container, item.Name, err)
	}

	translated, err := a.speech.Translate(ctx, audio, a.config.SourceLanguage, a.config.TargetLanguage)
	if err != nil {
		return nil, fmt.Errorf("translating %s: %w", item.Name, err)
	}

	base := strings.TrimSuffix(item.Name, path.Ext(item.Name))
	outputName := fmt.Sprintf("%s-%s%s", base, a.config.TargetLanguage, path.Ext(item.Name))
	if err := a.store.Write(ctx, a.config.NextStage, outputName, translated); err != nil {
		return nil, fmt.Errorf("writing translated audio for %s: %w", item.Name, err)
	}
	return TranslateResult{Success: true, OutputBlob: outputName}, nil
}
