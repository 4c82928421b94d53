package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/docflow/internal/blobstore"
	"github.com/example/docflow/internal/domain"
	"github.com/example/docflow/internal/engine"
	"github.com/example/docflow/internal/observability"
	"github.com/example/docflow/internal/services"
	"github.com/example/docflow/internal/storage/sqlite"
)

// fake adapters with per-test behavior.

type fakeExtractor struct {
	fn func(document []byte) (string, error)
}

func (f *fakeExtractor) ExtractText(ctx context.Context, document []byte) (string, error) {
	return f.fn(document)
}

type fakeGenerator struct {
	fn       func(systemPrompt, userText string) (string, error)
	visionFn func(systemPrompt, userText string, images []services.EncodedImage) (string, error)
}

func (f *fakeGenerator) Complete(ctx context.Context, systemPrompt, userText string) (string, error) {
	return f.fn(systemPrompt, userText)
}

func (f *fakeGenerator) CompleteVision(ctx context.Context, systemPrompt, userText string, images []services.EncodedImage) (string, error) {
	return f.visionFn(systemPrompt, userText, images)
}

type fakeSpeech struct {
	fn func(audio []byte, from, to string) ([]byte, error)
}

func (f *fakeSpeech) Translate(ctx context.Context, audio []byte, from, to string) ([]byte, error) {
	return f.fn(audio, from, to)
}

type testEnv struct {
	store  *blobstore.MemStore
	engine *engine.Engine
	db     *sqlite.SQLiteStorage
}

const testPromptYAML = "system_prompt: Summarize.\nuser_prompt: Summarize the text.\n"

func newTestEnv(t *testing.T, extractor *fakeExtractor, generator *fakeGenerator, speech *fakeSpeech) *testEnv {
	t.Helper()

	ctx := context.Background()
	store := blobstore.NewMemStore([]string{"raw", "extracted", "final", "prompts"})
	if err := store.Write(ctx, "prompts", "prompts.yaml", []byte(testPromptYAML)); err != nil {
		t.Fatalf("failed to write prompts: %v", err)
	}

	db, err := sqlite.New(filepath.Join(t.TempDir(), "pipeline_test.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	cfg := engine.DefaultConfig()
	cfg.RetryBackoff = 10 * time.Millisecond
	cfg.SweepInterval = 50 * time.Millisecond
	eng := engine.New(db, cfg, observability.NewMetrics())

	activities := NewActivities(store, extractor, generator, speech, Config{
		NextStage:      "final",
		PromptTier:     "prompts",
		PromptBlob:     "prompts.yaml",
		SourceLanguage: "en",
		TargetLanguage: "es",
	})
	Register(eng, activities)

	if err := eng.Start(ctx); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}

	return &testEnv{store: store, engine: eng, db: db}
}

func (e *testEnv) cleanup() {
	e.engine.Stop()
	e.db.Close()
}

func (e *testEnv) waitForTerminal(t *testing.T, instanceID string) *domain.WorkflowInstance {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		inst, err := e.engine.GetStatus(context.Background(), instanceID)
		if err != nil {
			t.Fatalf("failed to get status: %v", err)
		}
		if inst.Status.IsTerminal() {
			return inst
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("instance %s did not finish", instanceID)
	return nil
}

// TestProcessBatchEndToEnd drives one document through the whole
// pipeline: extraction, model transform with a fenced reply, persistence
// to the final tier, and batch aggregation.
func TestProcessBatchEndToEnd(t *testing.T) {
	extractor := &fakeExtractor{fn: func(document []byte) (string, error) {
		return "hello world", nil
	}}
	generator := &fakeGenerator{fn: func(systemPrompt, userText string) (string, error) {
		if systemPrompt != "Summarize." {
			t.Errorf("system prompt = %q", systemPrompt)
		}
		if userText != "hello world" {
			t.Errorf("user text = %q", userText)
		}
		return "```json\n{\"summary\":\"hello world\"}\n```", nil
	}}
	env := newTestEnv(t, extractor, generator, &fakeSpeech{})
	defer env.cleanup()

	ctx := context.Background()
	if err := env.store.Write(ctx, "raw", "a.pdf", []byte("%PDF-1.4 ...")); err != nil {
		t.Fatalf("failed to write document: %v", err)
	}

	items := []domain.WorkItem{{Name: "a.pdf", Container: "raw", CorrelationID: "c1"}}
	instanceID, err := env.engine.StartWorkflow(ctx, DefinitionProcessBatch, items)
	if err != nil {
		t.Fatalf("failed to start workflow: %v", err)
	}

	inst := env.waitForTerminal(t, instanceID)
	if inst.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want %s; error: %s", inst.Status, domain.StatusCompleted, inst.ErrorMessage)
	}

	var results []DocumentResult
	if err := json.Unmarshal(inst.Output, &results); err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.Blob.Name != "a.pdf" {
		t.Errorf("blob name = %q, want a.pdf", r.Blob.Name)
	}
	if r.TextResult != "hello world" {
		t.Errorf("text_result = %q, want %q", r.TextResult, "hello world")
	}
	if !r.TaskResult.Success || r.TaskResult.OutputBlob != "a-output.json" {
		t.Errorf("task_result = %+v, want success with a-output.json", r.TaskResult)
	}

	written, err := env.store.Read(ctx, "final", "a-output.json")
	if err != nil {
		t.Fatalf("failed to read persisted output: %v", err)
	}
	if string(written) != `{"summary":"hello world"}` {
		t.Errorf("persisted output = %q, fence not stripped", written)
	}
}

// TestProcessBatchFanOut checks N documents in, exactly N results out,
// in submission order.
func TestProcessBatchFanOut(t *testing.T) {
	extractor := &fakeExtractor{fn: func(document []byte) (string, error) {
		return "text of " + string(document), nil
	}}
	generator := &fakeGenerator{fn: func(systemPrompt, userText string) (string, error) {
		return fmt.Sprintf("{\"got\":%q}", userText), nil
	}}
	env := newTestEnv(t, extractor, generator, &fakeSpeech{})
	defer env.cleanup()

	ctx := context.Background()
	var items []domain.WorkItem
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("doc%d.pdf", i)
		if err := env.store.Write(ctx, "raw", name, []byte(name)); err != nil {
			t.Fatalf("failed to write document: %v", err)
		}
		items = append(items, domain.WorkItem{Name: name, Container: "raw"})
	}

	instanceID, err := env.engine.StartWorkflow(ctx, DefinitionProcessBatch, items)
	if err != nil {
		t.Fatalf("failed to start workflow: %v", err)
	}

	inst := env.waitForTerminal(t, instanceID)
	if inst.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want %s; error: %s", inst.Status, domain.StatusCompleted, inst.ErrorMessage)
	}

	var results []DocumentResult
	if err := json.Unmarshal(inst.Output, &results); err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}
	if len(results) != len(items) {
		t.Fatalf("got %d results, want %d", len(results), len(items))
	}
	for i, r := range results {
		if r.Blob.Name != items[i].Name {
			t.Errorf("results[%d].Blob.Name = %q, want %q", i, r.Blob.Name, items[i].Name)
		}
		wantOut := fmt.Sprintf("doc%d-output.json", i)
		if r.TaskResult.OutputBlob != wantOut {
			t.Errorf("results[%d].TaskResult.OutputBlob = %q, want %q", i, r.TaskResult.OutputBlob, wantOut)
		}
	}
}

// TestEmptyExtractionFailsDocument verifies that a document with no
// extractable text is a terminal failure for that item.
func TestEmptyExtractionFailsDocument(t *testing.T) {
	extractor := &fakeExtractor{fn: func(document []byte) (string, error) {
		return "", nil
	}}
	generator := &fakeGenerator{fn: func(systemPrompt, userText string) (string, error) {
		t.Error("transform ran despite empty extraction")
		return "", nil
	}}
	env := newTestEnv(t, extractor, generator, &fakeSpeech{})
	defer env.cleanup()

	ctx := context.Background()
	if err := env.store.Write(ctx, "raw", "blank.pdf", []byte("x")); err != nil {
		t.Fatalf("failed to write document: %v", err)
	}

	items := []domain.WorkItem{{Name: "blank.pdf", Container: "raw"}}
	instanceID, err := env.engine.StartWorkflow(ctx, DefinitionProcessBatch, items)
	if err != nil {
		t.Fatalf("failed to start workflow: %v", err)
	}

	inst := env.waitForTerminal(t, instanceID)
	if inst.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want %s", inst.Status, domain.StatusFailed)
	}
	if !strings.Contains(inst.ErrorMessage, "no text extracted from blank.pdf") {
		t.Errorf("error message %q does not name the empty extraction", inst.ErrorMessage)
	}
}

// TestProcessBatchRejectsEmptyBatch verifies the definition-level guard.
func TestProcessBatchRejectsEmptyBatch(t *testing.T) {
	env := newTestEnv(t,
		&fakeExtractor{fn: func([]byte) (string, error) { return "", nil }},
		&fakeGenerator{fn: func(string, string) (string, error) { return "", nil }},
		&fakeSpeech{})
	defer env.cleanup()

	instanceID, err := env.engine.StartWorkflow(context.Background(), DefinitionProcessBatch, []domain.WorkItem{})
	if err != nil {
		t.Fatalf("failed to start workflow: %v", err)
	}

	inst := env.waitForTerminal(t, instanceID)
	if inst.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want %s", inst.Status, domain.StatusFailed)
	}
}

// TestTranslateAudioWorkflow drives the speech translation path.
func TestTranslateAudioWorkflow(t *testing.T) {
	speech := &fakeSpeech{fn: func(audio []byte, from, to string) ([]byte, error) {
		if from != "en" || to != "es" {
			t.Errorf("languages = %s→%s, want en→es", from, to)
		}
		return append([]byte("es:"), audio...), nil
	}}
	env := newTestEnv(t,
		&fakeExtractor{fn: func([]byte) (string, error) { return "", nil }},
		&fakeGenerator{fn: func(string, string) (string, error) { return "", nil }},
		speech)
	defer env.cleanup()

	ctx := context.Background()
	if err := env.store.Write(ctx, "raw", "talk.wav", []byte("audio-bytes")); err != nil {
		t.Fatalf("failed to write audio: %v", err)
	}

	items := []domain.WorkItem{{Name: "talk.wav", Container: "raw"}}
	instanceID, err := env.engine.StartWorkflow(ctx, DefinitionTranslateAudio, items)
	if err != nil {
		t.Fatalf("failed to start workflow: %v", err)
	}

	inst := env.waitForTerminal(t, instanceID)
	if inst.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want %s; error: %s", inst.Status, domain.StatusCompleted, inst.ErrorMessage)
	}

	var results []TranslateResult
	if err := json.Unmarshal(inst.Output, &results); err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}
	if len(results) != 1 || !results[0].Success || results[0].OutputBlob != "talk-es.wav" {
		t.Fatalf("results = %+v, want one success with talk-es.wav", results)
	}

	translated, err := env.store.Read(ctx, "final", "talk-es.wav")
	if err != nil {
		t.Fatalf("failed to read translated audio: %v", err)
	}
	if string(translated) != "es:audio-bytes" {
		t.Errorf("translated audio = %q", translated)
	}
}

func TestStripJSONFence(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{`{"a":1}`, `{"a":1}`},
		{"```json{\"a\":1}```", `{"a":1}`},
		{"plain text", "plain text"},
		{"```json\nincomplete", "```json\nincomplete"},
	}
	for _, tt := range tests {
		if got := stripJSONFence(tt.in); got != tt.want {
			t.Errorf("stripJSONFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOutputBlobName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a.pdf", "a-output.json"},
		{"report.final.docx", "report.final-output.json"},
		{"noext", "noext-output.json"},
	}
	for _, tt := range tests {
		if got := outputBlobName(tt.in); got != tt.want {
			t.Errorf("outputBlobName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestProcessImageBatchEndToEnd drives a PNG document through the
// multimodal path: the page goes to the model as a base64 image, the
// fenced reply is stripped and persisted to the final tier.
func TestProcessImageBatchEndToEnd(t *testing.T) {
	generator := &fakeGenerator{visionFn: func(systemPrompt, userText string, images []services.EncodedImage) (string, error) {
		if systemPrompt != "Summarize." {
			t.Errorf("system prompt = %q", systemPrompt)
		}
		if userText != "Summarize the text." {
			t.Errorf("user text = %q", userText)
		}
		if len(images) != 1 {
			t.Fatalf("got %d images, want 1", len(images))
		}
		if images[0].MediaType != "image/png" {
			t.Errorf("media type = %q, want image/png", images[0].MediaType)
		}
		decoded, err := base64.StdEncoding.DecodeString(images[0].Data)
		if err != nil || string(decoded) != "png-bytes" {
			t.Errorf("image data = %q (decode err %v)", images[0].Data, err)
		}
		return "```json\n{\"summary\":\"a chart\"}\n```", nil
	}}
	env := newTestEnv(t, &fakeExtractor{}, generator, &fakeSpeech{})
	defer env.cleanup()

	ctx := context.Background()
	if err := env.store.Write(ctx, "raw", "chart.png", []byte("png-bytes")); err != nil {
		t.Fatalf("failed to write document: %v", err)
	}

	items := []domain.WorkItem{{Name: "chart.png", Container: "raw", CorrelationID: "c1"}}
	instanceID, err := env.engine.StartWorkflow(ctx, DefinitionProcessImageBatch, items)
	if err != nil {
		t.Fatalf("failed to start workflow: %v", err)
	}

	inst := env.waitForTerminal(t, instanceID)
	if inst.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want %s; error: %s", inst.Status, domain.StatusCompleted, inst.ErrorMessage)
	}

	var results []DocumentResult
	if err := json.Unmarshal(inst.Output, &results); err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if !results[0].TaskResult.Success || results[0].TaskResult.OutputBlob != "chart-output.json" {
		t.Errorf("task_result = %+v, want success with chart-output.json", results[0].TaskResult)
	}

	written, err := env.store.Read(ctx, "final", "chart-output.json")
	if err != nil {
		t.Fatalf("failed to read persisted output: %v", err)
	}
	if string(written) != `{"summary":"a chart"}` {
		t.Errorf("persisted output = %q, fence not stripped", written)
	}
}

// TestProcessImageRejectsUnsupportedType pins the failure of image blobs
// the encoder cannot page (anything but PNG and JPEG).
func TestProcessImageRejectsUnsupportedType(t *testing.T) {
	generator := &fakeGenerator{visionFn: func(systemPrompt, userText string, images []services.EncodedImage) (string, error) {
		t.Error("model called for an unsupported image type")
		return "", nil
	}}
	env := newTestEnv(t, &fakeExtractor{}, generator, &fakeSpeech{})
	defer env.cleanup()

	ctx := context.Background()
	if err := env.store.Write(ctx, "raw", "doc.pdf", []byte("%PDF-1.4 ...")); err != nil {
		t.Fatalf("failed to write document: %v", err)
	}

	items := []domain.WorkItem{{Name: "doc.pdf", Container: "raw", CorrelationID: "c1"}}
	instanceID, err := env.engine.StartWorkflow(ctx, DefinitionProcessImageBatch, items)
	if err != nil {
		t.Fatalf("failed to start workflow: %v", err)
	}

	inst := env.waitForTerminal(t, instanceID)
	if inst.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want %s", inst.Status, domain.StatusFailed)
	}
	if !strings.Contains(inst.ErrorMessage, "unsupported image type") {
		t.Errorf("error message = %q", inst.ErrorMessage)
	}
}
