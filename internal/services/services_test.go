package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/docflow/internal/blobstore"
)

func TestExtractionClientJoinsParagraphs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/analyze" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "raw document bytes" {
			t.Errorf("server received body %q", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"paragraphs": []map[string]string{
				{"content": "first paragraph"},
				{"content": ""},
				{"content": "second paragraph"},
			},
		})
	}))
	defer srv.Close()

	client := NewExtractionClient(srv.URL)
	text, err := client.ExtractText(context.Background(), []byte("raw document bytes"))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if text != "first paragraph\nsecond paragraph" {
		t.Errorf("text = %q", text)
	}
}

func TestExtractionClientEmptyDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"paragraphs": []any{}})
	}))
	defer srv.Close()

	client := NewExtractionClient(srv.URL)
	text, err := client.ExtractText(context.Background(), []byte("scanned image"))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if text != "" {
		t.Errorf("text = %q, want empty", text)
	}
}

func TestExtractionClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewExtractionClient(srv.URL)
	_, err := client.ExtractText(context.Background(), []byte("doc"))
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("err = %v, want ErrServiceUnavailable", err)
	}
}

func TestExtractionClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewExtractionClient(srv.URL)
	_, err := client.ExtractText(context.Background(), []byte("doc"))
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("err = %v, want ErrServiceUnavailable", err)
	}
}

func TestGenerativeClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/deployments/gpt-test/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("unexpected messages %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": `{"summary":"hello"}`}},
			},
		})
	}))
	defer srv.Close()

	client := NewGenerativeClient(srv.URL, "gpt-test")
	out, err := client.Complete(context.Background(), "summarize", "hello world")
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if out != `{"summary":"hello"}` {
		t.Errorf("out = %q", out)
	}
}

func TestGenerativeClientCompleteVision(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string          `json:"role"`
				Content json.RawMessage `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if len(req.Messages) != 2 {
			t.Fatalf("got %d messages, want 2", len(req.Messages))
		}
		var parts []contentPart
		if err := json.Unmarshal(req.Messages[1].Content, &parts); err != nil {
			t.Errorf("user content is not a part list: %v", err)
		}
		if len(parts) != 2 || parts[0].Type != "text" || parts[0].Text != "describe the page" {
			t.Errorf("unexpected parts %+v", parts)
		}
		if parts[1].Type != "image_url" || parts[1].ImageURL == nil ||
			parts[1].ImageURL.URL != "data:image/png;base64,cGFnZQ==" {
			t.Errorf("unexpected image part %+v", parts[1])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": `{"summary":"a page"}`}},
			},
		})
	}))
	defer srv.Close()

	client := NewGenerativeClient(srv.URL, "gpt-test")
	images := []EncodedImage{{MediaType: "image/png", Data: "cGFnZQ=="}}
	out, err := client.CompleteVision(context.Background(), "summarize", "describe the page", images)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if out != `{"summary":"a page"}` {
		t.Errorf("out = %q", out)
	}
}

func TestGenerativeClientNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	client := NewGenerativeClient(srv.URL, "gpt-test")
	_, err := client.Complete(context.Background(), "sys", "user")
	if !errors.Is(err, ErrBadResponse) {
		t.Errorf("err = %v, want ErrBadResponse", err)
	}
}

func TestSpeechClientTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to"); from != "en" || to != "es" {
			t.Errorf("languages = %s→%s, want en→es", from, to)
		}
		w.Write([]byte("translated audio"))
	}))
	defer srv.Close()

	client := NewSpeechClient(srv.URL)
	out, err := client.Translate(context.Background(), []byte("audio"), "en", "es")
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if string(out) != "translated audio" {
		t.Errorf("out = %q", out)
	}
}

func TestSpeechClientEmptyAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	client := NewSpeechClient(srv.URL)
	_, err := client.Translate(context.Background(), []byte("audio"), "en", "es")
	if !errors.Is(err, ErrBadResponse) {
		t.Errorf("err = %v, want ErrBadResponse", err)
	}
}

func TestLoadPrompts(t *testing.T) {
	store := blobstore.NewMemStore([]string{"prompts"})
	ctx := context.Background()

	promptYAML := "system_prompt: You are a summarizer.\nuser_prompt: Summarize the text.\n"
	if err := store.Write(ctx, "prompts", "prompts.yaml", []byte(promptYAML)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	prompts, err := LoadPrompts(ctx, store, "prompts", "prompts.yaml")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if prompts.SystemPrompt != "You are a summarizer." {
		t.Errorf("system prompt = %q", prompts.SystemPrompt)
	}
	if prompts.UserPrompt != "Summarize the text." {
		t.Errorf("user prompt = %q", prompts.UserPrompt)
	}
}

func TestLoadPromptsMissingKey(t *testing.T) {
	store := blobstore.NewMemStore([]string{"prompts"})
	ctx := context.Background()

	if err := store.Write(ctx, "prompts", "prompts.yaml", []byte("system_prompt: only one\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := LoadPrompts(ctx, store, "prompts", "prompts.yaml"); err == nil {
		t.Error("load succeeded with missing user_prompt, want error")
	}
}

func TestLoadPromptsMissingBlob(t *testing.T) {
	store := blobstore.NewMemStore([]string{"prompts"})
	_, err := LoadPrompts(context.Background(), store, "prompts", "absent.yaml")
	if !errors.Is(err, blobstore.ErrNotFound) {
		t.Errorf("err = %v, want blobstore.ErrNotFound", err)
	}
}
