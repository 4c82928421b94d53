package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Generator runs a system prompt plus user content through a generative
// model and returns the model's reply. CompleteVision attaches page images
// to the user message for multimodal models.
type Generator interface {
	Complete(ctx context.Context, systemPrompt, userText string) (string, error)
	CompleteVision(ctx context.Context, systemPrompt, userText string, images []EncodedImage) (string, error)
}

// EncodedImage is one page image, base64-encoded with its media type.
type EncodedImage struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// GenerativeClient calls a chat-completion style HTTP service.
type GenerativeClient struct {
	endpoint   string
	deployment string
	client     *http.Client
}

// NewGenerativeClient creates a client for the given endpoint and model
// deployment name.
func NewGenerativeClient(endpoint, deployment string) *GenerativeClient {
	return &GenerativeClient{
		endpoint:   strings.TrimRight(endpoint, "/"),
		deployment: deployment,
		client:     &http.Client{Timeout: 2 * time.Minute},
	}
}

// chatMessage content is a plain string for text completions and a list
// of contentPart for multimodal ones.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends the prompt pair and returns the first choice's content.
func (c *GenerativeClient) Complete(ctx context.Context, systemPrompt, userText string) (string, error) {
	return c.complete(ctx, []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userText},
	})
}

// CompleteVision sends the prompt pair with the images attached to the
// user message as base64 data URLs.
func (c *GenerativeClient) CompleteVision(ctx context.Context, systemPrompt, userText string, images []EncodedImage) (string, error) {
	parts := make([]contentPart, 0, len(images)+1)
	parts = append(parts, contentPart{Type: "text", Text: userText})
	for _, img := range images {
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: fmt.Sprintf("data:%s;base64,%s", img.MediaType, img.Data)},
		})
	}
	return c.complete(ctx, []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: parts},
	})
}

func (c *GenerativeClient) complete(ctx context.Context, messages []chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{Model: c.deployment, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("building completion request: %w", err)
	}

	url := fmt.Sprintf("%s/deployments/%s/chat/completions", c.endpoint, c.deployment)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", mapTransportError(err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decoding completion: %v", ErrBadResponse, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: completion returned no choices", ErrBadResponse)
	}
	return parsed.Choices[0].Message.Content, nil
}
