package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Extractor extracts the text content of a document.
type Extractor interface {
	ExtractText(ctx context.Context, document []byte) (string, error)
}

// ExtractionClient calls a document analysis HTTP service that accepts the
// raw document and returns its paragraphs.
type ExtractionClient struct {
	endpoint string
	client   *http.Client
}

// NewExtractionClient creates a client for the given analysis endpoint.
func NewExtractionClient(endpoint string) *ExtractionClient {
	return &ExtractionClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: 2 * time.Minute},
	}
}

type analyzeResponse struct {
	Paragraphs []struct {
		Content string `json:"content"`
	} `json:"paragraphs"`
}

// ExtractText submits the document for analysis and returns its paragraphs
// joined by newlines. A document with no recognizable text yields an empty
// string, not an error; the pipeline decides what that means.
func (c *ExtractionClient) ExtractText(ctx context.Context, document []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/analyze", bytes.NewReader(document))
	if err != nil {
		return "", fmt.Errorf("building extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", mapTransportError(err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	var parsed analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decoding analysis result: %v", ErrBadResponse, err)
	}

	parts := make([]string, 0, len(parsed.Paragraphs))
	for _, p := range parsed.Paragraphs {
		if p.Content != "" {
			parts = append(parts, p.Content)
		}
	}
	return strings.Join(parts, "\n"), nil
}

func mapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrServiceUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: HTTP %d", ErrBadResponse, resp.StatusCode)
	}
	return nil
}
