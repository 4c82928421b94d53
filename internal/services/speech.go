package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SpeechTranslator translates spoken audio from one language to another,
// returning the translated audio.
type SpeechTranslator interface {
	Translate(ctx context.Context, audio []byte, sourceLanguage, targetLanguage string) ([]byte, error)
}

// SpeechClient calls a speech translation HTTP service: audio in, audio
// out, languages as query parameters.
type SpeechClient struct {
	endpoint string
	client   *http.Client
}

// NewSpeechClient creates a client for the given translation endpoint.
// Audio translation is slow, so the timeout is generous.
func NewSpeechClient(endpoint string) *SpeechClient {
	return &SpeechClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: 10 * time.Minute},
	}
}

func (c *SpeechClient) Translate(ctx context.Context, audio []byte, sourceLanguage, targetLanguage string) ([]byte, error) {
	q := url.Values{}
	q.Set("from", sourceLanguage)
	q.Set("to", targetLanguage)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/translate?"+q.Encode(), bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("building translation request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, mapTransportError(err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	translated, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading translated audio: %v", ErrBadResponse, err)
	}
	if len(translated) == 0 {
		return nil, fmt.Errorf("%w: translation returned no audio", ErrBadResponse)
	}
	return translated, nil
}
