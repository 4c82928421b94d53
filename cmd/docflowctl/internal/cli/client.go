package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// postJSON sends body as JSON and decodes the reply into out (which may
// be nil). Non-2xx replies become errors carrying the response text.
func postJSON(path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	resp, err := httpClient.Post(serverURL(path), "application/json", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("calling server: %w", err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

// getJSON decodes a GET reply into out and returns the status code.
func getJSON(path string, out any) (int, error) {
	resp, err := httpClient.Get(serverURL(path))
	if err != nil {
		return 0, fmt.Errorf("calling server: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode, decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func serverURL(path string) string {
	return strings.TrimRight(serverAddr, "/") + path
}
