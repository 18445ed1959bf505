package apiclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
)

// Artifact describes a published model artifact.
type Artifact struct {
	ID       string `json:"id"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

// ListModels returns all published artifacts.
func (c *Client) ListModels() ([]Artifact, error) {
	var artifacts []Artifact
	if err := c.get("/v1/models", &artifacts); err != nil {
		return nil, err
	}
	return artifacts, nil
}

// PublishModel publishes a packaged artifact under the given identity.
func (c *Client) PublishModel(id string, archive io.Reader) (*Artifact, error) {
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/v1/models", archive)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/gzip")
	req.Header.Set("X-Model-Id", id)

	var artifact Artifact
	if err := c.send(req, &artifact); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// PublishModelFile publishes an artifact from a file on disk.
func (c *Client) PublishModelFile(id, path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact file: %w", err)
	}
	return c.PublishModel(id, bytes.NewReader(data))
}

// Invoke sends a payload to a model on the given endpoint and returns the
// model's raw output.
func (c *Client) Invoke(endpoint, target, contentType string, payload []byte) ([]byte, error) {
	path := fmt.Sprintf("/v1/endpoints/%s/invocations", url.PathEscape(endpoint))
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-Target-Model", target)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	return body, nil
}
