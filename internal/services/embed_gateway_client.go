package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EmbedGatewayInterface defines the interface for the image embedding gateway,
// a sidecar exposing a joint image/text embedding space (CLIP-style).
type EmbedGatewayInterface interface {
	EmbedImage(ctx context.Context, imageBytes []byte) ([]float32, error)
	EmbedImageText(ctx context.Context, text string) ([]float32, error)
	HealthCheck(ctx context.Context) (bool, error)
}

// EmbedGatewayClient handles communication with the embedding gateway
type EmbedGatewayClient struct {
	baseURL    string
	httpClient *http.Client
	retries    int
}

// NewEmbedGatewayClient creates a gateway client with default settings
func NewEmbedGatewayClient(baseURL string) *EmbedGatewayClient {
	return NewEmbedGatewayClientWithOptions(baseURL, 60*time.Second, 3)
}

// NewEmbedGatewayClientWithOptions creates a client with custom settings
func NewEmbedGatewayClientWithOptions(baseURL string, timeout time.Duration, retries int) *EmbedGatewayClient {
	return &EmbedGatewayClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retries: retries,
	}
}

// gatewayEmbeddingResponse represents the response from the embed endpoints
type gatewayEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
	Dimension int       `json:"dimension"`
	Model     string    `json:"model"`
}

// EmbedImage generates an image-space embedding for a PNG image
func (c *EmbedGatewayClient) EmbedImage(ctx context.Context, imageBytes []byte) ([]float32, error) {
	req := map[string]interface{}{
		"image": base64.StdEncoding.EncodeToString(imageBytes),
	}

	resp, err := c.doRequest(ctx, "POST", "/embed/image", req)
	if err != nil {
		return nil, fmt.Errorf("embed image request failed: %w", err)
	}

	var result gatewayEmbeddingResponse
	if err := c.parseResponse(resp, &result); err != nil {
		return nil, err
	}
	return result.Embedding, nil
}

// EmbedImageText embeds a text query into the same space as image embeddings
func (c *EmbedGatewayClient) EmbedImageText(ctx context.Context, text string) ([]float32, error) {
	req := map[string]interface{}{
		"text": text,
	}

	resp, err := c.doRequest(ctx, "POST", "/embed/text", req)
	if err != nil {
		return nil, fmt.Errorf("embed text request failed: %w", err)
	}

	var result gatewayEmbeddingResponse
	if err := c.parseResponse(resp, &result); err != nil {
		return nil, err
	}
	return result.Embedding, nil
}

// HealthCheck checks if the gateway is healthy
func (c *EmbedGatewayClient) HealthCheck(ctx context.Context) (bool, error) {
	resp, err := c.doRequest(ctx, "GET", "/health", nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, err
	}

	status, ok := result["status"].(string)
	return ok && status == "healthy", nil
}

// doRequest performs an HTTP request with retry logic
func (c *EmbedGatewayClient) doRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			backoff := time.Duration(attempt*attempt) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.makeRequest(ctx, method, endpoint, body)
		if err == nil && resp.StatusCode < 500 {
			// Success or client error (don't retry 4xx)
			return resp, nil
		}

		lastErr = err
		if resp != nil {
			resp.Body.Close()
		}
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", c.retries, lastErr)
}

// makeRequest creates and executes an HTTP request
func (c *EmbedGatewayClient) makeRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Response, error) {
	url := c.baseURL + endpoint

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}

// parseResponse reads and parses JSON response
func (c *EmbedGatewayClient) parseResponse(resp *http.Response, result interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
