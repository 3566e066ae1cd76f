package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func setupGatewayServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *EmbedGatewayClient) {
	server := httptest.NewServer(handler)
	client := NewEmbedGatewayClientWithOptions(server.URL, 5*time.Second, 2)
	return server, client
}

func TestEmbedImage(t *testing.T) {
	imageBytes := []byte{0x89, 0x50, 0x4e, 0x47}

	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/image" {
			t.Errorf("Expected path /embed/image, got %s", r.URL.Path)
		}
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}

		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if req["image"] != base64.StdEncoding.EncodeToString(imageBytes) {
			t.Errorf("Image payload is not the base64 of the input bytes")
		}

		response := gatewayEmbeddingResponse{
			Embedding: []float32{0.1, 0.2, 0.3},
			Dimension: 3,
			Model:     "clip-vit-b-32",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}

	server, client := setupGatewayServer(t, handler)
	defer server.Close()

	embedding, err := client.EmbedImage(context.Background(), imageBytes)
	if err != nil {
		t.Fatalf("EmbedImage failed: %v", err)
	}
	if len(embedding) != 3 {
		t.Errorf("Expected 3 values in embedding, got %d", len(embedding))
	}
}

func TestEmbedImageText(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/text" {
			t.Errorf("Expected path /embed/text, got %s", r.URL.Path)
		}

		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		if req["text"] != "a scanned passport" {
			t.Errorf("Expected text 'a scanned passport', got %v", req["text"])
		}

		response := gatewayEmbeddingResponse{
			Embedding: []float32{0.7, 0.8},
			Dimension: 2,
			Model:     "clip-vit-b-32",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}

	server, client := setupGatewayServer(t, handler)
	defer server.Close()

	embedding, err := client.EmbedImageText(context.Background(), "a scanned passport")
	if err != nil {
		t.Fatalf("EmbedImageText failed: %v", err)
	}
	if len(embedding) != 2 {
		t.Errorf("Expected 2 values in embedding, got %d", len(embedding))
	}
}

func TestGatewayHealthCheck(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("Expected path /health, got %s", r.URL.Path)
		}
		response := map[string]interface{}{"status": "healthy"}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}

	server, client := setupGatewayServer(t, handler)
	defer server.Close()

	healthy, err := client.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
	if !healthy {
		t.Error("Expected gateway to be healthy")
	}
}

func TestGatewayRetryOn5xx(t *testing.T) {
	attempts := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		response := gatewayEmbeddingResponse{Embedding: []float32{0.5}, Dimension: 1}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}

	server, client := setupGatewayServer(t, handler)
	defer server.Close()

	embedding, err := client.EmbedImageText(context.Background(), "test")
	if err != nil {
		t.Fatalf("Expected success after retry, got error: %v", err)
	}
	if len(embedding) != 1 {
		t.Errorf("Expected 1 value in embedding, got %d", len(embedding))
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestGatewayNoRetryOn4xx(t *testing.T) {
	attempts := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "bad request"}`))
	}

	server, client := setupGatewayServer(t, handler)
	defer server.Close()

	_, err := client.EmbedImageText(context.Background(), "test")
	if err == nil {
		t.Fatal("Expected error for 400 response")
	}
	if attempts != 1 {
		t.Errorf("Client errors must not be retried, got %d attempts", attempts)
	}
}

func TestGatewayContextCancellation(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}

	server, client := setupGatewayServer(t, handler)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := client.EmbedImageText(ctx, "test")
	if err == nil {
		t.Fatal("Expected context deadline exceeded error")
	}
}

func TestNewEmbedGatewayClientWithOptions(t *testing.T) {
	client := NewEmbedGatewayClientWithOptions("http://localhost:9100", 30*time.Second, 5)

	if client.baseURL != "http://localhost:9100" {
		t.Errorf("Expected baseURL http://localhost:9100, got %s", client.baseURL)
	}
	if client.retries != 5 {
		t.Errorf("Expected 5 retries, got %d", client.retries)
	}
	if client.httpClient.Timeout != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %v", client.httpClient.Timeout)
	}
}

func TestGatewayImageEmbedderDisabled(t *testing.T) {
	embedder := NewGatewayImageEmbedder(nil)
	if embedder.Enabled() {
		t.Error("Embedder without a gateway must be disabled")
	}

	embedding, err := embedder.EmbedImage(context.Background(), []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("Disabled embedder must not error: %v", err)
	}
	if embedding != nil {
		t.Error("Disabled embedder must return no embedding")
	}
}
