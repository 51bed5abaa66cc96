package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIModelDimensions(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"text-embedding-ada-002", 1536},
		{"unknown", 1536},
	}
	for _, tt := range tests {
		if got := openAIModelDimensions(tt.model); got != tt.want {
			t.Errorf("openAIModelDimensions(%q) = %d, want %d", tt.model, got, tt.want)
		}
	}
}

func TestNewOpenAIProvider_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIProvider("", ""); err == nil {
		t.Error("expected error for empty api key")
	}
}

func TestNewOpenAIProvider_DefaultModel(t *testing.T) {
	p, err := NewOpenAIProvider("sk-test", "")
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error = %v", err)
	}
	if p.ModelName() != DefaultOpenAIModel {
		t.Errorf("ModelName() = %s, want %s", p.ModelName(), DefaultOpenAIModel)
	}
}

func TestOpenAIProvider_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %s, want /embeddings", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		// Return out of order to check index handling.
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data": []map[string]any{
				{"object": "embedding", "index": 1, "embedding": []float64{0, 1}},
				{"object": "embedding", "index": 0, "embedding": []float64{1, 0}},
			},
			"usage": map[string]any{"prompt_tokens": 2, "total_tokens": 2},
		})
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider("sk-test", "", WithOpenAIBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error = %v", err)
	}

	embs, err := p.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if embs[0].Vector[0] != 1 || embs[1].Vector[1] != 1 {
		t.Errorf("embeddings not placed by index: %v", embs)
	}
}

func TestOpenAIProvider_EmbedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad input","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider("sk-test", "", WithOpenAIBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error = %v", err)
	}

	_, err = p.Embed(context.Background(), []string{"x"})
	if !errors.Is(err, ErrProvider) {
		t.Errorf("error = %v, want ErrProvider", err)
	}
}
