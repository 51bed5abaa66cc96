package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewOllamaProvider_Defaults(t *testing.T) {
	provider := NewOllamaProvider()

	if provider.baseURL != DefaultOllamaURL {
		t.Errorf("baseURL = %s, want %s", provider.baseURL, DefaultOllamaURL)
	}
	if provider.model != DefaultModel {
		t.Errorf("model = %s, want %s", provider.model, DefaultModel)
	}
	if provider.dimensions != DefaultDimensions {
		t.Errorf("dimensions = %d, want %d", provider.dimensions, DefaultDimensions)
	}
	if provider.client == nil {
		t.Error("client should not be nil")
	}
}

func TestNewOllamaProvider_WithOptions(t *testing.T) {
	customURL := "http://custom:8080"
	customModel := "custom-model"
	customDimensions := 768
	customTimeout := 60 * time.Second

	provider := NewOllamaProvider(
		WithBaseURL(customURL),
		WithModel(customModel),
		WithDimensions(customDimensions),
		WithTimeout(customTimeout),
	)

	if provider.baseURL != customURL {
		t.Errorf("baseURL = %s, want %s", provider.baseURL, customURL)
	}
	if provider.model != customModel {
		t.Errorf("model = %s, want %s", provider.model, customModel)
	}
	if provider.dimensions != customDimensions {
		t.Errorf("dimensions = %d, want %d", provider.dimensions, customDimensions)
	}
	if provider.client.Timeout != customTimeout {
		t.Errorf("timeout = %v, want %v", provider.client.Timeout, customTimeout)
	}
	if provider.ModelName() != customModel || provider.Dimensions() != customDimensions {
		t.Errorf("ModelName(), Dimensions() = %s, %d; want %s, %d",
			provider.ModelName(), provider.Dimensions(), customModel, customDimensions)
	}

	trimmed := NewOllamaProvider(WithBaseURL("http://custom:8080/"))
	if trimmed.baseURL != customURL {
		t.Errorf("baseURL = %s, want trailing slash trimmed", trimmed.baseURL)
	}
}

func TestFormatErrorBody(t *testing.T) {
	long := strings.Repeat("x", maxErrorBody+100)
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple error message", "error occurred\n", "error occurred"},
		{"empty body", "", ""},
		{"json error", `{"error": "not found"}`, `{"error": "not found"}`},
		{"truncated", long, long[:maxErrorBody] + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatErrorBody(strings.NewReader(tt.input))
			if result != tt.expected {
				t.Errorf("formatErrorBody() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func newOllamaTestServer(t *testing.T, handler http.HandlerFunc) *OllamaProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOllamaProvider(WithBaseURL(srv.URL), WithDimensions(3))
}

func TestOllamaProvider_Embed(t *testing.T) {
	var got ollamaEmbedRequest
	provider := newOllamaTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != apiPathEmbed {
			t.Errorf("path = %s, want %s", r.URL.Path, apiPathEmbed)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
			return
		}
		resp := ollamaEmbedResponse{Embeddings: make([][]float32, len(got.Input))}
		for i := range got.Input {
			resp.Embeddings[i] = []float32{float32(i), 0, 1}
		}
		json.NewEncoder(w).Encode(resp)
	})

	embs, err := provider.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if got.Model != DefaultModel {
		t.Errorf("request model = %s, want %s", got.Model, DefaultModel)
	}
	if !got.Truncate {
		t.Error("request should ask Ollama to truncate long inputs")
	}
	if len(embs) != 2 {
		t.Fatalf("len(embs) = %d, want 2", len(embs))
	}
	if embs[1].Vector[0] != 1 {
		t.Errorf("embs[1].Vector[0] = %v, want 1 (order preserved)", embs[1].Vector[0])
	}
}

func TestOllamaProvider_EmbedEmpty(t *testing.T) {
	provider := NewOllamaProvider(WithBaseURL("http://127.0.0.1:1"))
	embs, err := provider.Embed(context.Background(), nil)
	if err != nil || embs != nil {
		t.Errorf("Embed(nil) = %v, %v; want nil, nil", embs, err)
	}
}

func TestOllamaProvider_EmbedErrors(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		wantIndex int
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model crashed", http.StatusInternalServerError)
			},
			wantIndex: -1,
		},
		{
			name: "count mismatch",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1, 2, 3}}})
			},
			wantIndex: -1,
		},
		{
			name: "wrong dimensions on second input",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1, 2, 3}, {1, 2}}})
			},
			wantIndex: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newOllamaTestServer(t, tt.handler)
			_, err := provider.Embed(context.Background(), []string{"a", "b"})
			if !errors.Is(err, ErrProvider) {
				t.Fatalf("error = %v, want ErrProvider", err)
			}
			var pe *ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("error %T is not *ProviderError", err)
			}
			if pe.Index != tt.wantIndex {
				t.Errorf("Index = %d, want %d", pe.Index, tt.wantIndex)
			}
		})
	}
}

func TestOllamaProvider_EmbedCancelled(t *testing.T) {
	provider := newOllamaTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.Embed(ctx, []string{"a"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestOllamaProvider_HasModel(t *testing.T) {
	tests := []struct {
		name   string
		model  string
		pulled []string
		want   bool
	}{
		{"exact tag", DefaultModel, []string{"llama3:latest", DefaultModel}, true},
		{"implicit latest", "nomic-embed-text", []string{"nomic-embed-text:latest"}, true},
		{"missing", "nomic-embed-text", []string{"all-minilm:l6-v2"}, false},
		{"none pulled", DefaultModel, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != apiPathTags {
					t.Errorf("path = %s, want %s", r.URL.Path, apiPathTags)
				}
				resp := ollamaTagsResponse{}
				for _, name := range tt.pulled {
					resp.Models = append(resp.Models, ollamaModel{Name: name})
				}
				json.NewEncoder(w).Encode(resp)
			}))
			defer srv.Close()
			provider := NewOllamaProvider(WithBaseURL(srv.URL+"/"), WithModel(tt.model))

			if err := provider.IsAvailable(context.Background()); err != nil {
				t.Fatalf("IsAvailable() error = %v", err)
			}
			got, err := provider.HasModel(context.Background())
			if err != nil {
				t.Fatalf("HasModel() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("HasModel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOllamaProvider_IsAvailable_Down(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	provider := NewOllamaProvider(WithBaseURL(url))
	if err := provider.IsAvailable(context.Background()); err == nil {
		t.Error("IsAvailable() should fail when the server is down")
	}
}
