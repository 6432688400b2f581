package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

type embeddingsHandler struct {
	calls    atomic.Int64
	failures int64 // fail the first N calls with a 500
	reversed bool  // return data entries in reverse order
}

func (h *embeddingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.calls.Add(1) <= h.failures {
		http.Error(w, "upstream overloaded", http.StatusInternalServerError)
		return
	}

	var req struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	type entry struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	}
	data := make([]entry, len(req.Input))
	for i, text := range req.Input {
		data[i] = entry{Embedding: []float32{float32(len(text)), 1, 2}, Index: i}
	}
	if h.reversed {
		for i, j := 0, len(data)-1; i < j; i, j = i+1, j-1 {
			data[i], data[j] = data[j], data[i]
		}
	}

	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"data":  data,
		"model": req.Model,
	})
}

func newTestRemote(t *testing.T, h *embeddingsHandler, cache *Cache) *remoteEmbedder {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	emb, err := newRemoteEmbedder("testsvc", srv.URL, "test-key", "test-model", 3, cache)
	if err != nil {
		t.Fatalf("newRemoteEmbedder() error = %v", err)
	}
	return emb
}

func TestRemoteEmbedderRequiresKey(t *testing.T) {
	if _, err := newJinaEmbedder("", nil); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("newJinaEmbedder(\"\") error = %v, want ErrProviderUnavailable", err)
	}
	if _, err := newOpenAIEmbedder("", nil); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("newOpenAIEmbedder(\"\") error = %v, want ErrProviderUnavailable", err)
	}
}

func TestRemoteEmbedderBatch(t *testing.T) {
	emb := newTestRemote(t, &embeddingsHandler{}, nil)

	resp, err := emb.GenerateBatch(context.Background(), BatchEmbeddingRequest{
		Texts: []string{"a", "bb", "ccc"},
	})
	if err != nil {
		t.Fatalf("GenerateBatch() error = %v", err)
	}
	if len(resp.Embeddings) != 3 {
		t.Fatalf("Got %d embeddings, want 3", len(resp.Embeddings))
	}
	for i, want := range []float32{1, 2, 3} {
		if resp.Embeddings[i].Vector[0] != want {
			t.Errorf("Embedding %d first component = %f, want %f", i, resp.Embeddings[i].Vector[0], want)
		}
	}
	if resp.Provider != "testsvc" || resp.Model != "test-model" {
		t.Errorf("Response metadata = %s/%s, want testsvc/test-model", resp.Provider, resp.Model)
	}
}

func TestRemoteEmbedderRestoresResponseOrder(t *testing.T) {
	emb := newTestRemote(t, &embeddingsHandler{reversed: true}, nil)

	resp, err := emb.GenerateBatch(context.Background(), BatchEmbeddingRequest{
		Texts: []string{"a", "bb", "ccc"},
	})
	if err != nil {
		t.Fatalf("GenerateBatch() error = %v", err)
	}
	for i, want := range []float32{1, 2, 3} {
		if resp.Embeddings[i].Vector[0] != want {
			t.Errorf("Embedding %d first component = %f, want %f", i, resp.Embeddings[i].Vector[0], want)
		}
	}
}

func TestRemoteEmbedderRetriesTransientFailures(t *testing.T) {
	h := &embeddingsHandler{failures: 1}
	emb := newTestRemote(t, h, nil)

	result, err := emb.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "retry me"})
	if err != nil {
		t.Fatalf("GenerateEmbedding() error = %v", err)
	}
	if result.Vector[0] != float32(len("retry me")) {
		t.Errorf("Vector first component = %f, want %d", result.Vector[0], len("retry me"))
	}
	if h.calls.Load() != 2 {
		t.Errorf("Provider called %d times, want 2", h.calls.Load())
	}
}

func TestRemoteEmbedderExhaustsRetries(t *testing.T) {
	h := &embeddingsHandler{failures: int64(maxAttempts)}
	emb := newTestRemote(t, h, nil)

	_, err := emb.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "never works"})
	if !errors.Is(err, ErrEmbeddingFailed) {
		t.Fatalf("GenerateEmbedding() error = %v, want ErrEmbeddingFailed", err)
	}
	if h.calls.Load() != int64(maxAttempts) {
		t.Errorf("Provider called %d times, want %d", h.calls.Load(), maxAttempts)
	}
}

func TestRemoteEmbedderCachesByContent(t *testing.T) {
	h := &embeddingsHandler{}
	emb := newTestRemote(t, h, NewCache(10))
	ctx := context.Background()

	first, err := emb.GenerateEmbedding(ctx, EmbeddingRequest{Text: "cache me"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := emb.GenerateEmbedding(ctx, EmbeddingRequest{Text: "cache me"})
	if err != nil {
		t.Fatal(err)
	}

	if h.calls.Load() != 1 {
		t.Errorf("Provider called %d times, want 1", h.calls.Load())
	}
	if first.Hash == "" || first.Hash != second.Hash {
		t.Errorf("Hashes = %q and %q, want one non-empty hash", first.Hash, second.Hash)
	}
}
