package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestEmbedClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req embedReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "all-minilm" {
			t.Errorf("unexpected model %q", req.Model)
		}
		out := embedResp{}
		for i := range req.Input {
			out.Embeddings = append(out.Embeddings, []float64{float64(i), 1})
		}
		json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	c := NewEmbedClient(srv.URL+"/", "all-minilm", time.Second)
	vecs, err := c.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	if vecs[2][0] != 2 || vecs[2][1] != 1 {
		t.Errorf("unexpected vector %v", vecs[2])
	}
}

func TestEmbedClientEmptyInput(t *testing.T) {
	c := NewEmbedClient("http://127.0.0.1:1", "m", time.Second)
	vecs, err := c.Embed(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Fatalf("expected nil, nil; got %v, %v", vecs, err)
	}
}

func TestEmbedClientCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResp{Embeddings: [][]float64{{1}}})
	}))
	defer srv.Close()

	c := NewEmbedClient(srv.URL, "m", time.Second)
	if _, err := c.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected count mismatch error")
	}
}

func TestEmbedClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewEmbedClient(srv.URL, "m", time.Second)
	_, err := c.Embed(context.Background(), []string{"a"})
	if err == nil || !strings.Contains(err.Error(), "status 404") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestGenerateClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req generateReq
		json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Error("expected stream=false")
		}
		if !strings.Contains(req.Prompt, "employees") {
			t.Errorf("prompt not forwarded: %q", req.Prompt)
		}
		json.NewEncoder(w).Encode(generateResp{Response: "SELECT 1", Done: true})
	}))
	defer srv.Close()

	c := NewGenerateClient(srv.URL, "llama3", time.Second)
	out, err := c.Generate(context.Background(), "how many employees")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "SELECT 1" {
		t.Errorf("expected SELECT 1, got %q", out)
	}
}

func TestGenerateClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(generateResp{Response: "late", Done: true})
	}))
	defer srv.Close()

	c := NewGenerateClient(srv.URL, "llama3", 20*time.Millisecond)
	if _, err := c.Generate(context.Background(), "q"); err == nil {
		t.Fatal("expected timeout error")
	}
}
